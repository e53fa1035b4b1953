package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"github.com/tphakala/syncmigrate/cmd"
	"github.com/tphakala/syncmigrate/internal/runtime"
)

// buildDate and version are set at build time with -ldflags.
var (
	buildDate string
	version   string
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	if version == "" {
		version = "dev"
	}
	rt := &runtime.Context{
		Version:   version,
		BuildDate: buildDate,
	}
	defer func() { _ = rt.Close() }()

	rootCmd := cmd.RootCommand(rt, viper.New())
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
