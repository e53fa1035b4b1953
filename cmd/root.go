// Package cmd wires the command line interface.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/syncmigrate/cmd/catalog"
	"github.com/tphakala/syncmigrate/cmd/migrate"
	"github.com/tphakala/syncmigrate/cmd/notify"
	"github.com/tphakala/syncmigrate/cmd/verify"
	"github.com/tphakala/syncmigrate/internal/conf"
	"github.com/tphakala/syncmigrate/internal/runtime"
)

// RootCommand creates and returns the root command. Settings are loaded into
// rt before any subcommand runs.
func RootCommand(rt *runtime.Context, v *viper.Viper) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "syncmigrate",
		Short:         "Move sync records from the legacy sharded store to the new store",
		Version:       rt.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	setupFlags(rootCmd)

	rootCmd.AddCommand(
		migrate.Command(rt),
		catalog.Command(rt),
		verify.Command(rt),
		notify.Command(rt),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := conf.BindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		settings, err := conf.Load(v, configFile)
		if err != nil {
			return err
		}
		return rt.Init(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()
	flags.String("dsns", "move_dsns.lst", "File with the legacy and target connection URIs, one per line")
	flags.String("users-file", "users.csv", "Tab separated identity feed")
	flags.Bool("anon", false, "Generate throwaway identities instead of reading the identity feed")
	flags.BoolP("verbose", "v", false, "Enable debug output")
	flags.Bool("auto-migrate", false, "Create the target tables before running")
	flags.String("sentry-dsn", "", "Report errors to this Sentry DSN")
}
