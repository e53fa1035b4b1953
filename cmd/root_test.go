package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/syncmigrate/internal/runtime"
)

// execute runs the root command with the named subcommand's RunE replaced.
func execute(t *testing.T, args ...string) *runtime.Context {
	t.Helper()

	rt := &runtime.Context{Version: "test"}
	root := RootCommand(rt, viper.New())
	sub, _, err := root.Find(args)
	require.NoError(t, err)
	sub.RunE = func(*cobra.Command, []string) error { return nil }

	root.SetArgs(args)
	root.SetOut(&bytes.Buffer{})
	require.NoError(t, root.Execute())
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestMigrateFlagsReachSettings(t *testing.T) {
	t.Parallel()

	rt := execute(t, "migrate", "--start-bso", "3", "--end-bso", "4", "--dryrun", "--full",
		"--readchunk", "50", "--abort", "history:10", "--dsns", "dsns.lst", "--anon")

	s := rt.Settings
	require.NotNil(t, s)
	assert.Equal(t, 3, s.Migration.StartShard)
	assert.Equal(t, 4, s.Migration.EndShard)
	assert.True(t, s.Migration.DryRun)
	assert.True(t, s.Migration.Full)
	assert.Equal(t, 50, s.Migration.ReadChunk)
	assert.Equal(t, "history:10", s.Migration.Abort)
	assert.Equal(t, "dsns.lst", s.Database.DSNFile)
	assert.True(t, s.Identity.Anonymize)
	assert.NotEmpty(t, rt.RunID)
}

func TestVerifyFlagsReachSettings(t *testing.T) {
	t.Parallel()

	rt := execute(t, "verify", "--user", "5:1,2")
	assert.Equal(t, "5:1,2", rt.Settings.Migration.User)
	assert.Equal(t, 0, rt.Settings.Migration.StartShard)
}

func TestDefaultsWithoutFlags(t *testing.T) {
	t.Parallel()

	rt := execute(t, "catalog")
	assert.Equal(t, "move_dsns.lst", rt.Settings.Database.DSNFile)
	assert.Equal(t, 19, rt.Settings.Migration.EndShard)
	assert.Equal(t, 1000, rt.Settings.Migration.ReadChunk)
}

func TestInvalidSettingsFailBeforeRunning(t *testing.T) {
	t.Parallel()

	rt := &runtime.Context{}
	root := RootCommand(rt, viper.New())
	ran := false
	sub, _, err := root.Find([]string{"migrate"})
	require.NoError(t, err)
	sub.RunE = func(*cobra.Command, []string) error {
		ran = true
		return nil
	}

	root.SetArgs([]string{"migrate", "--start-bso", "9", "--end-bso", "2"})
	require.Error(t, root.Execute())
	assert.False(t, ran)
}
