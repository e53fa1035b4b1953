package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/syncmigrate/internal/conf"
	"github.com/tphakala/syncmigrate/internal/errors"
	"github.com/tphakala/syncmigrate/internal/logger"
)

func TestInitAssignsRunID(t *testing.T) {
	t.Parallel()

	rt := &Context{Version: "test"}
	require.NoError(t, rt.Init(&conf.Settings{}))
	t.Cleanup(func() { _ = rt.Close() })

	assert.Len(t, rt.RunID, 36)
	assert.NotNil(t, rt.Logger("migrate"))
}

func TestInitKeepsRunID(t *testing.T) {
	t.Parallel()

	rt := &Context{RunID: "fixed"}
	require.NoError(t, rt.Init(&conf.Settings{}))
	t.Cleanup(func() { _ = rt.Close() })

	assert.Equal(t, "fixed", rt.RunID)
}

func TestInitDebugRaisesVerbosity(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{
		Debug: true,
		Logging: logger.LoggingConfig{
			Console: &logger.ConsoleOutput{Enabled: true, Level: "info"},
		},
	}
	rt := &Context{}
	require.NoError(t, rt.Init(settings))
	t.Cleanup(func() { _ = rt.Close() })

	assert.Equal(t, "debug", settings.Logging.DefaultLevel)
	assert.Equal(t, "debug", settings.Logging.Console.Level)
}

func TestLoggerBeforeInit(t *testing.T) {
	t.Parallel()

	rt := &Context{}
	assert.NotNil(t, rt.Logger("catalog"))
}

func TestOpenStoresWithSQLiteTarget(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dsnFile := filepath.Join(dir, "dsns.lst")
	content := "mysql://user:pw@127.0.0.1:1/legacy\nsqlite://" + filepath.Join(dir, "target.db") + "\n"
	require.NoError(t, os.WriteFile(dsnFile, []byte(content), 0o600))

	rt := &Context{}
	require.NoError(t, rt.Init(&conf.Settings{Database: conf.DatabaseSettings{DSNFile: dsnFile}}))
	t.Cleanup(func() { _ = rt.Close() })

	// nothing listens on port 1, so the legacy side fails to connect
	_, err := rt.OpenStores(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
}

func TestOpenStoresMissingDSNFile(t *testing.T) {
	t.Parallel()

	rt := &Context{}
	require.NoError(t, rt.Init(&conf.Settings{
		Database: conf.DatabaseSettings{DSNFile: filepath.Join(t.TempDir(), "missing.lst")},
	}))
	t.Cleanup(func() { _ = rt.Close() })

	_, err := rt.OpenStores(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
