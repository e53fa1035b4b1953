package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/syncmigrate/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	settings, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "move_dsns.lst", settings.Database.DSNFile)
	assert.Equal(t, "users.csv", settings.Identity.UsersFile)
	assert.Equal(t, 0, settings.Migration.StartShard)
	assert.Equal(t, 19, settings.Migration.EndShard)
	assert.Equal(t, 1000, settings.Migration.ReadChunk)
	assert.Equal(t, 10*time.Second, settings.Notification.Timeout)
	assert.Empty(t, settings.Metrics.Listen)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  dsnfile: /etc/syncmigrate/dsns.lst
migration:
  startshard: 3
  endshard: 5
  readchunk: 250
  full: true
  abort: history:5000
notification:
  urls:
    - generic://example.com/hook
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	settings, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/syncmigrate/dsns.lst", settings.Database.DSNFile)
	assert.Equal(t, 3, settings.Migration.StartShard)
	assert.Equal(t, 5, settings.Migration.EndShard)
	assert.Equal(t, 250, settings.Migration.ReadChunk)
	assert.True(t, settings.Migration.Full)
	assert.Equal(t, "history:5000", settings.Migration.Abort)
	assert.Equal(t, []string{"generic://example.com/hook"}, settings.Notification.URLs)
	// untouched keys keep their defaults
	assert.Equal(t, "users.csv", settings.Identity.UsersFile)
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Parallel()

	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoadInvalidSettings(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.Set("migration.startshard", 7)
	v.Set("migration.endshard", 2)

	_, err := Load(v, "")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Contains(t, err.Error(), "start shard 7 is after end shard 2")
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("SYNCMIGRATE_START_BSO", "4")
	t.Setenv("SYNCMIGRATE_END_BSO", "4")
	t.Setenv("SYNCMIGRATE_ANON", "true")
	t.Setenv("SYNCMIGRATE_METRICS_ADDR", "127.0.0.1:9108")

	settings, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, 4, settings.Migration.StartShard)
	assert.Equal(t, 4, settings.Migration.EndShard)
	assert.True(t, settings.Identity.Anonymize)
	assert.Equal(t, "127.0.0.1:9108", settings.Metrics.Listen)
}

func TestLoadFlagOverridesEnvironment(t *testing.T) {
	t.Setenv("SYNCMIGRATE_READCHUNK", "50")

	v := viper.New()
	v.Set("migration.readchunk", 75)

	settings, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, 75, settings.Migration.ReadChunk)
}

func TestLoadResolvesSecrets(t *testing.T) {
	t.Setenv("SYNCMIGRATE_TEST_HOOK_TOKEN", "abc123")

	dsnFile := filepath.Join(t.TempDir(), "sentry-dsn")
	require.NoError(t, os.WriteFile(dsnFile, []byte("https://key@sentry.example.com/7\n"), 0o600))

	v := viper.New()
	v.Set("sentry.dsnfile", dsnFile)
	v.Set("notification.urls", []string{"generic://hooks.example.com/${SYNCMIGRATE_TEST_HOOK_TOKEN}"})

	settings, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "https://key@sentry.example.com/7", settings.Sentry.DSN)
	assert.Equal(t, []string{"generic://hooks.example.com/abc123"}, settings.Notification.URLs)
	assert.Empty(t, settings.Warnings)
}

func TestLoadMissingSecretVariable(t *testing.T) {
	v := viper.New()
	v.Set("sentry.dsn", "${SYNCMIGRATE_TEST_NOT_SET}")

	_, err := Load(v, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNCMIGRATE_TEST_NOT_SET")
}
