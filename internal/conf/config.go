// Package conf loads run settings from flags, an optional YAML file and
// SYNCMIGRATE_* environment variables.
package conf

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/tphakala/syncmigrate/internal/errors"
	"github.com/tphakala/syncmigrate/internal/logger"
	"github.com/tphakala/syncmigrate/internal/secrets"
)

// Settings holds every option of a migration run.
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Database     DatabaseSettings     `yaml:"database" mapstructure:"database"`
	Identity     IdentitySettings     `yaml:"identity" mapstructure:"identity"`
	Migration    MigrationSettings    `yaml:"migration" mapstructure:"migration"`
	Logging      logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics      MetricsSettings      `yaml:"metrics" mapstructure:"metrics"`
	Sentry       SentrySettings       `yaml:"sentry" mapstructure:"sentry"`
	Notification NotificationSettings `yaml:"notification" mapstructure:"notification"`

	// Warnings collects non-fatal issues found while loading.
	Warnings []string `yaml:"-" mapstructure:"-"`
}

// DatabaseSettings locates the legacy and target stores.
type DatabaseSettings struct {
	DSNFile       string        `yaml:"dsnfile" mapstructure:"dsnfile"`             // one connection URI per line
	AutoMigrate   bool          `yaml:"automigrate" mapstructure:"automigrate"`     // create target tables before migrating
	SlowThreshold time.Duration `yaml:"slowthreshold" mapstructure:"slowthreshold"` // queries slower than this are logged
}

// IdentitySettings configures identity resolution.
type IdentitySettings struct {
	UsersFile string `yaml:"usersfile" mapstructure:"usersfile"`
	Anonymize bool   `yaml:"anonymize" mapstructure:"anonymize"`
}

// MigrationSettings selects what to migrate.
type MigrationSettings struct {
	StartShard int     `yaml:"startshard" mapstructure:"startshard"`
	EndShard   int     `yaml:"endshard" mapstructure:"endshard"`
	User       string  `yaml:"user" mapstructure:"user"`           // shard:id[,id...]
	UserRange  string  `yaml:"userrange" mapstructure:"userrange"` // offset:limit
	SortUsers  bool    `yaml:"sortusers" mapstructure:"sortusers"`
	ReadChunk  int     `yaml:"readchunk" mapstructure:"readchunk"`
	DryRun     bool    `yaml:"dryrun" mapstructure:"dryrun"`
	Full       bool    `yaml:"full" mapstructure:"full"`
	Abort      string  `yaml:"abort" mapstructure:"abort"`         // collection:maxRows
	RateLimit  float64 `yaml:"ratelimit" mapstructure:"ratelimit"` // chunks per second, 0 for no limit
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Listen string `yaml:"listen" mapstructure:"listen"` // empty disables the endpoint
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	DSN     string `yaml:"dsn" mapstructure:"dsn"`         // empty disables reporting
	DSNFile string `yaml:"dsnfile" mapstructure:"dsnfile"` // read the DSN from this file instead
}

// NotificationSettings configures the completion notification.
type NotificationSettings struct {
	URLs    []string      `yaml:"urls" mapstructure:"urls"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Load reads settings from v. Defaults and environment bindings are
// installed first and configFile, when set, is merged on top of them.
// Flags bound to v by the caller take precedence over all of these.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return nil, configError(err, "bind_env")
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.New(fmt.Errorf("error reading config file: %w", err)).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("path", configFile).
				Build()
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, configError(fmt.Errorf("error unmarshaling config into struct: %w", err), "unmarshal")
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, configError(err, "validate")
	}
	return settings, nil
}

// resolveSecrets expands environment references in credentials and reads
// secret files.
func resolveSecrets(settings *Settings) error {
	dsn, permissive, err := secrets.Resolve(settings.Sentry.DSNFile, settings.Sentry.DSN)
	if err != nil {
		return configError(err, "resolve_sentry_dsn")
	}
	if permissive {
		settings.Warnings = append(settings.Warnings,
			fmt.Sprintf("secret file %s is readable by group or others", settings.Sentry.DSNFile))
	}
	settings.Sentry.DSN = dsn

	for i, u := range settings.Notification.URLs {
		expanded, err := secrets.ExpandString(u)
		if err != nil {
			return configError(err, "resolve_notification_url")
		}
		settings.Notification.URLs[i] = expanded
	}
	return nil
}

func configError(err error, operation string) error {
	return errors.New(err).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Context("operation", operation).
		Build()
}
