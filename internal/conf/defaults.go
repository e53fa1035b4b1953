package conf

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults installs the default value of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	// Stores
	v.SetDefault("database.dsnfile", "move_dsns.lst")
	v.SetDefault("database.automigrate", false)
	v.SetDefault("database.slowthreshold", 500*time.Millisecond)

	// Identity feed
	v.SetDefault("identity.usersfile", "users.csv")
	v.SetDefault("identity.anonymize", false)

	// Migration scope
	v.SetDefault("migration.startshard", 0)
	v.SetDefault("migration.endshard", 19)
	v.SetDefault("migration.readchunk", 1000)
	v.SetDefault("migration.sortusers", false)
	v.SetDefault("migration.dryrun", false)
	v.SetDefault("migration.full", false)
	v.SetDefault("migration.ratelimit", 0.0)

	// Logging
	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "UTC")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.console.json", false)
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/syncmigrate.log")
	v.SetDefault("logging.file_output.level", "debug")

	v.SetDefault("metrics.listen", "")
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.dsnfile", "")

	v.SetDefault("notification.urls", []string{})
	v.SetDefault("notification.timeout", 10*time.Second)
}
