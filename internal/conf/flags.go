package conf

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"dsns":         "database.dsnfile",
	"auto-migrate": "database.automigrate",
	"users-file":   "identity.usersfile",
	"anon":         "identity.anonymize",
	"verbose":      "debug",
	"sentry-dsn":   "sentry.dsn",
	"start-bso":    "migration.startshard",
	"end-bso":      "migration.endshard",
	"user":         "migration.user",
	"user-range":   "migration.userrange",
	"sort-users":   "migration.sortusers",
	"readchunk":    "migration.readchunk",
	"dryrun":       "migration.dryrun",
	"full":         "migration.full",
	"abort":        "migration.abort",
	"ratelimit":    "migration.ratelimit",
	"metrics-addr": "metrics.listen",
	"notify-url":   "notification.urls",
}

// BindFlags binds every known flag present in flags to its config key on v.
// Commands share flag names, so only the flags of the executing command
// should be bound.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}
