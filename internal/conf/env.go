package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by the tool.
const EnvPrefix = "SYNCMIGRATE"

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "SYNCMIGRATE_DEBUG", validateEnvBool},

		// Stores
		{"database.dsnfile", "SYNCMIGRATE_DSNS", nil},
		{"database.automigrate", "SYNCMIGRATE_AUTO_MIGRATE", validateEnvBool},
		{"database.slowthreshold", "SYNCMIGRATE_SLOW_THRESHOLD", validateEnvDuration},

		// Identity feed
		{"identity.usersfile", "SYNCMIGRATE_USERS_FILE", nil},
		{"identity.anonymize", "SYNCMIGRATE_ANON", validateEnvBool},

		// Migration scope
		{"migration.startshard", "SYNCMIGRATE_START_BSO", validateEnvShard},
		{"migration.endshard", "SYNCMIGRATE_END_BSO", validateEnvShard},
		{"migration.readchunk", "SYNCMIGRATE_READCHUNK", validateEnvPositiveInt},
		{"migration.dryrun", "SYNCMIGRATE_DRYRUN", validateEnvBool},
		{"migration.full", "SYNCMIGRATE_FULL", validateEnvBool},
		{"migration.ratelimit", "SYNCMIGRATE_RATELIMIT", validateEnvRate},

		// Ambient services
		{"metrics.listen", "SYNCMIGRATE_METRICS_ADDR", nil},
		{"sentry.dsn", "SYNCMIGRATE_SENTRY_DSN", nil},
		{"sentry.dsnfile", "SYNCMIGRATE_SENTRY_DSN_FILE", nil},
		{"notification.timeout", "SYNCMIGRATE_NOTIFY_TIMEOUT", validateEnvDuration},
	}
}

// BindEnv binds every SYNCMIGRATE_* variable to its key on v. Variables
// that are set but invalid are reported together in one error.
func BindEnv(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value: %s", value)
	}
	return nil
}

func validateEnvShard(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid shard number: %s", value)
	}
	if n < 0 || n > maxShard {
		return fmt.Errorf("shard %d outside 0..%d", n, maxShard)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid integer value: %s", value)
	}
	if n < 1 {
		return fmt.Errorf("value must be at least 1, got %d", n)
	}
	return nil
}

func validateEnvRate(value string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("invalid rate value: %s", value)
	}
	if f < 0 {
		return fmt.Errorf("rate must not be negative, got %g", f)
	}
	return nil
}

func validateEnvDuration(value string) error {
	if _, err := time.ParseDuration(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid duration value: %s", value)
	}
	return nil
}
