package conf

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
)

// maxShard is the highest legacy shard number.
const maxShard = 19

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateDatabaseSettings(&settings.Database); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateIdentitySettings(&settings.Identity); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateMigrationSettings(&settings.Migration); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateMetricsSettings(&settings.Metrics); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateNotificationSettings(&settings.Notification); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateDatabaseSettings(s *DatabaseSettings) error {
	if strings.TrimSpace(s.DSNFile) == "" {
		return errors.New("database DSN file must be set")
	}
	if s.SlowThreshold < 0 {
		return fmt.Errorf("slow query threshold must not be negative, got %s", s.SlowThreshold)
	}
	return nil
}

func validateIdentitySettings(s *IdentitySettings) error {
	if !s.Anonymize && strings.TrimSpace(s.UsersFile) == "" {
		return errors.New("users file must be set unless anonymizing")
	}
	return nil
}

func validateMigrationSettings(s *MigrationSettings) error {
	var errs []string

	if s.StartShard < 0 || s.StartShard > maxShard {
		errs = append(errs, fmt.Sprintf("start shard %d outside 0..%d", s.StartShard, maxShard))
	}
	if s.EndShard < 0 || s.EndShard > maxShard {
		errs = append(errs, fmt.Sprintf("end shard %d outside 0..%d", s.EndShard, maxShard))
	}
	if s.StartShard > s.EndShard {
		errs = append(errs, fmt.Sprintf("start shard %d is after end shard %d", s.StartShard, s.EndShard))
	}
	if s.ReadChunk < 1 {
		errs = append(errs, fmt.Sprintf("read chunk must be at least 1, got %d", s.ReadChunk))
	}
	if s.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("rate limit must not be negative, got %g", s.RateLimit))
	}
	if s.User != "" && s.UserRange != "" {
		errs = append(errs, "user and user range cannot be combined")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateMetricsSettings(s *MetricsSettings) error {
	if s.Listen == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		return fmt.Errorf("invalid metrics listen address %q: %w", s.Listen, err)
	}
	return nil
}

func validateNotificationSettings(s *NotificationSettings) error {
	if slices.ContainsFunc(s.URLs, func(u string) bool { return strings.TrimSpace(u) == "" }) {
		return errors.New("notification URLs must not be empty")
	}
	if len(s.URLs) > 0 && s.Timeout <= 0 {
		return fmt.Errorf("notification timeout must be positive, got %s", s.Timeout)
	}
	return nil
}
