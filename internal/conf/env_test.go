package conf

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEnvBool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"true", "true", false},
		{"false", "false", false},
		{"1", "1", false},
		{"0", "0", false},
		{"TRUE", "TRUE", false},
		{"true with spaces", " true ", false},
		{"yes", "yes", true}, // strconv.ParseBool doesn't accept yes/no
		{"invalid", "maybe", true},
		{"decimal", "0.5", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validateEnvBool(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid boolean value")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEnvShard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"first shard", "0", false},
		{"last shard", "19", false},
		{"padded", " 7 ", false},
		{"past last shard", "20", true},
		{"negative", "-1", true},
		{"not a number", "bso3", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validateEnvShard(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEnvNumbers(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateEnvPositiveInt("1000"))
	assert.Error(t, validateEnvPositiveInt("0"))
	assert.Error(t, validateEnvPositiveInt("ten"))

	assert.NoError(t, validateEnvRate("0"))
	assert.NoError(t, validateEnvRate("2.5"))
	assert.Error(t, validateEnvRate("-1"))
	assert.Error(t, validateEnvRate("fast"))

	assert.NoError(t, validateEnvDuration("250ms"))
	assert.Error(t, validateEnvDuration("250"))
}

func TestBindEnvReportsInvalidValues(t *testing.T) {
	t.Setenv("SYNCMIGRATE_DRYRUN", "maybe")
	t.Setenv("SYNCMIGRATE_END_BSO", "42")

	err := BindEnv(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNCMIGRATE_DRYRUN")
	assert.Contains(t, err.Error(), "SYNCMIGRATE_END_BSO")
}

func TestEnvBindingsUsePrefix(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for _, b := range getEnvBindings() {
		assert.Regexp(t, "^"+EnvPrefix+"_[A-Z_]+$", b.EnvVar)
		assert.False(t, seen[b.EnvVar], "duplicate binding %s", b.EnvVar)
		seen[b.EnvVar] = true
	}
}
