package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/syncmigrate/internal/errors"
)

func TestExpandString(t *testing.T) {
	t.Setenv("SYNCMIGRATE_TEST_PASSWORD", "s3cret")
	t.Setenv("SYNCMIGRATE_TEST_EMPTY", "")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{"empty", "", "", ""},
		{"literal", "mysql://sync@db/weave0", "mysql://sync@db/weave0", ""},
		{"reference", "mysql://sync:${SYNCMIGRATE_TEST_PASSWORD}@db/weave0", "mysql://sync:s3cret@db/weave0", ""},
		{"fallback unused", "${SYNCMIGRATE_TEST_PASSWORD:-other}", "s3cret", ""},
		{"fallback used", "${SYNCMIGRATE_TEST_UNSET:-other}", "other", ""},
		{"empty fallback", "x${SYNCMIGRATE_TEST_UNSET:-}y", "xy", ""},
		{"empty variable", "${SYNCMIGRATE_TEST_EMPTY}", "", "SYNCMIGRATE_TEST_EMPTY"},
		{"missing", "${SYNCMIGRATE_TEST_UNSET}/${SYNCMIGRATE_TEST_OTHER}", "", "SYNCMIGRATE_TEST_UNSET, SYNCMIGRATE_TEST_OTHER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandString(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandStringFuncEncodesValuesOnly(t *testing.T) {
	t.Setenv("SYNCMIGRATE_TEST_PASSWORD", "a@b")
	wrap := func(v string) string { return "[" + v + "]" }

	got, err := ExpandStringFunc("${SYNCMIGRATE_TEST_PASSWORD}:${SYNCMIGRATE_TEST_UNSET:-x@y}", wrap)
	require.NoError(t, err)
	assert.Equal(t, "[a@b]:x@y", got)
}

func TestReadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	owner := filepath.Join(dir, "owner")
	require.NoError(t, os.WriteFile(owner, []byte("token\n"), 0o600))
	secret, permissive, err := ReadFile(owner)
	require.NoError(t, err)
	assert.Equal(t, "token", secret)
	assert.False(t, permissive)

	shared := filepath.Join(dir, "shared")
	require.NoError(t, os.WriteFile(shared, []byte("token\r\n"), 0o600))
	require.NoError(t, os.Chmod(shared, 0o644))
	secret, permissive, err = ReadFile(shared)
	require.NoError(t, err)
	assert.Equal(t, "token", secret)
	assert.True(t, permissive)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, _, err = ReadFile(empty)
	require.ErrorContains(t, err, "secret file is empty")

	_, _, err = ReadFile(dir)
	require.ErrorContains(t, err, "not a regular file")

	_, _, err = ReadFile(filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestReadFileTooLarge(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "large")
	require.NoError(t, os.WriteFile(path, make([]byte, maxSecretFileSize+1), 0o600))
	_, _, err := ReadFile(path)
	require.ErrorContains(t, err, "too large")
}

func TestResolvePrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dsn")
	require.NoError(t, os.WriteFile(path, []byte("https://key@sentry.example.com/1"), 0o600))
	t.Setenv("SYNCMIGRATE_TEST_DSN", "https://other@sentry.example.com/2")

	secret, _, err := Resolve(path, "${SYNCMIGRATE_TEST_DSN}")
	require.NoError(t, err)
	assert.Equal(t, "https://key@sentry.example.com/1", secret)

	secret, _, err = Resolve("", "${SYNCMIGRATE_TEST_DSN}")
	require.NoError(t, err)
	assert.Equal(t, "https://other@sentry.example.com/2", secret)

	secret, _, err = Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, secret)
}
