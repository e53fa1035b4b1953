// Package secrets resolves credentials referenced from configuration:
// ${VAR} expansion for connection URIs and service URLs, and secret files
// such as Docker or Kubernetes mounted secrets. Secret values are never
// included in errors.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/syncmigrate/internal/errors"
)

const (
	// maxSecretFileSize limits secret file reads; secrets are tokens and
	// passwords, not documents.
	maxSecretFileSize = 64 * 1024

	// permissive permission bits for a secret file (group/other access)
	permissiveBits = 0o077
)

// ExpandString replaces ${VAR} and ${VAR:-fallback} references with the
// environment's values. A referenced variable that is unset or empty and has
// no fallback is an error naming every such variable.
func ExpandString(s string) (string, error) {
	return ExpandStringFunc(s, nil)
}

// ExpandStringFunc is ExpandString with every environment value passed
// through encode before substitution. Fallbacks are written by the operator
// in the surrounding syntax and are substituted as is.
func ExpandStringFunc(s string, encode func(string) string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			if encode != nil {
				return encode(value)
			}
			return value
		}
		if !hasFallback {
			missing = append(missing, name)
		}
		return fallback
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing required environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret file. Trailing newlines are trimmed. The returned
// permissive flag is set when group or other users can access the file.
func ReadFile(path string) (secret string, permissive bool, err error) {
	if path == "" {
		return "", false, secretError(errors.NewStd("secret file path is empty"), path)
	}
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		return "", false, secretError(err, cleanPath)
	}
	if !info.Mode().IsRegular() {
		return "", false, secretError(errors.NewStd("secret path is not a regular file"), cleanPath)
	}
	if info.Size() > maxSecretFileSize {
		return "", false, secretError(errors.NewStd("secret file too large"), cleanPath)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", false, secretError(err, cleanPath)
	}

	secret = strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", false, secretError(errors.NewStd("secret file is empty"), cleanPath)
	}
	return secret, info.Mode().Perm()&permissiveBits != 0, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded. Both empty resolves to "".
func Resolve(filePath, value string) (secret string, permissive bool, err error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	secret, err = ExpandString(value)
	return secret, false, err
}

func secretError(err error, path string) error {
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Context("path", path).
		Build()
}
