// Package privacy removes credentials from URLs before they reach logs,
// notifications or error messages.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"regexp"
)

// Pre-compiled pattern for finding URLs of any scheme in text.
var urlPattern = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.\-]*://\S+`)

// ScrubMessage replaces every URL in message with its redacted form.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, RedactURL)
}

// RedactURL hides the password and query of a URL while keeping the scheme,
// host and path for debugging. Service URLs such as notification targets
// often carry tokens in the user part, so the user name is hidden too.
// An unparsable URL is replaced by a short hash.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		} else {
			u.User = url.User("xxxxx")
		}
	}
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	u.Fragment = ""
	return u.String()
}

type scrubbedError struct {
	cause error
	msg   string
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.cause }

// ScrubError redacts URLs in err's message and keeps err reachable through
// errors.Is and errors.As. Errors without URLs are returned as is.
func ScrubError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	scrubbed := ScrubMessage(msg)
	if scrubbed == msg {
		return err
	}
	return &scrubbedError{cause: err, msg: scrubbed}
}
