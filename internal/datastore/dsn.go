package datastore

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/tphakala/syncmigrate/internal/errors"
	"github.com/tphakala/syncmigrate/internal/secrets"
)

// Role identifies which side of the migration a connection serves.
type Role string

const (
	RoleLegacy Role = "legacy"
	RoleTarget Role = "target"
)

// Endpoint is one parsed connection descriptor.
type Endpoint struct {
	Role   Role
	Scheme string
	URL    *url.URL
}

// Endpoints holds the two connections a run needs.
type Endpoints struct {
	Legacy Endpoint
	Target Endpoint
}

// Sanitized returns the URL with the password removed, for logs.
func (e Endpoint) Sanitized() string {
	if e.URL == nil {
		return ""
	}
	return e.URL.Redacted()
}

// LoadEndpoints reads the newline-separated connection descriptor file.
func LoadEndpoints(path string) (*Endpoints, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Context("operation", "open_dsn_file").
			Context("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	return ParseEndpoints(f)
}

// ParseEndpoints parses connection descriptors, one URI per line. Blank lines
// and lines starting with '#' are ignored. ${VAR} references are expanded
// from the environment so passwords can stay out of the file; see expandDSN.
// A scheme containing "mysql" is the legacy store; postgres, postgresql and
// sqlite schemes are the target store.
// Anything else, or a missing side, is a configuration error.
func ParseEndpoints(r io.Reader) (*Endpoints, error) {
	var eps Endpoints
	var haveLegacy, haveTarget bool

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		line, err := expandDSN(line)
		if err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryConfiguration).
				Context("operation", "expand_dsn").
				Context("line", lineNo).
				Build()
		}

		ep, err := parseEndpoint(line)
		if err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryConfiguration).
				Context("operation", "parse_dsn").
				Context("line", lineNo).
				Build()
		}

		switch ep.Role {
		case RoleLegacy:
			if haveLegacy {
				return nil, configErrorf("line %d: more than one legacy connection", lineNo)
			}
			eps.Legacy, haveLegacy = ep, true
		case RoleTarget:
			if haveTarget {
				return nil, configErrorf("line %d: more than one target connection", lineNo)
			}
			eps.Target, haveTarget = ep, true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryFileIO).
			Context("operation", "read_dsn_file").
			Build()
	}

	if !haveLegacy {
		return nil, configErrorf("no legacy (mysql) connection configured")
	}
	if !haveTarget {
		return nil, configErrorf("no target connection configured")
	}
	return &eps, nil
}

// expandDSN expands environment references in one descriptor line. A line
// that is a single reference takes the variable as a whole URI. Otherwise
// each value is percent-encoded, so a password holding '@', '/', '#' or '?'
// stays inside its URI component.
func expandDSN(line string) (string, error) {
	if strings.HasPrefix(line, "${") && strings.HasSuffix(line, "}") && strings.Count(line, "$") == 1 {
		return secrets.ExpandString(line)
	}
	return secrets.ExpandStringFunc(line, escapeURIComponent)
}

// escapeURIComponent percent-encodes every byte outside the RFC 3986
// unreserved set.
func escapeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}

func parseEndpoint(line string) (Endpoint, error) {
	u, err := url.Parse(line)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid connection uri: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)

	switch {
	case strings.Contains(scheme, "mysql"):
		return Endpoint{Role: RoleLegacy, Scheme: scheme, URL: u}, nil
	case scheme == "postgres" || scheme == "postgresql" || scheme == "sqlite":
		return Endpoint{Role: RoleTarget, Scheme: scheme, URL: u}, nil
	case strings.Contains(scheme, "spanner"):
		return Endpoint{}, fmt.Errorf("target scheme %q has no driver in this build; use postgres or sqlite", scheme)
	case scheme == "":
		return Endpoint{}, fmt.Errorf("connection uri has no scheme")
	default:
		return Endpoint{}, fmt.Errorf("unrecognized connection scheme %q", scheme)
	}
}

// MySQLDSN converts a mysql:// URI into a go-sql-driver DSN.
func (e Endpoint) MySQLDSN() (string, error) {
	if e.URL == nil {
		return "", fmt.Errorf("empty endpoint")
	}
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.User = e.URL.User.Username()
	cfg.Passwd, _ = e.URL.User.Password()
	cfg.Addr = e.URL.Host
	if e.URL.Port() == "" {
		cfg.Addr = e.URL.Hostname() + ":3306"
	}
	cfg.DBName = strings.TrimPrefix(e.URL.Path, "/")
	if cfg.DBName == "" {
		return "", fmt.Errorf("mysql uri has no database name")
	}

	params := map[string]string{"charset": "utf8mb4"}
	for key, values := range e.URL.Query() {
		if len(values) > 0 {
			params[key] = values[len(values)-1]
		}
	}
	cfg.Params = params

	return cfg.FormatDSN(), nil
}

// SQLitePath returns the database path of a sqlite URI. Both sqlite:///abs/path
// and sqlite:relative/path forms are accepted.
func (e Endpoint) SQLitePath() string {
	if e.URL == nil {
		return ""
	}
	if e.URL.Opaque != "" {
		return e.URL.Opaque
	}
	return e.URL.Host + e.URL.Path
}

func configErrorf(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("datastore").
		Category(errors.CategoryConfiguration).
		Build()
}
