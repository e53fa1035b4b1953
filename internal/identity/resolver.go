// Package identity maps legacy numeric user ids to target-store identities.
package identity

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/patrickmn/go-cache"
	"github.com/tphakala/syncmigrate/internal/errors"
	"github.com/tphakala/syncmigrate/internal/logger"
)

// ErrNotFound is returned by Resolve when a legacy id has no identity.
var ErrNotFound = errors.NewStd("identity not found")

const (
	feedColumns      = 5
	anonPrefix       = "fake_"
	anonRandomBytes  = 11
	keyIDTimestampWd = 13
	maxFeedLineBytes = 1 << 20
)

// Identity is the pair identifying a user in the target store.
type Identity struct {
	KeyID  string
	UserID string
}

// Config configures a Resolver.
type Config struct {
	// Anonymize generates a random identity for every user instead of
	// reading the feed. Generated identities live only for the run.
	Anonymize bool
	// Only restricts feed loading to these legacy ids when non-empty.
	Only []int64
	// Random is the entropy source for anonymized identities.
	Random io.Reader
}

// Resolver resolves legacy user ids to identities. It is built once per run.
type Resolver struct {
	known     map[int64]Identity
	only      map[int64]struct{}
	anonymize bool
	anon      *cache.Cache
	random    io.Reader
	mu        sync.Mutex
	log       logger.Logger
}

// NewResolver creates an empty resolver.
func NewResolver(cfg Config, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	random := cfg.Random
	if random == nil {
		random = rand.Reader
	}

	r := &Resolver{
		known:     make(map[int64]Identity),
		anonymize: cfg.Anonymize,
		// No expiration and no janitor goroutine: entries live for the run.
		anon:   cache.New(cache.NoExpiration, 0),
		random: random,
		log:    log.Module("identity"),
	}
	if len(cfg.Only) > 0 {
		r.only = make(map[int64]struct{}, len(cfg.Only))
		for _, id := range cfg.Only {
			r.only[id] = struct{}{}
		}
	}
	return r
}

// Anonymized reports whether the resolver generates placeholder identities.
func (r *Resolver) Anonymized() bool {
	return r.anonymize
}

// LoadFeed reads the identity feed file. In anonymized mode the feed is not
// needed and is not read.
func (r *Resolver) LoadFeed(path string) error {
	if r.anonymize {
		r.log.Info("anonymized run, identity feed not loaded", logger.String("path", path))
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.New(err).
			Component("identity").
			Category(errors.CategoryConfiguration).
			Context("operation", "open_identity_feed").
			Context("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	loaded, skipped, err := r.ParseFeed(f)
	if err != nil {
		return err
	}

	r.log.Info("identity feed loaded",
		logger.String("path", path),
		logger.Int("loaded", loaded),
		logger.Int("skipped", skipped))
	return nil
}

// ParseFeed reads tab-separated rows of
// (legacyId, email, generation, keysChangedAt, clientState).
// The header row and malformed rows are skipped; only I/O errors are returned.
func (r *Resolver) ParseFeed(rd io.Reader) (loaded, skipped int, err error) {
	br := bufio.NewReaderSize(rd, 64*1024)

	lineNo := 0
	for eof := false; !eof; {
		line, tooLong, rerr := readFeedLine(br)
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				return loaded, skipped, errors.New(rerr).
					Component("identity").
					Category(errors.CategoryFileParsing).
					Context("operation", "read_identity_feed").
					Context("line", lineNo+1).
					Build()
			}
			eof = true
			if line == "" && !tooLong {
				continue
			}
		}
		lineNo++

		if tooLong {
			skipped++
			r.log.Warn("skipping oversized identity row",
				logger.Int("line", lineNo),
				logger.Int("max_bytes", maxFeedLineBytes))
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if lineNo == 1 && strings.TrimSpace(fields[0]) == "uid" {
			continue
		}

		legacyID, ident, perr := parseFeedRow(fields)
		if perr != nil {
			skipped++
			r.log.Warn("skipping malformed identity row",
				logger.Int("line", lineNo),
				logger.Error(perr))
			continue
		}

		if r.only != nil {
			if _, ok := r.only[legacyID]; !ok {
				continue
			}
		}

		if _, dup := r.known[legacyID]; dup {
			r.log.Debug("duplicate identity row, keeping last",
				logger.Int64("legacy_id", legacyID),
				logger.Int("line", lineNo))
		} else {
			loaded++
		}
		r.known[legacyID] = ident
		r.log.Trace("identity added",
			logger.Int64("legacy_id", legacyID),
			logger.String("fxa_uid", ident.UserID),
			logger.String("fxa_kid", ident.KeyID))
	}

	return loaded, skipped, nil
}

// readFeedLine returns the next line without its line ending. A line longer
// than maxFeedLineBytes is consumed and reported by the bool result.
func readFeedLine(br *bufio.Reader) (string, bool, error) {
	var buf []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if len(buf)+len(chunk) > maxFeedLineBytes {
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = br.ReadSlice('\n')
			}
			return "", true, err
		}
		buf = append(buf, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return strings.TrimRight(string(buf), "\r\n"), false, err
	}
}

func parseFeedRow(fields []string) (int64, Identity, error) {
	if len(fields) < feedColumns {
		return 0, Identity{}, fmt.Errorf("expected %d columns, got %d", feedColumns, len(fields))
	}

	legacyID, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return 0, Identity{}, fmt.Errorf("invalid legacy id %q", fields[0])
	}

	userID, ok := localPart(fields[1])
	if !ok {
		return 0, Identity{}, fmt.Errorf("invalid email for legacy id %d", legacyID)
	}

	generation, err := parseCounter(fields[2])
	if err != nil {
		return 0, Identity{}, fmt.Errorf("invalid generation for legacy id %d: %w", legacyID, err)
	}
	keysChangedAt, err := parseCounter(fields[3])
	if err != nil {
		return 0, Identity{}, fmt.Errorf("invalid keys_changed_at for legacy id %d: %w", legacyID, err)
	}

	keyID, err := FormatKeyID(max(keysChangedAt, generation), strings.TrimSpace(fields[4]))
	if err != nil {
		return 0, Identity{}, fmt.Errorf("legacy id %d: %w", legacyID, err)
	}

	return legacyID, Identity{KeyID: keyID, UserID: userID}, nil
}

func localPart(email string) (string, bool) {
	email = strings.TrimSpace(email)
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "", false
	}
	return email[:at], true
}

// parseCounter parses a non-negative counter; an empty or NULL column is zero.
func parseCounter(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative value %d", v)
	}
	return v, nil
}

// FormatKeyID builds a key id: the timestamp as 13 zero-padded digits, a dash,
// and the URL-safe unpadded base64 of the hex-decoded client state.
func FormatKeyID(timestamp int64, clientStateHex string) (string, error) {
	raw, err := hex.DecodeString(clientStateHex)
	if err != nil {
		return "", fmt.Errorf("invalid client state: %w", err)
	}
	return fmt.Sprintf("%0*d-%s", keyIDTimestampWd, timestamp, base64.RawURLEncoding.EncodeToString(raw)), nil
}

// Resolve returns the identity of a legacy user. Outside anonymized mode an
// unknown user yields ErrNotFound. In anonymized mode a random identity is
// created on first lookup and reused for the rest of the run.
func (r *Resolver) Resolve(legacyID int64) (Identity, error) {
	if !r.anonymize {
		if ident, ok := r.known[legacyID]; ok {
			return ident, nil
		}
		return Identity{}, errors.New(ErrNotFound).
			Component("identity").
			Category(errors.CategoryNotFound).
			Context("legacy_id", legacyID).
			Build()
	}

	key := strconv.FormatInt(legacyID, 10)

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.anon.Get(key); ok {
		if ident, ok := v.(Identity); ok {
			return ident, nil
		}
	}

	ident, err := r.randomIdentity()
	if err != nil {
		return Identity{}, err
	}
	r.anon.Set(key, ident, cache.NoExpiration)
	return ident, nil
}

func (r *Resolver) randomIdentity() (Identity, error) {
	kid, err := r.randomToken()
	if err != nil {
		return Identity{}, err
	}
	uid, err := r.randomToken()
	if err != nil {
		return Identity{}, err
	}
	return Identity{KeyID: kid, UserID: uid}, nil
}

func (r *Resolver) randomToken() (string, error) {
	buf := make([]byte, anonRandomBytes)
	if _, err := io.ReadFull(r.random, buf); err != nil {
		return "", errors.New(err).
			Component("identity").
			Category(errors.CategoryProcessing).
			Context("operation", "generate_anonymized_identity").
			Build()
	}
	return anonPrefix + hex.EncodeToString(buf), nil
}

// Len returns the number of identities known from the feed.
func (r *Resolver) Len() int {
	return len(r.known)
}

// Has reports whether the feed held an identity for legacyID.
func (r *Resolver) Has(legacyID int64) bool {
	_, ok := r.known[legacyID]
	return ok
}
