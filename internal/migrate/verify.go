package migrate

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/tphakala/syncmigrate/internal/identity"
	"github.com/tphakala/syncmigrate/internal/logger"
)

// LegacyCounter counts a user's unexpired legacy records.
type LegacyCounter interface {
	ListUsers(ctx context.Context, shard, offset, limit int) ([]int64, error)
	CountRecords(ctx context.Context, shard int, userID int64) (int64, error)
}

// TargetCounter counts the rows stored for an identity.
type TargetCounter interface {
	CountUserRows(ctx context.Context, keyID, userID string) (records, summaries int64, err error)
}

// UserCheck compares one user's legacy and target row counts.
type UserCheck struct {
	Shard     int
	LegacyID  int64
	Identity  identity.Identity
	Legacy    int64
	Target    int64
	Summaries int64
	Err       error
}

// Match reports whether every unexpired legacy record is present in the target.
func (c *UserCheck) Match() bool {
	return c.Err == nil && c.Legacy == c.Target
}

// Verifier compares legacy and target row counts for the users a run selects.
type Verifier struct {
	cfg      Config
	legacy   LegacyCounter
	target   TargetCounter
	resolver IdentityResolver
	log      logger.Logger
}

// NewVerifier validates cfg and creates a verifier.
func NewVerifier(cfg Config, legacy LegacyCounter, target TargetCounter, resolver IdentityResolver, log logger.Logger) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	return &Verifier{cfg: cfg, legacy: legacy, target: target, resolver: resolver, log: log.Module("verify")}, nil
}

// Verify checks every selected user. Per-user failures are recorded on the
// check; a failure to list a shard's users or a canceled ctx is returned.
func (v *Verifier) Verify(ctx context.Context) ([]UserCheck, error) {
	var checks []UserCheck
	for shard := v.cfg.StartShard; shard <= v.cfg.EndShard; shard++ {
		users := slices.Clone(v.cfg.Users)
		if len(users) == 0 {
			var err error
			if users, err = v.legacy.ListUsers(ctx, shard, v.cfg.Offset, v.cfg.Limit); err != nil {
				return checks, err
			}
		}

		for _, legacyID := range users {
			if err := ctx.Err(); err != nil {
				return checks, err
			}
			checks = append(checks, v.check(ctx, shard, legacyID))
		}
	}
	return checks, nil
}

func (v *Verifier) check(ctx context.Context, shard int, legacyID int64) UserCheck {
	c := UserCheck{Shard: shard, LegacyID: legacyID}

	ident, err := v.resolver.Resolve(legacyID)
	if err != nil {
		c.Err = err
		return c
	}
	c.Identity = ident

	if c.Legacy, c.Err = v.legacy.CountRecords(ctx, shard, legacyID); c.Err != nil {
		return c
	}
	c.Target, c.Summaries, c.Err = v.target.CountUserRows(ctx, ident.KeyID, ident.UserID)
	if c.Err == nil && !c.Match() {
		v.log.Warn("record count mismatch",
			logger.Int("shard", shard),
			logger.Int64("legacy_id", legacyID),
			logger.String("fxa_uid", ident.UserID),
			logger.Int64("legacy", c.Legacy),
			logger.Int64("target", c.Target))
	}
	return c
}

// PrintChecks writes the checks as a table and returns the number of mismatches.
func PrintChecks(w io.Writer, checks []UserCheck) int {
	_, _ = fmt.Fprintf(w, "%-6s %12s %-34s %10s %10s %10s %6s\n", "Shard", "Legacy ID", "FxA UID", "Legacy", "Target", "Summaries", "Match")
	_, _ = fmt.Fprintln(w, reportRule)

	mismatches := 0
	for i := range checks {
		c := &checks[i]
		match := "✓"
		if !c.Match() {
			match = "✗"
			mismatches++
		}
		if c.Err != nil {
			_, _ = fmt.Fprintf(w, "%-6s %12d %-34s %s\n", fmt.Sprintf("bso%d", c.Shard), c.LegacyID, c.Identity.UserID, c.Err)
			continue
		}
		_, _ = fmt.Fprintf(w, "%-6s %12d %-34s %10d %10d %10d %6s\n", fmt.Sprintf("bso%d", c.Shard),
			c.LegacyID, c.Identity.UserID, c.Legacy, c.Target, c.Summaries, match)
	}

	_, _ = fmt.Fprintln(w, reportRule)
	_, _ = fmt.Fprintf(w, "%d user(s) checked, %d mismatch(es)\n", len(checks), mismatches)
	return mismatches
}
