package migrate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tphakala/syncmigrate/internal/datastore/entities"
	"github.com/tphakala/syncmigrate/internal/errors"
)

// DefaultChunkSize is the number of records written per chunk.
const DefaultChunkSize = 1000

// Config selects what a run migrates and how.
type Config struct {
	StartShard int
	EndShard   int

	// Users, when set, replaces the per-shard user scan. It is only valid
	// with StartShard == EndShard.
	Users []int64
	// Offset and Limit page through the scanned user list. Limit <= 0 means all.
	Offset int
	Limit  int
	// SortUsers orders users by their resolved user id before migrating.
	SortUsers bool

	ChunkSize int
	Truncate  *Truncation
}

// DefaultConfig returns a config covering every legacy shard.
func DefaultConfig() Config {
	return Config{
		StartShard: 0,
		EndShard:   entities.LegacyShardCount - 1,
		ChunkSize:  DefaultChunkSize,
	}
}

// Validate checks shard bounds and the user selection.
func (c *Config) Validate() error {
	switch {
	case c.StartShard < 0 || c.EndShard >= entities.LegacyShardCount:
		return optionError("shard range %d..%d outside 0..%d", c.StartShard, c.EndShard, entities.LegacyShardCount-1)
	case c.StartShard > c.EndShard:
		return optionError("start shard %d is after end shard %d", c.StartShard, c.EndShard)
	case len(c.Users) > 0 && c.StartShard != c.EndShard:
		return optionError("an explicit user list needs a single shard, got %d..%d", c.StartShard, c.EndShard)
	case c.Offset < 0:
		return optionError("user offset %d is negative", c.Offset)
	}
	if c.ChunkSize < 1 {
		c.ChunkSize = DefaultChunkSize
	}
	return nil
}

// UserSelection is an explicit list of users in one shard.
type UserSelection struct {
	Shard int
	Users []int64
}

// ParseUserSelection parses "shard:id[,id...]".
func ParseUserSelection(s string) (UserSelection, error) {
	shardPart, idsPart, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return UserSelection{}, optionError("user selection %q must look like shard:id[,id...]", s)
	}

	shard, err := strconv.Atoi(strings.TrimSpace(shardPart))
	if err != nil || shard < 0 || shard >= entities.LegacyShardCount {
		return UserSelection{}, optionError("invalid shard %q in user selection", shardPart)
	}

	var users []int64
	for field := range strings.SplitSeq(idsPart, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return UserSelection{}, optionError("invalid user id %q in user selection", field)
		}
		users = append(users, id)
	}
	if len(users) == 0 {
		return UserSelection{}, optionError("user selection %q names no users", s)
	}
	return UserSelection{Shard: shard, Users: users}, nil
}

// ParseUserRange parses "offset:limit". An empty limit means no limit.
func ParseUserRange(s string) (offset, limit int, err error) {
	offPart, limPart, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, optionError("user range %q must look like offset:limit", s)
	}
	if offset, err = strconv.Atoi(strings.TrimSpace(offPart)); err != nil || offset < 0 {
		return 0, 0, optionError("invalid offset %q in user range", offPart)
	}
	if limPart = strings.TrimSpace(limPart); limPart == "" {
		return offset, 0, nil
	}
	if limit, err = strconv.Atoi(limPart); err != nil || limit < 0 {
		return 0, 0, optionError("invalid limit %q in user range", limPart)
	}
	return offset, limit, nil
}

// Truncation drops a user's rows of one collection after the first Max.
type Truncation struct {
	// Collection is the collection name, or the legacy id when ByLegacyID is set.
	Collection string
	LegacyID   int
	ByLegacyID bool
	Max        int
}

// ParseTruncation parses "collection:maxRows". A numeric collection is
// matched against the legacy collection id, anything else against the name.
func ParseTruncation(s string) (*Truncation, error) {
	name, maxPart, ok := strings.Cut(strings.TrimSpace(s), ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return nil, optionError("truncation %q must look like collection:maxRows", s)
	}
	maxRows, err := strconv.Atoi(strings.TrimSpace(maxPart))
	if err != nil || maxRows < 0 {
		return nil, optionError("invalid row limit %q in truncation", maxPart)
	}

	t := &Truncation{Collection: name, Max: maxRows}
	if id, err := strconv.Atoi(name); err == nil {
		t.LegacyID = id
		t.ByLegacyID = true
	}
	return t, nil
}

func (t *Truncation) matches(rec *entities.DataRecord) bool {
	if t.ByLegacyID {
		return rec.CollectionID == t.LegacyID
	}
	return rec.CollectionName == t.Collection
}

// Apply returns records with every matching row after the first Max
// removed, and the number of rows dropped. Order is preserved.
func (t *Truncation) Apply(records []entities.DataRecord) ([]entities.DataRecord, int) {
	if t == nil {
		return records, 0
	}

	kept := make([]entities.DataRecord, 0, len(records))
	seen := 0
	for i := range records {
		if t.matches(&records[i]) {
			seen++
			if seen > t.Max {
				continue
			}
		}
		kept = append(kept, records[i])
	}
	return kept, len(records) - len(kept)
}

// String returns the truncation in its flag form.
func (t *Truncation) String() string {
	return fmt.Sprintf("%s:%d", t.Collection, t.Max)
}

func optionError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("migrate").
		Category(errors.CategoryConfiguration).
		Build()
}
