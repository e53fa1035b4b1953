// Package catalog maps collection names to canonical target-store ids.
//
// A Catalog is built once per run. Initialize merges three sources in order:
// the built-in well-known map, the target store's collections table, and the
// collections still referenced by legacy user data. Names only the legacy
// store knows are appended to the target table one at a time.
package catalog

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/tphakala/syncmigrate/internal/datastore/entities"
	"github.com/tphakala/syncmigrate/internal/errors"
	"github.com/tphakala/syncmigrate/internal/logger"
)

// MetaCollection is the name of the collection holding sync metadata.
const MetaCollection = "meta"

// DefaultCollections returns the well-known collection ids.
func DefaultCollections() map[string]int {
	return map[string]int{
		"clients":     1,
		"crypto":      2,
		"forms":       3,
		"history":     4,
		"keys":        5,
		"meta":        6,
		"bookmarks":   7,
		"prefs":       8,
		"tabs":        9,
		"passwords":   10,
		"addons":      11,
		"addresses":   12,
		"creditcards": 13,
		"reserved":    100,
	}
}

// TargetStore is the part of the target store the catalog reads and extends.
type TargetStore interface {
	LoadCollections(ctx context.Context) ([]entities.Collection, error)
	InsertCollection(ctx context.Context, col entities.Collection) error
}

// LegacySource lists collections referenced by legacy user data.
type LegacySource interface {
	CollectionRefs(ctx context.Context) ([]entities.CollectionRef, error)
}

// Entry is a catalog entry as shown to operators.
type Entry struct {
	Name     string `yaml:"name"`
	ID       int    `yaml:"id"`
	LegacyID int    `yaml:"legacy_id,omitempty"`
	Source   string `yaml:"source"`
}

// Entry sources.
const (
	SourceDefault = "default"
	SourceTarget  = "target"
	SourceLegacy  = "legacy"
)

// Catalog resolves collection names to canonical ids.
type Catalog struct {
	mu       sync.RWMutex
	byName   map[string]int
	source   map[string]string
	legacy   map[int]string // legacy id -> name, as recorded at merge time
	resolved map[string]int

	target TargetStore
	refs   LegacySource
	log    logger.Logger
}

// New creates a catalog seeded with DefaultCollections.
func New(target TargetStore, refs LegacySource, log logger.Logger) *Catalog {
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	c := &Catalog{
		byName:   DefaultCollections(),
		source:   make(map[string]string),
		legacy:   make(map[int]string),
		resolved: make(map[string]int),
		target:   target,
		refs:     refs,
		log:      log.Module("catalog"),
	}
	for name := range c.byName {
		c.source[name] = SourceDefault
	}
	return c
}

// Initialize loads the target catalog and merges in legacy collections.
// Failing to read either store is fatal. A name that another writer added to
// the target concurrently takes the id found there. A legacy name whose id
// already belongs to a different name is left out of the catalog, so its
// records are skipped as unknown.
func (c *Catalog) Initialize(ctx context.Context) error {
	existing, err := c.target.LoadCollections(ctx)
	if err != nil {
		return errors.New(err).
			Component("catalog").
			Category(errors.CategoryDatabase).
			Context("operation", "load_target_collections").
			Build()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, col := range existing {
		c.log.Debug("loading collection",
			logger.String("name", col.Name),
			logger.Int("collection_id", col.CollectionID))
		c.byName[col.Name] = col.CollectionID
		c.source[col.Name] = SourceTarget
	}

	refs, err := c.refs.CollectionRefs(ctx)
	if err != nil {
		return errors.New(err).
			Component("catalog").
			Category(errors.CategoryDatabase).
			Context("operation", "load_legacy_collections").
			Build()
	}

	owners := make(map[int]string, len(c.byName))
	for name, id := range c.byName {
		owners[id] = name
	}

	added, dropped := 0, 0
	for _, ref := range refs {
		c.legacy[ref.LegacyID] = ref.Name
		if _, ok := c.byName[ref.Name]; ok {
			continue
		}
		if owner, taken := owners[ref.LegacyID]; taken {
			c.dropCollisionLocked(ref, owner)
			dropped++
			continue
		}

		c.log.Debug("adding collection",
			logger.String("name", ref.Name),
			logger.Int("collection_id", ref.LegacyID))

		col := entities.Collection{CollectionID: ref.LegacyID, Name: ref.Name}
		err := c.target.InsertCollection(ctx, col)
		switch {
		case err == nil:
			c.byName[ref.Name] = ref.LegacyID
			c.source[ref.Name] = SourceLegacy
			owners[ref.LegacyID] = ref.Name
			added++
		case errors.IsConflict(err):
			owner, err := c.reconcileConflictLocked(ctx, ref)
			if err != nil {
				return err
			}
			if owner != "" {
				c.dropCollisionLocked(ref, owner)
				dropped++
				continue
			}
			owners[c.byName[ref.Name]] = ref.Name
		default:
			return errors.New(err).
				Component("catalog").
				Category(errors.CategoryDatabase).
				Context("operation", "insert_collection").
				Context("name", ref.Name).
				Build()
		}
	}

	c.log.Info("collection catalog ready",
		logger.Int("collections", len(c.byName)),
		logger.Int("legacy_refs", len(refs)),
		logger.Int("added", added),
		logger.Int("dropped", dropped))
	return nil
}

// reconcileConflictLocked re-reads the target catalog after inserting ref
// failed with a conflict. When another writer added the same name, its id is
// adopted. When ref's id belongs to a different name, that name is returned
// and ref is left unmapped.
func (c *Catalog) reconcileConflictLocked(ctx context.Context, ref entities.CollectionRef) (string, error) {
	current, err := c.target.LoadCollections(ctx)
	if err != nil {
		return "", errors.New(err).
			Component("catalog").
			Category(errors.CategoryDatabase).
			Context("operation", "reload_target_collections").
			Context("name", ref.Name).
			Build()
	}

	owner := ""
	for _, col := range current {
		if col.Name == ref.Name {
			c.log.Info("collection added concurrently",
				logger.String("name", ref.Name),
				logger.Int("collection_id", col.CollectionID))
			c.byName[ref.Name] = col.CollectionID
			c.source[ref.Name] = SourceTarget
			return "", nil
		}
		if col.CollectionID == ref.LegacyID {
			owner = col.Name
		}
	}
	if owner == "" {
		return "", errors.Newf("collection %q conflicts with no visible target row", ref.Name).
			Component("catalog").
			Category(errors.CategoryDatabase).
			Context("operation", "insert_collection").
			Context("collection_id", ref.LegacyID).
			Build()
	}
	return owner, nil
}

// dropCollisionLocked leaves ref unmapped because its legacy id is already
// the canonical id of another name. Records of ref then resolve as unknown.
func (c *Catalog) dropCollisionLocked(ref entities.CollectionRef, owner string) {
	c.log.Error("collection id already used by another name, records will be skipped",
		logger.String("name", ref.Name),
		logger.Int("collection_id", ref.LegacyID),
		logger.String("owner", owner))
	delete(c.byName, ref.Name)
	delete(c.source, ref.Name)
}

// Resolve returns the canonical id for a collection. When name is empty the
// name recorded for legacyID at merge time is used. The second result is
// false when the collection is unknown. Once a name has resolved, later calls
// return the same id for the rest of the run.
func (c *Catalog) Resolve(name string, legacyID int) (int, bool) {
	c.mu.RLock()
	if name == "" {
		name = c.legacy[legacyID]
	}
	if id, ok := c.resolved[name]; ok {
		c.mu.RUnlock()
		return id, true
	}
	c.mu.RUnlock()

	if name == "" {
		c.log.Warn("unknown collection encountered", logger.Int("legacy_id", legacyID))
		return 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.resolved[name]; ok {
		return id, true
	}
	id, ok := c.byName[name]
	if !ok {
		c.log.Warn("unknown collection encountered",
			logger.String("name", name),
			logger.Int("legacy_id", legacyID))
		return 0, false
	}
	c.resolved[name] = id
	return id, true
}

// ID returns the catalog id of name without pinning it.
func (c *Catalog) ID(name string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byName[name]
	return id, ok
}

// Entries returns a snapshot of the catalog sorted by id, then name.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	legacyByName := make(map[string]int, len(c.legacy))
	for id, name := range c.legacy {
		legacyByName[name] = id
	}

	entries := make([]Entry, 0, len(c.byName))
	for _, name := range slices.Sorted(maps.Keys(c.byName)) {
		entries = append(entries, Entry{
			Name:     name,
			ID:       c.byName[name],
			LegacyID: legacyByName[name],
			Source:   c.source[name],
		})
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return a.ID - b.ID
	})
	return entries
}
