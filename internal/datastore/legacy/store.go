// Package legacy reads user records from the sharded legacy MySQL store.
package legacy

import (
	"context"
	"math"
	"time"

	"github.com/tphakala/syncmigrate/internal/datastore"
	"github.com/tphakala/syncmigrate/internal/datastore/entities"
	"github.com/tphakala/syncmigrate/internal/logger"
	"gorm.io/gorm"
)

// Store is a read-only view of the legacy store.
type Store struct {
	db  *gorm.DB
	log logger.Logger
	now func() time.Time
}

// New creates a legacy store over an open connection.
func New(db *gorm.DB, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	return &Store{db: db, log: log.Module("legacy"), now: time.Now}
}

// ListUsers returns the distinct user ids of a shard in ascending order.
// A limit of zero or less means no limit.
func (s *Store) ListUsers(ctx context.Context, shard, offset, limit int) ([]int64, error) {
	q := s.db.WithContext(ctx).
		Table(entities.LegacyBSOTable(shard)).
		Distinct("userid").
		Order("userid")

	switch {
	case limit > 0:
		q = q.Limit(limit)
	case offset > 0:
		// OFFSET requires LIMIT on MySQL and SQLite
		q = q.Limit(math.MaxInt32)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var ids []int64
	if err := q.Pluck("userid", &ids).Error; err != nil {
		return nil, datastore.DBError(err, "list_users", "shard", shard, "offset", offset, "limit", limit)
	}

	s.log.Debug("listed shard users",
		logger.Int("shard", shard),
		logger.Int("users", len(ids)))
	return ids, nil
}

// FetchRecords returns a user's unexpired records from a shard, joined with
// the collection name and ordered by (collection, id).
func (s *Store) FetchRecords(ctx context.Context, shard int, userID int64) ([]entities.DataRecord, error) {
	var records []entities.DataRecord

	err := s.db.WithContext(ctx).
		Table(entities.LegacyBSOTable(shard)+" AS bso").
		Select("collections.name, bso.collection, bso.id, bso.ttl, bso.modified, bso.payload, bso.sortindex").
		Joins("JOIN collections ON collections.collectionid = bso.collection").
		Where("bso.userid = ? AND bso.ttl > ?", userID, s.now().Unix()).
		Order("bso.collection, bso.id").
		Scan(&records).Error
	if err != nil {
		return nil, datastore.DBError(err, "fetch_records", "shard", shard, "legacy_id", userID)
	}
	return records, nil
}

// CollectionRefs returns the distinct (legacy id, name) pairs referenced by
// any user's collection summary.
func (s *Store) CollectionRefs(ctx context.Context) ([]entities.CollectionRef, error) {
	var refs []entities.CollectionRef

	err := s.db.WithContext(ctx).
		Table("user_collections AS uc").
		Distinct("uc.collection", "cc.name").
		Joins("JOIN collections AS cc ON uc.collection = cc.collectionid").
		Order("uc.collection").
		Scan(&refs).Error
	if err != nil {
		return nil, datastore.DBError(err, "collection_refs")
	}
	return refs, nil
}

// CountRecords returns the number of unexpired records a user has in a shard.
func (s *Store) CountRecords(ctx context.Context, shard int, userID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Table(entities.LegacyBSOTable(shard)).
		Where("userid = ? AND ttl > ?", userID, s.now().Unix()).
		Count(&count).Error
	if err != nil {
		return 0, datastore.DBError(err, "count_records", "shard", shard, "legacy_id", userID)
	}
	return count, nil
}

// SetClock overrides the clock used for the expiry filter.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}
