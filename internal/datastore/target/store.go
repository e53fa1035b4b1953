// Package target writes migrated data into the target store.
package target

import (
	"context"
	"time"

	"github.com/tphakala/syncmigrate/internal/datastore"
	"github.com/tphakala/syncmigrate/internal/datastore/entities"
	"github.com/tphakala/syncmigrate/internal/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Tx is the set of writes available inside one target transaction.
type Tx interface {
	// UpsertUserCollection writes a summary row, keeping the newer of the
	// stored and incoming modification times.
	UpsertUserCollection(ctx context.Context, uc *entities.UserCollection) error
	// InsertBSO inserts a record. A duplicate key returns a conflict error
	// and leaves the transaction usable.
	InsertBSO(ctx context.Context, bso *entities.BSO) error
}

// Store is the target store.
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// New creates a target store over an open connection.
func New(db *gorm.DB, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	return &Store{db: db, log: log.Module("target")}
}

// AutoMigrate creates the target tables. Used by tests and local setups only.
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(entities.TargetModels()...); err != nil {
		return datastore.DBError(err, "auto_migrate")
	}
	return nil
}

// LoadCollections returns every catalog entry in the target store.
func (s *Store) LoadCollections(ctx context.Context) ([]entities.Collection, error) {
	var cols []entities.Collection
	if err := s.db.WithContext(ctx).Order("collection_id").Find(&cols).Error; err != nil {
		return nil, datastore.DBError(err, "load_collections")
	}
	return cols, nil
}

// InsertCollection adds one catalog entry. A row that already exists is
// reported as a conflict error.
func (s *Store) InsertCollection(ctx context.Context, col entities.Collection) error {
	if err := s.db.WithContext(ctx).Create(&col).Error; err != nil {
		return datastore.WriteError(err, "insert_collection",
			"collection_id", col.CollectionID, "name", col.Name)
	}
	return nil
}

// Transaction runs fn inside a single target transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
func (s *Store) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db})
	})
}

// CountUserRows returns the number of records and summary rows stored for an identity.
func (s *Store) CountUserRows(ctx context.Context, keyID, userID string) (records, summaries int64, err error) {
	db := s.db.WithContext(ctx)
	if err = db.Model(&entities.BSO{}).
		Where("fxa_kid = ? AND fxa_uid = ?", keyID, userID).
		Count(&records).Error; err != nil {
		return 0, 0, datastore.DBError(err, "count_bsos")
	}
	if err = db.Model(&entities.UserCollection{}).
		Where("fxa_kid = ? AND fxa_uid = ?", keyID, userID).
		Count(&summaries).Error; err != nil {
		return 0, 0, datastore.DBError(err, "count_user_collections")
	}
	return records, summaries, nil
}

type gormTx struct {
	db *gorm.DB
}

const bsoSavepoint = "bso_insert"

func (t *gormTx) UpsertUserCollection(ctx context.Context, uc *entities.UserCollection) error {
	db := t.db.WithContext(ctx)

	var existing entities.UserCollection
	res := db.Where("fxa_kid = ? AND fxa_uid = ? AND collection_id = ?", uc.FxaKID, uc.FxaUID, uc.CollectionID).
		Limit(1).
		Find(&existing)
	if res.Error != nil {
		return datastore.DBError(res.Error, "read_user_collection",
			"collection_id", uc.CollectionID)
	}

	row := *uc
	if res.RowsAffected > 0 && existing.Modified.After(row.Modified) {
		row.Modified = existing.Modified
	}
	row.Modified = row.Modified.UTC().Truncate(time.Microsecond)

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fxa_kid"}, {Name: "fxa_uid"}, {Name: "collection_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"modified"}),
	}).Create(&row).Error
	if err != nil {
		return datastore.WriteError(err, "upsert_user_collection",
			"collection_id", uc.CollectionID)
	}
	return nil
}

func (t *gormTx) InsertBSO(ctx context.Context, bso *entities.BSO) error {
	db := t.db.WithContext(ctx)

	if err := db.SavePoint(bsoSavepoint).Error; err != nil {
		return datastore.DBError(err, "savepoint")
	}
	if err := db.Create(bso).Error; err != nil {
		if rbErr := db.RollbackTo(bsoSavepoint).Error; rbErr != nil {
			return datastore.DBError(rbErr, "rollback_to_savepoint")
		}
		return datastore.WriteError(err, "insert_bso",
			"collection_id", bso.CollectionID, "bso_id", bso.BsoID)
	}
	return nil
}
