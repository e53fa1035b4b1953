package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/syncmigrate/internal/datastore/entities"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// NewSQLiteDB opens a private in-memory sqlite database limited to one
// connection, mirroring how the migration holds its connections.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gorm_logger.Default.LogMode(gorm_logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// NewTargetDB returns an in-memory target store with its schema created.
func NewTargetDB(t *testing.T) *gorm.DB {
	t.Helper()

	db := NewSQLiteDB(t)
	require.NoError(t, db.AutoMigrate(entities.TargetModels()...))
	return db
}

// NewLegacyDB returns an in-memory legacy store with the catalog tables and
// the given shard tables created.
func NewLegacyDB(t *testing.T, shards ...int) *gorm.DB {
	t.Helper()

	db := NewSQLiteDB(t)
	require.NoError(t, db.AutoMigrate(&entities.LegacyCollection{}, &entities.LegacyUserCollection{}))
	for _, shard := range shards {
		require.NoError(t, db.Table(entities.LegacyBSOTable(shard)).AutoMigrate(&entities.LegacyBSO{}))
	}
	return db
}

// SeedLegacyCollections inserts legacy collection catalog rows.
func SeedLegacyCollections(t *testing.T, db *gorm.DB, byName map[string]int) {
	t.Helper()

	for name, id := range byName {
		require.NoError(t, db.Create(&entities.LegacyCollection{CollectionID: id, Name: name}).Error)
	}
}

// AddLegacyRecord inserts a legacy record into its shard table and keeps the
// legacy per-user collection summary in step.
func AddLegacyRecord(t *testing.T, db *gorm.DB, shard int, rec entities.LegacyBSO) {
	t.Helper()

	if rec.PayloadSize == 0 {
		rec.PayloadSize = len(rec.Payload)
	}
	require.NoError(t, db.Table(entities.LegacyBSOTable(shard)).Create(&rec).Error)

	summary := entities.LegacyUserCollection{
		UserID:       rec.UserID,
		Collection:   rec.Collection,
		LastModified: rec.Modified,
	}
	require.NoError(t, db.Where(entities.LegacyUserCollection{UserID: rec.UserID, Collection: rec.Collection}).
		Assign(entities.LegacyUserCollection{LastModified: rec.Modified}).
		FirstOrCreate(&summary).Error)
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
