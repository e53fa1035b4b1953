package target

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/syncmigrate/internal/datastore"
	"github.com/tphakala/syncmigrate/internal/datastore/entities"
	"github.com/tphakala/syncmigrate/internal/errors"
	"github.com/tphakala/syncmigrate/internal/logger"
	"github.com/tphakala/syncmigrate/internal/testutil"
	"gorm.io/gorm"
)

func setupTargetTest(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db := testutil.NewTargetDB(t)
	return New(db, logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)), db
}

func TestInsertCollectionConflict(t *testing.T) {
	s, _ := setupTargetTest(t)
	ctx := context.Background()

	require.NoError(t, s.InsertCollection(ctx, entities.Collection{CollectionID: 101, Name: "custom"}))

	err := s.InsertCollection(ctx, entities.Collection{CollectionID: 101, Name: "custom"})
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	cols, err := s.LoadCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []entities.Collection{{CollectionID: 101, Name: "custom"}}, cols)
}

func TestUpsertUserCollectionKeepsMaximum(t *testing.T) {
	s, db := setupTargetTest(t)
	ctx := context.Background()

	newer := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)
	newest := newer.Add(time.Hour)

	upsert := func(modified time.Time) {
		err := s.Transaction(ctx, func(tx Tx) error {
			return tx.UpsertUserCollection(ctx, &entities.UserCollection{
				FxaKID: "kid", FxaUID: "uid", CollectionID: 4, Modified: modified,
			})
		})
		require.NoError(t, err)
	}

	upsert(newer)
	upsert(older)

	var rows []entities.UserCollection
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Modified.Equal(newer), "older write must not regress modified")

	upsert(newest)
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Modified.Equal(newest))
}

func TestInsertBSOConflictKeepsTransactionUsable(t *testing.T) {
	s, db := setupTargetTest(t)
	ctx := context.Background()

	bso := func(id string) *entities.BSO {
		return &entities.BSO{
			CollectionID: 4, FxaKID: "kid", FxaUID: "uid", BsoID: id,
			Expiry: time.Unix(2000000000, 0).UTC(), Modified: time.UnixMilli(1000).UTC(), Payload: "{}",
		}
	}

	require.NoError(t, s.Transaction(ctx, func(tx Tx) error {
		return tx.InsertBSO(ctx, bso("a"))
	}))

	var conflicts int
	err := s.Transaction(ctx, func(tx Tx) error {
		for _, id := range []string{"a", "b"} {
			if err := tx.InsertBSO(ctx, bso(id)); err != nil {
				if datastore.IsDuplicateKey(err) {
					conflicts++
					continue
				}
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, conflicts)

	var count int64
	require.NoError(t, db.Model(&entities.BSO{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	records, summaries, err := s.CountUserRows(ctx, "kid", "uid")
	require.NoError(t, err)
	assert.Equal(t, int64(2), records)
	assert.Equal(t, int64(0), summaries)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s, db := setupTargetTest(t)
	ctx := context.Background()

	errAbort := errors.NewStd("abort")
	err := s.Transaction(ctx, func(tx Tx) error {
		require.NoError(t, tx.UpsertUserCollection(ctx, &entities.UserCollection{
			FxaKID: "kid", FxaUID: "uid", CollectionID: 7, Modified: time.Now(),
		}))
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	var count int64
	require.NoError(t, db.Model(&entities.UserCollection{}).Count(&count).Error)
	assert.Zero(t, count)
}
