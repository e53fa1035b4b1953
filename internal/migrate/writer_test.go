package migrate

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/syncmigrate/internal/datastore/entities"
	"github.com/tphakala/syncmigrate/internal/datastore/target"
	"github.com/tphakala/syncmigrate/internal/errors"
	"github.com/tphakala/syncmigrate/internal/identity"
	"github.com/tphakala/syncmigrate/internal/logger"
	"gorm.io/gorm"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

var testIdent = identity.Identity{KeyID: "0000000000001-AA", UserID: "user42"}

type mapCatalog map[string]int

func (m mapCatalog) Resolve(name string, _ int) (int, bool) {
	id, ok := m[name]
	return id, ok
}

var defaultTestCatalog = mapCatalog{"history": 4, "bookmarks": 7, "meta": 6}

// recordingStore is an in-memory target store that records the order of
// transactions and writes.
type recordingStore struct {
	events    []string
	summaries map[string]entities.UserCollection
	bsos      map[string]entities.BSO
	insertErr func(*entities.BSO) error
	txCount   int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		summaries: make(map[string]entities.UserCollection),
		bsos:      make(map[string]entities.BSO),
	}
}

func (s *recordingStore) Transaction(_ context.Context, fn func(tx target.Tx) error) error {
	s.txCount++
	s.events = append(s.events, "begin")
	tx := &recordingTx{store: s}
	if err := fn(tx); err != nil {
		s.events = append(s.events, "rollback")
		return err
	}
	for k, v := range tx.summaries {
		s.summaries[k] = v
	}
	for k, v := range tx.bsos {
		s.bsos[k] = v
	}
	s.events = append(s.events, "commit")
	return nil
}

type recordingTx struct {
	store     *recordingStore
	summaries map[string]entities.UserCollection
	bsos      map[string]entities.BSO
}

func (tx *recordingTx) UpsertUserCollection(_ context.Context, uc *entities.UserCollection) error {
	tx.store.events = append(tx.store.events, fmt.Sprintf("upsert:%d", uc.CollectionID))
	if tx.summaries == nil {
		tx.summaries = make(map[string]entities.UserCollection)
	}
	key := fmt.Sprintf("%s/%s/%d", uc.FxaKID, uc.FxaUID, uc.CollectionID)
	row := *uc
	if existing, ok := tx.store.summaries[key]; ok && existing.Modified.After(row.Modified) {
		row.Modified = existing.Modified
	}
	tx.summaries[key] = row
	return nil
}

func (tx *recordingTx) InsertBSO(_ context.Context, bso *entities.BSO) error {
	tx.store.events = append(tx.store.events, fmt.Sprintf("insert:%d/%s", bso.CollectionID, bso.BsoID))
	if tx.store.insertErr != nil {
		if err := tx.store.insertErr(bso); err != nil {
			return err
		}
	}
	key := fmt.Sprintf("%d/%s/%s/%s", bso.CollectionID, bso.FxaKID, bso.FxaUID, bso.BsoID)
	if _, ok := tx.store.bsos[key]; ok {
		return errors.New(gorm.ErrDuplicatedKey).Category(errors.CategoryConflict).Build()
	}
	if tx.bsos == nil {
		tx.bsos = make(map[string]entities.BSO)
	}
	tx.bsos[key] = *bso
	return nil
}

func rec(collection string, legacyID int, id string, modifiedMs int64) entities.DataRecord {
	return entities.DataRecord{
		CollectionName: collection,
		CollectionID:   legacyID,
		ID:             id,
		TTL:            2000000000,
		Modified:       modifiedMs,
		Payload:        `{"ciphertext":"x"}`,
	}
}

func TestWriteChunkOrdersSummariesBeforeRecords(t *testing.T) {
	store := newRecordingStore()
	w := NewWriter(store, defaultTestCatalog, WriterConfig{}, nil, testLogger())

	res, err := w.WriteChunk(context.Background(), testIdent, []entities.DataRecord{
		rec("history", 4, "h1", 1000),
		rec("bookmarks", 7, "b1", 2000),
	})
	require.NoError(t, err)
	assert.Equal(t, WriteResult{Records: 2, UserCollections: 2}, res)

	assert.Equal(t, []string{
		"begin", "upsert:4", "upsert:7", "commit",
		"begin", "insert:4/h1", "insert:7/b1", "commit",
	}, store.events)
}

func TestWriteChunkDedupKeepsLatest(t *testing.T) {
	store := newRecordingStore()
	w := NewWriter(store, defaultTestCatalog, WriterConfig{}, nil, testLogger())

	res, err := w.WriteChunk(context.Background(), testIdent, []entities.DataRecord{
		rec("history", 4, "h1", 3000),
		rec("history", 4, "h2", 9000),
		rec("history", 4, "h3", 5000),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.UserCollections)
	assert.Equal(t, 3, res.Records)

	require.Len(t, store.summaries, 1)
	for _, uc := range store.summaries {
		assert.Equal(t, time.UnixMilli(9000).UTC(), uc.Modified)
		assert.Equal(t, testIdent.KeyID, uc.FxaKID)
		assert.Equal(t, testIdent.UserID, uc.FxaUID)
	}

	// A later chunk with older records must not move the summary back.
	_, err = w.WriteChunk(context.Background(), testIdent, []entities.DataRecord{rec("history", 4, "h4", 100)})
	require.NoError(t, err)
	for _, uc := range store.summaries {
		assert.Equal(t, time.UnixMilli(9000).UTC(), uc.Modified)
	}
}

func TestWriteChunkSkipsUnknownCollections(t *testing.T) {
	store := newRecordingStore()
	w := NewWriter(store, defaultTestCatalog, WriterConfig{}, nil, testLogger())

	res, err := w.WriteChunk(context.Background(), testIdent, []entities.DataRecord{
		rec("history", 4, "h1", 1),
		rec("mystery", 77, "m1", 1),
	})
	require.NoError(t, err)
	assert.Equal(t, WriteResult{Records: 1, UserCollections: 1, Unknown: 1}, res)
	assert.NotContains(t, strings.Join(store.events, " "), "m1")
}

func TestWriteChunkAllUnknownOpensNoTransaction(t *testing.T) {
	store := newRecordingStore()
	w := NewWriter(store, defaultTestCatalog, WriterConfig{}, nil, testLogger())

	res, err := w.WriteChunk(context.Background(), testIdent, []entities.DataRecord{rec("mystery", 77, "m1", 1)})
	require.NoError(t, err)
	assert.Equal(t, WriteResult{Unknown: 1}, res)
	assert.Zero(t, store.txCount)
}

func TestWriteChunkConflictsAreNotCounted(t *testing.T) {
	store := newRecordingStore()
	w := NewWriter(store, defaultTestCatalog, WriterConfig{}, nil, testLogger())
	chunk := []entities.DataRecord{rec("history", 4, "h1", 1), rec("history", 4, "h2", 1)}

	first, err := w.WriteChunk(context.Background(), testIdent, chunk)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Records)

	second, err := w.WriteChunk(context.Background(), testIdent, chunk)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Records)
	assert.Equal(t, 2, second.Conflicts)
	assert.Len(t, store.bsos, 2)
}

func TestWriteChunkOtherErrorsAbort(t *testing.T) {
	store := newRecordingStore()
	boom := errors.NewStd("connection reset")
	store.insertErr = func(b *entities.BSO) error {
		if b.BsoID == "h2" {
			return boom
		}
		return nil
	}
	w := NewWriter(store, defaultTestCatalog, WriterConfig{}, nil, testLogger())

	res, err := w.WriteChunk(context.Background(), testIdent, []entities.DataRecord{
		rec("history", 4, "h1", 1), rec("history", 4, "h2", 1), rec("history", 4, "h3", 1),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, res.Records)
	assert.Empty(t, store.bsos, "record transaction rolled back")
	assert.Len(t, store.summaries, 1, "summary transaction already committed")
	assert.Equal(t, "rollback", store.events[len(store.events)-1])
}

func TestWriteChunkDryRun(t *testing.T) {
	store := newRecordingStore()
	w := NewWriter(store, defaultTestCatalog, WriterConfig{DryRun: true}, nil, testLogger())

	res, err := w.WriteChunk(context.Background(), testIdent, []entities.DataRecord{
		rec("history", 4, "h1", 1), rec("history", 4, "h2", 2), rec("bookmarks", 7, "b1", 3),
	})
	require.NoError(t, err)
	assert.Equal(t, WriteResult{Records: 3, UserCollections: 2}, res)
	assert.Zero(t, store.txCount)
	assert.Empty(t, store.events)
}

func TestWriteChunkFullReconcileRewritesMeta(t *testing.T) {
	store := newRecordingStore()
	w := NewWriter(store, defaultTestCatalog, WriterConfig{
		FullReconcile:    true,
		MetaCollectionID: 6,
		Random:           strings.NewReader(strings.Repeat("0123456789", 10)),
	}, nil, testLogger())

	global := rec("meta", 6, "global", 1)
	global.Payload = `{"syncID":"old","engines":{"tabs":{"version":1,"syncID":"oldtabs"}}}`
	other := rec("history", 4, "h1", 1)
	other.Payload = `{"syncID":"keep"}`
	broken := rec("meta", 6, "broken", 1)
	broken.Payload = "not json"

	_, err := w.WriteChunk(context.Background(), testIdent, []entities.DataRecord{global, other, broken})
	require.NoError(t, err)

	for _, bso := range store.bsos {
		switch bso.BsoID {
		case "global":
			assert.NotContains(t, bso.Payload, `"old"`)
			assert.NotContains(t, bso.Payload, "oldtabs")
		case "h1":
			assert.Equal(t, `{"syncID":"keep"}`, bso.Payload)
		case "broken":
			assert.Equal(t, "not json", bso.Payload, "malformed payload is written unchanged")
		}
	}
}

func TestWriteChunkWithoutFullReconcileKeepsMeta(t *testing.T) {
	store := newRecordingStore()
	w := NewWriter(store, defaultTestCatalog, WriterConfig{MetaCollectionID: 6}, nil, testLogger())

	global := rec("meta", 6, "global", 1)
	global.Payload = `{"syncID":"old"}`
	_, err := w.WriteChunk(context.Background(), testIdent, []entities.DataRecord{global})
	require.NoError(t, err)
	for _, bso := range store.bsos {
		assert.Equal(t, `{"syncID":"old"}`, bso.Payload)
	}
}

func TestWriteChunkRemapsCollectionID(t *testing.T) {
	store := newRecordingStore()
	w := NewWriter(store, mapCatalog{"history": 40}, WriterConfig{}, nil, testLogger())

	r := rec("history", 4, "h1", 1)
	r.SortIndex = new(int64)
	*r.SortIndex = 12
	_, err := w.WriteChunk(context.Background(), testIdent, []entities.DataRecord{r})
	require.NoError(t, err)

	require.Len(t, store.bsos, 1)
	for _, bso := range store.bsos {
		assert.Equal(t, 40, bso.CollectionID)
		assert.Equal(t, time.Unix(2000000000, 0).UTC(), bso.Expiry)
		require.NotNil(t, bso.SortIndex)
		assert.Equal(t, int64(12), *bso.SortIndex)
	}
}

func TestWriteChunkThrottleHonorsContext(t *testing.T) {
	store := newRecordingStore()
	w := NewWriter(store, defaultTestCatalog, WriterConfig{ChunksPerSecond: 0.001}, nil, testLogger())

	ctx := context.Background()
	_, err := w.WriteChunk(ctx, testIdent, []entities.DataRecord{rec("history", 4, "h1", 1)})
	require.NoError(t, err, "first chunk uses the initial burst")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = w.WriteChunk(ctx, testIdent, []entities.DataRecord{rec("history", 4, "h2", 1)})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
}
