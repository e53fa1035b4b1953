package migrate

import (
	"context"
	"crypto/rand"
	"io"
	"time"

	"github.com/tphakala/syncmigrate/internal/datastore"
	"github.com/tphakala/syncmigrate/internal/datastore/entities"
	"github.com/tphakala/syncmigrate/internal/datastore/target"
	"github.com/tphakala/syncmigrate/internal/errors"
	"github.com/tphakala/syncmigrate/internal/identity"
	"github.com/tphakala/syncmigrate/internal/logger"
	"github.com/tphakala/syncmigrate/internal/observability/metrics"
	"golang.org/x/time/rate"
)

// TargetStore opens write transactions on the target store.
type TargetStore interface {
	Transaction(ctx context.Context, fn func(tx target.Tx) error) error
}

// CollectionResolver maps a record's collection to its canonical id.
type CollectionResolver interface {
	Resolve(name string, legacyID int) (int, bool)
}

// WriteResult counts the outcome of writing records.
type WriteResult struct {
	// Records is the number of records newly written, or that would be
	// written in a dry run.
	Records int
	// UserCollections is the number of summary rows upserted.
	UserCollections int
	// Conflicts counts records already present in the target store.
	Conflicts int
	// Unknown counts records skipped because their collection is unknown.
	Unknown int
}

// Add accumulates other into r.
func (r *WriteResult) Add(other WriteResult) {
	r.Records += other.Records
	r.UserCollections += other.UserCollections
	r.Conflicts += other.Conflicts
	r.Unknown += other.Unknown
}

// WriterConfig configures a Writer.
type WriterConfig struct {
	DryRun bool
	// FullReconcile regenerates sync ids in meta collection payloads so
	// clients perform a full resync.
	FullReconcile bool
	// MetaCollectionID is the canonical id of the meta collection.
	MetaCollectionID int
	// ChunksPerSecond throttles chunk writes. Zero disables throttling.
	ChunksPerSecond float64
	// Random is the entropy source for regenerated sync ids.
	Random io.Reader
}

// Writer writes chunks of one user's records to the target store.
type Writer struct {
	store   TargetStore
	catalog CollectionResolver
	cfg     WriterConfig
	ids     *SyncIDGenerator
	limiter *rate.Limiter
	metrics *metrics.MigrationMetrics
	log     logger.Logger
}

// NewWriter creates a writer. metrics may be nil.
func NewWriter(store TargetStore, catalog CollectionResolver, cfg WriterConfig, m *metrics.MigrationMetrics, log logger.Logger) *Writer {
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	random := cfg.Random
	if random == nil {
		random = rand.Reader
	}

	w := &Writer{
		store:   store,
		catalog: catalog,
		cfg:     cfg,
		ids:     NewSyncIDGenerator(random),
		metrics: m,
		log:     log.Module("writer"),
	}
	if cfg.ChunksPerSecond > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(cfg.ChunksPerSecond), 1)
	}
	return w
}

type resolvedRecord struct {
	rec          *entities.DataRecord
	collectionID int
}

// WriteChunk writes one chunk for one identity as two transactions: the
// user collection summaries first, then the records. A record that already
// exists is logged and not counted. Any other failure is returned and the
// remaining writes for the chunk are abandoned.
func (w *Writer) WriteChunk(ctx context.Context, ident identity.Identity, chunk []entities.DataRecord) (WriteResult, error) {
	var result WriteResult
	if len(chunk) == 0 {
		return result, nil
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return result, errors.New(err).
				Component("migrate").
				Category(errors.CategoryCancellation).
				Context("operation", "throttle_chunk").
				Build()
		}
	}

	resolved := w.resolveCollections(ident, chunk, &result)
	if w.metrics != nil {
		w.metrics.RecordChunk(len(chunk))
		w.metrics.RecordRecords(metrics.OutcomeUnknownCollection, result.Unknown)
	}
	if len(resolved) == 0 {
		return result, nil
	}

	summaries := latestPerCollection(ident, resolved)

	n, err := w.writeUserCollections(ctx, ident, summaries)
	if err != nil {
		return result, err
	}
	result.UserCollections = n

	written, conflicts, err := w.writeRecords(ctx, ident, resolved)
	if err != nil {
		return result, err
	}
	result.Records = written
	result.Conflicts = conflicts
	return result, nil
}

func (w *Writer) resolveCollections(ident identity.Identity, chunk []entities.DataRecord, result *WriteResult) []resolvedRecord {
	resolved := make([]resolvedRecord, 0, len(chunk))
	for i := range chunk {
		rec := &chunk[i]
		id, ok := w.catalog.Resolve(rec.CollectionName, rec.CollectionID)
		if !ok {
			result.Unknown++
			w.log.Warn("skipping record with unknown collection",
				logger.String("collection", rec.CollectionName),
				logger.Int("legacy_collection_id", rec.CollectionID),
				logger.String("bso_id", rec.ID),
				logger.String("fxa_uid", ident.UserID))
			continue
		}
		if id != rec.CollectionID {
			w.log.Debug("remapping collection",
				logger.String("collection", rec.CollectionName),
				logger.Int("legacy_collection_id", rec.CollectionID),
				logger.Int("collection_id", id))
		}
		resolved = append(resolved, resolvedRecord{rec: rec, collectionID: id})
	}
	return resolved
}

// latestPerCollection keeps one summary per collection with the newest
// modification time, in order of first appearance.
func latestPerCollection(ident identity.Identity, resolved []resolvedRecord) []entities.UserCollection {
	index := make(map[int]int, len(resolved))
	var out []entities.UserCollection
	for _, r := range resolved {
		modified := r.rec.ModifiedAt()
		if i, ok := index[r.collectionID]; ok {
			if modified.After(out[i].Modified) {
				out[i].Modified = modified
			}
			continue
		}
		index[r.collectionID] = len(out)
		out = append(out, entities.UserCollection{
			FxaKID:       ident.KeyID,
			FxaUID:       ident.UserID,
			CollectionID: r.collectionID,
			Modified:     modified,
		})
	}
	return out
}

func (w *Writer) writeUserCollections(ctx context.Context, ident identity.Identity, summaries []entities.UserCollection) (int, error) {
	if w.cfg.DryRun {
		for i := range summaries {
			w.log.Debug("dry run: would upsert user collection",
				logger.String("fxa_kid", ident.KeyID),
				logger.String("fxa_uid", ident.UserID),
				logger.Int("collection_id", summaries[i].CollectionID),
				logger.Time("modified", summaries[i].Modified))
		}
		return len(summaries), nil
	}

	start := time.Now()
	err := w.store.Transaction(ctx, func(tx target.Tx) error {
		for i := range summaries {
			if err := tx.UpsertUserCollection(ctx, &summaries[i]); err != nil {
				return err
			}
		}
		return nil
	})
	elapsed := time.Since(start)
	if w.metrics != nil {
		w.metrics.RecordTransaction(metrics.PhaseUserCollections, err, elapsed)
	}
	if err != nil {
		return 0, errors.New(err).
			Component("migrate").
			Timing("write_user_collections", elapsed).
			Context("fxa_uid", ident.UserID).
			Build()
	}
	if w.metrics != nil {
		w.metrics.RecordUserCollections(len(summaries))
	}
	return len(summaries), nil
}

func (w *Writer) writeRecords(ctx context.Context, ident identity.Identity, resolved []resolvedRecord) (written, conflicts int, err error) {
	bsos := make([]entities.BSO, 0, len(resolved))
	for _, r := range resolved {
		bsos = append(bsos, w.toBSO(ident, r))
	}

	if w.cfg.DryRun {
		for i := range bsos {
			w.log.Debug("dry run: would insert record",
				logger.Int("collection_id", bsos[i].CollectionID),
				logger.String("fxa_kid", bsos[i].FxaKID),
				logger.String("fxa_uid", bsos[i].FxaUID),
				logger.String("bso_id", bsos[i].BsoID),
				logger.Time("modified", bsos[i].Modified),
				logger.Time("expiry", bsos[i].Expiry),
				logger.Int("payload_bytes", len(bsos[i].Payload)))
		}
		if w.metrics != nil {
			w.metrics.RecordRecords(metrics.OutcomeDryRun, len(bsos))
		}
		return len(bsos), 0, nil
	}

	start := time.Now()
	err = w.store.Transaction(ctx, func(tx target.Tx) error {
		written, conflicts = 0, 0
		for i := range bsos {
			if err := tx.InsertBSO(ctx, &bsos[i]); err != nil {
				if datastore.IsDuplicateKey(err) {
					conflicts++
					w.log.Warn("record already migrated, skipping",
						logger.Int("collection_id", bsos[i].CollectionID),
						logger.String("fxa_uid", bsos[i].FxaUID),
						logger.String("bso_id", bsos[i].BsoID))
					continue
				}
				return err
			}
			written++
		}
		return nil
	})
	elapsed := time.Since(start)
	if w.metrics != nil {
		w.metrics.RecordTransaction(metrics.PhaseRecords, err, elapsed)
	}
	if err != nil {
		return 0, 0, errors.New(err).
			Component("migrate").
			Timing("write_records", elapsed).
			Context("fxa_uid", ident.UserID).
			Build()
	}
	if w.metrics != nil {
		w.metrics.RecordRecords(metrics.OutcomeInserted, written)
		w.metrics.RecordRecords(metrics.OutcomeConflict, conflicts)
	}
	return written, conflicts, nil
}

func (w *Writer) toBSO(ident identity.Identity, r resolvedRecord) entities.BSO {
	payload := r.rec.Payload
	if w.cfg.FullReconcile && r.collectionID == w.cfg.MetaCollectionID {
		rewritten, engines, err := RewriteSyncIDs(payload, w.ids)
		if err != nil {
			w.log.Warn("meta payload not rewritten",
				logger.String("bso_id", r.rec.ID),
				logger.String("fxa_uid", ident.UserID),
				logger.Error(err))
		} else {
			payload = rewritten
			w.log.Debug("regenerated sync ids",
				logger.String("bso_id", r.rec.ID),
				logger.Int("engines", len(engines)))
		}
	}

	return entities.BSO{
		CollectionID: r.collectionID,
		FxaKID:       ident.KeyID,
		FxaUID:       ident.UserID,
		BsoID:        r.rec.ID,
		Expiry:       r.rec.ExpiresAt(),
		Modified:     r.rec.ModifiedAt(),
		Payload:      payload,
		SortIndex:    r.rec.SortIndex,
	}
}
