// Package migrate moves users from the legacy store to the target store.
//
// An Orchestrator walks legacy shards one at a time and users one at a time.
// Each user's records are split into chunks and handed to a Writer, which
// commits every chunk as two transactions. A failing user is logged and
// counted, and the run moves on to the next one. All writes are idempotent,
// so an interrupted run is resumed by running it again.
package migrate

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/tphakala/syncmigrate/internal/batch"
	"github.com/tphakala/syncmigrate/internal/datastore/entities"
	"github.com/tphakala/syncmigrate/internal/errors"
	"github.com/tphakala/syncmigrate/internal/identity"
	"github.com/tphakala/syncmigrate/internal/logger"
	"github.com/tphakala/syncmigrate/internal/observability/metrics"
)

// LegacyReader reads users and records from the legacy store.
type LegacyReader interface {
	ListUsers(ctx context.Context, shard, offset, limit int) ([]int64, error)
	FetchRecords(ctx context.Context, shard int, userID int64) ([]entities.DataRecord, error)
}

// IdentityResolver maps legacy user ids to identities.
type IdentityResolver interface {
	Resolve(legacyID int64) (identity.Identity, error)
}

// ChunkWriter writes one chunk of a user's records.
type ChunkWriter interface {
	WriteChunk(ctx context.Context, ident identity.Identity, chunk []entities.DataRecord) (WriteResult, error)
}

// Orchestrator runs a migration over a range of legacy shards.
type Orchestrator struct {
	cfg      Config
	legacy   LegacyReader
	resolver IdentityResolver
	writer   ChunkWriter
	metrics  *metrics.MigrationMetrics
	log      logger.Logger
	runID    string
	dryRun   bool
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithMetrics records per-user and per-shard metrics.
func WithMetrics(m *metrics.MigrationMetrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRunID tags the report with a run id.
func WithRunID(id string) OrchestratorOption {
	return func(o *Orchestrator) { o.runID = id }
}

// WithDryRun marks the report as a dry run.
func WithDryRun(dryRun bool) OrchestratorOption {
	return func(o *Orchestrator) { o.dryRun = dryRun }
}

// NewOrchestrator validates cfg and creates an orchestrator.
func NewOrchestrator(cfg Config, legacy LegacyReader, resolver IdentityResolver, writer ChunkWriter, log logger.Logger, opts ...OrchestratorOption) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}

	o := &Orchestrator{
		cfg:      cfg,
		legacy:   legacy,
		resolver: resolver,
		writer:   writer,
		log:      log.Module("migrate"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

type userJob struct {
	legacyID int64
	ident    identity.Identity
}

// Run migrates every selected shard and returns the report. Store failures
// are confined to the user or shard they occur in. The run stops between
// users when ctx is canceled; the partial report is returned with a
// cancellation error.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     o.runID,
		DryRun:    o.dryRun,
		StartTime: time.Now(),
	}

	o.log.Info("migration starting",
		logger.Int("start_shard", o.cfg.StartShard),
		logger.Int("end_shard", o.cfg.EndShard),
		logger.Int("chunk_size", o.cfg.ChunkSize),
		logger.Bool("dry_run", o.dryRun))

	for shard := o.cfg.StartShard; shard <= o.cfg.EndShard; shard++ {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}
		stats := o.migrateShard(ctx, shard)
		report.Shards = append(report.Shards, stats)
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}
	}

	report.EndTime = time.Now()
	totals := report.Totals()
	o.log.Info("migration finished",
		logger.Int("shards", len(report.Shards)),
		logger.Int("users_migrated", totals.Migrated),
		logger.Int("users_skipped", totals.Skipped),
		logger.Int("users_failed", totals.Failed),
		logger.Int("rows", totals.Writes.Records),
		logger.Int("conflicts", totals.Writes.Conflicts),
		logger.Duration("elapsed", report.Elapsed()),
		logger.Bool("interrupted", report.Interrupted))

	if report.Interrupted {
		return report, errors.New(context.Cause(ctx)).
			Component("migrate").
			Category(errors.CategoryCancellation).
			Context("operation", "run").
			Build()
	}
	return report, nil
}

func (o *Orchestrator) migrateShard(ctx context.Context, shard int) ShardStats {
	start := time.Now()
	stats := ShardStats{Shard: shard}
	log := o.log.With(logger.Int("shard", shard))

	defer func() {
		stats.Duration = time.Since(start)
		if o.metrics != nil {
			o.metrics.RecordShard(shard, stats.Duration)
		}
		log.Info("shard finished",
			logger.Int("users", stats.Users),
			logger.Int("rows", stats.Writes.Records),
			logger.Int("conflicts", stats.Writes.Conflicts),
			logger.Int("failed", stats.Failed),
			logger.Duration("elapsed", stats.Duration))
	}()

	legacyIDs, err := o.shardUsers(ctx, shard)
	if err != nil {
		stats.ListUsersFail = true
		log.Error("could not list shard users", logger.Error(err))
		return stats
	}

	jobs := make([]userJob, 0, len(legacyIDs))
	for _, legacyID := range legacyIDs {
		stats.Users++
		ident, err := o.resolver.Resolve(legacyID)
		if err != nil {
			stats.Skipped++
			o.recordUser(metrics.UserSkipped)
			log.Error("no identity for legacy user, skipping",
				logger.Int64("legacy_id", legacyID),
				logger.Error(err))
			continue
		}
		jobs = append(jobs, userJob{legacyID: legacyID, ident: ident})
	}

	if o.cfg.SortUsers {
		slices.SortStableFunc(jobs, func(a, b userJob) int {
			return cmp.Compare(a.ident.UserID, b.ident.UserID)
		})
	}

	log.Info("migrating shard", logger.Int("users", len(jobs)))

	for _, job := range jobs {
		if ctx.Err() != nil {
			return stats
		}

		userLog := log.With(
			logger.Int64("legacy_id", job.legacyID),
			logger.String("fxa_uid", job.ident.UserID),
			logger.String("fxa_kid", job.ident.KeyID))

		read, truncated, res, err := o.migrateUser(ctx, shard, job, userLog)
		stats.RowsRead += read
		stats.Truncated += truncated
		stats.Writes.Add(res)
		if err != nil {
			stats.Failed++
			o.recordUser(metrics.UserFailed)
			userLog.Error("user migration failed", logger.Error(err))
			continue
		}
		stats.Migrated++
		o.recordUser(metrics.UserMigrated)
		userLog.Debug("user migrated",
			logger.Int("rows", res.Records),
			logger.Int("conflicts", res.Conflicts))
	}
	return stats
}

func (o *Orchestrator) shardUsers(ctx context.Context, shard int) ([]int64, error) {
	if len(o.cfg.Users) > 0 {
		return slices.Clone(o.cfg.Users), nil
	}
	return o.legacy.ListUsers(ctx, shard, o.cfg.Offset, o.cfg.Limit)
}

// migrateUser migrates one user. Writes already committed for earlier
// chunks are kept and counted when a later chunk fails.
func (o *Orchestrator) migrateUser(ctx context.Context, shard int, job userJob, log logger.Logger) (read, truncated int, total WriteResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic while migrating user: %v", r).
				Component("migrate").
				Category(errors.CategoryProcessing).
				Context("legacy_id", job.legacyID).
				Build()
		}
	}()

	records, err := o.legacy.FetchRecords(ctx, shard, job.legacyID)
	if err != nil {
		return 0, 0, total, err
	}
	read = len(records)

	if o.cfg.Truncate != nil {
		records, truncated = o.cfg.Truncate.Apply(records)
		if truncated > 0 {
			log.Info("truncated user records",
				logger.String("truncation", o.cfg.Truncate.String()),
				logger.Int("skipped", truncated),
				logger.Int("rows", read))
		}
	}

	for i, chunk := range batch.Split(records, o.cfg.ChunkSize) {
		res, err := o.writer.WriteChunk(ctx, job.ident, chunk)
		total.Add(res)
		if err != nil {
			return read, truncated, total, errors.New(err).
				Component("migrate").
				Context("chunk", i).
				Context("legacy_id", job.legacyID).
				Build()
		}
	}
	return read, truncated, total, nil
}

func (o *Orchestrator) recordUser(status string) {
	if o.metrics != nil {
		o.metrics.RecordUser(status)
	}
}
