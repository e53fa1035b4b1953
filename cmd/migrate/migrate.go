// Package migrate provides the migrate command
package migrate

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tphakala/syncmigrate/internal/catalog"
	"github.com/tphakala/syncmigrate/internal/conf"
	"github.com/tphakala/syncmigrate/internal/errors"
	"github.com/tphakala/syncmigrate/internal/identity"
	"github.com/tphakala/syncmigrate/internal/logger"
	"github.com/tphakala/syncmigrate/internal/migrate"
	"github.com/tphakala/syncmigrate/internal/notification"
	"github.com/tphakala/syncmigrate/internal/observability"
	"github.com/tphakala/syncmigrate/internal/runtime"
	"golang.org/x/sync/errgroup"
)

// Command creates and returns the migrate command
func Command(rt *runtime.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate users from the legacy shards to the target store",
		Long: `Migrate reads every selected user from the legacy bso shards and writes
their unexpired records to the target store. Runs are resumable: records
already present in the target are skipped, so an interrupted run is
finished by running the same command again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, rt, cmd.OutOrStdout())
		},
	}

	setupFlags(cmd)
	return cmd
}

// setupFlags configures flags specific to the migrate command. Values reach
// the settings through conf.BindFlags.
func setupFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int("start-bso", 0, "First legacy shard to migrate")
	flags.Int("end-bso", 19, "Last legacy shard to migrate")
	flags.String("user", "", "Migrate only these users: shard:id[,id...]")
	flags.String("user-range", "", "Page through shard users: offset:limit")
	flags.Bool("sort-users", false, "Migrate users in identity order")
	flags.Int("readchunk", migrate.DefaultChunkSize, "Records written per transaction")
	flags.Bool("dryrun", false, "Read and transform without writing")
	flags.Bool("full", false, "Regenerate meta sync ids so clients run a full reconcile")
	flags.String("abort", "", "Keep at most maxRows records of a collection per user: collection:maxRows")
	flags.Float64("ratelimit", 0, "Maximum chunks written per second, 0 for no limit")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	flags.StringSlice("notify-url", nil, "Send the run summary to this shoutrrr URL (repeatable)")
}

// BuildConfig converts migration settings into an orchestrator config.
func BuildConfig(s *conf.MigrationSettings) (migrate.Config, error) {
	cfg := migrate.Config{
		StartShard: s.StartShard,
		EndShard:   s.EndShard,
		SortUsers:  s.SortUsers,
		ChunkSize:  s.ReadChunk,
	}

	if s.User != "" {
		sel, err := migrate.ParseUserSelection(s.User)
		if err != nil {
			return cfg, err
		}
		cfg.StartShard, cfg.EndShard = sel.Shard, sel.Shard
		cfg.Users = sel.Users
	}
	if s.UserRange != "" {
		offset, limit, err := migrate.ParseUserRange(s.UserRange)
		if err != nil {
			return cfg, err
		}
		cfg.Offset, cfg.Limit = offset, limit
	}
	if s.Abort != "" {
		t, err := migrate.ParseTruncation(s.Abort)
		if err != nil {
			return cfg, err
		}
		cfg.Truncate = t
	}

	return cfg, cfg.Validate()
}

// Run performs one migration with the settings in rt and prints the report to out.
func Run(ctx context.Context, rt *runtime.Context, out io.Writer) error {
	settings := rt.Settings
	log := rt.Logger("main")

	cfg, err := BuildConfig(&settings.Migration)
	if err != nil {
		return err
	}

	flush, err := errors.InitSentry(settings.Sentry.DSN, rt.Version, rt.RunID)
	if err != nil {
		return err
	}
	defer flush()

	resolver := identity.NewResolver(identity.Config{
		Anonymize: settings.Identity.Anonymize,
		Only:      cfg.Users,
	}, rt.Logger("identity"))
	if err := resolver.LoadFeed(settings.Identity.UsersFile); err != nil {
		return err
	}

	stores, err := rt.OpenStores(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Warn("failed to close stores", logger.Error(err))
		}
	}()

	cat := catalog.New(stores.Target, stores.Legacy, rt.Logger("catalog"))
	if err := cat.Initialize(ctx); err != nil {
		return err
	}
	metaID, ok := cat.ID(catalog.MetaCollection)
	if !ok && settings.Migration.Full {
		log.Warn("meta collection not in catalog, sync ids will not be regenerated")
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	writer := migrate.NewWriter(stores.Target, cat, migrate.WriterConfig{
		DryRun:           settings.Migration.DryRun,
		FullReconcile:    settings.Migration.Full && ok,
		MetaCollectionID: metaID,
		ChunksPerSecond:  settings.Migration.RateLimit,
	}, metrics.Migration, rt.Logger("migrate"))

	orchestrator, err := migrate.NewOrchestrator(cfg, stores.Legacy, resolver, writer, rt.Logger("migrate"),
		migrate.WithMetrics(metrics.Migration),
		migrate.WithRunID(rt.RunID),
		migrate.WithDryRun(settings.Migration.DryRun))
	if err != nil {
		return err
	}

	var report *migrate.Report
	var runErr error

	serveCtx, stopServing := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(serveCtx)
	if settings.Metrics.Listen != "" {
		endpoint := observability.NewEndpoint(settings.Metrics.Listen, metrics, rt.Logger("metrics"))
		g.Go(func() error { return endpoint.Run(gctx) })
	}
	g.Go(func() error {
		defer stopServing()
		report, runErr = orchestrator.Run(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Warn("metrics endpoint stopped", logger.Error(err))
	}

	if report != nil {
		report.Print(out)
		notify(ctx, settings, report, rt.Logger("notification"))
	}
	return runErr
}

// notify sends the run summary. Failures are logged and never fail the run.
func notify(ctx context.Context, settings *conf.Settings, report *migrate.Report, log logger.Logger) {
	if len(settings.Notification.URLs) == 0 {
		return
	}
	n, err := notification.New(settings.Notification.URLs, settings.Notification.Timeout, log)
	if err != nil {
		log.Warn("notification disabled", logger.Error(err))
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settings.Notification.Timeout)
	defer cancel()
	if err := n.Send(sendCtx, report.Title(), report.Summary()); err != nil {
		log.Warn("failed to send run summary", logger.Error(err))
	}
}
