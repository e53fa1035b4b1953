// Package runtime holds the state shared by every command of one process:
// build metadata, the loaded settings, the run id and the central logger.
package runtime

import (
	"context"

	"github.com/google/uuid"
	"github.com/tphakala/syncmigrate/internal/conf"
	"github.com/tphakala/syncmigrate/internal/datastore"
	"github.com/tphakala/syncmigrate/internal/datastore/legacy"
	"github.com/tphakala/syncmigrate/internal/datastore/target"
	"github.com/tphakala/syncmigrate/internal/errors"
	"github.com/tphakala/syncmigrate/internal/logger"
	"gorm.io/gorm"
)

// Context contains process metadata and the settings of the current run.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string

	// RunID identifies this run in logs, telemetry and notifications.
	RunID string

	Settings *conf.Settings

	logger *logger.CentralLogger
}

// Init installs settings and creates the central logger. Debug switches the
// default and console levels to debug.
func (c *Context) Init(settings *conf.Settings) error {
	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return errors.New(err).
			Component("runtime").
			Category(errors.CategoryConfiguration).
			Context("operation", "create_logger").
			Build()
	}

	c.Settings = settings
	c.logger = cl
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}

	log := c.Logger("conf")
	for _, w := range settings.Warnings {
		log.Warn("configuration warning", logger.String("detail", w))
	}
	return nil
}

// Logger returns a module logger tagged with the run id.
func (c *Context) Logger(module string) logger.Logger {
	if c.logger == nil {
		return logger.NewSlogLogger(nil, logger.LogLevelInfo, nil).Module(module)
	}
	return c.logger.Module(module).With(logger.String("run_id", c.RunID))
}

// Close flushes and closes the log file.
func (c *Context) Close() error {
	return c.logger.Close()
}

// Stores holds open connections to both sides of the migration.
type Stores struct {
	Legacy *legacy.Store
	Target *target.Store

	legacyDB *gorm.DB
	targetDB *gorm.DB
}

// OpenStores reads the DSN file and connects to the legacy and target
// stores. With AutoMigrate set the target schema is created first.
func (c *Context) OpenStores(ctx context.Context) (*Stores, error) {
	log := c.Logger("datastore")
	db := c.Settings.Database

	eps, err := datastore.LoadEndpoints(db.DSNFile)
	if err != nil {
		return nil, err
	}

	legacyDB, err := datastore.Open(ctx, eps.Legacy, db.SlowThreshold, log)
	if err != nil {
		return nil, err
	}
	targetDB, err := datastore.Open(ctx, eps.Target, db.SlowThreshold, log)
	if err != nil {
		_ = datastore.Close(legacyDB)
		return nil, err
	}

	s := &Stores{
		Legacy:   legacy.New(legacyDB, log),
		Target:   target.New(targetDB, log),
		legacyDB: legacyDB,
		targetDB: targetDB,
	}

	if db.AutoMigrate {
		if err := s.Target.AutoMigrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	log.Info("connected to stores",
		logger.String("legacy", eps.Legacy.Sanitized()),
		logger.String("target", eps.Target.Sanitized()))
	return s, nil
}

// Close closes both connections.
func (s *Stores) Close() error {
	return errors.Join(datastore.Close(s.legacyDB), datastore.Close(s.targetDB))
}
