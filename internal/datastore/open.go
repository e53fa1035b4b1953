package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/syncmigrate/internal/errors"
	"github.com/tphakala/syncmigrate/internal/logger"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DefaultSlowQueryThreshold is the duration after which a statement is logged as slow.
const DefaultSlowQueryThreshold = 2 * time.Second

// Open opens a gorm connection for the endpoint. The pool is limited to a
// single connection: the migration is strictly sequential and sqlite
// in-memory databases are per connection. A zero slowThreshold selects
// DefaultSlowQueryThreshold.
func Open(ctx context.Context, ep Endpoint, slowThreshold time.Duration, log logger.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(ep)
	if err != nil {
		return nil, err
	}
	if slowThreshold <= 0 {
		slowThreshold = DefaultSlowQueryThreshold
	}

	gormLogger := logger.NewGormLoggerAdapter(log, slowThreshold).
		WithQuietErrors(IsDuplicateKey)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		TranslateError:         true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, dbError(err, "open", errors.PriorityHigh,
			"role", string(ep.Role), "endpoint", ep.Sanitized())
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "get_sql_db", errors.PriorityHigh, "role", string(ep.Role))
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, dbError(err, "ping", errors.PriorityHigh,
			"role", string(ep.Role), "endpoint", ep.Sanitized())
	}

	return db, nil
}

func dialectorFor(ep Endpoint) (gorm.Dialector, error) {
	switch ep.Role {
	case RoleLegacy:
		dsn, err := ep.MySQLDSN()
		if err != nil {
			return nil, configErrorf("legacy endpoint: %v", err)
		}
		return mysql.Open(dsn), nil
	case RoleTarget:
		switch ep.Scheme {
		case "postgres", "postgresql":
			return postgres.Open(ep.URL.String()), nil
		case "sqlite":
			path := ep.SQLitePath()
			if path == "" {
				return nil, configErrorf("sqlite endpoint has no path")
			}
			return sqlite.Open(path), nil
		}
	}
	return nil, configErrorf("no driver for %s endpoint with scheme %q", ep.Role, ep.Scheme)
}

// Close closes the underlying sql.DB of a gorm connection.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}
