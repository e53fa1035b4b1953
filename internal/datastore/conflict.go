package datastore

import (
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/tphakala/syncmigrate/internal/errors"
	"gorm.io/gorm"
)

const (
	mysqlErrDupEntry      = 1062
	postgresUniqueViolate = "23505"
)

// IsDuplicateKey reports whether err is a primary-key or unique constraint
// violation. Classification uses the driver's typed error codes.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.IsConflict(err) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrDupEntry
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == postgresUniqueViolate
	}

	return false
}

// classifyWriteError wraps a write error as a conflict when it is a duplicate
// key violation and as a database error otherwise.
func classifyWriteError(err error, operation string, context ...any) error {
	if IsDuplicateKey(err) {
		return conflictError(err, operation, "duplicate_key", context...)
	}
	return dbError(err, operation, "", context...)
}
