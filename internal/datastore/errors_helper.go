// Package datastore provides connection handling and error helpers shared by
// the legacy and target stores.
package datastore

import (
	"github.com/tphakala/syncmigrate/internal/errors"
)

// dbError creates a properly categorized database error with context
func dbError(err error, operation, priority string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	if priority != "" {
		builder = builder.Priority(priority)
	}

	addContextPairs(builder, context)
	return builder.Build()
}

// conflictError creates a conflict error for constraint violations
func conflictError(err error, operation, conflictType string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryConflict).
		Priority(errors.PriorityLow).
		Context("operation", operation).
		Context("conflict_type", conflictType)

	addContextPairs(builder, context)
	return builder.Build()
}

func addContextPairs(builder *errors.ErrorBuilder, context []any) {
	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder.Context(key, context[i+1])
		}
	}
}

// DBError is the exported form of dbError for the store packages.
func DBError(err error, operation string, context ...any) error {
	return dbError(err, operation, "", context...)
}

// WriteError classifies a write failure as a conflict or a database error.
func WriteError(err error, operation string, context ...any) error {
	return classifyWriteError(err, operation, context...)
}
