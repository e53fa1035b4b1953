// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Write outcome label values.
const (
	// OutcomeInserted is a record written to the target store.
	OutcomeInserted = "inserted"
	// OutcomeConflict is a record that already existed in the target store.
	OutcomeConflict = "conflict"
	// OutcomeUnknownCollection is a record skipped because its collection is unknown.
	OutcomeUnknownCollection = "unknown_collection"
	// OutcomeDryRun is a record that would have been written.
	OutcomeDryRun = "dry_run"
)

// User status label values.
const (
	UserMigrated = "migrated"
	UserSkipped  = "skipped"
	UserFailed   = "failed"
)

// Transaction phase label values.
const (
	PhaseUserCollections = "user_collections"
	PhaseRecords         = "records"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Histogram bucket layout.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart1s is the starting bucket for 1s histograms (1s to ~9 hours range).
	BucketStart1s = 1.0
	// BucketFactor2 doubles each bucket.
	BucketFactor2 = 2.0
	// BucketCount15 gives 1ms to ~16s.
	BucketCount15 = 15
)

// ShutdownTimeout bounds how long the metrics server may take to stop.
const ShutdownTimeout = 5 * time.Second
