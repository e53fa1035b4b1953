// Package entities defines the GORM models for both sides of the migration.
//
// # Target schema
//
//   - Collection: canonical collection id to name catalog
//   - UserCollection: one summary row per (identity, collection)
//   - BSO: one data record per (collection, identity, record id)
//
// # Legacy schema
//
//   - LegacyBSO: a row of one of the sharded bso{N} tables
//   - LegacyCollection: legacy collection id to name catalog
//   - LegacyUserCollection: legacy per-user collection summary
//
// Legacy rows are read-only inputs; the legacy models exist so that queries
// scan into named fields and so tests can build a legacy fixture.
package entities
