package entities

import (
	"fmt"
	"time"
)

// LegacyShardCount is the number of bso{N} tables in the legacy store.
const LegacyShardCount = 20

// LegacyBSOTable returns the name of the shard table holding a user's records.
func LegacyBSOTable(shard int) string {
	return fmt.Sprintf("bso%d", shard)
}

// LegacyBSO is a row of a legacy bso{N} shard table.
// Modified is in milliseconds and TTL in seconds since the epoch.
type LegacyBSO struct {
	UserID      int64  `gorm:"column:userid;primaryKey;autoIncrement:false"`
	Collection  int    `gorm:"column:collection;primaryKey;autoIncrement:false"`
	ID          string `gorm:"column:id;primaryKey;size:64"`
	SortIndex   *int64 `gorm:"column:sortindex"`
	Modified    int64  `gorm:"column:modified;not null"`
	Payload     string `gorm:"column:payload;type:text;not null"`
	PayloadSize int    `gorm:"column:payload_size;not null;default:0"`
	TTL         int64  `gorm:"column:ttl;not null"`
}

// LegacyCollection is a legacy collection id to name mapping.
type LegacyCollection struct {
	CollectionID int    `gorm:"column:collectionid;primaryKey;autoIncrement:false"`
	Name         string `gorm:"column:name;size:32;not null"`
}

// TableName returns the table name for GORM.
func (LegacyCollection) TableName() string {
	return "collections"
}

// LegacyUserCollection is the legacy per-user collection summary.
type LegacyUserCollection struct {
	UserID       int64 `gorm:"column:userid;primaryKey;autoIncrement:false"`
	Collection   int   `gorm:"column:collection;primaryKey;autoIncrement:false"`
	LastModified int64 `gorm:"column:last_modified;not null"`
}

// TableName returns the table name for GORM.
func (LegacyUserCollection) TableName() string {
	return "user_collections"
}

// DataRecord is a legacy record joined with its collection name, as read by
// the migration. It is the unit the chunker and writer operate on.
type DataRecord struct {
	CollectionName string `gorm:"column:name"`
	CollectionID   int    `gorm:"column:collection"`
	ID             string `gorm:"column:id"`
	TTL            int64  `gorm:"column:ttl"`
	Modified       int64  `gorm:"column:modified"`
	Payload        string `gorm:"column:payload"`
	SortIndex      *int64 `gorm:"column:sortindex"`
}

// ModifiedAt converts the millisecond timestamp to time.Time.
func (r *DataRecord) ModifiedAt() time.Time {
	return time.UnixMilli(r.Modified).UTC()
}

// ExpiresAt converts the TTL in seconds to time.Time.
func (r *DataRecord) ExpiresAt() time.Time {
	return time.Unix(r.TTL, 0).UTC()
}

// CollectionRef is a distinct (legacy id, name) pair still referenced by
// legacy user data.
type CollectionRef struct {
	LegacyID int    `gorm:"column:collection"`
	Name     string `gorm:"column:name"`
}
