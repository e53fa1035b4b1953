package entities

import "time"

// Collection is a canonical collection catalog entry in the target store.
type Collection struct {
	CollectionID int    `gorm:"column:collection_id;primaryKey;autoIncrement:false"`
	Name         string `gorm:"column:name;size:32;not null;uniqueIndex:idx_collections_name"`
}

// TableName returns the table name for GORM.
func (Collection) TableName() string {
	return "collections"
}

// UserCollection is the per-user, per-collection summary row.
// Modified always holds the newest record timestamp seen for the pair.
type UserCollection struct {
	FxaKID       string    `gorm:"column:fxa_kid;primaryKey;size:64"`
	FxaUID       string    `gorm:"column:fxa_uid;primaryKey;size:64"`
	CollectionID int       `gorm:"column:collection_id;primaryKey;autoIncrement:false"`
	Modified     time.Time `gorm:"column:modified;not null"`
}

// TableName returns the table name for GORM.
func (UserCollection) TableName() string {
	return "user_collections"
}

// BSO is a single migrated data record.
type BSO struct {
	CollectionID int       `gorm:"column:collection_id;primaryKey;autoIncrement:false"`
	FxaKID       string    `gorm:"column:fxa_kid;primaryKey;size:64"`
	FxaUID       string    `gorm:"column:fxa_uid;primaryKey;size:64"`
	BsoID        string    `gorm:"column:bso_id;primaryKey;size:64"`
	Expiry       time.Time `gorm:"column:expiry;not null"`
	Modified     time.Time `gorm:"column:modified;not null"`
	Payload      string    `gorm:"column:payload;type:text;not null"`
	SortIndex    *int64    `gorm:"column:sortindex"`
}

// TableName returns the table name for GORM.
func (BSO) TableName() string {
	return "bsos"
}

// TargetModels lists the target schema models in creation order.
func TargetModels() []any {
	return []any{&Collection{}, &UserCollection{}, &BSO{}}
}
