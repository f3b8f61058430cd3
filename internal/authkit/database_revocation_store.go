package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errNilDatabase = errors.New("database.nil_handle")

// DatabaseRevocationStore persists revocation records using GORM.
type DatabaseRevocationStore struct {
	db          *gorm.DB
	driverLabel string
}

type revokedTokenRecord struct {
	Fingerprint string    `gorm:"column:token_fingerprint;primaryKey;size:64"`
	ExpiresAt   time.Time `gorm:"column:expires_at;index;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (revokedTokenRecord) TableName() string {
	return "revoked_tokens"
}

// NewDatabaseRevocationStore migrates the revoked_tokens table and returns the store.
func NewDatabaseRevocationStore(ctx context.Context, database *Database) (*DatabaseRevocationStore, error) {
	if database == nil || database.DB == nil {
		return nil, fmt.Errorf("revocation_store.new: %w", errNilDatabase)
	}
	if migrateErr := database.DB.WithContext(ctx).AutoMigrate(&revokedTokenRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("revocation_store.migrate.%s: %w", database.DriverLabel, migrateErr)
	}
	return &DatabaseRevocationStore{
		db:          database.DB,
		driverLabel: database.DriverLabel,
	}, nil
}

// Driver exposes the selected database driver label.
func (store *DatabaseRevocationStore) Driver() string {
	return store.driverLabel
}

// Insert writes the record; an existing fingerprint is left untouched.
func (store *DatabaseRevocationStore) Insert(ctx context.Context, record RevocationRecord) error {
	if strings.TrimSpace(record.Fingerprint) == "" {
		return fmt.Errorf("revocation_store.insert.%s: %w", store.driverLabel, ErrEmptyToken)
	}
	row := revokedTokenRecord{
		Fingerprint: record.Fingerprint,
		ExpiresAt:   record.ExpiresAt.UTC(),
		CreatedAt:   record.CreatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "token_fingerprint"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("revocation_store.insert.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Exists reports whether a record exists for the fingerprint.
func (store *DatabaseRevocationStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).Model(&revokedTokenRecord{}).
		Where("token_fingerprint = ?", fingerprint).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("revocation_store.exists.%s: %w", store.driverLabel, err)
	}
	return count > 0, nil
}

// Prune deletes records that expired before now.
func (store *DatabaseRevocationStore) Prune(ctx context.Context, now time.Time) (int64, error) {
	result := store.db.WithContext(ctx).
		Where("expires_at < ?", now.UTC()).
		Delete(&revokedTokenRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("revocation_store.prune.%s: %w", store.driverLabel, result.Error)
	}
	return result.RowsAffected, nil
}
