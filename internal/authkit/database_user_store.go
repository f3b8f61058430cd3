package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseUserStore persists canonical users using GORM.
type DatabaseUserStore struct {
	db          *gorm.DB
	driverLabel string
	clock       Clock
}

type userRecord struct {
	ID          string    `gorm:"column:id;primaryKey;size:36"`
	Email       string    `gorm:"column:email;uniqueIndex;not null;size:320"`
	DisplayName string    `gorm:"column:display_name"`
	FirstName   string    `gorm:"column:first_name"`
	LastName    string    `gorm:"column:last_name"`
	Picture     string    `gorm:"column:picture"`
	Provider    string    `gorm:"column:provider;size:32;not null"`
	Plan        string    `gorm:"column:plan;size:32;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (userRecord) TableName() string {
	return "users"
}

func (record userRecord) toUser() User {
	return User{
		ID:          record.ID,
		Email:       record.Email,
		DisplayName: record.DisplayName,
		FirstName:   record.FirstName,
		LastName:    record.LastName,
		Picture:     record.Picture,
		Provider:    ProviderType(record.Provider),
		Plan:        record.Plan,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

// NewDatabaseUserStore migrates the users table and returns the store.
func NewDatabaseUserStore(ctx context.Context, database *Database, clock Clock) (*DatabaseUserStore, error) {
	if database == nil || database.DB == nil {
		return nil, fmt.Errorf("user_store.new: %w", errNilDatabase)
	}
	if migrateErr := database.DB.WithContext(ctx).AutoMigrate(&userRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("user_store.migrate.%s: %w", database.DriverLabel, migrateErr)
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &DatabaseUserStore{db: database.DB, driverLabel: database.DriverLabel, clock: clock}, nil
}

// FindByEmail returns the user registered under userEmail.
func (store *DatabaseUserStore) FindByEmail(ctx context.Context, userEmail string) (User, error) {
	return store.findOne(ctx, "email = ?", normalizeEmail(userEmail))
}

// FindByID returns the user with the application id.
func (store *DatabaseUserStore) FindByID(ctx context.Context, applicationUserID string) (User, error) {
	return store.findOne(ctx, "id = ?", applicationUserID)
}

func (store *DatabaseUserStore) findOne(ctx context.Context, condition string, value string) (User, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where(condition, value).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("user_store.find.%s: %w", store.driverLabel, err)
	}
	return record.toUser(), nil
}

// ExistsEmail reports whether userEmail already has a user.
func (store *DatabaseUserStore) ExistsEmail(ctx context.Context, userEmail string) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).Model(&userRecord{}).
		Where("email = ?", normalizeEmail(userEmail)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("user_store.exists.%s: %w", store.driverLabel, err)
	}
	return count > 0, nil
}

// Create inserts a new user. A concurrent insert for the same email yields ErrUserEmailTaken.
func (store *DatabaseUserStore) Create(ctx context.Context, profile NewUser) (User, error) {
	userEmail := normalizeEmail(profile.Email)
	if userEmail == "" {
		return User{}, ErrMalformedProfile
	}
	now := store.clock.Now().UTC()
	record := userRecord{
		ID:          uuid.NewString(),
		Email:       userEmail,
		DisplayName: profile.DisplayName,
		FirstName:   profile.FirstName,
		LastName:    profile.LastName,
		Picture:     profile.Picture,
		Provider:    string(profile.Provider),
		Plan:        DefaultPlan,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	result := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return User{}, fmt.Errorf("user_store.create.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return User{}, ErrUserEmailTaken
	}
	return record.toUser(), nil
}
