// Package domain holds the company boundary: plan, owner and
// notification preference lookups used by the ingestion pipeline and
// quota guard. Account management itself lives outside this service.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Company struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	Plan        string       `gorm:"type:text;not null;default:starter" json:"plan"`
	APIKey      string       `gorm:"type:text;not null;uniqueIndex" json:"-"`
	OwnerUserID snowflake.ID `gorm:"not null" json:"owner_user_id"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Company) TableName() string { return "companies" }

type User struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyID snowflake.ID `gorm:"not null;index" json:"company_id"`
	Email     string       `gorm:"type:text;not null" json:"email"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (User) TableName() string { return "users" }

// NotificationPreference is created with defaults alongside the user.
// A missing row reads the same as the defaults.
type NotificationPreference struct {
	UserID       snowflake.ID `gorm:"primaryKey" json:"user_id"`
	ItemReady    bool         `gorm:"not null;default:true" json:"item_ready"`
	WeeklyDigest bool         `gorm:"not null;default:false" json:"weekly_digest"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (NotificationPreference) TableName() string { return "notification_preferences" }

type Service interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*Company, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Company, error)
	Owner(ctx context.Context, companyID snowflake.ID) (*User, error)
	// ItemReadyOptIn reports whether the user wants ready
	// notifications; absent preference rows default to true.
	ItemReadyOptIn(ctx context.Context, userID snowflake.ID) (bool, error)
}

var (
	ErrNotFound      = errors.New("company_not_found")
	ErrOwnerNotFound = errors.New("company_owner_not_found")
	ErrInvalidAPIKey = errors.New("invalid_api_key")
)
