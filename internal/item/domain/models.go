// Package domain contains the SKU item model and its lifecycle.
//
// An item moves processing → live when every derivation stage succeeds,
// or processing → error when any stage fails. Both outcomes are
// terminal; re-ingestion is a new submission. Derived fields are
// all-or-nothing: populated exactly when the item is live.
package domain

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusLive       Status = "live"
	StatusError      Status = "error"
)

type ArtifactType string

const (
	ArtifactPDF   ArtifactType = "pdf"
	ArtifactImage ArtifactType = "image"
)

type Item struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyID   snowflake.ID `gorm:"not null;uniqueIndex:idx_items_company_code" json:"company_id"`
	Code        string       `gorm:"type:text;not null;uniqueIndex:idx_items_company_code" json:"code"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	Category    string       `gorm:"type:text" json:"category,omitempty"`
	Status      Status       `gorm:"type:text;not null;default:processing;index" json:"status"`
	OwnerUserID snowflake.ID `gorm:"not null" json:"-"`

	ArtifactRef  string       `gorm:"type:text;not null" json:"-"`
	ArtifactType ArtifactType `gorm:"type:text;not null" json:"-"`

	// Derived fields, set together on commit and never partially.
	VideoRef         *string `gorm:"type:text" json:"video_ref,omitempty"`
	VideoDurationSec *int    `json:"video_duration_sec,omitempty"`
	StepCount        *int    `json:"step_count,omitempty"`
	QRImageRef       *string `gorm:"type:text" json:"qr_image_ref,omitempty"`
	TargetURL        *string `gorm:"type:text" json:"target_url,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Item) TableName() string { return "items" }

// Derived reports whether every derived field is populated.
func (i *Item) Derived() bool {
	return i.VideoRef != nil && i.VideoDurationSec != nil && i.StepCount != nil &&
		i.QRImageRef != nil && i.TargetURL != nil
}

type CreateRequest struct {
	Code         string
	Name         string
	Category     string
	ArtifactType string
	Artifact     io.Reader
	ArtifactSize int64
}

// StatusResponse is the polling projection: derived fields appear only
// once the item is live.
type StatusResponse struct {
	ID               snowflake.ID `json:"id"`
	Code             string       `json:"code"`
	Status           Status       `json:"status"`
	VideoRef         *string      `json:"video_ref,omitempty"`
	VideoDurationSec *int         `json:"video_duration_sec,omitempty"`
	StepCount        *int         `json:"step_count,omitempty"`
	QRImageRef       *string      `json:"qr_image_ref,omitempty"`
	TargetURL        *string      `json:"target_url,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Item, error)
	GetStatus(ctx context.Context, companyID, itemID snowflake.ID) (*StatusResponse, error)
	Get(ctx context.Context, companyID, itemID snowflake.ID) (*Item, error)
	List(ctx context.Context, companyID snowflake.ID) ([]*Item, error)
	// ResolveByCode serves the public guide surface: only live items
	// resolve, anything else is not found.
	ResolveByCode(ctx context.Context, code string) (*Item, error)
	Delete(ctx context.Context, companyID, itemID snowflake.ID) error
}

// Enqueuer hands an accepted item to the asynchronous ingestion
// pipeline. The submitting request never waits on the run.
type Enqueuer interface {
	Enqueue(itemID snowflake.ID)
}

var (
	ErrNotFound        = errors.New("item_not_found")
	ErrCodeTaken       = errors.New("item_code_taken")
	ErrInvalidCode     = errors.New("invalid_code")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidArtifact = errors.New("invalid_artifact")
	ErrArtifactTooBig  = errors.New("artifact_too_big")
	ErrInvalidCompany  = errors.New("invalid_company")
)
