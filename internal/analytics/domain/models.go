// Package domain defines the usage-event records and the aggregation
// contracts built over them. Events are emitted by the unauthenticated
// public guide surface; every read is scoped to a company.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AnonymousSession is stored when the client supplies no session id.
const AnonymousSession = "anonymous"

// ScanEvent is one end-customer touch of a live guide. The most recent
// event per item+session may later be updated in place with completion
// data; it is not append-only.
type ScanEvent struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyID snowflake.ID `gorm:"not null;index" json:"company_id"`
	ItemID    snowflake.ID `gorm:"not null;index:idx_scan_events_item_session" json:"item_id"`
	SessionID string       `gorm:"type:text;not null;default:anonymous;index:idx_scan_events_item_session" json:"session_id"`
	UserAgent string       `gorm:"type:text" json:"user_agent,omitempty"`

	HourOfDay      int               `gorm:"not null" json:"hour_of_day"`
	Completed      bool              `gorm:"not null;default:false" json:"completed"`
	CompletionStep *int              `json:"completion_step,omitempty"`
	Rating         *int              `json:"rating,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	RecordedAt time.Time `gorm:"not null;index" json:"recorded_at"`
}

func (ScanEvent) TableName() string { return "scan_events" }

// QuestionEvent is append-only.
type QuestionEvent struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyID  snowflake.ID `gorm:"not null;index" json:"company_id"`
	ItemID     snowflake.ID `gorm:"not null;index" json:"item_id"`
	SessionID  string       `gorm:"type:text;not null;default:anonymous" json:"session_id"`
	Question   string       `gorm:"type:text;not null" json:"question"`
	StepNumber *int         `json:"step_number,omitempty"`
	RecordedAt time.Time    `gorm:"not null;index" json:"recorded_at"`
}

func (QuestionEvent) TableName() string { return "question_events" }

type ScanRequest struct {
	Code      string `json:"code"`
	SessionID string `json:"session_id"`
	UserAgent string `json:"user_agent"`
}

type CompletionRequest struct {
	Code           string `json:"code"`
	SessionID      string `json:"session_id"`
	CompletionStep *int   `json:"completion_step"`
	Rating         *int   `json:"rating"`
}

type QuestionRequest struct {
	Code       string `json:"code"`
	SessionID  string `json:"session_id"`
	Question   string `json:"question"`
	StepNumber *int   `json:"step_number"`
}

// Overview is the headline summary for a window. AverageRating is nil
// when no scan in the window carries a rating.
type Overview struct {
	TotalScans     int64    `json:"total_scans"`
	CompletedScans int64    `json:"completed_scans"`
	CompletionRate float64  `json:"completion_rate"`
	AverageRating  *float64 `json:"average_rating"`
	RepeatRate     float64  `json:"repeat_rate"`
	LiveItems      int64    `json:"live_items"`
}

type SeriesPoint struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

type TimeSeries struct {
	Granularity string        `json:"granularity"`
	Points      []SeriesPoint `json:"points"`
}

type HourBucket struct {
	Label   string  `json:"label"`
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"`
}

type RatingBreakdown struct {
	Counts  []RatingCount `json:"counts"`
	Average *float64      `json:"average"`
	Total   int64         `json:"total"`
}

type RatingCount struct {
	Stars int   `json:"stars"`
	Count int64 `json:"count"`
}

type TopQuestion struct {
	Question   string       `json:"question"`
	Count      int64        `json:"count"`
	StepNumber *int         `json:"step_number,omitempty"`
	ItemID     snowflake.ID `json:"item_id"`
	ItemName   string       `json:"item_name"`
}

type Service interface {
	// RecordScan resolves code to a live item and appends a scan event.
	RecordScan(ctx context.Context, req ScanRequest) (*ScanEvent, error)
	// RecordCompletion updates the most recent scan row for the same
	// item and session. No matching row is a silent no-op.
	RecordCompletion(ctx context.Context, req CompletionRequest) error
	RecordQuestion(ctx context.Context, req QuestionRequest) (*QuestionEvent, error)

	Overview(ctx context.Context, companyID snowflake.ID, period string) (*Overview, error)
	TimeSeries(ctx context.Context, companyID snowflake.ID, period string) (*TimeSeries, error)
	TimeOfDay(ctx context.Context, companyID snowflake.ID, period string) ([]HourBucket, error)
	Ratings(ctx context.Context, companyID snowflake.ID, period string) (*RatingBreakdown, error)
	TopQuestions(ctx context.Context, companyID snowflake.ID, period string, limit int) ([]TopQuestion, error)
}

var (
	ErrInvalidQuestion = errors.New("invalid_question")
	ErrInvalidRating   = errors.New("invalid_rating")
)
