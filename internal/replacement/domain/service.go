package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/fixtrack/internal/usage/domain"
	"github.com/smallbiznis/fixtrack/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateReplacementRequest struct {
	CustomerID      string             `json:"customer_id"`
	FixtureID       string             `json:"fixture_id"`
	Target          usagedomain.Target `json:"-"`
	ReplacementDate time.Time          `json:"replacement_date"`
	Reason          string             `json:"reason"`
	Executor        string             `json:"executor"`
	Note            string             `json:"note"`
}

// UpdateReplacementRequest carries only the mutable descriptive fields.
type UpdateReplacementRequest struct {
	ReplacementDate *time.Time `json:"replacement_date"`
	Reason          *string    `json:"reason"`
	Executor        *string    `json:"executor"`
	Note            *string    `json:"note"`
}

type ListReplacementsRequest struct {
	pagination.Pagination
	CustomerID string    `json:"customer_id"`
	FixtureID  string    `json:"fixture_id"`
	Executor   string    `json:"executor"`
	DateFrom   time.Time `json:"date_from"`
	DateTo     time.Time `json:"date_to"`
}

type ListReplacementsResponse struct {
	pagination.PageInfo
	Replacements []*ReplacementEvent `json:"replacements"`
}

type Service interface {
	Create(context.Context, CreateReplacementRequest) (*ReplacementEvent, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateReplacementRequest) (*ReplacementEvent, error)
	Delete(ctx context.Context, id snowflake.ID) error
	Get(ctx context.Context, id snowflake.ID) (*ReplacementEvent, error)
	List(context.Context, ListReplacementsRequest) (ListReplacementsResponse, error)
}

// Repository runs replacement statements against the caller's db handle.
// The summary lock methods take exclusive row locks so the snapshot and
// reset serialize with concurrent usage recording.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *ReplacementEvent) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ReplacementEvent, error)
	UpdateDescriptive(ctx context.Context, db *gorm.DB, event *ReplacementEvent) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	LatestReplacementDate(ctx context.Context, db *gorm.DB, customerID, fixtureID string) (*time.Time, error)

	LockFixtureSummary(ctx context.Context, db *gorm.DB, customerID, fixtureID string) (*usagedomain.FixtureUsageSummary, error)
	LockSerialSummary(ctx context.Context, db *gorm.DB, customerID, fixtureID, serialNumber string) (*usagedomain.SerialUsageSummary, error)
	ResetFixtureSummary(ctx context.Context, db *gorm.DB, customerID, fixtureID string, at time.Time) error
	ResetSerialSummary(ctx context.Context, db *gorm.DB, customerID, fixtureID, serialNumber string, at time.Time) error
	RestoreFixtureSummary(ctx context.Context, db *gorm.DB, customerID, fixtureID string, amount, serialAmount int64, at time.Time) error
	RestoreSerialSummary(ctx context.Context, db *gorm.DB, customerID, fixtureID, serialNumber string, amount int64, at time.Time) error
}

var (
	ErrReplacementNotFound = errors.New("replacement_not_found")
	ErrFutureDate          = errors.New("future_replacement_date")
)
