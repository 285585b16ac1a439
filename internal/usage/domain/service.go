package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fixtrack/pkg/db/pagination"
	"gorm.io/gorm"
)

type RecordUsageRequest struct {
	CustomerID     string    `json:"customer_id"`
	FixtureID      string    `json:"fixture_id"`
	Target         Target    `json:"-"`
	UseCount       int64     `json:"use_count"`
	StationID      string    `json:"station_id"`
	ModelID        string    `json:"model_id"`
	Operator       string    `json:"operator"`
	AbnormalStatus string    `json:"abnormal_status"`
	Note           string    `json:"note"`
	UsedAt         time.Time `json:"used_at"`
}

type ListUsageRequest struct {
	pagination.Pagination
	CustomerID     string      `json:"customer_id"`
	FixtureID      string      `json:"fixture_id"`
	SerialNumber   string      `json:"serial_number"`
	RecordLevel    RecordLevel `json:"record_level"`
	StationID      string      `json:"station_id"`
	Operator       string      `json:"operator"`
	AbnormalOnly   bool        `json:"abnormal_only"`
	UsedAtFrom     time.Time   `json:"used_at_from"`
	UsedAtTo       time.Time   `json:"used_at_to"`
}

type ListUsageResponse struct {
	pagination.PageInfo
	Events []*UsageEvent `json:"events"`
}

// UsageStatistics is a read-side rollup over the event log.
type UsageStatistics struct {
	TotalEvents   int64 `json:"total_events"`
	TotalUses     int64 `json:"total_uses"`
	AbnormalCount int64 `json:"abnormal_count"`
	TodayEvents   int64 `json:"today_events"`
}

type Service interface {
	Record(context.Context, RecordUsageRequest) (*UsageEvent, error)
	RecordBatch(ctx context.Context, req RecordUsageRequest, recordCount int) ([]*UsageEvent, error)
	Delete(ctx context.Context, eventID snowflake.ID) error
	Get(ctx context.Context, eventID snowflake.ID) (*UsageEvent, error)
	List(context.Context, ListUsageRequest) (ListUsageResponse, error)
	FixtureSummary(ctx context.Context, customerID, fixtureID string) (*FixtureUsageSummary, error)
	SerialSummary(ctx context.Context, customerID, fixtureID, serialNumber string) (*SerialUsageSummary, error)
	Statistics(ctx context.Context, customerID string) (*UsageStatistics, error)
}

// Repository runs usage statements against the caller's db handle.
type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *UsageEvent) error
	FindEventByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*UsageEvent, error)
	DeleteEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	ApplyToFixtureSummary(ctx context.Context, db *gorm.DB, event *UsageEvent) error
	ApplyToSerialSummary(ctx context.Context, db *gorm.DB, event *UsageEvent) error
	ReverseFromFixtureSummary(ctx context.Context, db *gorm.DB, event *UsageEvent) error
	ReverseFromSerialSummary(ctx context.Context, db *gorm.DB, event *UsageEvent) error

	// LatestSummaryResetAt returns when the summary at the given level
	// (and serial, for serial level) was last reset by a replacement,
	// or nil if it never was.
	LatestSummaryResetAt(ctx context.Context, db *gorm.DB, customerID, fixtureID string, level RecordLevel, serialNumber string) (*time.Time, error)

	GetFixtureSummary(ctx context.Context, db *gorm.DB, customerID, fixtureID string) (*FixtureUsageSummary, error)
	GetSerialSummary(ctx context.Context, db *gorm.DB, customerID, fixtureID, serialNumber string) (*SerialUsageSummary, error)
}

const (
	MinBatchRecordCount = 1
	MaxBatchRecordCount = 1000
)

var (
	ErrMissingSerialNumber = errors.New("missing_serial_number")
	ErrInvalidRecordLevel  = errors.New("invalid_record_level")
	ErrInvalidUseCount     = errors.New("invalid_use_count")
	ErrInvalidRecordCount  = errors.New("invalid_record_count")
	ErrEventNotFound       = errors.New("usage_event_not_found")
)
