package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fixtrack/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateFixtureRequest struct {
	CustomerID          string    `json:"customer_id"`
	FixtureID           string    `json:"fixture_id"`
	Name                string    `json:"name"`
	Type                string    `json:"type"`
	StorageLocation     string    `json:"storage_location"`
	CycleUnit           CycleUnit `json:"cycle_unit"`
	ReplacementCycle    float64   `json:"replacement_cycle"`
	SelfPurchasedQty    int       `json:"self_purchased_qty"`
	CustomerSuppliedQty int       `json:"customer_supplied_qty"`
}

type UpdateFixtureRequest struct {
	Name             *string    `json:"name"`
	Type             *string    `json:"type"`
	StorageLocation  *string    `json:"storage_location"`
	CycleUnit        *CycleUnit `json:"cycle_unit"`
	ReplacementCycle *float64   `json:"replacement_cycle"`
}

type ListFixturesRequest struct {
	pagination.Pagination
	CustomerID string        `json:"customer_id"`
	Status     FixtureStatus `json:"status"`
	Keyword    string        `json:"keyword"`
}

type ListFixturesResponse struct {
	pagination.PageInfo
	Fixtures []*Fixture `json:"fixtures"`
}

// FixtureStatistics is a read-side rollup for dashboards.
type FixtureStatistics struct {
	Total    int64 `json:"total"`
	Normal   int64 `json:"normal"`
	Returned int64 `json:"returned"`
	Scrapped int64 `json:"scrapped"`
}

type Service interface {
	Create(context.Context, CreateFixtureRequest) (*Fixture, error)
	Update(ctx context.Context, customerID, fixtureID string, req UpdateFixtureRequest) (*Fixture, error)
	SetStatus(ctx context.Context, customerID, fixtureID string, status FixtureStatus) error

	// Delete removes a fixture that has no transaction, usage or
	// replacement history. Referenced fixtures answer ErrFixtureInUse
	// and must be soft-retired through SetStatus instead.
	Delete(ctx context.Context, customerID, fixtureID string) error
	Get(ctx context.Context, customerID, fixtureID string) (*Fixture, error)
	List(context.Context, ListFixturesRequest) (ListFixturesResponse, error)
	Statistics(ctx context.Context, customerID string) (*FixtureStatistics, error)

	// ReplacementStatus evaluates the replacement-due state using the
	// fixture's current usage summary.
	ReplacementStatus(ctx context.Context, customerID, fixtureID string) (ReplacementStatus, error)
}

// Repository is the shared fixture lookup surface consumed by the
// ledger, usage and replacement engines. Methods run against the db
// handle passed by the caller so they compose into its unit of work.
type Repository interface {
	Exists(ctx context.Context, db *gorm.DB, customerID, fixtureID string) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, customerID, fixtureID string) (*Fixture, error)
	FindSerial(ctx context.Context, db *gorm.DB, customerID, fixtureID, serialNumber string) (*FixtureSerial, error)
	SetLastReplacementDate(ctx context.Context, db *gorm.DB, fixturePK snowflake.ID, date *time.Time) error

	// RaiseLastReplacementDate advances last_replacement_date only when
	// the given date is newer, so concurrent out-of-order writes cannot
	// move it backwards.
	RaiseLastReplacementDate(ctx context.Context, db *gorm.DB, fixturePK snowflake.ID, date time.Time) error
}

var (
	ErrFixtureNotFound   = errors.New("fixture_not_found")
	ErrDuplicateFixture  = errors.New("duplicate_fixture")
	ErrFixtureInUse      = errors.New("fixture_in_use")
	ErrInvalidCustomer   = errors.New("invalid_customer")
	ErrInvalidFixtureID  = errors.New("invalid_fixture_id")
	ErrInvalidCycleUnit  = errors.New("invalid_cycle_unit")
	ErrInvalidCycleValue = errors.New("invalid_cycle_value")
	ErrInvalidStatus     = errors.New("invalid_status")
)
