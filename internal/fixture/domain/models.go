// Package domain contains the fixture registry models shared by the
// inventory, usage and replacement engines.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type CycleUnit string

const (
	CycleUnitDays CycleUnit = "days"
	CycleUnitUses CycleUnit = "uses"
	CycleUnitNone CycleUnit = "none"
)

type FixtureStatus string

const (
	FixtureStatusNormal   FixtureStatus = "normal"
	FixtureStatusReturned FixtureStatus = "returned"
	FixtureStatusScrapped FixtureStatus = "scrapped"
)

type SourceType string

const (
	SourceSelfPurchased    SourceType = "self_purchased"
	SourceCustomerSupplied SourceType = "customer_supplied"
)

type SerialStatus string

const (
	SerialStatusAvailable SerialStatus = "available"
	SerialStatusInUse     SerialStatus = "in_use"
	SerialStatusReturned  SerialStatus = "returned"
	SerialStatusScrapped  SerialStatus = "scrapped"
)

// Fixture is one tracked tooling asset type. FixtureID is the business
// key printed on the asset (e.g. "L-00017"), unique per customer.
type Fixture struct {
	ID                  snowflake.ID  `gorm:"primaryKey" json:"id"`
	CustomerID          string        `gorm:"type:varchar(64);not null;uniqueIndex:ux_fixtures_customer_fixture,priority:1" json:"customer_id"`
	FixtureID           string        `gorm:"type:varchar(64);not null;uniqueIndex:ux_fixtures_customer_fixture,priority:2" json:"fixture_id"`
	Name                string        `gorm:"type:varchar(128);not null" json:"name"`
	Type                string        `gorm:"type:varchar(64)" json:"type"`
	SelfPurchasedQty    int           `gorm:"not null;default:0" json:"self_purchased_qty"`
	CustomerSuppliedQty int           `gorm:"not null;default:0" json:"customer_supplied_qty"`
	StorageLocation     string        `gorm:"type:varchar(128)" json:"storage_location"`
	CycleUnit           CycleUnit     `gorm:"type:varchar(16);not null;default:none" json:"cycle_unit"`
	ReplacementCycle    float64       `gorm:"not null;default:0" json:"replacement_cycle"`
	Status              FixtureStatus `gorm:"type:varchar(16);not null;default:normal" json:"status"`
	LastReplacementDate *time.Time    `json:"last_replacement_date"`
	CreatedAt           time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time     `gorm:"not null" json:"updated_at"`
}

func (Fixture) TableName() string { return "fixtures" }

// FixtureSerial is one physically tracked unit of a fixture.
type FixtureSerial struct {
	ID                   snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID           string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_fixture_serials_unit,priority:1" json:"customer_id"`
	FixtureID            string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_fixture_serials_unit,priority:2" json:"fixture_id"`
	SerialNumber         string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_fixture_serials_unit,priority:3" json:"serial_number"`
	SourceType           SourceType   `gorm:"type:varchar(32);not null" json:"source_type"`
	Status               SerialStatus `gorm:"type:varchar(16);not null;default:available" json:"status"`
	ReceiptDate          *time.Time   `json:"receipt_date"`
	ReceiptTransactionID snowflake.ID `gorm:"index" json:"receipt_transaction_id"`
	CreatedAt            time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time    `gorm:"not null" json:"updated_at"`
}

func (FixtureSerial) TableName() string { return "fixture_serials" }

func ValidCycleUnit(u CycleUnit) bool {
	switch u {
	case CycleUnitDays, CycleUnitUses, CycleUnitNone:
		return true
	}
	return false
}

func ValidSourceType(s SourceType) bool {
	return s == SourceSelfPurchased || s == SourceCustomerSupplied
}

func ValidFixtureStatus(s FixtureStatus) bool {
	switch s {
	case FixtureStatusNormal, FixtureStatusReturned, FixtureStatusScrapped:
		return true
	}
	return false
}
