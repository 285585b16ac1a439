// Package domain contains the inventory transaction ledger models.
// Receipt and return movements are append-only header/detail records
// that exclusively own fixture serial state transitions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	fixturedomain "github.com/smallbiznis/fixtrack/internal/fixture/domain"
)

type TransactionType string

const (
	TransactionReceipt TransactionType = "receipt"
	TransactionReturn  TransactionType = "return"
)

// MaterialTransaction is the header row of one inventory movement.
// Quantity always equals the count of live detail rows.
type MaterialTransaction struct {
	ID              snowflake.ID             `gorm:"primaryKey" json:"id"`
	TransactionType TransactionType          `gorm:"type:varchar(16);not null;index" json:"transaction_type"`
	CustomerID      string                   `gorm:"type:varchar(64);not null;index" json:"customer_id"`
	FixtureID       string                   `gorm:"type:varchar(64);not null;index" json:"fixture_id"`
	OrderNo         string                   `gorm:"type:varchar(64)" json:"order_no"`
	SourceType      fixturedomain.SourceType `gorm:"type:varchar(32);not null" json:"source_type"`
	Quantity        int                      `gorm:"not null;default:0" json:"quantity"`
	Operator        string                   `gorm:"type:varchar(64)" json:"operator"`
	TransactionDate time.Time                `gorm:"not null" json:"transaction_date"`
	Note            string                   `gorm:"type:varchar(255)" json:"note"`
	CreatedAt       time.Time                `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time                `gorm:"not null" json:"updated_at"`

	Details []TransactionDetail `gorm:"-" json:"details,omitempty"`
}

func (MaterialTransaction) TableName() string { return "material_transactions" }

// TransactionDetail is one serial covered by a movement.
type TransactionDetail struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	TransactionID snowflake.ID `gorm:"not null;index" json:"transaction_id"`
	SerialNumber  string       `gorm:"type:varchar(64);not null" json:"serial_number"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
}

func (TransactionDetail) TableName() string { return "material_transaction_details" }

func ValidTransactionType(t TransactionType) bool {
	return t == TransactionReceipt || t == TransactionReturn
}
