// Package domain contains usage event and summary models. Events are
// append-only; the two summary tables are denormalized aggregates kept
// consistent with them inside every recording unit of work.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type RecordLevel string

const (
	LevelFixture RecordLevel = "fixture"
	LevelSerial  RecordLevel = "serial"
)

// UsageEvent is one recorded use of a fixture or one of its serials.
// Immutable once created except for deletion, which reverses its
// summary effects.
type UsageEvent struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID     string       `gorm:"type:varchar(64);not null;index" json:"customer_id"`
	FixtureID      string       `gorm:"type:varchar(64);not null;index" json:"fixture_id"`
	RecordLevel    RecordLevel  `gorm:"type:varchar(16);not null" json:"record_level"`
	SerialNumber   string       `gorm:"type:varchar(64)" json:"serial_number"`
	UseCount       int64        `gorm:"not null;default:1" json:"use_count"`
	StationID      string       `gorm:"type:varchar(64)" json:"station_id"`
	ModelID        string       `gorm:"type:varchar(64)" json:"model_id"`
	Operator       string       `gorm:"type:varchar(64)" json:"operator"`
	AbnormalStatus string       `gorm:"type:varchar(64)" json:"abnormal_status"`
	Note           string       `gorm:"type:varchar(255)" json:"note"`
	UsedAt         time.Time    `gorm:"not null;index" json:"used_at"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
}

func (UsageEvent) TableName() string { return "usage_events" }

// FixtureUsageSummary aggregates all usage of one fixture since its
// last replacement reset. TotalUses covers both record levels;
// TotalSerialUses is the serial-level subtotal.
type FixtureUsageSummary struct {
	CustomerID      string     `gorm:"primaryKey;type:varchar(64)" json:"customer_id"`
	FixtureID       string     `gorm:"primaryKey;type:varchar(64)" json:"fixture_id"`
	TotalUses       int64      `gorm:"not null;default:0" json:"total_uses"`
	TotalSerialUses int64      `gorm:"not null;default:0" json:"total_serial_uses"`
	FirstUsedAt     *time.Time `json:"first_used_at"`
	LastUsedAt      *time.Time `json:"last_used_at"`
	LastStationID   string     `gorm:"type:varchar(64)" json:"last_station_id"`
	LastModelID     string     `gorm:"type:varchar(64)" json:"last_model_id"`
	LastOperator    string     `gorm:"type:varchar(64)" json:"last_operator"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updated_at"`
}

func (FixtureUsageSummary) TableName() string { return "fixture_usage_summary" }

// SerialUsageSummary is the same aggregate scoped to one serial.
type SerialUsageSummary struct {
	CustomerID    string     `gorm:"primaryKey;type:varchar(64)" json:"customer_id"`
	FixtureID     string     `gorm:"primaryKey;type:varchar(64)" json:"fixture_id"`
	SerialNumber  string     `gorm:"primaryKey;type:varchar(64)" json:"serial_number"`
	TotalUses     int64      `gorm:"not null;default:0" json:"total_uses"`
	FirstUsedAt   *time.Time `json:"first_used_at"`
	LastUsedAt    *time.Time `json:"last_used_at"`
	LastStationID string     `gorm:"type:varchar(64)" json:"last_station_id"`
	LastModelID   string     `gorm:"type:varchar(64)" json:"last_model_id"`
	LastOperator  string     `gorm:"type:varchar(64)" json:"last_operator"`
	UpdatedAt     time.Time  `gorm:"not null" json:"updated_at"`
}

func (SerialUsageSummary) TableName() string { return "serial_usage_summary" }
