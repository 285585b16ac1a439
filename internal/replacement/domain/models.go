// Package domain contains replacement event models. A replacement
// snapshots the accumulated usage of a fixture or serial and resets it;
// deleting one compensates by restoring the snapshot.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/fixtrack/internal/usage/domain"
)

// ReplacementEvent records one swap of a worn fixture or serial.
// Identity fields and the usage snapshot are immutable after creation;
// only the descriptive fields may change.
type ReplacementEvent struct {
	ID                snowflake.ID            `gorm:"primaryKey" json:"id"`
	CustomerID        string                  `gorm:"type:varchar(64);not null;index" json:"customer_id"`
	FixtureID         string                  `gorm:"type:varchar(64);not null;index" json:"fixture_id"`
	RecordLevel       usagedomain.RecordLevel `gorm:"type:varchar(16);not null" json:"record_level"`
	SerialNumber      string                  `gorm:"type:varchar(64)" json:"serial_number"`
	ReplacementDate   time.Time               `gorm:"not null" json:"replacement_date"`
	Reason            string                  `gorm:"type:varchar(255)" json:"reason"`
	Executor          string                  `gorm:"type:varchar(64)" json:"executor"`
	Note              string                  `gorm:"type:varchar(255)" json:"note"`
	UsageBefore       int64                   `gorm:"not null;default:0" json:"usage_before"`
	SerialUsageBefore int64                   `gorm:"not null;default:0" json:"serial_usage_before"`
	UsageAfter        int64                   `gorm:"not null;default:0" json:"usage_after"`
	CreatedAt         time.Time               `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time               `gorm:"not null" json:"updated_at"`
}

func (ReplacementEvent) TableName() string { return "replacement_events" }
