package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	replacementdomain "github.com/smallbiznis/fixtrack/internal/replacement/domain"
	usagedomain "github.com/smallbiznis/fixtrack/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() replacementdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *replacementdomain.ReplacementEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO replacement_events
		   (id, customer_id, fixture_id, record_level, serial_number, replacement_date,
		    reason, executor, note, usage_before, serial_usage_before, usage_after, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.CustomerID,
		event.FixtureID,
		event.RecordLevel,
		event.SerialNumber,
		event.ReplacementDate,
		event.Reason,
		event.Executor,
		event.Note,
		event.UsageBefore,
		event.SerialUsageBefore,
		event.UsageAfter,
		event.CreatedAt,
		event.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*replacementdomain.ReplacementEvent, error) {
	var event replacementdomain.ReplacementEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, fixture_id, record_level, serial_number, replacement_date,
		        reason, executor, note, usage_before, serial_usage_before, usage_after, created_at, updated_at
		 FROM replacement_events WHERE id = ?`,
		id,
	).Scan(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == 0 {
		return nil, nil
	}
	return &event, nil
}

// UpdateDescriptive writes only the mutable fields. Identity columns
// and the usage snapshot never change after creation.
func (r *repo) UpdateDescriptive(ctx context.Context, db *gorm.DB, event *replacementdomain.ReplacementEvent) error {
	return db.WithContext(ctx).Exec(
		`UPDATE replacement_events
		 SET replacement_date = ?, reason = ?, executor = ?, note = ?, updated_at = ?
		 WHERE id = ?`,
		event.ReplacementDate,
		event.Reason,
		event.Executor,
		event.Note,
		event.UpdatedAt,
		event.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM replacement_events WHERE id = ?`,
		id,
	).Error
}

func (r *repo) LatestReplacementDate(ctx context.Context, db *gorm.DB, customerID, fixtureID string) (*time.Time, error) {
	var row struct {
		LatestDate *time.Time
	}
	err := db.WithContext(ctx).Raw(
		`SELECT replacement_date AS latest_date
		 FROM replacement_events WHERE customer_id = ? AND fixture_id = ?
		 ORDER BY replacement_date DESC LIMIT 1`,
		customerID,
		fixtureID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return row.LatestDate, nil
}

func (r *repo) LockFixtureSummary(ctx context.Context, db *gorm.DB, customerID, fixtureID string) (*usagedomain.FixtureUsageSummary, error) {
	var summary usagedomain.FixtureUsageSummary
	err := db.WithContext(ctx).Raw(
		`SELECT customer_id, fixture_id, total_uses, total_serial_uses, first_used_at,
		        last_used_at, last_station_id, last_model_id, last_operator, updated_at
		 FROM fixture_usage_summary WHERE customer_id = ? AND fixture_id = ? FOR UPDATE`,
		customerID,
		fixtureID,
	).Scan(&summary).Error
	if err != nil {
		return nil, err
	}
	if summary.CustomerID == "" {
		return nil, nil
	}
	return &summary, nil
}

func (r *repo) LockSerialSummary(ctx context.Context, db *gorm.DB, customerID, fixtureID, serialNumber string) (*usagedomain.SerialUsageSummary, error) {
	var summary usagedomain.SerialUsageSummary
	err := db.WithContext(ctx).Raw(
		`SELECT customer_id, fixture_id, serial_number, total_uses, first_used_at,
		        last_used_at, last_station_id, last_model_id, last_operator, updated_at
		 FROM serial_usage_summary WHERE customer_id = ? AND fixture_id = ? AND serial_number = ? FOR UPDATE`,
		customerID,
		fixtureID,
		serialNumber,
	).Scan(&summary).Error
	if err != nil {
		return nil, err
	}
	if summary.CustomerID == "" {
		return nil, nil
	}
	return &summary, nil
}

func (r *repo) ResetFixtureSummary(ctx context.Context, db *gorm.DB, customerID, fixtureID string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE fixture_usage_summary
		 SET total_uses = 0, total_serial_uses = 0, first_used_at = NULL, updated_at = ?
		 WHERE customer_id = ? AND fixture_id = ?`,
		at,
		customerID,
		fixtureID,
	).Error
}

func (r *repo) ResetSerialSummary(ctx context.Context, db *gorm.DB, customerID, fixtureID, serialNumber string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE serial_usage_summary
		 SET total_uses = 0, first_used_at = NULL, updated_at = ?
		 WHERE customer_id = ? AND fixture_id = ? AND serial_number = ?`,
		at,
		customerID,
		fixtureID,
		serialNumber,
	).Error
}

func (r *repo) RestoreFixtureSummary(ctx context.Context, db *gorm.DB, customerID, fixtureID string, amount, serialAmount int64, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE fixture_usage_summary
		 SET total_uses = total_uses + ?, total_serial_uses = total_serial_uses + ?, updated_at = ?
		 WHERE customer_id = ? AND fixture_id = ?`,
		amount,
		serialAmount,
		at,
		customerID,
		fixtureID,
	).Error
}

func (r *repo) RestoreSerialSummary(ctx context.Context, db *gorm.DB, customerID, fixtureID, serialNumber string, amount int64, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE serial_usage_summary
		 SET total_uses = total_uses + ?, updated_at = ?
		 WHERE customer_id = ? AND fixture_id = ? AND serial_number = ?`,
		amount,
		at,
		customerID,
		fixtureID,
		serialNumber,
	).Error
}
