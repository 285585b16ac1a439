package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/fixtrack/internal/usage/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *usagedomain.UsageEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO usage_events
		   (id, customer_id, fixture_id, record_level, serial_number, use_count,
		    station_id, model_id, operator, abnormal_status, note, used_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.CustomerID,
		event.FixtureID,
		event.RecordLevel,
		event.SerialNumber,
		event.UseCount,
		event.StationID,
		event.ModelID,
		event.Operator,
		event.AbnormalStatus,
		event.Note,
		event.UsedAt,
		event.CreatedAt,
	).Error
}

func (r *repo) FindEventByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*usagedomain.UsageEvent, error) {
	var event usagedomain.UsageEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, fixture_id, record_level, serial_number, use_count,
		        station_id, model_id, operator, abnormal_status, note, used_at, created_at
		 FROM usage_events WHERE id = ?`,
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

func (r *repo) DeleteEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM usage_events WHERE id = ?`,
		id,
	).Error
}

// ApplyToFixtureSummary folds one event into the fixture aggregate as a
// single conflict-guarded statement, so concurrent increments serialize
// on the row's primary key instead of racing in application code.
func (r *repo) ApplyToFixtureSummary(ctx context.Context, db *gorm.DB, event *usagedomain.UsageEvent) error {
	now := time.Now().UTC()
	usedAt := event.UsedAt

	assignments := map[string]any{
		"total_uses":      gorm.Expr("total_uses + ?", event.UseCount),
		"first_used_at":   gorm.Expr("COALESCE(first_used_at, ?)", usedAt),
		"last_used_at":    usedAt,
		"last_station_id": event.StationID,
		"last_model_id":   event.ModelID,
		"last_operator":   event.Operator,
		"updated_at":      now,
	}
	summary := &usagedomain.FixtureUsageSummary{
		CustomerID:    event.CustomerID,
		FixtureID:     event.FixtureID,
		TotalUses:     event.UseCount,
		FirstUsedAt:   &usedAt,
		LastUsedAt:    &usedAt,
		LastStationID: event.StationID,
		LastModelID:   event.ModelID,
		LastOperator:  event.Operator,
		UpdatedAt:     now,
	}
	if event.RecordLevel == usagedomain.LevelSerial {
		assignments["total_serial_uses"] = gorm.Expr("total_serial_uses + ?", event.UseCount)
		summary.TotalSerialUses = event.UseCount
	}

	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "customer_id"},
			{Name: "fixture_id"},
		},
		DoUpdates: clause.Assignments(assignments),
	}).Create(summary).Error
}

func (r *repo) ApplyToSerialSummary(ctx context.Context, db *gorm.DB, event *usagedomain.UsageEvent) error {
	now := time.Now().UTC()
	usedAt := event.UsedAt

	summary := &usagedomain.SerialUsageSummary{
		CustomerID:    event.CustomerID,
		FixtureID:     event.FixtureID,
		SerialNumber:  event.SerialNumber,
		TotalUses:     event.UseCount,
		FirstUsedAt:   &usedAt,
		LastUsedAt:    &usedAt,
		LastStationID: event.StationID,
		LastModelID:   event.ModelID,
		LastOperator:  event.Operator,
		UpdatedAt:     now,
	}

	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "customer_id"},
			{Name: "fixture_id"},
			{Name: "serial_number"},
		},
		DoUpdates: clause.Assignments(map[string]any{
			"total_uses":      gorm.Expr("total_uses + ?", event.UseCount),
			"first_used_at":   gorm.Expr("COALESCE(first_used_at, ?)", usedAt),
			"last_used_at":    usedAt,
			"last_station_id": event.StationID,
			"last_model_id":   event.ModelID,
			"last_operator":   event.Operator,
			"updated_at":      now,
		}),
	}).Create(summary).Error
}

// ReverseFromFixtureSummary subtracts one deleted event, floored at 0
// so the aggregate can never go negative on legacy data.
func (r *repo) ReverseFromFixtureSummary(ctx context.Context, db *gorm.DB, event *usagedomain.UsageEvent) error {
	serialPortion := int64(0)
	if event.RecordLevel == usagedomain.LevelSerial {
		serialPortion = event.UseCount
	}
	return db.WithContext(ctx).Exec(
		`UPDATE fixture_usage_summary
		 SET total_uses = CASE WHEN total_uses > ? THEN total_uses - ? ELSE 0 END,
		     total_serial_uses = CASE WHEN total_serial_uses > ? THEN total_serial_uses - ? ELSE 0 END,
		     updated_at = ?
		 WHERE customer_id = ? AND fixture_id = ?`,
		event.UseCount,
		event.UseCount,
		serialPortion,
		serialPortion,
		time.Now().UTC(),
		event.CustomerID,
		event.FixtureID,
	).Error
}

func (r *repo) ReverseFromSerialSummary(ctx context.Context, db *gorm.DB, event *usagedomain.UsageEvent) error {
	return db.WithContext(ctx).Exec(
		`UPDATE serial_usage_summary
		 SET total_uses = CASE WHEN total_uses > ? THEN total_uses - ? ELSE 0 END,
		     updated_at = ?
		 WHERE customer_id = ? AND fixture_id = ? AND serial_number = ?`,
		event.UseCount,
		event.UseCount,
		time.Now().UTC(),
		event.CustomerID,
		event.FixtureID,
		event.SerialNumber,
	).Error
}

// LatestSummaryResetAt reads the creation time of the newest replacement
// targeting the given summary. Events recorded at or before that instant
// were folded into the replacement's snapshot and no longer contribute
// to the running counters.
func (r *repo) LatestSummaryResetAt(ctx context.Context, db *gorm.DB, customerID, fixtureID string, level usagedomain.RecordLevel, serialNumber string) (*time.Time, error) {
	var row struct {
		ResetAt *time.Time
	}
	query := `SELECT created_at AS reset_at FROM replacement_events
	 WHERE customer_id = ? AND fixture_id = ? AND record_level = ?`
	args := []any{customerID, fixtureID, level}
	if level == usagedomain.LevelSerial {
		query += ` AND serial_number = ?`
		args = append(args, serialNumber)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	err := db.WithContext(ctx).Raw(query, args...).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return row.ResetAt, nil
}

func (r *repo) GetFixtureSummary(ctx context.Context, db *gorm.DB, customerID, fixtureID string) (*usagedomain.FixtureUsageSummary, error) {
	var summary usagedomain.FixtureUsageSummary
	err := db.WithContext(ctx).Raw(
		`SELECT customer_id, fixture_id, total_uses, total_serial_uses, first_used_at,
		        last_used_at, last_station_id, last_model_id, last_operator, updated_at
		 FROM fixture_usage_summary WHERE customer_id = ? AND fixture_id = ?`,
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

func (r *repo) GetSerialSummary(ctx context.Context, db *gorm.DB, customerID, fixtureID, serialNumber string) (*usagedomain.SerialUsageSummary, error) {
	var summary usagedomain.SerialUsageSummary
	err := db.WithContext(ctx).Raw(
		`SELECT customer_id, fixture_id, serial_number, total_uses, first_used_at,
		        last_used_at, last_station_id, last_model_id, last_operator, updated_at
		 FROM serial_usage_summary WHERE customer_id = ? AND fixture_id = ? AND serial_number = ?`,
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
