package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	fixturedomain "github.com/smallbiznis/fixtrack/internal/fixture/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() fixturedomain.Repository {
	return &repo{}
}

func (r *repo) Exists(ctx context.Context, db *gorm.DB, customerID, fixtureID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM fixtures WHERE customer_id = ? AND fixture_id = ?`,
		customerID,
		fixtureID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, customerID, fixtureID string) (*fixturedomain.Fixture, error) {
	var fixture fixturedomain.Fixture
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, fixture_id, name, type, self_purchased_qty, customer_supplied_qty,
		        storage_location, cycle_unit, replacement_cycle, status, last_replacement_date,
		        created_at, updated_at
		 FROM fixtures WHERE customer_id = ? AND fixture_id = ?`,
		customerID,
		fixtureID,
	).Scan(&fixture).Error
	if err != nil {
		return nil, err
	}
	if fixture.ID == 0 {
		return nil, nil
	}
	return &fixture, nil
}

func (r *repo) FindSerial(ctx context.Context, db *gorm.DB, customerID, fixtureID, serialNumber string) (*fixturedomain.FixtureSerial, error) {
	var serial fixturedomain.FixtureSerial
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, fixture_id, serial_number, source_type, status,
		        receipt_date, receipt_transaction_id, created_at, updated_at
		 FROM fixture_serials WHERE customer_id = ? AND fixture_id = ? AND serial_number = ?`,
		customerID,
		fixtureID,
		serialNumber,
	).Scan(&serial).Error
	if err != nil {
		return nil, err
	}
	if serial.ID == 0 {
		return nil, nil
	}
	return &serial, nil
}

func (r *repo) SetLastReplacementDate(ctx context.Context, db *gorm.DB, fixturePK snowflake.ID, date *time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE fixtures SET last_replacement_date = ?, updated_at = ? WHERE id = ?`,
		date,
		time.Now().UTC(),
		fixturePK,
	).Error
}

func (r *repo) RaiseLastReplacementDate(ctx context.Context, db *gorm.DB, fixturePK snowflake.ID, date time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE fixtures SET last_replacement_date = ?, updated_at = ?
		 WHERE id = ? AND (last_replacement_date IS NULL OR last_replacement_date < ?)`,
		date,
		time.Now().UTC(),
		fixturePK,
		date,
	).Error
}
