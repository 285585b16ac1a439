package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	fixturedomain "github.com/smallbiznis/fixtrack/internal/fixture/domain"
	ledgerdomain "github.com/smallbiznis/fixtrack/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) InsertHeader(ctx context.Context, db *gorm.DB, trx *ledgerdomain.MaterialTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO material_transactions
		   (id, transaction_type, customer_id, fixture_id, order_no, source_type, quantity,
		    operator, transaction_date, note, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trx.ID,
		trx.TransactionType,
		trx.CustomerID,
		trx.FixtureID,
		trx.OrderNo,
		trx.SourceType,
		trx.Quantity,
		trx.Operator,
		trx.TransactionDate,
		trx.Note,
		trx.CreatedAt,
		trx.UpdatedAt,
	).Error
}

func (r *repo) FindHeaderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ledgerdomain.MaterialTransaction, error) {
	return r.findHeader(ctx, db, id, false)
}

// LockHeaderByID takes an exclusive row lock so quantity maintenance
// serializes with concurrent detail mutations.
func (r *repo) LockHeaderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ledgerdomain.MaterialTransaction, error) {
	return r.findHeader(ctx, db, id, true)
}

func (r *repo) findHeader(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*ledgerdomain.MaterialTransaction, error) {
	query := `SELECT id, transaction_type, customer_id, fixture_id, order_no, source_type, quantity,
	                 operator, transaction_date, note, created_at, updated_at
	          FROM material_transactions WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var trx ledgerdomain.MaterialTransaction
	err := db.WithContext(ctx).Raw(query, id).Scan(&trx).Error
	if err != nil {
		return nil, err
	}
	if trx.ID == 0 {
		return nil, nil
	}
	return &trx, nil
}

func (r *repo) UpdateQuantity(ctx context.Context, db *gorm.DB, id snowflake.ID, quantity int, updatedAt time.Time) error {
	if quantity < 0 {
		quantity = 0
	}
	return db.WithContext(ctx).Exec(
		`UPDATE material_transactions SET quantity = ?, updated_at = ? WHERE id = ?`,
		quantity,
		updatedAt,
		id,
	).Error
}

func (r *repo) DeleteHeader(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM material_transactions WHERE id = ?`,
		id,
	).Error
}

func (r *repo) InsertDetail(ctx context.Context, db *gorm.DB, detail *ledgerdomain.TransactionDetail) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO material_transaction_details (id, transaction_id, serial_number, created_at)
		 VALUES (?, ?, ?, ?)`,
		detail.ID,
		detail.TransactionID,
		detail.SerialNumber,
		detail.CreatedAt,
	).Error
}

func (r *repo) FindDetailByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ledgerdomain.TransactionDetail, error) {
	var detail ledgerdomain.TransactionDetail
	err := db.WithContext(ctx).Raw(
		`SELECT id, transaction_id, serial_number, created_at
		 FROM material_transaction_details WHERE id = ?`,
		id,
	).Scan(&detail).Error
	if err != nil {
		return nil, err
	}
	if detail.ID == 0 {
		return nil, nil
	}
	return &detail, nil
}

func (r *repo) ListDetails(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]ledgerdomain.TransactionDetail, error) {
	var details []ledgerdomain.TransactionDetail
	err := db.WithContext(ctx).Raw(
		`SELECT id, transaction_id, serial_number, created_at
		 FROM material_transaction_details WHERE transaction_id = ? ORDER BY id ASC`,
		transactionID,
	).Scan(&details).Error
	if err != nil {
		return nil, err
	}
	return details, nil
}

func (r *repo) CountDetails(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (int, error) {
	var count int
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM material_transaction_details WHERE transaction_id = ?`,
		transactionID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) DeleteDetail(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM material_transaction_details WHERE id = ?`,
		id,
	).Error
}

func (r *repo) DeleteDetails(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM material_transaction_details WHERE transaction_id = ?`,
		transactionID,
	).Error
}

func (r *repo) InsertSerial(ctx context.Context, db *gorm.DB, serial *fixturedomain.FixtureSerial) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO fixture_serials
		   (id, customer_id, fixture_id, serial_number, source_type, status,
		    receipt_date, receipt_transaction_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		serial.ID,
		serial.CustomerID,
		serial.FixtureID,
		serial.SerialNumber,
		serial.SourceType,
		serial.Status,
		serial.ReceiptDate,
		serial.ReceiptTransactionID,
		serial.CreatedAt,
		serial.UpdatedAt,
	).Error
}

func (r *repo) MarkSerialStatus(ctx context.Context, db *gorm.DB, customerID, fixtureID, serialNumber string, status fixturedomain.SerialStatus, updatedAt time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE fixture_serials SET status = ?, updated_at = ?
		 WHERE customer_id = ? AND fixture_id = ? AND serial_number = ?`,
		status,
		updatedAt,
		customerID,
		fixtureID,
		serialNumber,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) DeleteSerialByDetail(ctx context.Context, db *gorm.DB, customerID, fixtureID, serialNumber string, transactionID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM fixture_serials
		 WHERE customer_id = ? AND fixture_id = ? AND serial_number = ? AND receipt_transaction_id = ?`,
		customerID,
		fixtureID,
		serialNumber,
		transactionID,
	).Error
}

func (r *repo) DeleteSerialsByTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM fixture_serials WHERE receipt_transaction_id = ?`,
		transactionID,
	).Error
}
