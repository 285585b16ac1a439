package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	fixturedomain "github.com/smallbiznis/fixtrack/internal/fixture/domain"
	"github.com/smallbiznis/fixtrack/internal/serialset"
	"github.com/smallbiznis/fixtrack/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateTransactionRequest struct {
	CustomerID      string                   `json:"customer_id"`
	FixtureID       string                   `json:"fixture_id"`
	TransactionType TransactionType          `json:"transaction_type"`
	SourceType      fixturedomain.SourceType `json:"source_type"`
	Serials         serialset.Input          `json:"serials"`
	OrderNo         string                   `json:"order_no"`
	Operator        string                   `json:"operator"`
	TransactionDate time.Time                `json:"transaction_date"`
	Note            string                   `json:"note"`
}

type ListTransactionsRequest struct {
	pagination.Pagination
	CustomerID      string          `json:"customer_id"`
	FixtureID       string          `json:"fixture_id"`
	TransactionType TransactionType `json:"transaction_type"`
}

type ListTransactionsResponse struct {
	pagination.PageInfo
	Transactions []*MaterialTransaction `json:"transactions"`
}

type Service interface {
	CreateTransaction(context.Context, CreateTransactionRequest) (*MaterialTransaction, error)
	AddDetails(ctx context.Context, transactionID snowflake.ID, serials []string) (*MaterialTransaction, error)
	RemoveDetail(ctx context.Context, detailID snowflake.ID) error
	DeleteTransaction(ctx context.Context, transactionID snowflake.ID) error
	GetTransaction(ctx context.Context, transactionID snowflake.ID) (*MaterialTransaction, error)
	ListTransactions(context.Context, ListTransactionsRequest) (ListTransactionsResponse, error)
}

// Repository runs ledger statements against the db handle passed by the
// caller so they compose into one unit of work.
type Repository interface {
	InsertHeader(ctx context.Context, db *gorm.DB, trx *MaterialTransaction) error
	FindHeaderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*MaterialTransaction, error)
	LockHeaderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*MaterialTransaction, error)
	UpdateQuantity(ctx context.Context, db *gorm.DB, id snowflake.ID, quantity int, updatedAt time.Time) error
	DeleteHeader(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	InsertDetail(ctx context.Context, db *gorm.DB, detail *TransactionDetail) error
	FindDetailByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*TransactionDetail, error)
	ListDetails(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]TransactionDetail, error)
	CountDetails(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (int, error)
	DeleteDetail(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	DeleteDetails(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) error

	InsertSerial(ctx context.Context, db *gorm.DB, serial *fixturedomain.FixtureSerial) error
	MarkSerialStatus(ctx context.Context, db *gorm.DB, customerID, fixtureID, serialNumber string, status fixturedomain.SerialStatus, updatedAt time.Time) (int64, error)
	DeleteSerialByDetail(ctx context.Context, db *gorm.DB, customerID, fixtureID, serialNumber string, transactionID snowflake.ID) error
	DeleteSerialsByTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) error
}

var (
	ErrTransactionNotFound    = errors.New("transaction_not_found")
	ErrDetailNotFound         = errors.New("detail_not_found")
	ErrInvalidTransactionType = errors.New("invalid_transaction_type")
	ErrWrongTransactionType   = errors.New("wrong_transaction_type")
	ErrInvalidSourceType      = errors.New("invalid_source_type")
	ErrDuplicateSerial        = errors.New("duplicate_serial")
	ErrQuantityMismatch       = errors.New("quantity_detail_mismatch")
)
