package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fixtrack/internal/clock"
	"github.com/smallbiznis/fixtrack/internal/config"
	fixturedomain "github.com/smallbiznis/fixtrack/internal/fixture/domain"
	ledgerdomain "github.com/smallbiznis/fixtrack/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/fixtrack/internal/observability/metrics"
	"github.com/smallbiznis/fixtrack/internal/serialset"
	"github.com/smallbiznis/fixtrack/pkg/db"
	"github.com/smallbiznis/fixtrack/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	Gateway     *db.Gateway
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	Repo        ledgerdomain.Repository
	FixtureRepo fixturedomain.Repository
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	gateway       *db.Gateway
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          ledgerdomain.Repository
	fixtureRepo   fixturedomain.Repository
	obsMetrics    *obsmetrics.Metrics
	useProcedures bool
}

func NewService(p ServiceParam) ledgerdomain.Service {
	return &Service{
		gateway:       p.Gateway,
		log:           p.Log.Named("ledger.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		fixtureRepo:   p.FixtureRepo,
		obsMetrics:    p.ObsMetrics,
		useProcedures: p.Cfg.UseProcedures,
	}
}

func (s *Service) CreateTransaction(ctx context.Context, req ledgerdomain.CreateTransactionRequest) (*ledgerdomain.MaterialTransaction, error) {
	defer s.observe("create_transaction", time.Now())

	if !ledgerdomain.ValidTransactionType(req.TransactionType) {
		return nil, ledgerdomain.ErrInvalidTransactionType
	}
	if !fixturedomain.ValidSourceType(req.SourceType) {
		return nil, ledgerdomain.ErrInvalidSourceType
	}
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return nil, fixturedomain.ErrInvalidCustomer
	}
	fixtureID := strings.ToUpper(strings.TrimSpace(req.FixtureID))
	if fixtureID == "" {
		return nil, fixturedomain.ErrInvalidFixtureID
	}

	serials, err := serialset.Resolve(req.Serials)
	if err != nil {
		return nil, err
	}

	exists, err := s.fixtureRepo.Exists(ctx, s.gateway.DB(), customerID, fixtureID)
	if err != nil {
		return nil, db.ClassifyErr(err)
	}
	if !exists {
		return nil, fixturedomain.ErrFixtureNotFound
	}

	now := s.clock.Now()
	transactionDate := req.TransactionDate
	if transactionDate.IsZero() {
		transactionDate = now
	}

	trx := &ledgerdomain.MaterialTransaction{
		ID:              s.genID.Generate(),
		TransactionType: req.TransactionType,
		CustomerID:      customerID,
		FixtureID:       fixtureID,
		OrderNo:         strings.TrimSpace(req.OrderNo),
		SourceType:      req.SourceType,
		Quantity:        len(serials),
		Operator:        strings.TrimSpace(req.Operator),
		TransactionDate: transactionDate,
		Note:            strings.TrimSpace(req.Note),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if s.useProcedures && req.TransactionType == ledgerdomain.TransactionReceipt {
		if err := s.createReceiptViaProcedure(ctx, trx, serials); err != nil {
			s.obsMetrics.IncOperationError("ledger", "create_transaction")
			return nil, err
		}
	} else if err := s.createTransactionTx(ctx, trx, serials); err != nil {
		s.obsMetrics.IncOperationError("ledger", "create_transaction")
		return nil, err
	}

	s.obsMetrics.IncOperation("ledger", "create_transaction")
	s.log.Info("transaction created",
		zap.String("transaction_id", trx.ID.String()),
		zap.String("type", string(trx.TransactionType)),
		zap.String("fixture_id", fixtureID),
		zap.Int("quantity", trx.Quantity),
	)
	return trx, nil
}

func (s *Service) createTransactionTx(ctx context.Context, trx *ledgerdomain.MaterialTransaction, serials []string) error {
	return s.gateway.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.InsertHeader(ctx, tx, trx); err != nil {
			return err
		}

		for _, serial := range serials {
			detail := &ledgerdomain.TransactionDetail{
				ID:            s.genID.Generate(),
				TransactionID: trx.ID,
				SerialNumber:  serial,
				CreatedAt:     trx.CreatedAt,
			}
			if err := s.repo.InsertDetail(ctx, tx, detail); err != nil {
				return err
			}
			trx.Details = append(trx.Details, *detail)

			switch trx.TransactionType {
			case ledgerdomain.TransactionReceipt:
				receiptDate := trx.TransactionDate
				row := &fixturedomain.FixtureSerial{
					ID:                   s.genID.Generate(),
					CustomerID:           trx.CustomerID,
					FixtureID:            trx.FixtureID,
					SerialNumber:         serial,
					SourceType:           trx.SourceType,
					Status:               fixturedomain.SerialStatusAvailable,
					ReceiptDate:          &receiptDate,
					ReceiptTransactionID: trx.ID,
					CreatedAt:            trx.CreatedAt,
					UpdatedAt:            trx.UpdatedAt,
				}
				if err := s.repo.InsertSerial(ctx, tx, row); err != nil {
					if db.IsDuplicateKeyErr(err) {
						return ledgerdomain.ErrDuplicateSerial
					}
					return err
				}
			case ledgerdomain.TransactionReturn:
				affected, err := s.repo.MarkSerialStatus(ctx, tx, trx.CustomerID, trx.FixtureID, serial, fixturedomain.SerialStatusReturned, trx.UpdatedAt)
				if err != nil {
					return err
				}
				if affected == 0 {
					// Legacy stock can be returned without a tracked
					// serial row. Tolerated, not fatal.
					s.log.Warn("return for untracked serial",
						zap.String("fixture_id", trx.FixtureID),
						zap.String("serial_number", serial),
					)
				}
			}
		}
		return nil
	})
}

// createReceiptViaProcedure routes the receipt through the server-side
// routine. The routine owns header, detail and serial inserts; it
// reports through session output parameters read on the same held
// connection.
func (s *Service) createReceiptViaProcedure(ctx context.Context, trx *ledgerdomain.MaterialTransaction, serials []string) error {
	return s.gateway.WithTransaction(ctx, func(tx *gorm.DB) error {
		out, err := s.gateway.CallProcedure(ctx, tx, "sp_material_receipt",
			[]any{
				trx.ID.Int64(),
				trx.CustomerID,
				trx.FixtureID,
				trx.OrderNo,
				string(trx.SourceType),
				len(serials),
				trx.Operator,
				trx.TransactionDate,
				trx.Note,
				strings.Join(serials, ","),
			},
			[]string{"transaction_id", "message"},
		)
		if err != nil {
			return err
		}
		if msg, ok := out["message"].(string); ok && msg != "" && msg != "ok" {
			if strings.Contains(msg, "duplicate") {
				return ledgerdomain.ErrDuplicateSerial
			}
			return errors.New(msg)
		}

		details, err := s.repo.ListDetails(ctx, tx, trx.ID)
		if err != nil {
			return err
		}
		trx.Details = details
		return nil
	})
}

func (s *Service) AddDetails(ctx context.Context, transactionID snowflake.ID, serials []string) (*ledgerdomain.MaterialTransaction, error) {
	defer s.observe("add_details", time.Now())

	serials = serialset.Normalize(serials)
	if len(serials) == 0 {
		return nil, serialset.ErrEmptySet
	}

	var trx *ledgerdomain.MaterialTransaction
	err := s.gateway.WithTransaction(ctx, func(tx *gorm.DB) error {
		header, err := s.repo.LockHeaderByID(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if header == nil {
			return ledgerdomain.ErrTransactionNotFound
		}
		if header.TransactionType != ledgerdomain.TransactionReceipt {
			return ledgerdomain.ErrWrongTransactionType
		}

		now := s.clock.Now()
		for _, serial := range serials {
			detail := &ledgerdomain.TransactionDetail{
				ID:            s.genID.Generate(),
				TransactionID: header.ID,
				SerialNumber:  serial,
				CreatedAt:     now,
			}
			if err := s.repo.InsertDetail(ctx, tx, detail); err != nil {
				return err
			}

			receiptDate := header.TransactionDate
			row := &fixturedomain.FixtureSerial{
				ID:                   s.genID.Generate(),
				CustomerID:           header.CustomerID,
				FixtureID:            header.FixtureID,
				SerialNumber:         serial,
				SourceType:           header.SourceType,
				Status:               fixturedomain.SerialStatusAvailable,
				ReceiptDate:          &receiptDate,
				ReceiptTransactionID: header.ID,
				CreatedAt:            now,
				UpdatedAt:            now,
			}
			if err := s.repo.InsertSerial(ctx, tx, row); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return ledgerdomain.ErrDuplicateSerial
				}
				return err
			}
		}

		header.Quantity += len(serials)
		header.UpdatedAt = now
		if err := s.repo.UpdateQuantity(ctx, tx, header.ID, header.Quantity, now); err != nil {
			return err
		}
		if err := s.checkQuantityInvariant(ctx, tx, header); err != nil {
			return err
		}

		header.Details, err = s.repo.ListDetails(ctx, tx, header.ID)
		if err != nil {
			return err
		}
		trx = header
		return nil
	})
	if err != nil {
		s.obsMetrics.IncOperationError("ledger", "add_details")
		return nil, err
	}
	s.obsMetrics.IncOperation("ledger", "add_details")
	return trx, nil
}

func (s *Service) RemoveDetail(ctx context.Context, detailID snowflake.ID) error {
	defer s.observe("remove_detail", time.Now())

	err := s.gateway.WithTransaction(ctx, func(tx *gorm.DB) error {
		detail, err := s.repo.FindDetailByID(ctx, tx, detailID)
		if err != nil {
			return err
		}
		if detail == nil {
			return ledgerdomain.ErrDetailNotFound
		}

		header, err := s.repo.LockHeaderByID(ctx, tx, detail.TransactionID)
		if err != nil {
			return err
		}
		if header == nil {
			return ledgerdomain.ErrTransactionNotFound
		}

		if err := s.repo.DeleteDetail(ctx, tx, detail.ID); err != nil {
			return err
		}
		if header.TransactionType == ledgerdomain.TransactionReceipt {
			if err := s.repo.DeleteSerialByDetail(ctx, tx, header.CustomerID, header.FixtureID, detail.SerialNumber, header.ID); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		header.Quantity--
		if header.Quantity < 0 {
			header.Quantity = 0
		}
		if err := s.repo.UpdateQuantity(ctx, tx, header.ID, header.Quantity, now); err != nil {
			return err
		}
		return s.checkQuantityInvariant(ctx, tx, header)
	})
	if err != nil {
		s.obsMetrics.IncOperationError("ledger", "remove_detail")
		return err
	}
	s.obsMetrics.IncOperation("ledger", "remove_detail")
	return nil
}

// DeleteTransaction reverses a movement as if it never happened.
// Deleting a receipt removes the serial rows it materialized. Deleting
// a return restores its serials from returned back to available; that
// restore is the chosen, tested policy for compensating a return.
func (s *Service) DeleteTransaction(ctx context.Context, transactionID snowflake.ID) error {
	defer s.observe("delete_transaction", time.Now())

	err := s.gateway.WithTransaction(ctx, func(tx *gorm.DB) error {
		header, err := s.repo.LockHeaderByID(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if header == nil {
			return ledgerdomain.ErrTransactionNotFound
		}

		now := s.clock.Now()
		switch header.TransactionType {
		case ledgerdomain.TransactionReceipt:
			if err := s.repo.DeleteSerialsByTransaction(ctx, tx, header.ID); err != nil {
				return err
			}
		case ledgerdomain.TransactionReturn:
			details, err := s.repo.ListDetails(ctx, tx, header.ID)
			if err != nil {
				return err
			}
			for _, detail := range details {
				if _, err := s.repo.MarkSerialStatus(ctx, tx, header.CustomerID, header.FixtureID, detail.SerialNumber, fixturedomain.SerialStatusAvailable, now); err != nil {
					return err
				}
			}
		}

		if err := s.repo.DeleteDetails(ctx, tx, header.ID); err != nil {
			return err
		}
		return s.repo.DeleteHeader(ctx, tx, header.ID)
	})
	if err != nil {
		s.obsMetrics.IncOperationError("ledger", "delete_transaction")
		return err
	}
	s.obsMetrics.IncOperation("ledger", "delete_transaction")
	return nil
}

func (s *Service) GetTransaction(ctx context.Context, transactionID snowflake.ID) (*ledgerdomain.MaterialTransaction, error) {
	header, err := s.repo.FindHeaderByID(ctx, s.gateway.DB(), transactionID)
	if err != nil {
		return nil, db.ClassifyErr(err)
	}
	if header == nil {
		return nil, ledgerdomain.ErrTransactionNotFound
	}
	header.Details, err = s.repo.ListDetails(ctx, s.gateway.DB(), header.ID)
	if err != nil {
		return nil, db.ClassifyErr(err)
	}
	return header, nil
}

func (s *Service) ListTransactions(ctx context.Context, req ledgerdomain.ListTransactionsRequest) (ledgerdomain.ListTransactionsResponse, error) {
	resp := ledgerdomain.ListTransactionsResponse{}

	limit := req.PageSize
	if limit <= 0 || limit > 250 {
		limit = 50
	}

	stmt := s.gateway.DB().WithContext(ctx).Model(&ledgerdomain.MaterialTransaction{})
	if req.CustomerID != "" {
		stmt = stmt.Where("customer_id = ?", req.CustomerID)
	}
	if req.FixtureID != "" {
		stmt = stmt.Where("fixture_id = ?", req.FixtureID)
	}
	if req.TransactionType != "" {
		stmt = stmt.Where("transaction_type = ?", req.TransactionType)
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return resp, err
		}
		stmt = stmt.Where("id < ?", cursor.ID)
	}

	var transactions []*ledgerdomain.MaterialTransaction
	if err := stmt.Order("id DESC").Limit(limit + 1).Find(&transactions).Error; err != nil {
		return resp, db.ClassifyErr(err)
	}

	pageInfo, transactions := pagination.BuildCursorPageInfo(transactions, limit, func(t *ledgerdomain.MaterialTransaction) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: t.ID.String()})
		return token
	})
	resp.PageInfo = *pageInfo
	resp.Transactions = transactions
	return resp, nil
}

func (s *Service) observe(op string, start time.Time) {
	s.obsMetrics.ObserveOperation("ledger", op, time.Since(start))
}

// checkQuantityInvariant verifies quantity == live detail count inside
// the same unit of work, so a violation rolls everything back.
func (s *Service) checkQuantityInvariant(ctx context.Context, tx *gorm.DB, header *ledgerdomain.MaterialTransaction) error {
	count, err := s.repo.CountDetails(ctx, tx, header.ID)
	if err != nil {
		return err
	}
	if count != header.Quantity {
		s.log.Error("quantity does not match detail count",
			zap.String("transaction_id", header.ID.String()),
			zap.Int("quantity", header.Quantity),
			zap.Int("details", count),
		)
		return ledgerdomain.ErrQuantityMismatch
	}
	return nil
}
