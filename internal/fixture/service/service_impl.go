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
	obsmetrics "github.com/smallbiznis/fixtrack/internal/observability/metrics"
	"github.com/smallbiznis/fixtrack/pkg/db"
	"github.com/smallbiznis/fixtrack/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       fixturedomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	policy     fixturedomain.StatusPolicy
	repo       fixturedomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) fixturedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("fixture.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		policy:     fixturedomain.StatusPolicy{DueSoonRatio: p.Cfg.DueSoonRatio},
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req fixturedomain.CreateFixtureRequest) (*fixturedomain.Fixture, error) {
	defer s.observe("create", time.Now())

	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return nil, fixturedomain.ErrInvalidCustomer
	}
	fixtureID := strings.ToUpper(strings.TrimSpace(req.FixtureID))
	if fixtureID == "" {
		return nil, fixturedomain.ErrInvalidFixtureID
	}
	cycleUnit := req.CycleUnit
	if cycleUnit == "" {
		cycleUnit = fixturedomain.CycleUnitNone
	}
	if !fixturedomain.ValidCycleUnit(cycleUnit) {
		return nil, fixturedomain.ErrInvalidCycleUnit
	}
	cycle, err := normalizeCycle(cycleUnit, req.ReplacementCycle)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	fixture := &fixturedomain.Fixture{
		ID:                  s.genID.Generate(),
		CustomerID:          customerID,
		FixtureID:           fixtureID,
		Name:                strings.TrimSpace(req.Name),
		Type:                strings.TrimSpace(req.Type),
		SelfPurchasedQty:    req.SelfPurchasedQty,
		CustomerSuppliedQty: req.CustomerSuppliedQty,
		StorageLocation:     strings.TrimSpace(req.StorageLocation),
		CycleUnit:           cycleUnit,
		ReplacementCycle:    cycle,
		Status:              fixturedomain.FixtureStatusNormal,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.db.WithContext(ctx).Create(fixture).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, fixturedomain.ErrDuplicateFixture
		}
		return nil, db.ClassifyErr(err)
	}

	s.obsMetrics.IncOperation("fixture", "create")
	s.log.Info("fixture registered",
		zap.String("customer_id", customerID),
		zap.String("fixture_id", fixtureID),
	)
	return fixture, nil
}

func (s *Service) Update(ctx context.Context, customerID, fixtureID string, req fixturedomain.UpdateFixtureRequest) (*fixturedomain.Fixture, error) {
	fixture, err := s.repo.FindByID(ctx, s.db, customerID, fixtureID)
	if err != nil {
		return nil, db.ClassifyErr(err)
	}
	if fixture == nil {
		return nil, fixturedomain.ErrFixtureNotFound
	}

	if req.Name != nil {
		fixture.Name = strings.TrimSpace(*req.Name)
	}
	if req.Type != nil {
		fixture.Type = strings.TrimSpace(*req.Type)
	}
	if req.StorageLocation != nil {
		fixture.StorageLocation = strings.TrimSpace(*req.StorageLocation)
	}
	if req.CycleUnit != nil {
		if !fixturedomain.ValidCycleUnit(*req.CycleUnit) {
			return nil, fixturedomain.ErrInvalidCycleUnit
		}
		fixture.CycleUnit = *req.CycleUnit
	}
	if req.ReplacementCycle != nil {
		fixture.ReplacementCycle = *req.ReplacementCycle
	}
	cycle, err := normalizeCycle(fixture.CycleUnit, fixture.ReplacementCycle)
	if err != nil {
		return nil, err
	}
	fixture.ReplacementCycle = cycle
	fixture.UpdatedAt = s.clock.Now()

	err = s.db.WithContext(ctx).Exec(
		`UPDATE fixtures
		 SET name = ?, type = ?, storage_location = ?, cycle_unit = ?, replacement_cycle = ?, updated_at = ?
		 WHERE id = ?`,
		fixture.Name,
		fixture.Type,
		fixture.StorageLocation,
		fixture.CycleUnit,
		fixture.ReplacementCycle,
		fixture.UpdatedAt,
		fixture.ID,
	).Error
	if err != nil {
		return nil, db.ClassifyErr(err)
	}
	return fixture, nil
}

// SetStatus soft-retires or reactivates a fixture. Physical deletion is
// never offered once transaction or usage history references it.
func (s *Service) SetStatus(ctx context.Context, customerID, fixtureID string, status fixturedomain.FixtureStatus) error {
	if !fixturedomain.ValidFixtureStatus(status) {
		return fixturedomain.ErrInvalidStatus
	}
	fixture, err := s.repo.FindByID(ctx, s.db, customerID, fixtureID)
	if err != nil {
		return db.ClassifyErr(err)
	}
	if fixture == nil {
		return fixturedomain.ErrFixtureNotFound
	}

	return db.ClassifyErr(s.db.WithContext(ctx).Exec(
		`UPDATE fixtures SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		s.clock.Now(),
		fixture.ID,
	).Error)
}

// Delete physically removes an unused fixture. Any transaction, usage
// or replacement row referencing it blocks the delete; history must
// stay auditable, so referenced fixtures are only ever soft-retired.
func (s *Service) Delete(ctx context.Context, customerID, fixtureID string) error {
	defer s.observe("delete", time.Now())

	fixture, err := s.repo.FindByID(ctx, s.db, customerID, fixtureID)
	if err != nil {
		return db.ClassifyErr(err)
	}
	if fixture == nil {
		return fixturedomain.ErrFixtureNotFound
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		err := tx.Raw(
			`SELECT (SELECT COUNT(1) FROM material_transactions WHERE customer_id = ? AND fixture_id = ?)
			      + (SELECT COUNT(1) FROM usage_events WHERE customer_id = ? AND fixture_id = ?)
			      + (SELECT COUNT(1) FROM replacement_events WHERE customer_id = ? AND fixture_id = ?)`,
			fixture.CustomerID, fixture.FixtureID,
			fixture.CustomerID, fixture.FixtureID,
			fixture.CustomerID, fixture.FixtureID,
		).Scan(&refs).Error
		if err != nil {
			return err
		}
		if refs > 0 {
			return fixturedomain.ErrFixtureInUse
		}

		if err := tx.Exec(
			`DELETE FROM fixture_serials WHERE customer_id = ? AND fixture_id = ?`,
			fixture.CustomerID, fixture.FixtureID,
		).Error; err != nil {
			return err
		}
		if err := tx.Exec(
			`DELETE FROM fixture_usage_summary WHERE customer_id = ? AND fixture_id = ?`,
			fixture.CustomerID, fixture.FixtureID,
		).Error; err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM fixtures WHERE id = ?`, fixture.ID).Error
	})
	if err != nil {
		if errors.Is(err, fixturedomain.ErrFixtureInUse) {
			return err
		}
		s.obsMetrics.IncOperationError("fixture", "delete")
		return db.ClassifyErr(err)
	}

	s.obsMetrics.IncOperation("fixture", "delete")
	s.log.Info("fixture deleted",
		zap.String("customer_id", customerID),
		zap.String("fixture_id", fixture.FixtureID),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, customerID, fixtureID string) (*fixturedomain.Fixture, error) {
	fixture, err := s.repo.FindByID(ctx, s.db, customerID, fixtureID)
	if err != nil {
		return nil, db.ClassifyErr(err)
	}
	if fixture == nil {
		return nil, fixturedomain.ErrFixtureNotFound
	}
	return fixture, nil
}

func (s *Service) List(ctx context.Context, req fixturedomain.ListFixturesRequest) (fixturedomain.ListFixturesResponse, error) {
	resp := fixturedomain.ListFixturesResponse{}

	limit := req.PageSize
	if limit <= 0 || limit > 250 {
		limit = 50
	}

	stmt := s.db.WithContext(ctx).Model(&fixturedomain.Fixture{})
	if req.CustomerID != "" {
		stmt = stmt.Where("customer_id = ?", req.CustomerID)
	}
	if req.Status != "" {
		stmt = stmt.Where("status = ?", req.Status)
	}
	if keyword := strings.TrimSpace(req.Keyword); keyword != "" {
		pattern := "%" + keyword + "%"
		stmt = stmt.Where("fixture_id LIKE ? OR name LIKE ?", pattern, pattern)
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return resp, err
		}
		stmt = stmt.Where("id > ?", cursor.ID)
	}

	var fixtures []*fixturedomain.Fixture
	if err := stmt.Order("id ASC").Limit(limit + 1).Find(&fixtures).Error; err != nil {
		return resp, db.ClassifyErr(err)
	}

	pageInfo, fixtures := pagination.BuildCursorPageInfo(fixtures, limit, func(f *fixturedomain.Fixture) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: f.ID.String()})
		return token
	})
	resp.PageInfo = *pageInfo
	resp.Fixtures = fixtures
	return resp, nil
}

func (s *Service) Statistics(ctx context.Context, customerID string) (*fixturedomain.FixtureStatistics, error) {
	var stats fixturedomain.FixtureStatistics
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) AS total,
		        COALESCE(SUM(CASE WHEN status = 'normal' THEN 1 ELSE 0 END), 0) AS normal,
		        COALESCE(SUM(CASE WHEN status = 'returned' THEN 1 ELSE 0 END), 0) AS returned,
		        COALESCE(SUM(CASE WHEN status = 'scrapped' THEN 1 ELSE 0 END), 0) AS scrapped
		 FROM fixtures WHERE customer_id = ?`,
		customerID,
	).Scan(&stats).Error
	if err != nil {
		return nil, db.ClassifyErr(err)
	}
	return &stats, nil
}

func (s *Service) ReplacementStatus(ctx context.Context, customerID, fixtureID string) (fixturedomain.ReplacementStatus, error) {
	fixture, err := s.repo.FindByID(ctx, s.db, customerID, fixtureID)
	if err != nil {
		return "", db.ClassifyErr(err)
	}
	if fixture == nil {
		return "", fixturedomain.ErrFixtureNotFound
	}

	var totalUses int64
	err = s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(total_uses, 0) FROM fixture_usage_summary
		 WHERE customer_id = ? AND fixture_id = ?`,
		customerID,
		fixture.FixtureID,
	).Scan(&totalUses).Error
	if err != nil {
		return "", db.ClassifyErr(err)
	}

	return fixturedomain.EvaluateStatus(*fixture, totalUses, s.clock.Now(), s.policy), nil
}

func (s *Service) observe(op string, start time.Time) {
	s.obsMetrics.ObserveOperation("fixture", op, time.Since(start))
}

func normalizeCycle(unit fixturedomain.CycleUnit, cycle float64) (float64, error) {
	if unit == fixturedomain.CycleUnitNone {
		// A fixture without a cycle policy carries no threshold.
		return 0, nil
	}
	if cycle <= 0 {
		return 0, fixturedomain.ErrInvalidCycleValue
	}
	return cycle, nil
}
