package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fixtrack/internal/clock"
	fixturedomain "github.com/smallbiznis/fixtrack/internal/fixture/domain"
	obsmetrics "github.com/smallbiznis/fixtrack/internal/observability/metrics"
	usagedomain "github.com/smallbiznis/fixtrack/internal/usage/domain"
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
	Repo        usagedomain.Repository
	FixtureRepo fixturedomain.Repository
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	gateway     *db.Gateway
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        usagedomain.Repository
	fixtureRepo fixturedomain.Repository
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		gateway:     p.Gateway,
		log:         p.Log.Named("usage.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		fixtureRepo: p.FixtureRepo,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Record(ctx context.Context, req usagedomain.RecordUsageRequest) (*usagedomain.UsageEvent, error) {
	defer s.observe("record", time.Now())

	event, err := s.buildEvent(ctx, req)
	if err != nil {
		return nil, err
	}

	err = s.gateway.WithTransaction(ctx, func(tx *gorm.DB) error {
		return s.applyEvent(ctx, tx, event)
	})
	if err != nil {
		s.obsMetrics.IncOperationError("usage", "record")
		return nil, err
	}

	s.obsMetrics.IncOperation("usage", "record")
	s.obsMetrics.AddUsageEvents(string(event.RecordLevel), 1)
	return event, nil
}

// RecordBatch records recordCount independent events sharing the same
// attributes, in one unit of work. Events are not folded into one row:
// per-event audit granularity survives.
func (s *Service) RecordBatch(ctx context.Context, req usagedomain.RecordUsageRequest, recordCount int) ([]*usagedomain.UsageEvent, error) {
	defer s.observe("record_batch", time.Now())

	if recordCount < usagedomain.MinBatchRecordCount || recordCount > usagedomain.MaxBatchRecordCount {
		return nil, usagedomain.ErrInvalidRecordCount
	}

	prototype, err := s.buildEvent(ctx, req)
	if err != nil {
		return nil, err
	}

	events := make([]*usagedomain.UsageEvent, 0, recordCount)
	for i := 0; i < recordCount; i++ {
		event := *prototype
		event.ID = s.genID.Generate()
		events = append(events, &event)
	}

	err = s.gateway.WithTransaction(ctx, func(tx *gorm.DB) error {
		for _, event := range events {
			if err := s.applyEvent(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.obsMetrics.IncOperationError("usage", "record_batch")
		return nil, err
	}

	s.obsMetrics.IncOperation("usage", "record_batch")
	s.obsMetrics.AddUsageEvents(string(prototype.RecordLevel), recordCount)
	return events, nil
}

// Delete removes one event and reverses its summary contribution in the
// same unit of work, so aggregates stay equal to the surviving events.
// An event recorded before the latest replacement reset was already
// absorbed into that replacement's snapshot: its counters are gone from
// the summary, so deleting it must leave the summary untouched.
func (s *Service) Delete(ctx context.Context, eventID snowflake.ID) error {
	defer s.observe("delete", time.Now())

	err := s.gateway.WithTransaction(ctx, func(tx *gorm.DB) error {
		event, err := s.repo.FindEventByID(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if event == nil {
			return usagedomain.ErrEventNotFound
		}

		fixtureResetAt, err := s.repo.LatestSummaryResetAt(ctx, tx, event.CustomerID, event.FixtureID, usagedomain.LevelFixture, "")
		if err != nil {
			return err
		}
		if countsSinceReset(event.CreatedAt, fixtureResetAt) {
			if err := s.repo.ReverseFromFixtureSummary(ctx, tx, event); err != nil {
				return err
			}
		}
		if event.RecordLevel == usagedomain.LevelSerial {
			serialResetAt, err := s.repo.LatestSummaryResetAt(ctx, tx, event.CustomerID, event.FixtureID, usagedomain.LevelSerial, event.SerialNumber)
			if err != nil {
				return err
			}
			if countsSinceReset(event.CreatedAt, serialResetAt) {
				if err := s.repo.ReverseFromSerialSummary(ctx, tx, event); err != nil {
					return err
				}
			}
		}
		return s.repo.DeleteEvent(ctx, tx, event.ID)
	})
	if err != nil {
		s.obsMetrics.IncOperationError("usage", "delete")
		return err
	}
	s.obsMetrics.IncOperation("usage", "delete")
	return nil
}

func (s *Service) Get(ctx context.Context, eventID snowflake.ID) (*usagedomain.UsageEvent, error) {
	event, err := s.repo.FindEventByID(ctx, s.gateway.DB(), eventID)
	if err != nil {
		return nil, db.ClassifyErr(err)
	}
	if event == nil {
		return nil, usagedomain.ErrEventNotFound
	}
	return event, nil
}

func (s *Service) List(ctx context.Context, req usagedomain.ListUsageRequest) (usagedomain.ListUsageResponse, error) {
	resp := usagedomain.ListUsageResponse{}

	limit := req.PageSize
	if limit <= 0 || limit > 250 {
		limit = 50
	}

	stmt := s.gateway.DB().WithContext(ctx).Model(&usagedomain.UsageEvent{})
	if req.CustomerID != "" {
		stmt = stmt.Where("customer_id = ?", req.CustomerID)
	}
	if req.FixtureID != "" {
		stmt = stmt.Where("fixture_id = ?", req.FixtureID)
	}
	if req.SerialNumber != "" {
		stmt = stmt.Where("serial_number = ?", req.SerialNumber)
	}
	if req.RecordLevel != "" {
		stmt = stmt.Where("record_level = ?", req.RecordLevel)
	}
	if req.StationID != "" {
		stmt = stmt.Where("station_id = ?", req.StationID)
	}
	if req.Operator != "" {
		stmt = stmt.Where("operator = ?", req.Operator)
	}
	if req.AbnormalOnly {
		stmt = stmt.Where("abnormal_status <> ''")
	}
	if !req.UsedAtFrom.IsZero() {
		stmt = stmt.Where("used_at >= ?", req.UsedAtFrom)
	}
	if !req.UsedAtTo.IsZero() {
		stmt = stmt.Where("used_at < ?", req.UsedAtTo)
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return resp, err
		}
		stmt = stmt.Where("id < ?", cursor.ID)
	}

	var events []*usagedomain.UsageEvent
	if err := stmt.Order("id DESC").Limit(limit + 1).Find(&events).Error; err != nil {
		return resp, db.ClassifyErr(err)
	}

	pageInfo, events := pagination.BuildCursorPageInfo(events, limit, func(e *usagedomain.UsageEvent) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: e.ID.String()})
		return token
	})
	resp.PageInfo = *pageInfo
	resp.Events = events
	return resp, nil
}

func (s *Service) FixtureSummary(ctx context.Context, customerID, fixtureID string) (*usagedomain.FixtureUsageSummary, error) {
	summary, err := s.repo.GetFixtureSummary(ctx, s.gateway.DB(), customerID, fixtureID)
	if err != nil {
		return nil, db.ClassifyErr(err)
	}
	if summary == nil {
		// No usage yet reads as an all-zero aggregate.
		return &usagedomain.FixtureUsageSummary{CustomerID: customerID, FixtureID: fixtureID}, nil
	}
	return summary, nil
}

func (s *Service) SerialSummary(ctx context.Context, customerID, fixtureID, serialNumber string) (*usagedomain.SerialUsageSummary, error) {
	summary, err := s.repo.GetSerialSummary(ctx, s.gateway.DB(), customerID, fixtureID, serialNumber)
	if err != nil {
		return nil, db.ClassifyErr(err)
	}
	if summary == nil {
		return &usagedomain.SerialUsageSummary{CustomerID: customerID, FixtureID: fixtureID, SerialNumber: serialNumber}, nil
	}
	return summary, nil
}

func (s *Service) Statistics(ctx context.Context, customerID string) (*usagedomain.UsageStatistics, error) {
	now := s.clock.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var stats usagedomain.UsageStatistics
	err := s.gateway.DB().WithContext(ctx).Raw(
		`SELECT COUNT(1) AS total_events,
		        COALESCE(SUM(use_count), 0) AS total_uses,
		        COALESCE(SUM(CASE WHEN abnormal_status <> '' THEN 1 ELSE 0 END), 0) AS abnormal_count,
		        COALESCE(SUM(CASE WHEN used_at >= ? THEN 1 ELSE 0 END), 0) AS today_events
		 FROM usage_events WHERE customer_id = ?`,
		dayStart,
		customerID,
	).Scan(&stats).Error
	if err != nil {
		return nil, db.ClassifyErr(err)
	}
	return &stats, nil
}

func (s *Service) buildEvent(ctx context.Context, req usagedomain.RecordUsageRequest) (*usagedomain.UsageEvent, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return nil, fixturedomain.ErrInvalidCustomer
	}
	fixtureID := strings.ToUpper(strings.TrimSpace(req.FixtureID))
	if fixtureID == "" {
		return nil, fixturedomain.ErrInvalidFixtureID
	}
	if !req.Target.Valid() {
		return nil, usagedomain.ErrInvalidRecordLevel
	}
	if req.UseCount < 1 {
		return nil, usagedomain.ErrInvalidUseCount
	}

	exists, err := s.fixtureRepo.Exists(ctx, s.gateway.DB(), customerID, fixtureID)
	if err != nil {
		return nil, db.ClassifyErr(err)
	}
	if !exists {
		return nil, fixturedomain.ErrFixtureNotFound
	}

	if req.Target.IsSerial() {
		// Late or abnormal reporting against a retired serial is
		// accepted, but worth surfacing.
		serial, err := s.fixtureRepo.FindSerial(ctx, s.gateway.DB(), customerID, fixtureID, req.Target.SerialNumber())
		if err != nil {
			return nil, db.ClassifyErr(err)
		}
		if serial != nil && (serial.Status == fixturedomain.SerialStatusReturned || serial.Status == fixturedomain.SerialStatusScrapped) {
			s.log.Warn("usage recorded against retired serial",
				zap.String("fixture_id", fixtureID),
				zap.String("serial_number", serial.SerialNumber),
				zap.String("serial_status", string(serial.Status)),
			)
		}
	}

	now := s.clock.Now()
	usedAt := req.UsedAt
	if usedAt.IsZero() {
		usedAt = now
	}

	return &usagedomain.UsageEvent{
		ID:             s.genID.Generate(),
		CustomerID:     customerID,
		FixtureID:      fixtureID,
		RecordLevel:    req.Target.Level(),
		SerialNumber:   req.Target.SerialNumber(),
		UseCount:       req.UseCount,
		StationID:      strings.TrimSpace(req.StationID),
		ModelID:        strings.TrimSpace(req.ModelID),
		Operator:       strings.TrimSpace(req.Operator),
		AbnormalStatus: strings.TrimSpace(req.AbnormalStatus),
		Note:           strings.TrimSpace(req.Note),
		UsedAt:         usedAt,
		CreatedAt:      now,
	}, nil
}

func (s *Service) observe(op string, start time.Time) {
	s.obsMetrics.ObserveOperation("usage", op, time.Since(start))
}

// countsSinceReset reports whether an event still contributes to the
// running counters. A reset at the same instant already swallowed the
// event into its snapshot.
func countsSinceReset(createdAt time.Time, resetAt *time.Time) bool {
	return resetAt == nil || createdAt.After(*resetAt)
}

func (s *Service) applyEvent(ctx context.Context, tx *gorm.DB, event *usagedomain.UsageEvent) error {
	if err := s.repo.InsertEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := s.repo.ApplyToFixtureSummary(ctx, tx, event); err != nil {
		return err
	}
	if event.RecordLevel == usagedomain.LevelSerial {
		return s.repo.ApplyToSerialSummary(ctx, tx, event)
	}
	return nil
}
