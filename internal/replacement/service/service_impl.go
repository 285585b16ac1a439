package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fixtrack/internal/clock"
	fixturedomain "github.com/smallbiznis/fixtrack/internal/fixture/domain"
	obsmetrics "github.com/smallbiznis/fixtrack/internal/observability/metrics"
	replacementdomain "github.com/smallbiznis/fixtrack/internal/replacement/domain"
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
	Repo        replacementdomain.Repository
	FixtureRepo fixturedomain.Repository
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	gateway     *db.Gateway
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        replacementdomain.Repository
	fixtureRepo fixturedomain.Repository
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) replacementdomain.Service {
	return &Service{
		gateway:     p.Gateway,
		log:         p.Log.Named("replacement.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		fixtureRepo: p.FixtureRepo,
		obsMetrics:  p.ObsMetrics,
	}
}

// Create snapshots the accumulated usage of the target, records the
// replacement with usage_after = 0 and resets the corresponding summary
// row. Snapshot and reset happen under one exclusive row lock so a
// concurrent usage event is either fully counted into usage_before or
// fully counted after the reset.
func (s *Service) Create(ctx context.Context, req replacementdomain.CreateReplacementRequest) (*replacementdomain.ReplacementEvent, error) {
	defer s.observe("create", time.Now())

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

	now := s.clock.Now()
	replacementDate := req.ReplacementDate
	if replacementDate.IsZero() {
		replacementDate = now
	}
	if dateOnly(replacementDate).After(dateOnly(now)) {
		return nil, replacementdomain.ErrFutureDate
	}

	fixture, err := s.fixtureRepo.FindByID(ctx, s.gateway.DB(), customerID, fixtureID)
	if err != nil {
		return nil, db.ClassifyErr(err)
	}
	if fixture == nil {
		return nil, fixturedomain.ErrFixtureNotFound
	}

	event := &replacementdomain.ReplacementEvent{
		ID:              s.genID.Generate(),
		CustomerID:      customerID,
		FixtureID:       fixtureID,
		RecordLevel:     req.Target.Level(),
		SerialNumber:    req.Target.SerialNumber(),
		ReplacementDate: replacementDate,
		Reason:          strings.TrimSpace(req.Reason),
		Executor:        strings.TrimSpace(req.Executor),
		Note:            strings.TrimSpace(req.Note),
		UsageAfter:      0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.gateway.WithTransaction(ctx, func(tx *gorm.DB) error {
		if req.Target.IsSerial() {
			summary, err := s.repo.LockSerialSummary(ctx, tx, customerID, fixtureID, req.Target.SerialNumber())
			if err != nil {
				return err
			}
			if summary != nil {
				event.UsageBefore = summary.TotalUses
			}
			if err := s.repo.Insert(ctx, tx, event); err != nil {
				return err
			}
			if summary != nil {
				if err := s.repo.ResetSerialSummary(ctx, tx, customerID, fixtureID, req.Target.SerialNumber(), now); err != nil {
					return err
				}
			}
		} else {
			summary, err := s.repo.LockFixtureSummary(ctx, tx, customerID, fixtureID)
			if err != nil {
				return err
			}
			if summary != nil {
				event.UsageBefore = summary.TotalUses
				event.SerialUsageBefore = summary.TotalSerialUses
			}
			if err := s.repo.Insert(ctx, tx, event); err != nil {
				return err
			}
			if summary != nil {
				if err := s.repo.ResetFixtureSummary(ctx, tx, customerID, fixtureID, now); err != nil {
					return err
				}
			}
		}

		// Conditional write: a concurrent replacement with a newer date
		// must not be overwritten by this one.
		return s.fixtureRepo.RaiseLastReplacementDate(ctx, tx, fixture.ID, replacementDate)
	})
	if err != nil {
		s.obsMetrics.IncOperationError("replacement", "create")
		return nil, err
	}

	s.obsMetrics.IncOperation("replacement", "create")
	s.log.Info("replacement recorded",
		zap.String("fixture_id", fixtureID),
		zap.String("level", string(event.RecordLevel)),
		zap.Int64("usage_before", event.UsageBefore),
	)
	return event, nil
}

// Update changes descriptive fields only; the identity and the usage
// snapshot stay as created.
func (s *Service) Update(ctx context.Context, id snowflake.ID, req replacementdomain.UpdateReplacementRequest) (*replacementdomain.ReplacementEvent, error) {
	now := s.clock.Now()

	var updated *replacementdomain.ReplacementEvent
	err := s.gateway.WithTransaction(ctx, func(tx *gorm.DB) error {
		event, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if event == nil {
			return replacementdomain.ErrReplacementNotFound
		}

		if req.ReplacementDate != nil {
			if dateOnly(*req.ReplacementDate).After(dateOnly(now)) {
				return replacementdomain.ErrFutureDate
			}
			event.ReplacementDate = *req.ReplacementDate
		}
		if req.Reason != nil {
			event.Reason = strings.TrimSpace(*req.Reason)
		}
		if req.Executor != nil {
			event.Executor = strings.TrimSpace(*req.Executor)
		}
		if req.Note != nil {
			event.Note = strings.TrimSpace(*req.Note)
		}
		event.UpdatedAt = now

		if err := s.repo.UpdateDescriptive(ctx, tx, event); err != nil {
			return err
		}
		if req.ReplacementDate != nil {
			if err := s.syncLastReplacementDate(ctx, tx, event.CustomerID, event.FixtureID); err != nil {
				return err
			}
		}
		updated = event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete compensates: usage_before flows back into the summary it was
// snapshotted from, then the event row is removed and the fixture's
// last_replacement_date is recomputed from the surviving events.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	defer s.observe("delete", time.Now())

	err := s.gateway.WithTransaction(ctx, func(tx *gorm.DB) error {
		event, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if event == nil {
			return replacementdomain.ErrReplacementNotFound
		}

		now := s.clock.Now()
		if event.RecordLevel == usagedomain.LevelSerial {
			if event.UsageBefore > 0 {
				if err := s.repo.RestoreSerialSummary(ctx, tx, event.CustomerID, event.FixtureID, event.SerialNumber, event.UsageBefore, now); err != nil {
					return err
				}
			}
		} else if event.UsageBefore > 0 || event.SerialUsageBefore > 0 {
			if err := s.repo.RestoreFixtureSummary(ctx, tx, event.CustomerID, event.FixtureID, event.UsageBefore, event.SerialUsageBefore, now); err != nil {
				return err
			}
		}

		if err := s.repo.Delete(ctx, tx, event.ID); err != nil {
			return err
		}
		return s.syncLastReplacementDate(ctx, tx, event.CustomerID, event.FixtureID)
	})
	if err != nil {
		s.obsMetrics.IncOperationError("replacement", "delete")
		return err
	}
	s.obsMetrics.IncOperation("replacement", "delete")
	return nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*replacementdomain.ReplacementEvent, error) {
	event, err := s.repo.FindByID(ctx, s.gateway.DB(), id)
	if err != nil {
		return nil, db.ClassifyErr(err)
	}
	if event == nil {
		return nil, replacementdomain.ErrReplacementNotFound
	}
	return event, nil
}

func (s *Service) List(ctx context.Context, req replacementdomain.ListReplacementsRequest) (replacementdomain.ListReplacementsResponse, error) {
	resp := replacementdomain.ListReplacementsResponse{}

	limit := req.PageSize
	if limit <= 0 || limit > 250 {
		limit = 50
	}

	stmt := s.gateway.DB().WithContext(ctx).Model(&replacementdomain.ReplacementEvent{})
	if req.CustomerID != "" {
		stmt = stmt.Where("customer_id = ?", req.CustomerID)
	}
	if req.FixtureID != "" {
		stmt = stmt.Where("fixture_id = ?", req.FixtureID)
	}
	if req.Executor != "" {
		stmt = stmt.Where("executor = ?", req.Executor)
	}
	if !req.DateFrom.IsZero() {
		stmt = stmt.Where("replacement_date >= ?", req.DateFrom)
	}
	if !req.DateTo.IsZero() {
		stmt = stmt.Where("replacement_date < ?", req.DateTo)
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return resp, err
		}
		stmt = stmt.Where("id < ?", cursor.ID)
	}

	var events []*replacementdomain.ReplacementEvent
	if err := stmt.Order("id DESC").Limit(limit + 1).Find(&events).Error; err != nil {
		return resp, db.ClassifyErr(err)
	}

	pageInfo, events := pagination.BuildCursorPageInfo(events, limit, func(e *replacementdomain.ReplacementEvent) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: e.ID.String()})
		return token
	})
	resp.PageInfo = *pageInfo
	resp.Replacements = events
	return resp, nil
}

func (s *Service) observe(op string, start time.Time) {
	s.obsMetrics.ObserveOperation("replacement", op, time.Since(start))
}

func (s *Service) syncLastReplacementDate(ctx context.Context, tx *gorm.DB, customerID, fixtureID string) error {
	fixture, err := s.fixtureRepo.FindByID(ctx, tx, customerID, fixtureID)
	if err != nil {
		return err
	}
	if fixture == nil {
		return nil
	}
	latest, err := s.repo.LatestReplacementDate(ctx, tx, customerID, fixtureID)
	if err != nil {
		return err
	}
	return s.fixtureRepo.SetLastReplacementDate(ctx, tx, fixture.ID, latest)
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
