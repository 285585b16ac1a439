package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/fixtrack/internal/clock"
	fixturedomain "github.com/smallbiznis/fixtrack/internal/fixture/domain"
	fixturerepository "github.com/smallbiznis/fixtrack/internal/fixture/repository"
	replacementdomain "github.com/smallbiznis/fixtrack/internal/replacement/domain"
	replacementrepository "github.com/smallbiznis/fixtrack/internal/replacement/repository"
	usagedomain "github.com/smallbiznis/fixtrack/internal/usage/domain"
	usagerepository "github.com/smallbiznis/fixtrack/internal/usage/repository"
	usageservice "github.com/smallbiznis/fixtrack/internal/usage/service"
	"github.com/smallbiznis/fixtrack/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testCustomer = "CUST-01"
	testFixture  = "L-00017"
	testSerial   = "001"
)

type testEnv struct {
	replacement replacementdomain.Service
	usage       usagedomain.Service
	fixtures    fixturedomain.Repository
	db          *gorm.DB
	clock       *clock.FakeClock
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	// SQLite support hack: remove FOR UPDATE clauses
	stripForUpdate := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	}
	gdb.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", stripForUpdate)
	gdb.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", stripForUpdate)

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = gdb.Exec("PRAGMA busy_timeout = 5000").Error

	prepareSchema(t, gdb)

	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	node := mustNode(t)
	gateway := db.NewGateway(db.GatewayParam{DB: gdb, Log: zap.NewNop()})
	fixtureRepo := fixturerepository.Provide()

	seedFixture(t, gdb, node)

	env := &testEnv{
		db:       gdb,
		clock:    fc,
		fixtures: fixtureRepo,
	}
	env.replacement = NewService(ServiceParam{
		Gateway:     gateway,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fc,
		Repo:        replacementrepository.Provide(),
		FixtureRepo: fixtureRepo,
	})
	env.usage = usageservice.NewService(usageservice.ServiceParam{
		Gateway:     gateway,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fc,
		Repo:        usagerepository.Provide(),
		FixtureRepo: fixtureRepo,
	})
	return env
}

func prepareSchema(t *testing.T, gdb *gorm.DB) {
	t.Helper()
	stmts := []string{
		`CREATE TABLE fixtures (
			id BIGINT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			fixture_id TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT,
			self_purchased_qty INTEGER NOT NULL DEFAULT 0,
			customer_supplied_qty INTEGER NOT NULL DEFAULT 0,
			storage_location TEXT,
			cycle_unit TEXT NOT NULL DEFAULT 'none',
			replacement_cycle REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'normal',
			last_replacement_date DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE fixture_serials (
			id BIGINT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			fixture_id TEXT NOT NULL,
			serial_number TEXT NOT NULL,
			source_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'available',
			receipt_date DATETIME,
			receipt_transaction_id BIGINT NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE usage_events (
			id BIGINT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			fixture_id TEXT NOT NULL,
			record_level TEXT NOT NULL,
			serial_number TEXT,
			use_count BIGINT NOT NULL DEFAULT 1,
			station_id TEXT,
			model_id TEXT,
			operator TEXT,
			abnormal_status TEXT,
			note TEXT,
			used_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE fixture_usage_summary (
			customer_id TEXT NOT NULL,
			fixture_id TEXT NOT NULL,
			total_uses BIGINT NOT NULL DEFAULT 0,
			total_serial_uses BIGINT NOT NULL DEFAULT 0,
			first_used_at DATETIME,
			last_used_at DATETIME,
			last_station_id TEXT,
			last_model_id TEXT,
			last_operator TEXT,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (customer_id, fixture_id)
		)`,
		`CREATE TABLE serial_usage_summary (
			customer_id TEXT NOT NULL,
			fixture_id TEXT NOT NULL,
			serial_number TEXT NOT NULL,
			total_uses BIGINT NOT NULL DEFAULT 0,
			first_used_at DATETIME,
			last_used_at DATETIME,
			last_station_id TEXT,
			last_model_id TEXT,
			last_operator TEXT,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (customer_id, fixture_id, serial_number)
		)`,
		`CREATE TABLE replacement_events (
			id BIGINT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			fixture_id TEXT NOT NULL,
			record_level TEXT NOT NULL,
			serial_number TEXT,
			replacement_date DATETIME NOT NULL,
			reason TEXT,
			executor TEXT,
			note TEXT,
			usage_before BIGINT NOT NULL DEFAULT 0,
			serial_usage_before BIGINT NOT NULL DEFAULT 0,
			usage_after BIGINT NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if err := gdb.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
}

func seedFixture(t *testing.T, gdb *gorm.DB, node *snowflake.Node) {
	t.Helper()
	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := gdb.Exec(
		`INSERT INTO fixtures (id, customer_id, fixture_id, name, cycle_unit, replacement_cycle, status, created_at, updated_at)
		 VALUES (?, ?, ?, 'ICT test fixture', 'uses', 10, 'normal', ?, ?)`,
		node.Generate(),
		testCustomer,
		testFixture,
		created,
		created,
	).Error; err != nil {
		t.Fatalf("seed fixture: %v", err)
	}
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func (env *testEnv) recordSerialUsage(t *testing.T, useCount int64, times int) {
	t.Helper()
	target, err := usagedomain.SerialLevel(testSerial)
	if err != nil {
		t.Fatalf("serial target: %v", err)
	}
	for i := 0; i < times; i++ {
		_, err := env.usage.Record(context.Background(), usagedomain.RecordUsageRequest{
			CustomerID: testCustomer,
			FixtureID:  testFixture,
			Target:     target,
			UseCount:   useCount,
		})
		if err != nil {
			t.Fatalf("record usage: %v", err)
		}
	}
}

func (env *testEnv) recordSerialEvent(t *testing.T, useCount int64) *usagedomain.UsageEvent {
	t.Helper()
	target, err := usagedomain.SerialLevel(testSerial)
	if err != nil {
		t.Fatalf("serial target: %v", err)
	}
	event, err := env.usage.Record(context.Background(), usagedomain.RecordUsageRequest{
		CustomerID: testCustomer,
		FixtureID:  testFixture,
		Target:     target,
		UseCount:   useCount,
	})
	if err != nil {
		t.Fatalf("record usage: %v", err)
	}
	return event
}

func (env *testEnv) fixtureRow(t *testing.T) *fixturedomain.Fixture {
	t.Helper()
	fixture, err := env.fixtures.FindByID(context.Background(), env.db, testCustomer, testFixture)
	if err != nil {
		t.Fatalf("find fixture: %v", err)
	}
	if fixture == nil {
		t.Fatal("fixture row missing")
	}
	return fixture
}

func TestReplacementRoundTrip(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	env.recordSerialUsage(t, 3, 3)

	summary, err := env.usage.FixtureSummary(ctx, testCustomer, testFixture)
	if err != nil {
		t.Fatalf("fixture summary: %v", err)
	}
	if summary.TotalUses != 9 {
		t.Fatalf("expected 9 uses before replacement, got %d", summary.TotalUses)
	}
	fixture := env.fixtureRow(t)
	if got := fixturedomain.EvaluateStatus(*fixture, summary.TotalUses, env.clock.Now(), fixturedomain.StatusPolicy{}); got != fixturedomain.ReplacementDueSoon {
		t.Fatalf("expected due_soon before replacement, got %s", got)
	}

	event, err := env.replacement.Create(ctx, replacementdomain.CreateReplacementRequest{
		CustomerID: testCustomer,
		FixtureID:  testFixture,
		Target:     usagedomain.FixtureLevel(),
		Reason:     "probe block worn",
		Executor:   "lin.wei",
	})
	if err != nil {
		t.Fatalf("create replacement: %v", err)
	}
	if event.UsageBefore != 9 || event.UsageAfter != 0 {
		t.Fatalf("expected snapshot 9 -> 0, got %d -> %d", event.UsageBefore, event.UsageAfter)
	}

	summary, err = env.usage.FixtureSummary(ctx, testCustomer, testFixture)
	if err != nil {
		t.Fatalf("fixture summary after reset: %v", err)
	}
	if summary.TotalUses != 0 || summary.TotalSerialUses != 0 {
		t.Fatalf("expected counters reset, got %d/%d", summary.TotalUses, summary.TotalSerialUses)
	}
	if summary.FirstUsedAt != nil {
		t.Fatalf("expected first_used_at cleared, got %v", summary.FirstUsedAt)
	}

	fixture = env.fixtureRow(t)
	if fixture.LastReplacementDate == nil {
		t.Fatal("expected last_replacement_date set")
	}
	if got := fixturedomain.EvaluateStatus(*fixture, summary.TotalUses, env.clock.Now(), fixturedomain.StatusPolicy{}); got != fixturedomain.ReplacementNormal {
		t.Fatalf("expected normal after replacement, got %s", got)
	}
}

func TestReplacementSerialLevelResetsSerialSummaryOnly(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	env.recordSerialUsage(t, 2, 2)

	target, err := usagedomain.SerialLevel(testSerial)
	if err != nil {
		t.Fatalf("serial target: %v", err)
	}
	event, err := env.replacement.Create(ctx, replacementdomain.CreateReplacementRequest{
		CustomerID: testCustomer,
		FixtureID:  testFixture,
		Target:     target,
	})
	if err != nil {
		t.Fatalf("create replacement: %v", err)
	}
	if event.UsageBefore != 4 {
		t.Fatalf("expected serial snapshot 4, got %d", event.UsageBefore)
	}

	serialSummary, err := env.usage.SerialSummary(ctx, testCustomer, testFixture, testSerial)
	if err != nil {
		t.Fatalf("serial summary: %v", err)
	}
	if serialSummary.TotalUses != 0 {
		t.Fatalf("expected serial counter reset, got %d", serialSummary.TotalUses)
	}

	fixtureSummary, err := env.usage.FixtureSummary(ctx, testCustomer, testFixture)
	if err != nil {
		t.Fatalf("fixture summary: %v", err)
	}
	if fixtureSummary.TotalUses != 4 {
		t.Fatalf("fixture aggregate must survive a serial replacement, got %d", fixtureSummary.TotalUses)
	}
}

func TestReplacementFutureDateRejected(t *testing.T) {
	env := setupEnv(t)

	_, err := env.replacement.Create(context.Background(), replacementdomain.CreateReplacementRequest{
		CustomerID:      testCustomer,
		FixtureID:       testFixture,
		Target:          usagedomain.FixtureLevel(),
		ReplacementDate: env.clock.Now().AddDate(0, 0, 1),
	})
	if !errors.Is(err, replacementdomain.ErrFutureDate) {
		t.Fatalf("expected ErrFutureDate, got %v", err)
	}

	// Same calendar day but a later wall-clock hour is allowed.
	_, err = env.replacement.Create(context.Background(), replacementdomain.CreateReplacementRequest{
		CustomerID:      testCustomer,
		FixtureID:       testFixture,
		Target:          usagedomain.FixtureLevel(),
		ReplacementDate: env.clock.Now().Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("same-day replacement must pass, got %v", err)
	}
}

func TestDeleteReplacementRestoresUsage(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	env.recordSerialUsage(t, 3, 3)
	event, err := env.replacement.Create(ctx, replacementdomain.CreateReplacementRequest{
		CustomerID: testCustomer,
		FixtureID:  testFixture,
		Target:     usagedomain.FixtureLevel(),
	})
	if err != nil {
		t.Fatalf("create replacement: %v", err)
	}

	if event.SerialUsageBefore != 9 {
		t.Fatalf("expected serial subtotal snapshot 9, got %d", event.SerialUsageBefore)
	}

	if err := env.replacement.Delete(ctx, event.ID); err != nil {
		t.Fatalf("delete replacement: %v", err)
	}

	summary, err := env.usage.FixtureSummary(ctx, testCustomer, testFixture)
	if err != nil {
		t.Fatalf("fixture summary: %v", err)
	}
	if summary.TotalUses != 9 || summary.TotalSerialUses != 9 {
		t.Fatalf("expected both counters restored to 9, got %d/%d", summary.TotalUses, summary.TotalSerialUses)
	}

	fixture := env.fixtureRow(t)
	if fixture.LastReplacementDate != nil {
		t.Fatalf("expected last_replacement_date cleared, got %v", fixture.LastReplacementDate)
	}

	if err := env.replacement.Delete(ctx, event.ID); !errors.Is(err, replacementdomain.ErrReplacementNotFound) {
		t.Fatalf("expected ErrReplacementNotFound, got %v", err)
	}
}

func TestDeleteKeepsLatestSurvivingDate(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	older, err := env.replacement.Create(ctx, replacementdomain.CreateReplacementRequest{
		CustomerID:      testCustomer,
		FixtureID:       testFixture,
		Target:          usagedomain.FixtureLevel(),
		ReplacementDate: env.clock.Now().AddDate(0, 0, -30),
	})
	if err != nil {
		t.Fatalf("create older replacement: %v", err)
	}
	newer, err := env.replacement.Create(ctx, replacementdomain.CreateReplacementRequest{
		CustomerID: testCustomer,
		FixtureID:  testFixture,
		Target:     usagedomain.FixtureLevel(),
	})
	if err != nil {
		t.Fatalf("create newer replacement: %v", err)
	}

	if err := env.replacement.Delete(ctx, newer.ID); err != nil {
		t.Fatalf("delete newer: %v", err)
	}

	fixture := env.fixtureRow(t)
	if fixture.LastReplacementDate == nil {
		t.Fatal("expected last_replacement_date to fall back to the older event")
	}
	if !fixture.LastReplacementDate.Equal(older.ReplacementDate) {
		t.Fatalf("expected %v, got %v", older.ReplacementDate, fixture.LastReplacementDate)
	}
}

func TestUpdateChangesDescriptiveFieldsOnly(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	env.recordSerialUsage(t, 5, 1)
	event, err := env.replacement.Create(ctx, replacementdomain.CreateReplacementRequest{
		CustomerID: testCustomer,
		FixtureID:  testFixture,
		Target:     usagedomain.FixtureLevel(),
		Reason:     "scheduled",
	})
	if err != nil {
		t.Fatalf("create replacement: %v", err)
	}

	reason := "probe block worn"
	newDate := env.clock.Now().AddDate(0, 0, -3)
	updated, err := env.replacement.Update(ctx, event.ID, replacementdomain.UpdateReplacementRequest{
		Reason:          &reason,
		ReplacementDate: &newDate,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Reason != reason {
		t.Fatalf("expected reason updated, got %q", updated.Reason)
	}
	if updated.UsageBefore != 5 {
		t.Fatalf("usage snapshot must not change on update, got %d", updated.UsageBefore)
	}

	fixture := env.fixtureRow(t)
	if fixture.LastReplacementDate == nil || !fixture.LastReplacementDate.Equal(newDate) {
		t.Fatalf("expected last_replacement_date synced to %v, got %v", newDate, fixture.LastReplacementDate)
	}

	future := env.clock.Now().AddDate(0, 0, 2)
	if _, err := env.replacement.Update(ctx, event.ID, replacementdomain.UpdateReplacementRequest{ReplacementDate: &future}); !errors.Is(err, replacementdomain.ErrFutureDate) {
		t.Fatalf("expected ErrFutureDate, got %v", err)
	}
}

func TestDeleteUsageEventFromBeforeReplacementKeepsSummary(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	old := env.recordSerialEvent(t, 3)
	env.clock.Advance(time.Minute)

	if _, err := env.replacement.Create(ctx, replacementdomain.CreateReplacementRequest{
		CustomerID: testCustomer,
		FixtureID:  testFixture,
		Target:     usagedomain.FixtureLevel(),
	}); err != nil {
		t.Fatalf("create replacement: %v", err)
	}
	env.clock.Advance(time.Minute)
	env.recordSerialEvent(t, 5)

	// The old event was absorbed into the replacement snapshot; deleting
	// it must not drain the counters accumulated since the reset.
	if err := env.usage.Delete(ctx, old.ID); err != nil {
		t.Fatalf("delete usage event: %v", err)
	}

	summary, err := env.usage.FixtureSummary(ctx, testCustomer, testFixture)
	if err != nil {
		t.Fatalf("fixture summary: %v", err)
	}
	if summary.TotalUses != 5 || summary.TotalSerialUses != 5 {
		t.Fatalf("total_uses = %d/%d, want 5/5 (sum of events since last reset)", summary.TotalUses, summary.TotalSerialUses)
	}

	// The serial summary was not reset by a fixture-level replacement,
	// so the old event's contribution is still there to reverse.
	serialSummary, err := env.usage.SerialSummary(ctx, testCustomer, testFixture, testSerial)
	if err != nil {
		t.Fatalf("serial summary: %v", err)
	}
	if serialSummary.TotalUses != 5 {
		t.Fatalf("serial total_uses = %d, want 5", serialSummary.TotalUses)
	}
}

func TestDeleteUsageEventFromBeforeSerialReplacement(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	old := env.recordSerialEvent(t, 4)
	env.clock.Advance(time.Minute)

	target, err := usagedomain.SerialLevel(testSerial)
	if err != nil {
		t.Fatalf("serial target: %v", err)
	}
	if _, err := env.replacement.Create(ctx, replacementdomain.CreateReplacementRequest{
		CustomerID: testCustomer,
		FixtureID:  testFixture,
		Target:     target,
	}); err != nil {
		t.Fatalf("create replacement: %v", err)
	}
	env.clock.Advance(time.Minute)
	env.recordSerialEvent(t, 6)

	if err := env.usage.Delete(ctx, old.ID); err != nil {
		t.Fatalf("delete usage event: %v", err)
	}

	// Only the serial summary was reset; the fixture aggregate still
	// carries the old event and must lose exactly its contribution.
	serialSummary, err := env.usage.SerialSummary(ctx, testCustomer, testFixture, testSerial)
	if err != nil {
		t.Fatalf("serial summary: %v", err)
	}
	if serialSummary.TotalUses != 6 {
		t.Fatalf("serial total_uses = %d, want 6", serialSummary.TotalUses)
	}

	fixtureSummary, err := env.usage.FixtureSummary(ctx, testCustomer, testFixture)
	if err != nil {
		t.Fatalf("fixture summary: %v", err)
	}
	if fixtureSummary.TotalUses != 6 {
		t.Fatalf("fixture total_uses = %d, want 6", fixtureSummary.TotalUses)
	}
}

func TestCreateKeepsNewestReplacementDate(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	newest, err := env.replacement.Create(ctx, replacementdomain.CreateReplacementRequest{
		CustomerID: testCustomer,
		FixtureID:  testFixture,
		Target:     usagedomain.FixtureLevel(),
	})
	if err != nil {
		t.Fatalf("create replacement: %v", err)
	}

	// A backdated replacement must not move last_replacement_date backwards.
	if _, err := env.replacement.Create(ctx, replacementdomain.CreateReplacementRequest{
		CustomerID:      testCustomer,
		FixtureID:       testFixture,
		Target:          usagedomain.FixtureLevel(),
		ReplacementDate: env.clock.Now().AddDate(0, 0, -10),
	}); err != nil {
		t.Fatalf("create backdated replacement: %v", err)
	}

	fixture := env.fixtureRow(t)
	if fixture.LastReplacementDate == nil || !fixture.LastReplacementDate.Equal(newest.ReplacementDate) {
		t.Fatalf("expected last_replacement_date %v, got %v", newest.ReplacementDate, fixture.LastReplacementDate)
	}
}

func TestCreateReplacementUnknownFixture(t *testing.T) {
	env := setupEnv(t)

	_, err := env.replacement.Create(context.Background(), replacementdomain.CreateReplacementRequest{
		CustomerID: testCustomer,
		FixtureID:  "L-99999",
		Target:     usagedomain.FixtureLevel(),
	})
	if !errors.Is(err, fixturedomain.ErrFixtureNotFound) {
		t.Fatalf("expected ErrFixtureNotFound, got %v", err)
	}
}
