package domain

import (
	"testing"
	"time"
)

func TestEvaluateStatusNoCycle(t *testing.T) {
	today := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	f := Fixture{CycleUnit: CycleUnitNone, ReplacementCycle: 0}
	if got := EvaluateStatus(f, 9999, today, StatusPolicy{}); got != ReplacementNormal {
		t.Fatalf("expected normal for cycle_unit none, got %s", got)
	}

	f = Fixture{CycleUnit: CycleUnitUses, ReplacementCycle: 0}
	if got := EvaluateStatus(f, 9999, today, StatusPolicy{}); got != ReplacementNormal {
		t.Fatalf("expected normal for zero cycle, got %s", got)
	}
}

func TestEvaluateStatusUsesBands(t *testing.T) {
	today := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := Fixture{CycleUnit: CycleUnitUses, ReplacementCycle: 10}

	cases := []struct {
		uses int64
		want ReplacementStatus
	}{
		{0, ReplacementNormal},
		{7, ReplacementNormal},
		{8, ReplacementDueSoon},
		{9, ReplacementDueSoon},
		{10, ReplacementDueNow},
		{25, ReplacementDueNow},
	}
	for _, tc := range cases {
		if got := EvaluateStatus(f, tc.uses, today, StatusPolicy{}); got != tc.want {
			t.Fatalf("uses=%d: expected %s, got %s", tc.uses, tc.want, got)
		}
	}
}

func TestEvaluateStatusDaysBands(t *testing.T) {
	replaced := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := Fixture{
		CycleUnit:           CycleUnitDays,
		ReplacementCycle:    30,
		LastReplacementDate: &replaced,
	}

	cases := []struct {
		today time.Time
		want  ReplacementStatus
	}{
		{replaced.AddDate(0, 0, 5), ReplacementNormal},
		{replaced.AddDate(0, 0, 24), ReplacementDueSoon},
		{replaced.AddDate(0, 0, 30), ReplacementDueNow},
		{replaced.AddDate(0, 0, 90), ReplacementDueNow},
	}
	for _, tc := range cases {
		if got := EvaluateStatus(f, 0, tc.today, StatusPolicy{}); got != tc.want {
			t.Fatalf("today=%s: expected %s, got %s", tc.today, tc.want, got)
		}
	}
}

func TestEvaluateStatusDaysFallsBackToCreatedAt(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := Fixture{
		CycleUnit:        CycleUnitDays,
		ReplacementCycle: 30,
		CreatedAt:        created,
	}
	if got := EvaluateStatus(f, 0, created.AddDate(0, 0, 31), StatusPolicy{}); got != ReplacementDueNow {
		t.Fatalf("expected due_now from created_at baseline, got %s", got)
	}
}

func TestEvaluateStatusClockSkewClampsToZero(t *testing.T) {
	replaced := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f := Fixture{
		CycleUnit:           CycleUnitDays,
		ReplacementCycle:    30,
		LastReplacementDate: &replaced,
	}
	// A replacement dated after today must not report due.
	if got := EvaluateStatus(f, 0, replaced.AddDate(0, 0, -3), StatusPolicy{}); got != ReplacementNormal {
		t.Fatalf("expected normal for future baseline, got %s", got)
	}
}

func TestEvaluateStatusCustomRatio(t *testing.T) {
	today := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := Fixture{CycleUnit: CycleUnitUses, ReplacementCycle: 100}

	if got := EvaluateStatus(f, 90, today, StatusPolicy{DueSoonRatio: 0.95}); got != ReplacementNormal {
		t.Fatalf("expected normal below raised threshold, got %s", got)
	}
	if got := EvaluateStatus(f, 95, today, StatusPolicy{DueSoonRatio: 0.95}); got != ReplacementDueSoon {
		t.Fatalf("expected due_soon at raised threshold, got %s", got)
	}
	// Out-of-range ratios fall back to the default band.
	if got := EvaluateStatus(f, 80, today, StatusPolicy{DueSoonRatio: 1.5}); got != ReplacementDueSoon {
		t.Fatalf("expected due_soon with default ratio fallback, got %s", got)
	}
}
