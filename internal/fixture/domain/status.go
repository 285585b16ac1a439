package domain

import "time"

// ReplacementStatus is the derived replacement-due state of a fixture.
type ReplacementStatus string

const (
	ReplacementNormal  ReplacementStatus = "normal"
	ReplacementDueSoon ReplacementStatus = "due_soon"
	ReplacementDueNow  ReplacementStatus = "due_now"
)

// DefaultDueSoonRatio is the fraction of a cycle at which a fixture
// starts reporting due_soon. Overridable per deployment via config.
const DefaultDueSoonRatio = 0.8

// StatusPolicy tunes the due_soon band of EvaluateStatus.
type StatusPolicy struct {
	DueSoonRatio float64
}

func (p StatusPolicy) ratio() float64 {
	if p.DueSoonRatio <= 0 || p.DueSoonRatio > 1 {
		return DefaultDueSoonRatio
	}
	return p.DueSoonRatio
}

// EvaluateStatus derives the replacement-due state from the fixture's
// cycle policy and its accumulated usage since the last replacement.
// Pure: no storage reads, today is supplied by the caller's clock.
func EvaluateStatus(f Fixture, totalUses int64, today time.Time, policy StatusPolicy) ReplacementStatus {
	if f.CycleUnit == CycleUnitNone || f.ReplacementCycle <= 0 {
		return ReplacementNormal
	}

	var consumed float64
	switch f.CycleUnit {
	case CycleUnitUses:
		consumed = float64(totalUses)
	case CycleUnitDays:
		since := f.CreatedAt
		if f.LastReplacementDate != nil {
			since = *f.LastReplacementDate
		}
		consumed = today.Sub(since).Hours() / 24
		if consumed < 0 {
			consumed = 0
		}
	default:
		return ReplacementNormal
	}

	if consumed >= f.ReplacementCycle {
		return ReplacementDueNow
	}
	if consumed >= f.ReplacementCycle*policy.ratio() {
		return ReplacementDueSoon
	}
	return ReplacementNormal
}
