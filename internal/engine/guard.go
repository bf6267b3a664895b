package engine

import (
	"time"

	"homecontrold/internal/model"
)

// DefaultMinRefireFloor is the fixed minimum spacing between two fires of
// the same schedule, independent of repeat mode. It absorbs duplicate
// evaluation from overlapping evaluators and retried ticks. The original
// deployments used an undocumented 30s literal; it is an explicit,
// configurable policy here.
const DefaultMinRefireFloor = 30 * time.Second

// DenyReason explains why the guard refused a fire.
type DenyReason string

const (
	DenyNone      DenyReason = ""
	DenyExhausted DenyReason = "once_exhausted"
	DenyCooldown  DenyReason = "interval_cooldown"
	DenyFloor     DenyReason = "refire_floor"
)

// GuardAllows applies the local (read-only) part of the fire guard. A true
// result is only a candidacy: the caller must still win the store's
// conditional last-fired write before publishing anything.
func GuardAllows(s model.Schedule, now time.Time, floor time.Duration) (bool, DenyReason) {
	if floor <= 0 {
		floor = DefaultMinRefireFloor
	}
	if s.LastFired.IsZero() {
		return true, DenyNone
	}

	// A once schedule with any fire on record is permanently spent, even
	// when a clock or timezone edge re-matches its minute.
	if s.EffectiveRepeat() == model.RepeatOnce {
		return false, DenyExhausted
	}

	since := now.Sub(s.LastFired)
	if since < floor {
		return false, DenyFloor
	}
	if s.EffectiveRepeat() == model.RepeatInterval && since < s.RepeatInterval {
		return false, DenyCooldown
	}
	return true, DenyNone
}
