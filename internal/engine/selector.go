package engine

import (
	"time"

	"homecontrold/internal/model"
)

// DueSchedules returns the subset of schedules whose weekday set contains
// now's weekday and whose trigger time equals now truncated to the minute.
// Equality, not a window: a schedule is due in exactly the minute it
// names. now is converted into loc before matching, so the caller controls
// which timezone "07:00" means.
//
// The function is pure; it never consults the wall clock.
func DueSchedules(now time.Time, loc *time.Location, schedules []model.Schedule) []model.Schedule {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	weekday := local.Weekday()

	var due []model.Schedule
	for _, s := range schedules {
		if !s.Active {
			continue
		}
		if !s.Days.Contains(weekday) {
			continue
		}
		if !s.Start.Matches(local) {
			continue
		}
		due = append(due, s)
	}
	return due
}
