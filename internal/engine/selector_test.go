package engine

import (
	"testing"
	"time"

	"homecontrold/internal/model"
)

func sched(id string, days model.DaySet, start model.TimeOfDay, active bool) model.Schedule {
	return model.Schedule{
		ID:       id,
		UserID:   "u1",
		DeviceID: "d-" + id,
		Days:     days,
		Start:    start,
		Action:   model.Action{Name: "ON"},
		Active:   active,
	}
}

func TestDueSchedules(t *testing.T) {
	t.Parallel()

	// 2026-03-02 is a Monday.
	monday0700 := time.Date(2026, 3, 2, 7, 0, 33, 0, time.UTC)

	schedules := []model.Schedule{
		sched("every-match", model.EveryDay(), model.TimeOfDay{Hour: 7, Minute: 0}, true),
		sched("weekday-match", model.Weekdays(), model.TimeOfDay{Hour: 7, Minute: 0}, true),
		sched("weekend-only", model.Weekend(), model.TimeOfDay{Hour: 7, Minute: 0}, true),
		sched("wrong-minute", model.EveryDay(), model.TimeOfDay{Hour: 7, Minute: 1}, true),
		sched("wrong-hour", model.EveryDay(), model.TimeOfDay{Hour: 8, Minute: 0}, true),
		sched("inactive", model.EveryDay(), model.TimeOfDay{Hour: 7, Minute: 0}, false),
		sched("explicit-monday", model.OnDays(time.Monday), model.TimeOfDay{Hour: 7, Minute: 0}, true),
		sched("explicit-tuesday", model.OnDays(time.Tuesday), model.TimeOfDay{Hour: 7, Minute: 0}, true),
	}

	due := DueSchedules(monday0700, time.UTC, schedules)

	want := map[string]bool{"every-match": true, "weekday-match": true, "explicit-monday": true}
	if len(due) != len(want) {
		t.Fatalf("got %d due schedules, want %d: %+v", len(due), len(want), due)
	}
	for _, s := range due {
		if !want[s.ID] {
			t.Errorf("schedule %q unexpectedly due", s.ID)
		}
	}
}

func TestDueSchedulesSecondsIgnored(t *testing.T) {
	t.Parallel()

	s := sched("s", model.EveryDay(), model.TimeOfDay{Hour: 12, Minute: 30}, true)
	for _, sec := range []int{0, 1, 30, 59} {
		now := time.Date(2026, 3, 2, 12, 30, sec, 0, time.UTC)
		if got := DueSchedules(now, time.UTC, []model.Schedule{s}); len(got) != 1 {
			t.Fatalf("at :%02d: got %d due, want 1", sec, len(got))
		}
	}
}

func TestDueSchedulesTimezone(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// 06:00 UTC in winter is 07:00 in Madrid (CET, UTC+1).
	now := time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC)
	s := sched("madrid-7am", model.EveryDay(), model.TimeOfDay{Hour: 7, Minute: 0}, true)

	if got := DueSchedules(now, loc, []model.Schedule{s}); len(got) != 1 {
		t.Fatalf("schedule not due in its own timezone: %+v", got)
	}
	if got := DueSchedules(now, time.UTC, []model.Schedule{s}); len(got) != 0 {
		t.Fatalf("schedule must not be due in UTC at 06:00: %+v", got)
	}
}

func TestDueSchedulesWeekdayFollowsLocation(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Pacific/Auckland")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// Sunday 22:00 UTC is already Monday morning in Auckland.
	now := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	local := now.In(loc)
	if local.Weekday() != time.Monday {
		t.Fatalf("fixture broken: %v is %v in Auckland", now, local.Weekday())
	}

	s := sched("akl", model.Weekdays(), model.TimeOfDay{Hour: local.Hour(), Minute: local.Minute()}, true)
	if got := DueSchedules(now, loc, []model.Schedule{s}); len(got) != 1 {
		t.Fatalf("weekday must be evaluated in the schedule's timezone")
	}
}

func TestDueSchedulesNilLocationDefaultsUTC(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	s := sched("s", model.EveryDay(), model.TimeOfDay{Hour: 9, Minute: 15}, true)
	if got := DueSchedules(now, nil, []model.Schedule{s}); len(got) != 1 {
		t.Fatal("nil location must behave as UTC")
	}
}
