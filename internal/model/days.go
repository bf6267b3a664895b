package model

import (
	"fmt"
	"strings"
	"time"
)

// Named day sets, matching what the schedule editor offers.
const (
	DaysEveryDay = "every_day"
	DaysWeekdays = "weekdays"
	DaysWeekend  = "weekend"
)

// DaySet is either a named set (every_day/weekdays/weekend) or an explicit
// set of weekdays. The zero value matches nothing and fails validation.
type DaySet struct {
	Named string
	Days  []time.Weekday
}

func EveryDay() DaySet { return DaySet{Named: DaysEveryDay} }
func Weekdays() DaySet { return DaySet{Named: DaysWeekdays} }
func Weekend() DaySet  { return DaySet{Named: DaysWeekend} }

func OnDays(days ...time.Weekday) DaySet {
	return DaySet{Days: days}
}

var dayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sun":       time.Sunday,
	"mon":       time.Monday,
	"tue":       time.Tuesday,
	"wed":       time.Wednesday,
	"thu":       time.Thursday,
	"fri":       time.Friday,
	"sat":       time.Saturday,
}

// ParseDaySet accepts a named set token or a comma-separated list of
// English day names ("monday,wednesday" or "mon,wed").
func ParseDaySet(raw string) (DaySet, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "":
		return DaySet{}, fmt.Errorf("empty day set")
	case DaysEveryDay, "everyday", "every day", "daily":
		return EveryDay(), nil
	case DaysWeekdays:
		return Weekdays(), nil
	case DaysWeekend:
		return Weekend(), nil
	}

	parts := strings.Split(s, ",")
	seen := map[time.Weekday]bool{}
	days := make([]time.Weekday, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, ok := dayNames[p]
		if !ok {
			return DaySet{}, fmt.Errorf("unknown day %q", p)
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return DaySet{}, fmt.Errorf("empty day set %q", raw)
	}
	return DaySet{Days: days}, nil
}

func (d DaySet) IsZero() bool {
	return d.Named == "" && len(d.Days) == 0
}

// Contains reports whether the set covers the given weekday.
func (d DaySet) Contains(w time.Weekday) bool {
	switch d.Named {
	case DaysEveryDay:
		return true
	case DaysWeekdays:
		return w >= time.Monday && w <= time.Friday
	case DaysWeekend:
		return w == time.Saturday || w == time.Sunday
	}
	for _, day := range d.Days {
		if day == w {
			return true
		}
	}
	return false
}

// String returns the canonical storage encoding, parseable by ParseDaySet.
func (d DaySet) String() string {
	if d.Named != "" {
		return d.Named
	}
	names := make([]string, 0, len(d.Days))
	for _, day := range d.Days {
		names = append(names, strings.ToLower(day.String()))
	}
	return strings.Join(names, ",")
}
