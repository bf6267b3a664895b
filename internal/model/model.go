package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MessageType is the last topic segment and selects the message channel
// between cloud and device.
type MessageType string

const (
	MessageCommand MessageType = "command"
	MessageState   MessageType = "state"
	MessageEvent   MessageType = "event"
)

// RepeatMode controls how often a schedule may fire.
type RepeatMode string

const (
	// RepeatOnce fires a single time, ever. A non-zero last-fired
	// timestamp permanently exhausts the schedule.
	RepeatOnce RepeatMode = "once"
	// RepeatInterval re-fires on every matching minute, subject to the
	// configured cooldown interval.
	RepeatInterval RepeatMode = "interval"
)

// Device is the persisted device document. The dispatch engine writes the
// desired-state/last-command fields; the ingest side writes the reported
// fields. Everything else is owned by external CRUD surfaces.
type Device struct {
	ID             string
	UserID         string
	Name           string
	Type           string
	ReportedState  string
	DesiredState   string
	Online         bool
	LastConnection time.Time
	LastCommand    time.Time
	LastScheduleID string
}

// Action is the enumerated device command a schedule triggers, with
// optional free-form parameters (brightness, color, ...).
type Action struct {
	Name   string
	Params map[string]any
}

// Schedule maps a day/time condition to a device action. The engine treats
// every field except LastFired as read-only.
type Schedule struct {
	ID             string
	UserID         string
	DeviceID       string
	Name           string
	Days           DaySet
	Start          TimeOfDay
	Action         Action
	Active         bool
	Repeat         RepeatMode
	RepeatInterval time.Duration
	LastFired      time.Time // zero means never fired
}

var (
	ErrEmptyDays       = errors.New("schedule has an empty weekday set")
	ErrMissingInterval = errors.New("interval schedule has no positive repeat interval")
)

// Validate reports data errors that make a schedule unfireable. Such
// schedules are skipped and logged, never fatal.
func (s Schedule) Validate() error {
	if s.Days.IsZero() {
		return ErrEmptyDays
	}
	switch s.Repeat {
	case RepeatOnce:
	case RepeatInterval:
		if s.RepeatInterval <= 0 {
			return ErrMissingInterval
		}
	case "":
		// Legacy records without a repeat mode behave as once.
	default:
		return fmt.Errorf("unknown repeat mode %q", s.Repeat)
	}
	return nil
}

// EffectiveRepeat maps legacy empty repeat modes to RepeatOnce.
func (s Schedule) EffectiveRepeat() RepeatMode {
	if s.Repeat == "" {
		return RepeatOnce
	}
	return s.Repeat
}

// TimeOfDay is a minute-resolution trigger time. Seconds never participate
// in matching.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	s := strings.TrimSpace(raw)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", raw)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Matches reports whether now, truncated to the minute, equals the trigger
// time. now must already be in the schedule's timezone.
func (t TimeOfDay) Matches(now time.Time) bool {
	return now.Hour() == t.Hour && now.Minute() == t.Minute
}

// Command is the transient message published when a schedule fires. Only
// its effect (the desired-state update) is persisted.
type Command struct {
	Action   Action
	IssuedAt time.Time
}

// MarshalJSON flattens action parameters into the envelope, matching the
// wire format devices already speak:
//
//	{"action": "ON", "brightness": 80, "timestamp": 1700000000000}
//
// Envelope keys win over colliding parameter keys.
func (c Command) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(c.Action.Params)+2)
	for k, v := range c.Action.Params {
		m[k] = v
	}
	m["action"] = c.Action.Name
	m["timestamp"] = c.IssuedAt.UnixMilli()
	return json.Marshal(m)
}

// keys returns the sorted parameter keys, for stable logging.
func (a Action) keys() []string {
	ks := make([]string, 0, len(a.Params))
	for k := range a.Params {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

func (a Action) String() string {
	if len(a.Params) == 0 {
		return a.Name
	}
	return a.Name + "(" + strings.Join(a.keys(), ",") + ")"
}
