package engine

import "time"

// Eventbus topics emitted by the engine. Observability consumers (metrics,
// future notifiers) subscribe to these; the engine never depends on them.
const (
	EventTick          = "engine.tick"
	EventFired         = "schedule.fired"
	EventPublishFailed = "schedule.publish_failed"
	EventClaimLost     = "schedule.claim_lost"
)

// TickStats summarizes one evaluation pass.
type TickStats struct {
	Active  int // active schedules considered
	Due     int // matched this minute
	Fired   int // claims won and publishes attempted successfully
	Lost    int // claims lost to another evaluator
	Skipped int // data errors and guard denials
	Failed  int // publish or store failures after a won claim
}

// FireInfo is the payload of EventFired and EventPublishFailed.
type FireInfo struct {
	ScheduleID string
	DeviceID   string
	UserID     string
	Action     string
	Topic      string
	At         time.Time
}
