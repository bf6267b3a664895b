package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"homecontrold/internal/eventbus"
	"homecontrold/internal/model"
	"homecontrold/internal/mqtt"
	"homecontrold/internal/storage"
	logx "homecontrold/pkg/logx"
)

// Publisher is the broker surface the orchestrator needs. *mqtt.Client
// satisfies it; tests inject fakes.
type Publisher interface {
	Ready() bool
	Publish(ctx context.Context, topic string, payload []byte) error
}

type Config struct {
	// Location interprets schedule trigger times. Required; schedules are
	// entered in the account's timezone, not the host's.
	Location *time.Location
	// MinRefireFloor <= 0 falls back to DefaultMinRefireFloor.
	MinRefireFloor time.Duration
	TopicPrefix    string
	// OpTimeout bounds each store call within a tick.
	OpTimeout time.Duration
	// Now is test-injectable; defaults to time.Now.
	Now func() time.Time
}

// Orchestrator runs the per-tick pipeline: select due schedules, guard and
// claim each one, publish its command, and sync the device document.
// Every per-schedule failure is contained; a tick always evaluates all
// due schedules.
type Orchestrator struct {
	store storage.Store
	pub   Publisher
	bus   eventbus.Bus
	log   logx.Logger

	// evaluatorID distinguishes racing instances in shared-store logs.
	evaluatorID string

	brokerWarn *logx.Throttle

	mu    sync.Mutex
	loc   *time.Location
	floor time.Duration

	prefix    string
	opTimeout time.Duration
	now       func() time.Time
}

func NewOrchestrator(cfg Config, store storage.Store, pub Publisher, bus eventbus.Bus, log logx.Logger) *Orchestrator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MinRefireFloor <= 0 {
		cfg.MinRefireFloor = DefaultMinRefireFloor
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = mqtt.DefaultTopicPrefix
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	id := uuid.NewString()[:8]
	return &Orchestrator{
		store:       store,
		pub:         pub,
		bus:         bus,
		log:         log.With(logx.String("evaluator", id)),
		evaluatorID: id,
		brokerWarn:  logx.NewThrottle(0.2, 3),
		loc:         cfg.Location,
		floor:       cfg.MinRefireFloor,
		prefix:      cfg.TopicPrefix,
		opTimeout:   cfg.OpTimeout,
		now:         cfg.Now,
	}
}

// Apply installs hot-reloadable knobs between ticks.
func (o *Orchestrator) Apply(loc *time.Location, floor time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if loc != nil {
		o.loc = loc
	}
	if floor > 0 {
		o.floor = floor
	}
}

func (o *Orchestrator) snapshot() (*time.Location, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loc, o.floor
}

// Tick runs a single evaluation pass. It is the poller's callback and is
// directly callable from tests.
func (o *Orchestrator) Tick(ctx context.Context) TickStats {
	loc, floor := o.snapshot()
	now := o.now()

	var stats TickStats

	rctx, cancel := context.WithTimeout(ctx, o.opTimeout)
	schedules, err := o.store.ActiveSchedules(rctx)
	cancel()
	if err != nil {
		o.log.Warn("schedule read failed, skipping tick", logx.Err(err))
		o.publishEvent(EventTick, stats)
		return stats
	}
	stats.Active = len(schedules)

	due := DueSchedules(now, loc, schedules)
	stats.Due = len(due)
	if len(due) > 0 {
		o.log.Debug("due schedules",
			logx.Int("count", len(due)),
			logx.Time("now", now.In(loc)))
	}

	for _, s := range due {
		if ctx.Err() != nil {
			break
		}
		o.fireOne(ctx, s, now, floor, &stats)
	}

	o.publishEvent(EventTick, stats)
	return stats
}

// fireOne processes one due schedule. Errors are contained here and only
// affect this schedule.
func (o *Orchestrator) fireOne(ctx context.Context, s model.Schedule, now time.Time, floor time.Duration, stats *TickStats) {
	log := o.log.With(
		logx.String("schedule_id", s.ID),
		logx.String("device_id", s.DeviceID))

	if err := s.Validate(); err != nil {
		stats.Skipped++
		log.Warn("skipping malformed schedule", logx.Err(err))
		return
	}

	allowed, reason := GuardAllows(s, now, floor)
	if !allowed {
		stats.Skipped++
		log.Debug("fire suppressed", logx.String("reason", string(reason)))
		return
	}

	// Claim before anything else. Whoever wins this write owns the fire;
	// everything after is at-most-once by construction.
	cctx, cancel := context.WithTimeout(ctx, o.opTimeout)
	won, err := o.store.ClaimFire(cctx, s.ID, s.LastFired, now)
	cancel()
	if err != nil {
		stats.Failed++
		log.Warn("fire claim failed", logx.Err(err))
		return
	}
	if !won {
		stats.Lost++
		log.Debug("fire already claimed by another evaluator")
		o.publishEvent(EventClaimLost, FireInfo{ScheduleID: s.ID, DeviceID: s.DeviceID, UserID: s.UserID, At: now})
		return
	}

	// Missing device is a data error. The claim stands: re-fireing the
	// schedule against a deleted device every tick helps nobody.
	dctx, cancel := context.WithTimeout(ctx, o.opTimeout)
	_, err = o.store.Device(dctx, s.DeviceID)
	cancel()
	if err != nil {
		stats.Skipped++
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn("schedule references a missing device")
		} else {
			log.Warn("device read failed", logx.Err(err))
		}
		return
	}

	topic := mqtt.BuildTopic(o.prefix, s.UserID, s.DeviceID, model.MessageCommand)
	payload, err := json.Marshal(model.Command{Action: s.Action, IssuedAt: now})
	if err != nil {
		stats.Failed++
		log.Warn("command encode failed", logx.Err(err))
		return
	}

	info := FireInfo{
		ScheduleID: s.ID,
		DeviceID:   s.DeviceID,
		UserID:     s.UserID,
		Action:     s.Action.Name,
		Topic:      topic,
		At:         now,
	}

	if err := o.pub.Publish(ctx, topic, payload); err != nil {
		stats.Failed++
		// Deliberate: the claim is not rolled back. The schedule counts as
		// fired and waits for its next natural occurrence.
		if o.brokerWarn.Allow() {
			log.Warn("command publish failed, fire is spent", logx.Err(err))
		}
		o.publishEvent(EventPublishFailed, info)
		return
	}

	stats.Fired++
	log.Info("schedule fired",
		logx.String("action", s.Action.String()),
		logx.String("topic", topic))
	o.publishEvent(EventFired, info)

	// Best-effort observability write; the command is already on the wire.
	wctx, cancel := context.WithTimeout(ctx, o.opTimeout)
	err = o.store.RecordCommand(wctx, s.DeviceID, s.Action.Name, s.ID, now)
	cancel()
	if err != nil {
		log.Warn("desired-state sync failed", logx.Err(err))
	}
}

func (o *Orchestrator) publishEvent(typ string, data any) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
