// Package ingest consumes device-reported state and event publications and
// mirrors them into the device documents. It shares the engine's broker
// connection but is otherwise independent of the dispatch path.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"homecontrold/internal/eventbus"
	"homecontrold/internal/model"
	"homecontrold/internal/mqtt"
	"homecontrold/internal/storage"
	logx "homecontrold/pkg/logx"
)

// Eventbus topics emitted per accepted message.
const (
	EventDeviceState = "device.state"
	EventDeviceEvent = "device.event"
)

// Report is the device-side payload. Firmware publishes "status"; some
// revisions used "state". Online defaults to true: a device that talks is
// online.
type report struct {
	Status string `json:"status"`
	State  string `json:"state"`
	Online *bool  `json:"online"`
}

// StateChange is the bus payload for both state and event messages.
type StateChange struct {
	UserID   string
	DeviceID string
	Type     model.MessageType
	State    string
	Online   bool
	At       time.Time
}

type Service struct {
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger

	opTimeout time.Duration
	queue     chan mqtt.Message
	now       func() time.Time
}

func New(store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	return &Service{
		store:     store,
		bus:       bus,
		log:       log,
		opTimeout: 10 * time.Second,
		queue:     make(chan mqtt.Message, 256),
		now:       time.Now,
	}
}

// Handle is the broker callback. It must never block the network loop, so
// the message is queued and a full queue drops.
func (s *Service) Handle(m mqtt.Message) {
	select {
	case s.queue <- m:
	default:
		s.log.Warn("ingest queue full, dropping message", logx.String("topic", m.Topic))
	}
}

// Run drains the queue until ctx is done.
func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-s.queue:
			s.process(ctx, m)
		}
	}
}

func (s *Service) process(ctx context.Context, m mqtt.Message) {
	addr, err := mqtt.ParseTopic(m.Topic)
	if err != nil {
		s.log.Debug("ignoring unparseable topic", logx.String("topic", m.Topic), logx.Err(err))
		return
	}

	now := s.now()
	switch addr.Type {
	case model.MessageState:
		var r report
		if err := json.Unmarshal(m.Payload, &r); err != nil {
			s.log.Debug("malformed state payload",
				logx.String("device_id", addr.DeviceID), logx.Err(err))
			return
		}
		state := r.Status
		if state == "" {
			state = r.State
		}
		online := r.Online == nil || *r.Online

		wctx, cancel := context.WithTimeout(ctx, s.opTimeout)
		err := s.store.RecordReport(wctx, addr.DeviceID, state, online, now)
		cancel()
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.log.Debug("state report from unknown device",
					logx.String("device_id", addr.DeviceID))
			} else {
				s.log.Warn("state report write failed",
					logx.String("device_id", addr.DeviceID), logx.Err(err))
			}
			return
		}
		s.publish(EventDeviceState, StateChange{
			UserID: addr.UserID, DeviceID: addr.DeviceID, Type: addr.Type,
			State: state, Online: online, At: now,
		})

	case model.MessageEvent:
		// Events carry free-form payloads. They are surfaced on the bus
		// for notifiers; the device document is untouched.
		s.publish(EventDeviceEvent, StateChange{
			UserID: addr.UserID, DeviceID: addr.DeviceID, Type: addr.Type, At: now,
		})

	default:
		// Commands are outbound only; seeing one inbound means a
		// misconfigured client is echoing.
		s.log.Debug("ignoring inbound command", logx.String("topic", m.Topic))
	}
}

func (s *Service) publish(typ string, data StateChange) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
