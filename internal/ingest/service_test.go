package ingest

import (
	"context"
	"testing"
	"time"

	"homecontrold/internal/eventbus"
	"homecontrold/internal/model"
	"homecontrold/internal/mqtt"
	"homecontrold/internal/storage"
	logx "homecontrold/pkg/logx"
)

func newTestService(t *testing.T) (*Service, storage.Store, <-chan eventbus.Event, func()) {
	t.Helper()
	st := storage.NewMemory()
	if err := st.PutDevice(context.Background(), model.Device{ID: "d1", UserID: "u1"}); err != nil {
		t.Fatalf("PutDevice: %v", err)
	}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8, EventDeviceState, EventDeviceEvent)
	return New(st, bus, logx.Nop()), st, ch, unsub
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event) eventbus.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bus event")
		return eventbus.Event{}
	}
}

func runService(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestStateReportUpdatesDevice(t *testing.T) {
	t.Parallel()

	s, st, ch, unsub := newTestService(t)
	defer unsub()
	runService(t, s)

	s.Handle(mqtt.Message{
		Topic:   "homecontrol/u1/d1/state",
		Payload: []byte(`{"status":"ON","online":true,"timestamp":1700000000000}`),
	})

	e := waitEvent(t, ch)
	if e.Type != EventDeviceState {
		t.Fatalf("event type = %q", e.Type)
	}
	sc, ok := e.Data.(StateChange)
	if !ok || sc.DeviceID != "d1" || sc.State != "ON" || !sc.Online {
		t.Fatalf("event data = %+v", e.Data)
	}

	d, err := st.Device(context.Background(), "d1")
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	if d.ReportedState != "ON" || !d.Online || d.LastConnection.IsZero() {
		t.Fatalf("device = %+v", d)
	}
}

func TestStateReportLegacyFieldAndOnlineDefault(t *testing.T) {
	t.Parallel()

	s, st, ch, unsub := newTestService(t)
	defer unsub()
	runService(t, s)

	// Older firmware publishes "state" and omits "online".
	s.Handle(mqtt.Message{
		Topic:   "homecontrol/u1/d1/state",
		Payload: []byte(`{"state":"OFF"}`),
	})
	waitEvent(t, ch)

	d, err := st.Device(context.Background(), "d1")
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	if d.ReportedState != "OFF" {
		t.Errorf("reported state = %q", d.ReportedState)
	}
	if !d.Online {
		t.Error("a device that talks defaults to online")
	}
}

func TestStateReportExplicitOffline(t *testing.T) {
	t.Parallel()

	s, st, ch, unsub := newTestService(t)
	defer unsub()
	runService(t, s)

	s.Handle(mqtt.Message{
		Topic:   "homecontrol/u1/d1/state",
		Payload: []byte(`{"status":"OFF","online":false}`),
	})
	waitEvent(t, ch)

	d, err := st.Device(context.Background(), "d1")
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	if d.Online {
		t.Error("explicit online:false must be honored")
	}
}

func TestEventMessageOnlyHitsBus(t *testing.T) {
	t.Parallel()

	s, st, ch, unsub := newTestService(t)
	defer unsub()
	runService(t, s)

	s.Handle(mqtt.Message{
		Topic:   "homecontrol/u1/d1/event",
		Payload: []byte(`{"motion":true}`),
	})

	e := waitEvent(t, ch)
	if e.Type != EventDeviceEvent {
		t.Fatalf("event type = %q", e.Type)
	}

	d, err := st.Device(context.Background(), "d1")
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	if !d.LastConnection.IsZero() {
		t.Error("event messages must not touch the device document")
	}
}

func TestIgnoresJunk(t *testing.T) {
	t.Parallel()

	s, _, ch, unsub := newTestService(t)
	defer unsub()
	runService(t, s)

	// None of these may produce a bus event or a panic.
	for _, m := range []mqtt.Message{
		{Topic: "homecontrol/u1/d1/command", Payload: []byte(`{"action":"ON"}`)}, // echoed command
		{Topic: "not/a/real/topic/at/all", Payload: []byte(`{}`)},
		{Topic: "homecontrol/u1/d1/state", Payload: []byte(`not json`)},
		{Topic: "homecontrol/u1/unknown-device/state", Payload: []byte(`{"status":"ON"}`)},
	} {
		s.Handle(m)
	}

	select {
	case e := <-ch:
		t.Fatalf("unexpected bus event %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}
