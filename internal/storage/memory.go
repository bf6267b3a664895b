package storage

import (
	"context"
	"sync"
	"time"

	"homecontrold/internal/model"
)

// memoryStore keeps documents in maps. It honors the same millisecond
// precision as the sqlite driver so CAS behavior is identical.
type memoryStore struct {
	mu        sync.Mutex
	schedules map[string]model.Schedule
	devices   map[string]model.Device
}

// NewMemory returns an empty in-process store.
func NewMemory() Store {
	return &memoryStore{
		schedules: map[string]model.Schedule{},
		devices:   map[string]model.Device{},
	}
}

func (m *memoryStore) ActiveSchedules(ctx context.Context) ([]model.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryStore) Device(ctx context.Context, id string) (model.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return model.Device{}, ErrNotFound
	}
	return d, nil
}

func (m *memoryStore) ClaimFire(ctx context.Context, scheduleID string, prev, firedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[scheduleID]
	if !ok {
		return false, nil
	}
	if msOrZero(s.LastFired) != msOrZero(prev) {
		return false, nil
	}
	s.LastFired = time.UnixMilli(firedAt.UnixMilli())
	m.schedules[scheduleID] = s
	return true, nil
}

func (m *memoryStore) RecordCommand(ctx context.Context, deviceID, desiredState, scheduleID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return ErrNotFound
	}
	d.DesiredState = desiredState
	d.LastCommand = at
	d.LastScheduleID = scheduleID
	m.devices[deviceID] = d
	return nil
}

func (m *memoryStore) RecordReport(ctx context.Context, deviceID, state string, online bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return ErrNotFound
	}
	d.ReportedState = state
	d.Online = online
	d.LastConnection = at
	m.devices[deviceID] = d
	return nil
}

func (m *memoryStore) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, d := range m.devices {
		if d.Online && d.LastConnection.Before(cutoff) {
			d.Online = false
			m.devices[id] = d
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) PutSchedule(ctx context.Context, s model.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = s
	return nil
}

func (m *memoryStore) PutDevice(ctx context.Context, d model.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.ID] = d
	return nil
}

func (m *memoryStore) Close() error { return nil }
