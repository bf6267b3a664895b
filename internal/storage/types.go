package storage

import (
	"context"
	"errors"
	"time"

	"homecontrold/internal/model"
)

var (
	// ErrNotFound is returned when a referenced document does not exist,
	// e.g. a schedule pointing at a deleted device.
	ErrNotFound = errors.New("storage: not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process store, nothing survives a restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API consumed by the engine, the ingest side and
// the maintenance sweeps. Schedule and device documents are created and
// edited by external CRUD surfaces; this process only reads them, claims
// fires, and mirrors device activity.
type Store interface {
	// ActiveSchedules returns every schedule flagged active.
	ActiveSchedules(ctx context.Context) ([]model.Schedule, error)

	// Device returns a device document or ErrNotFound.
	Device(ctx context.Context, id string) (model.Device, error)

	// ClaimFire conditionally advances a schedule's last-fired timestamp
	// from prev to firedAt. It returns true only when this caller won the
	// write; false means another evaluator already claimed the fire.
	ClaimFire(ctx context.Context, scheduleID string, prev, firedAt time.Time) (bool, error)

	// RecordCommand updates the device's desired state, last-command time
	// and attribution after a publish. Best-effort observability write.
	RecordCommand(ctx context.Context, deviceID, desiredState, scheduleID string, at time.Time) error

	// RecordReport mirrors a device-published state report: reported
	// state, online flag and last-connection time. ErrNotFound when the
	// device document is gone.
	RecordReport(ctx context.Context, deviceID, state string, online bool, at time.Time) error

	// MarkStaleOffline flags devices offline whose last connection is
	// older than cutoff. Returns the number of devices flipped.
	MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error)

	// PutSchedule and PutDevice upsert whole documents. They exist for
	// seeding and for the external CRUD surfaces; the engine never calls
	// them.
	PutSchedule(ctx context.Context, s model.Schedule) error
	PutDevice(ctx context.Context, d model.Device) error

	Close() error
}
