package maintenance

import (
	"context"
	"testing"
	"time"

	"homecontrold/internal/model"
	"homecontrold/internal/storage"
	logx "homecontrold/pkg/logx"
)

func TestSweepFlagsStaleDevices(t *testing.T) {
	t.Parallel()

	st := storage.NewMemory()
	ctx := context.Background()
	now := time.Now()
	if err := st.PutDevice(ctx, model.Device{ID: "stale", Online: true, LastConnection: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("PutDevice: %v", err)
	}
	if err := st.PutDevice(ctx, model.Device{ID: "fresh", Online: true, LastConnection: now}); err != nil {
		t.Fatalf("PutDevice: %v", err)
	}

	s := New(Config{OfflineAfter: 10 * time.Minute}, st, logx.Nop())
	s.sweep()

	d, err := st.Device(ctx, "stale")
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	if d.Online {
		t.Error("stale device not flagged offline")
	}
	d, err = st.Device(ctx, "fresh")
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	if !d.Online {
		t.Error("fresh device must stay online")
	}
}

func TestStartWithEmptySpecIsDisabled(t *testing.T) {
	t.Parallel()

	s := New(Config{}, storage.NewMemory(), logx.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if s.c != nil {
		t.Fatal("empty spec must not start a cron")
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := New(Config{OfflineSweep: "not a cron spec"}, storage.NewMemory(), logx.Nop())
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("bad cron spec must fail Start")
	}
}

func TestApplyRevertsOnBadSpec(t *testing.T) {
	t.Parallel()

	s := New(Config{OfflineSweep: "@every 1h"}, storage.NewMemory(), logx.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	s.Apply(Config{OfflineSweep: "nope nope"})
	if s.cfg.OfflineSweep != "@every 1h" {
		t.Fatalf("config = %+v, want the old spec restored", s.cfg)
	}
	if s.c == nil {
		t.Fatal("old cron must be running again after the revert")
	}
}

func TestApplyValidSpec(t *testing.T) {
	t.Parallel()

	s := New(Config{OfflineSweep: "@every 1h"}, storage.NewMemory(), logx.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	s.Apply(Config{OfflineSweep: "*/5 * * * *", OfflineAfter: 20 * time.Minute})
	if s.cfg.OfflineSweep != "*/5 * * * *" || s.cfg.OfflineAfter != 20*time.Minute {
		t.Fatalf("config = %+v", s.cfg)
	}
}
