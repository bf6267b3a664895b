// Package maintenance runs periodic housekeeping jobs that are not part of
// the dispatch path. Currently: flagging silent devices offline.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"homecontrold/internal/storage"
	logx "homecontrold/pkg/logx"
)

type Config struct {
	// OfflineSweep is a cron spec ("*/5 * * * *" or "@every 5m"). Empty
	// disables the sweep.
	OfflineSweep string
	// OfflineAfter is the silence window before a device counts as gone.
	OfflineAfter time.Duration
	// Location anchors cron evaluation; nil means UTC.
	Location *time.Location
}

type Service struct {
	mu    sync.Mutex
	cfg   Config
	store storage.Store
	log   logx.Logger

	parser cron.Parser
	c      *cron.Cron
}

func New(cfg Config, store storage.Store, log logx.Logger) *Service {
	if cfg.OfflineAfter <= 0 {
		cfg.OfflineAfter = 10 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Service) startLocked() error {
	if s.cfg.OfflineSweep == "" {
		s.log.Debug("offline sweep disabled")
		return nil
	}
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.cfg.Location))
	if _, err := s.c.AddFunc(s.cfg.OfflineSweep, s.sweep); err != nil {
		s.c = nil
		return err
	}
	s.c.Start()
	s.log.Info("offline sweep scheduled",
		logx.String("spec", s.cfg.OfflineSweep),
		logx.Duration("offline_after", s.cfg.OfflineAfter))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Service) stopLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
}

// Apply restarts the cron with new settings. Invalid specs keep the old
// job running.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.OfflineAfter <= 0 {
		cfg.OfflineAfter = 10 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg == s.cfg {
		return
	}
	old := s.cfg
	s.stopLocked()
	s.cfg = cfg
	if err := s.startLocked(); err != nil {
		s.log.Warn("maintenance config rejected", logx.Err(err))
		s.cfg = old
		_ = s.startLocked()
	}
}

func (s *Service) sweep() {
	s.mu.Lock()
	after := s.cfg.OfflineAfter
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-after)
	n, err := s.store.MarkStaleOffline(ctx, cutoff)
	if err != nil {
		s.log.Warn("offline sweep failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("devices flagged offline", logx.Int64("count", n))
	}
}
