// Package app wires configuration, storage, the broker client, the
// dispatch engine and its sidecars into one supervised process.
package app

import (
	"context"

	"homecontrold/internal/config"
	"homecontrold/internal/engine"
	"homecontrold/internal/eventbus"
	"homecontrold/internal/ingest"
	"homecontrold/internal/maintenance"
	"homecontrold/internal/mqtt"
	"homecontrold/internal/observability/metrics"
	"homecontrold/internal/observability/pprof"
	"homecontrold/internal/runtime/supervisor"
	"homecontrold/internal/storage"
	logx "homecontrold/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	logs *logx.Service
	log  logx.Logger

	bus    eventbus.Bus
	store  storage.Store
	broker *mqtt.Client

	orch   *engine.Orchestrator
	poller *engine.Poller
	ing    *ingest.Service
	maint  *maintenance.Service
	met    *metrics.Service
	prof   *pprof.Service

	cfgCh chan *config.Config
}

// New loads and validates configuration and constructs every component.
// Errors here are fatal: the caller exits non-zero.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	pollEvery, err := config.ParseDurationOrDefault("poll_interval", cfg.PollInterval, engine.DefaultPollInterval)
	if err != nil {
		return nil, err
	}
	floor, err := config.ParseDurationOrDefault("min_refire_floor", cfg.MinRefireFloor, engine.DefaultMinRefireFloor)
	if err != nil {
		return nil, err
	}
	busyTimeout, err := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout)
	if err != nil {
		return nil, err
	}
	pubTimeout, err := config.ParseDurationField("mqtt.publish_timeout", cfg.MQTT.PublishTimeout)
	if err != nil {
		return nil, err
	}
	retryMax, err := config.ParseDurationField("mqtt.connect_retry_max", cfg.MQTT.ConnectRetryMax)
	if err != nil {
		return nil, err
	}
	offlineAfter, err := config.ParseDurationField("maintenance.offline_after", cfg.Maintenance.OfflineAfter)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	broker, err := mqtt.New(mqtt.Config{
		BrokerURL:          cfg.MQTT.BrokerURL,
		Username:           cfg.MQTT.Username,
		Password:           cfg.MQTT.Password,
		ClientID:           cfg.MQTT.ClientID,
		TopicPrefix:        cfg.MQTT.TopicPrefix,
		PublishTimeout:     pubTimeout,
		RetryMaxInterval:   retryMax,
		InsecureSkipVerify: cfg.MQTT.InsecureSkipVerify,
	}, log.With(logx.String("comp", "mqtt")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bus := eventbus.New()

	a := &App{
		cfgm:   cfgm,
		logs:   logs,
		log:    log,
		bus:    bus,
		store:  store,
		broker: broker,
	}

	a.orch = engine.NewOrchestrator(engine.Config{
		Location:       loc,
		MinRefireFloor: floor,
		TopicPrefix:    broker.TopicPrefix(),
	}, store, broker, bus, log.With(logx.String("comp", "engine")))
	a.poller = engine.NewPoller(pollEvery, func(ctx context.Context) { a.orch.Tick(ctx) },
		log.With(logx.String("comp", "poller")))

	a.ing = ingest.New(store, bus, log.With(logx.String("comp", "ingest")))
	broker.OnMessage(a.ing.Handle)

	a.maint = maintenance.New(maintenance.Config{
		OfflineSweep: cfg.Maintenance.OfflineSweep,
		OfflineAfter: offlineAfter,
		Location:     loc,
	}, store, log.With(logx.String("comp", "maintenance")))

	a.met = metrics.New(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Listen:  cfg.Metrics.Listen,
	}, bus, log.With(logx.String("comp", "metrics")))
	a.prof = pprof.New(pprof.Config{
		Enabled: cfg.Pprof.Enabled,
		Addr:    cfg.Pprof.Addr,
		Token:   cfg.Pprof.Token,
	}, log.With(logx.String("comp", "pprof")))

	broker.OnStateChange(a.met.ObserveBrokerState)
	broker.OnStateChange(func(st mqtt.State) {
		log.Info("broker state changed", logx.String("state", st.String()))
	})

	return a, nil
}

// Start launches everything under one supervisor. A rejected maintenance
// cron spec is a config error and therefore fatal.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	if err := a.maint.Start(); err != nil {
		return err
	}
	if err := a.broker.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go0("poller", a.poller.Run)
	a.sup.Go0("ingest", a.ing.Run)
	a.sup.Go0("metrics", a.met.Run)
	a.sup.Go("pprof", a.prof.Run)
	a.sup.GoRestart("config-watch", a.cfgm.Watch)

	a.cfgCh = a.cfgm.Subscribe(1)
	a.sup.Go0("config-apply", a.applyLoop)

	a.log.Info("homecontrold started")
	return nil
}

// applyLoop pushes hot-reloadable knobs into running components.
func (a *App) applyLoop(ctx context.Context) {
	prev := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgCh:
			if !ok {
				return
			}
			applied, restartOnly := config.SummarizeChange(prev, cfg)
			prev = cfg
			if len(restartOnly) > 0 {
				a.log.Warn("config sections need a restart to take effect",
					logx.Any("sections", restartOnly))
			}
			if len(applied) == 0 {
				continue
			}
			a.log.Info("applying config update", logx.Any("sections", applied))

			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.ConsoleEnabled(),
				File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
			})

			// Validation already ran; these cannot fail here.
			loc, _ := cfg.Location()
			floor, _ := config.ParseDurationOrDefault("min_refire_floor", cfg.MinRefireFloor, engine.DefaultMinRefireFloor)
			pollEvery, _ := config.ParseDurationOrDefault("poll_interval", cfg.PollInterval, engine.DefaultPollInterval)
			offlineAfter, _ := config.ParseDurationField("maintenance.offline_after", cfg.Maintenance.OfflineAfter)

			a.orch.Apply(loc, floor)
			a.poller.SetPeriod(pollEvery)
			a.maint.Apply(maintenance.Config{
				OfflineSweep: cfg.Maintenance.OfflineSweep,
				OfflineAfter: offlineAfter,
				Location:     loc,
			})
		}
	}
}

// Stop shuts everything down, letting an in-flight tick finish.
func (a *App) Stop(ctx context.Context) error {
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	a.maint.Stop()
	a.broker.Stop()
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("homecontrold stopped")
	_ = a.logs.Close()
	return err
}
