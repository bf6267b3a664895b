// Package metrics exposes Prometheus counters for the dispatch engine and
// the ingest side. It consumes eventbus events, so producers never depend
// on it.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"homecontrold/internal/engine"
	"homecontrold/internal/eventbus"
	"homecontrold/internal/ingest"
	"homecontrold/internal/mqtt"
	logx "homecontrold/pkg/logx"
)

const metricPrefix = "homecontrold_"

type Config struct {
	Enabled bool
	Listen  string // default ":9815"
}

type Service struct {
	cfg Config
	bus eventbus.Bus
	log logx.Logger

	reg *prometheus.Registry
	srv *http.Server

	ticks           prometheus.Counter
	schedulesActive prometheus.Gauge
	schedulesDue    prometheus.Counter
	fires           prometheus.Counter
	claimsLost      prometheus.Counter
	publishFailures prometheus.Counter
	brokerState     prometheus.Gauge
	ingestMessages  *prometheus.CounterVec
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) *Service {
	if cfg.Listen == "" {
		cfg.Listen = ":9815"
	}
	s := &Service{cfg: cfg, bus: bus, log: log, reg: prometheus.NewRegistry()}

	s.ticks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "ticks_total",
		Help: "Evaluation ticks run",
	})
	s.schedulesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: metricPrefix + "schedules_active",
		Help: "Active schedules observed at the last tick",
	})
	s.schedulesDue = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "schedules_due_total",
		Help: "Schedules matched due across all ticks",
	})
	s.fires = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "fires_total",
		Help: "Commands published after a won fire claim",
	})
	s.claimsLost = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "fire_claims_lost_total",
		Help: "Fire claims lost to a concurrent evaluator",
	})
	s.publishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "publish_failures_total",
		Help: "Fires spent without a successful broker publish",
	})
	s.brokerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: metricPrefix + "broker_state",
		Help: "Broker connection state (0 idle, 1 connecting, 2 ready)",
	})
	s.ingestMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "ingest_messages_total",
		Help: "Accepted device publications by message type",
	}, []string{"type"})

	s.reg.MustRegister(s.ticks, s.schedulesActive, s.schedulesDue, s.fires,
		s.claimsLost, s.publishFailures, s.brokerState, s.ingestMessages)
	return s
}

// ObserveBrokerState is wired to the broker client's state callback.
func (s *Service) ObserveBrokerState(st mqtt.State) {
	s.brokerState.Set(float64(st))
}

// Run consumes bus events and, when enabled, serves /metrics until ctx is
// done.
func (s *Service) Run(ctx context.Context) {
	ch, unsub := s.bus.Subscribe(64,
		engine.EventTick, engine.EventFired, engine.EventPublishFailed,
		engine.EventClaimLost, ingest.EventDeviceState, ingest.EventDeviceEvent)
	defer unsub()

	if s.cfg.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
		s.srv = &http.Server{Addr: s.cfg.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			s.log.Info("metrics listening", logx.String("addr", s.cfg.Listen))
			if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Warn("metrics server stopped", logx.Err(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = s.srv.Shutdown(sctx)
			cancel()
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			s.observe(e)
		}
	}
}

func (s *Service) observe(e eventbus.Event) {
	switch e.Type {
	case engine.EventTick:
		s.ticks.Inc()
		if st, ok := e.Data.(engine.TickStats); ok {
			s.schedulesActive.Set(float64(st.Active))
			s.schedulesDue.Add(float64(st.Due))
		}
	case engine.EventFired:
		s.fires.Inc()
	case engine.EventPublishFailed:
		s.publishFailures.Inc()
	case engine.EventClaimLost:
		s.claimsLost.Inc()
	case ingest.EventDeviceState:
		s.ingestMessages.WithLabelValues("state").Inc()
	case ingest.EventDeviceEvent:
		s.ingestMessages.WithLabelValues("event").Inc()
	}
}
