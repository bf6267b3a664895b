package engine

import (
	"context"
	"time"

	logx "homecontrold/pkg/logx"
)

// DefaultPollInterval is coarse enough to keep store load trivial and fine
// enough that a minute-granularity schedule cannot be missed.
const DefaultPollInterval = time.Minute

// Poller invokes tick on a fixed period. The first tick runs immediately,
// ticks never overlap, and a tick that outlasts the period causes the
// missed ticks to be dropped rather than queued (time.Ticker delivers on
// an unbuffered channel and drops ticks nobody is ready to receive).
type Poller struct {
	period time.Duration
	tick   func(ctx context.Context)
	log    logx.Logger

	// periodCh accepts hot-reloaded periods between ticks.
	periodCh chan time.Duration
}

func NewPoller(period time.Duration, tick func(ctx context.Context), log logx.Logger) *Poller {
	if period <= 0 {
		period = DefaultPollInterval
	}
	return &Poller{
		period:   period,
		tick:     tick,
		log:      log,
		periodCh: make(chan time.Duration, 1),
	}
}

// SetPeriod applies a new period before the next tick. Non-blocking.
func (p *Poller) SetPeriod(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case p.periodCh <- d:
	default:
		// a pending update is already queued; drop the older one
		select {
		case <-p.periodCh:
		default:
		}
		select {
		case p.periodCh <- d:
		default:
		}
	}
}

// Run blocks until ctx is done. An in-flight tick finishes naturally on
// shutdown; no new ticks are issued afterwards.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("poller started", logx.Duration("period", p.period))

	// Immediate first evaluation so a restart does not wait a full period.
	p.tick(ctx)

	t := time.NewTicker(p.period)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopped")
			return
		case d := <-p.periodCh:
			if d != p.period {
				p.period = d
				t.Reset(d)
				p.log.Info("poll period updated", logx.Duration("period", d))
			}
		case <-t.C:
			p.tick(ctx)
		}
	}
}
