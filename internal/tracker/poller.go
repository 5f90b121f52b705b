package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/banshee-data/marvelmind/internal/dashapi"
	"github.com/banshee-data/marvelmind/internal/monitoring"
	"github.com/banshee-data/marvelmind/internal/roster"
	"github.com/banshee-data/marvelmind/internal/timeutil"
	"github.com/banshee-data/marvelmind/internal/wire"
)

var logf = monitoring.Component("tracker")

// Updater fetches the latest locations and merges them into r.
// *dashapi.Session satisfies it.
type Updater interface {
	UpdateDetailed(r *roster.Roster) (roster.MergeResult, error)
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval     time.Duration  // default 1ms
	ErrorBackoff time.Duration  // pause after a retryable error; 0 retries on the next tick
	Clock        timeutil.Clock // default RealClock
	Buffer       int            // snapshot channel capacity, default 64
}

// PollerStats counts what the loop has done so far.
type PollerStats struct {
	Polls   uint64 `json:"polls"`
	Changes uint64 `json:"changes"`
	Errors  uint64 `json:"errors"`
}

// Poller is the single producer. It is the only goroutine that touches its
// roster; consumers only ever see clones.
type Poller struct {
	src    Updater
	roster *roster.Roster
	cfg    PollerConfig
	out    chan Snapshot

	seq     uint64
	polls   atomic.Uint64
	changes atomic.Uint64
	errs    atomic.Uint64
}

// NewPoller takes ownership of r.
func NewPoller(src Updater, r *roster.Roster, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Poller{src: src, roster: r, cfg: cfg, out: make(chan Snapshot, cfg.Buffer)}
}

// Snapshots is closed when Run returns.
func (p *Poller) Snapshots() <-chan Snapshot { return p.out }

// Stats returns the loop counters.
func (p *Poller) Stats() PollerStats {
	return PollerStats{Polls: p.polls.Load(), Changes: p.changes.Load(), Errors: p.errs.Load()}
}

// Initial returns a snapshot of the roster before any poll, for seeding readers.
func (p *Poller) Initial() Snapshot {
	return Snapshot{At: p.cfg.Clock.Now(), Roster: p.roster.Clone()}
}

// Run polls until ctx is cancelled (returning nil) or a non-retryable error
// occurs. A malformed buffer always stops the loop.
func (p *Poller) Run(ctx context.Context) error {
	defer close(p.out)
	ticker := p.cfg.Clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
		}

		p.polls.Add(1)
		res, err := p.src.UpdateDetailed(p.roster)
		if err != nil {
			p.errs.Add(1)
			if errors.Is(err, wire.ErrMalformedBuffer) || !dashapi.IsRetryable(err) {
				logf("stopping: %v", err)
				return fmt.Errorf("poll: %w", err)
			}
			logf("poll failed, backing off %s: %v", p.cfg.ErrorBackoff, err)
			if p.cfg.ErrorBackoff > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-p.cfg.Clock.After(p.cfg.ErrorBackoff):
				}
			}
			continue
		}
		if !res.Changed() {
			continue
		}

		p.changes.Add(1)
		p.seq++
		snap := Snapshot{
			Seq:     p.seq,
			At:      p.cfg.Clock.Now(),
			Roster:  p.roster.Clone(),
			Updated: res.Updated,
		}
		select {
		case p.out <- snap:
		case <-ctx.Done():
			return nil
		}
	}
}
