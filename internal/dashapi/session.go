package dashapi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/marvelmind/internal/monitoring"
	"github.com/banshee-data/marvelmind/internal/roster"
	"github.com/banshee-data/marvelmind/internal/timeutil"
	"github.com/banshee-data/marvelmind/internal/wire"
)

// DefaultRetryInterval is the pause between port open attempts.
const DefaultRetryInterval = time.Millisecond

// ErrClosed is returned by calls on a closed Session.
var ErrClosed = errors.New("dashapi: session closed")

// OpenOptions configures Open.
type OpenOptions struct {
	// Timeout bounds how long Open keeps retrying. Zero means a single attempt.
	Timeout time.Duration
	// RetryInterval is the pause between attempts (default 1ms).
	RetryInterval time.Duration
	// Clock defaults to timeutil.RealClock.
	Clock timeutil.Clock
	// Layout defaults to wire.DefaultLayout.
	Layout wire.Layout
}

// Session is an open modem port. It releases the port exactly once on Close and
// reuses its transfer buffers between calls; methods are safe for concurrent
// use but serialise on the underlying Source.
type Session struct {
	src    Source
	clock  timeutil.Clock
	layout wire.Layout

	mu        sync.Mutex
	closed    bool
	rosterBuf []byte
	locBuf    []byte
}

// Open retries src.OpenPort every RetryInterval until it succeeds, the timeout
// elapses or ctx is cancelled.
func Open(ctx context.Context, src Source, opts OpenOptions) (*Session, error) {
	if src == nil {
		return nil, fmt.Errorf("dashapi: nil source")
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	interval := opts.RetryInterval
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	layout := opts.Layout
	if layout == (wire.Layout{}) {
		layout = wire.DefaultLayout
	}

	deadline := clock.Now().Add(opts.Timeout)
	for attempt := 1; ; attempt++ {
		if src.OpenPort() {
			if attempt > 1 {
				monitoring.Logf("[dashapi] port opened after %d attempts", attempt)
			}
			return &Session{
				src:       src,
				clock:     clock,
				layout:    layout,
				rosterBuf: make([]byte, layout.RosterSize()),
				locBuf:    make([]byte, layout.LocationsSize()),
			}, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("open port: %w", err)
		}
		if !clock.Now().Before(deadline) {
			return nil, fmt.Errorf("open port gave up after %d attempts: %w", attempt, lastError(src, "open port"))
		}
		clock.Sleep(interval)
	}
}

// Version queries the library version.
func (s *Session) Version() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	v, ok := s.src.APIVersion()
	if !ok {
		return 0, lastError(s.src, "api version")
	}
	return v, nil
}

// Roster fetches the device list and builds a roster from it. The session's
// layout is applied before opts.
func (s *Session) Roster(opts ...roster.Option) (*roster.Roster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if !s.src.DeviceList(s.rosterBuf) {
		return nil, lastError(s.src, "device list")
	}
	all := append([]roster.Option{roster.WithLayout(s.layout)}, opts...)
	r, err := roster.Build(s.rosterBuf, all...)
	if err != nil {
		return nil, fmt.Errorf("build roster: %w", err)
	}
	return r, nil
}

// Update fetches the last locations and merges them into r, stamped with the
// session clock. It reports whether any device advanced.
func (s *Session) Update(r *roster.Roster) (bool, error) {
	res, err := s.UpdateDetailed(r)
	if err != nil {
		return false, err
	}
	return res.Changed(), nil
}

// UpdateDetailed is Update with per-slot accounting.
func (s *Session) UpdateDetailed(r *roster.Roster) (roster.MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return roster.MergeResult{}, ErrClosed
	}
	if !s.src.LastLocations(s.locBuf) {
		return roster.MergeResult{}, lastError(s.src, "last locations")
	}
	res, err := r.MergeDetailed(s.locBuf, s.clock.Now())
	if err != nil {
		return roster.MergeResult{}, fmt.Errorf("merge locations: %w", err)
	}
	return res, nil
}

// Close releases the port. Only the first call reaches the Source.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.src.ClosePort() {
		return lastError(s.src, "close port")
	}
	return nil
}
