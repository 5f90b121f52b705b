package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/marvelmind/internal/dashapi"
	"github.com/banshee-data/marvelmind/internal/monitoring"
	"github.com/banshee-data/marvelmind/internal/roster"
	"github.com/banshee-data/marvelmind/internal/timeutil"
	"github.com/banshee-data/marvelmind/internal/wire"
)

var t0 = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

type fixture struct {
	src     *dashapi.MockSource
	clock   *timeutil.MockClock
	session *dashapi.Session
	roster  *roster.Roster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	src := dashapi.NewMockSource(
		wire.RosterEntry{Address: 11, TypeCode: 30, Flags: wire.StatusConnected},
		wire.RosterEntry{Address: 12, TypeCode: 31, Flags: wire.StatusConnected},
	)
	clock := timeutil.NewMockClock(t0)
	s, err := dashapi.Open(context.Background(), src, dashapi.OpenOptions{Clock: clock})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	r, err := s.Roster()
	require.NoError(t, err)
	return &fixture{src: src, clock: clock, session: s, roster: r}
}

// startPoller runs p and waits until its ticker exists.
func startPoller(t *testing.T, ctx context.Context, p *Poller, clock *timeutil.MockClock) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	require.Eventually(t, func() bool { return len(clock.Tickers()) == 1 }, time.Second, time.Millisecond)
	return done
}

func receive(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "channel closed")
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot")
		return Snapshot{}
	}
}

func TestPoller_SendsCloneOnChange(t *testing.T) {
	f := newFixture(t)
	f.src.PushLocations(wire.CoordinateEntry{Address: 11, X: 1000, Y: -2000, Z: 300, Quality: 80})

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(f.session, f.roster, PollerConfig{Interval: time.Millisecond, Clock: f.clock})
	done := startPoller(t, ctx, p, f.clock)

	f.clock.Advance(time.Millisecond)
	snap := receive(t, p.Snapshots())
	assert.Equal(t, uint64(1), snap.Seq)
	assert.Equal(t, []uint8{11}, snap.Updated)

	d, ok := snap.Roster.Lookup(11)
	require.True(t, ok)
	assert.Equal(t, roster.Position{X: 1000, Y: -2000, Z: 300}, d.Position())
	assert.Equal(t, t0.Add(time.Millisecond), d.UpdatedAt())

	cancel()
	require.NoError(t, <-done)
	_, open := <-p.Snapshots()
	assert.False(t, open)
	assert.Equal(t, uint64(1), p.Stats().Changes)
}

func TestPoller_NoSnapshotWithoutChange(t *testing.T) {
	f := newFixture(t)
	f.src.PushLocations(wire.CoordinateEntry{Address: 99, X: 1, Quality: 50}) // unknown address

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(f.session, f.roster, PollerConfig{Interval: time.Millisecond, Clock: f.clock})
	done := startPoller(t, ctx, p, f.clock)

	f.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return p.Stats().Polls == 1 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	for range p.Snapshots() {
		t.Fatal("unexpected snapshot")
	}
}

func TestPoller_BacksOffOnRetryableError(t *testing.T) {
	f := newFixture(t)
	f.src.FailNext(dashapi.OpLastLocations, 1)
	f.src.PushLocations(wire.CoordinateEntry{Address: 12, X: 5, Quality: 90})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPoller(f.session, f.roster, PollerConfig{Interval: time.Millisecond, ErrorBackoff: time.Second, Clock: f.clock})
	startPoller(t, ctx, p, f.clock)

	f.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return f.clock.Waiters() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), p.Stats().Errors)

	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.clock.Waiters() == 0 }, time.Second, time.Millisecond)
	f.clock.Advance(time.Millisecond)

	snap := receive(t, p.Snapshots())
	assert.Equal(t, []uint8{12}, snap.Updated)
}

func TestPoller_StopsOnLicenseError(t *testing.T) {
	f := newFixture(t)
	f.src.FailNext(dashapi.OpLastLocations, 3)

	p := NewPoller(f.session, f.roster, PollerConfig{Interval: time.Millisecond, Clock: f.clock})
	done := startPoller(t, context.Background(), p, f.clock)

	f.clock.Advance(time.Millisecond)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, dashapi.ErrLicense)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

type malformedUpdater struct{}

func (malformedUpdater) UpdateDetailed(*roster.Roster) (roster.MergeResult, error) {
	return roster.MergeResult{}, fmt.Errorf("merge locations: %w", &wire.MalformedBufferError{Kind: "locations", Reason: "short"})
}

func TestPoller_StopsOnMalformedBuffer(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	r, err := roster.Build(mustRoster(t))
	require.NoError(t, err)

	p := NewPoller(malformedUpdater{}, r, PollerConfig{Clock: clock})
	done := startPoller(t, context.Background(), p, clock)
	clock.Advance(time.Millisecond)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, wire.ErrMalformedBuffer)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func mustRoster(t *testing.T) []byte {
	t.Helper()
	buf, err := wire.EncodeRoster([]wire.RosterEntry{{Address: 11, TypeCode: 30}})
	require.NoError(t, err)
	return buf
}

// snapshotAt builds a snapshot where address 11 was updated at at.
func snapshotAt(t *testing.T, seq uint64, at time.Time, x int32, q uint8) Snapshot {
	t.Helper()
	r, err := roster.Build(mustRoster(t))
	require.NoError(t, err)
	buf, err := wire.EncodeLocations([]wire.CoordinateEntry{{Address: 11, X: x, Y: 2000, Z: -300, Quality: q}})
	require.NoError(t, err)
	_, err = r.Merge(buf, at)
	require.NoError(t, err)
	return Snapshot{Seq: seq, At: at, Roster: r}
}

func TestDispatcher_FreshnessFilter(t *testing.T) {
	var got [][]roster.Device
	sink := SinkFunc(func(devs []roster.Device) error {
		got = append(got, devs)
		return nil
	})
	state := NewState(2)
	d := NewDispatcher(state, sink)

	d.Handle(snapshotAt(t, 1, t0.Add(time.Millisecond), 1, 10))
	d.Handle(snapshotAt(t, 2, t0.Add(time.Millisecond), 2, 10)) // same time: stale
	d.Handle(snapshotAt(t, 3, t0, 3, 10))                       // older: stale
	d.Handle(snapshotAt(t, 4, t0.Add(2*time.Millisecond), 4, 10))
	d.Handle(snapshotAt(t, 5, t0.Add(3*time.Millisecond), 5, 10))

	require.Len(t, got, 3)
	assert.Equal(t, int32(1), got[0][0].X())
	assert.Equal(t, int32(4), got[1][0].X())

	assert.Equal(t, uint64(5), state.Latest().Seq)
	h := state.History(11)
	require.Len(t, h, 2, "history is bounded")
	assert.Equal(t, int32(4), h[0].Pos.X)
	assert.Equal(t, int32(5), h[1].Pos.X)
}

func TestDispatcher_NeverUpdatedIsNotFresh(t *testing.T) {
	r, err := roster.Build(mustRoster(t))
	require.NoError(t, err)
	d := NewDispatcher(nil)
	assert.Empty(t, d.Fresh(Snapshot{Roster: r}))
}

func TestDispatcher_SinkErrorsDoNotStopOthers(t *testing.T) {
	calls := 0
	bad := SinkFunc(func([]roster.Device) error { return errors.New("disk full") })
	good := SinkFunc(func([]roster.Device) error { calls++; return nil })
	d := NewDispatcher(nil, bad, good)

	d.Handle(snapshotAt(t, 1, t0.Add(time.Millisecond), 1, 10))
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), d.Failures())
}

func TestDispatcher_RunDrainsUntilClosed(t *testing.T) {
	const queued = 10
	in := make(chan Snapshot, queued)
	n := 0
	state := NewState(queued)
	d := NewDispatcher(state, SinkFunc(func(devs []roster.Device) error { n += len(devs); return nil }))
	for i := 0; i < queued; i++ {
		in <- snapshotAt(t, uint64(i+1), t0.Add(time.Duration(i+1)*time.Millisecond), int32(i), 10)
	}
	close(in)

	d.Run(in)
	assert.Equal(t, queued, n)
	assert.Equal(t, uint64(queued), state.Latest().Seq)
}

// scriptedUpdater applies one fix per call at clock time, then fails for good.
type scriptedUpdater struct {
	clock *timeutil.MockClock
	xs    []int32
	calls int
}

func (u *scriptedUpdater) UpdateDetailed(r *roster.Roster) (roster.MergeResult, error) {
	if u.calls >= len(u.xs) {
		return roster.MergeResult{}, errors.New("license expired")
	}
	x := u.xs[u.calls]
	u.calls++
	buf, err := wire.EncodeLocations([]wire.CoordinateEntry{{Address: 11, X: x, Quality: 50}})
	if err != nil {
		return roster.MergeResult{}, err
	}
	return r.MergeDetailed(buf, u.clock.Now())
}

func TestPollerStop_DeliversQueuedSnapshots(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	r, err := roster.Build(mustRoster(t))
	require.NoError(t, err)
	u := &scriptedUpdater{clock: clock, xs: []int32{1, 2, 3}}
	p := NewPoller(u, r, PollerConfig{Interval: time.Millisecond, Buffer: 8, Clock: clock})

	var got []int32
	d := NewDispatcher(nil, SinkFunc(func(devs []roster.Device) error {
		for _, dev := range devs {
			got = append(got, dev.X())
		}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pollDone := make(chan error, 1)
	go func() {
		err := p.Run(ctx)
		cancel() // as mmtrack does when the poller stops
		pollDone <- err
	}()
	require.Eventually(t, func() bool { return len(clock.Tickers()) == 1 }, time.Second, time.Millisecond)

	for i := uint64(1); i <= 3; i++ {
		clock.Advance(time.Millisecond)
		require.Eventually(t, func() bool { return p.Stats().Changes == i }, time.Second, time.Millisecond)
	}
	clock.Advance(time.Millisecond)
	select {
	case err := <-pollDone:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}

	dispatchDone := make(chan struct{})
	go func() {
		d.Run(p.Snapshots())
		close(dispatchDone)
	}()
	select {
	case <-dispatchDone:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not return after the poller closed its channel")
	}
	assert.Equal(t, []int32{1, 2, 3}, got)
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	fresh := NewDispatcher(nil).Fresh(snapshotAt(t, 1, t0.Add(time.Millisecond), 1000, 80))
	require.NoError(t, ConsoleSink{W: &buf}.Consume(fresh))
	assert.Equal(t, "address #011 x 1.000 y 2.000 z -0.300 q 80\n", buf.String())

	buf.Reset()
	zero := NewDispatcher(nil).Fresh(snapshotAt(t, 1, t0.Add(time.Millisecond), 1000, 0))
	require.NoError(t, ConsoleSink{W: &buf, Unit: "cm"}.Consume(zero))
	assert.Empty(t, buf.String(), "quality 0 is not printed")
}

func TestState_Open(t *testing.T) {
	s := NewState(0)
	assert.False(t, s.Open())
	s.SetOpen(true)
	assert.True(t, s.Open())
	assert.Nil(t, s.Devices())
}
