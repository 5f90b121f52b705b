package dashapi

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/marvelmind/internal/timeutil"
	"github.com/banshee-data/marvelmind/internal/wire"
)

func TestCaptureAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.mmcap")

	mock := NewMockSource(testEntries()...)
	mock.PushLocations(wire.CoordinateEntry{Address: 11, X: 1, Quality: 50})
	mock.PushLocations(wire.CoordinateEntry{Address: 11, X: 2, Quality: 60})

	clock := timeutil.NewMockClock(t0)
	capture, err := NewCaptureSource(mock, path, clock.Now)
	require.NoError(t, err)

	s, err := Open(context.Background(), capture, OpenOptions{Clock: clock})
	require.NoError(t, err)
	r, err := s.Roster()
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		clock.Advance(time.Millisecond)
		_, err := s.Update(r)
		require.NoError(t, err)
	}
	mock.FailNext(OpLastLocations, 1)
	_, err = s.Update(r)
	require.Error(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, capture.Close())
	assert.Equal(t, 3, capture.Records(), "failed calls are not recorded")

	records, err := ReadCapture(path)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.True(t, records[0].IsRoster())
	assert.Equal(t, t0, records[0].At)
	assert.Equal(t, t0.Add(2*time.Millisecond), records[2].At.UTC())

	replay, err := NewReplaySource(path, wire.Layout{})
	require.NoError(t, err)
	assert.Equal(t, 2, replay.Remaining())

	rclock := timeutil.NewMockClock(t0)
	rs, err := Open(context.Background(), replay, OpenOptions{Clock: rclock})
	require.NoError(t, err)
	defer rs.Close()

	rr, err := rs.Roster()
	require.NoError(t, err)
	assert.Equal(t, 2, rr.Len())

	var xs []int32
	for i := 0; i < 2; i++ {
		rclock.Advance(time.Millisecond)
		changed, err := rs.Update(rr)
		require.NoError(t, err)
		require.True(t, changed)
		d, _ := rr.Lookup(11)
		xs = append(xs, d.X())
	}
	assert.Equal(t, []int32{1, 2}, xs)

	select {
	case <-replay.Done():
		t.Fatal("replay is done before reading past the last buffer")
	default:
	}

	rclock.Advance(time.Millisecond)
	changed, err := rs.Update(rr)
	require.NoError(t, err)
	assert.False(t, changed, "exhausted replay serves invalid slots")

	select {
	case <-replay.Done():
	default:
		t.Fatal("replay should be done")
	}

	// further reads past the end do not close Done twice
	_, err = rs.Update(rr)
	require.NoError(t, err)
}

func TestNewReplaySource_LayoutMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.mmcap")
	mock := NewMockSource(testEntries()...)
	mock.PushLocations(wire.CoordinateEntry{Address: 11, X: 1, Quality: 50})

	clock := timeutil.NewMockClock(t0)
	capture, err := NewCaptureSource(mock, path, clock.Now)
	require.NoError(t, err)
	s, err := Open(context.Background(), capture, OpenOptions{Clock: clock})
	require.NoError(t, err)
	r, err := s.Roster()
	require.NoError(t, err)
	clock.Advance(time.Millisecond)
	_, err = s.Update(r)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, capture.Close())

	fewerSlots := wire.DefaultLayout
	fewerSlots.CoordinateSlots = 4
	_, err = NewReplaySource(path, fewerSlots)
	assert.ErrorContains(t, err, "locations buffer is 383 bytes")

	smallRoster := wire.DefaultLayout
	smallRoster.RosterCapacity = 8
	_, err = NewReplaySource(path, smallRoster)
	assert.ErrorContains(t, err, "device list is 2305 bytes")

	_, err = NewReplaySource(path, wire.DefaultLayout)
	assert.NoError(t, err)
}

func TestReadCapture_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.mmcap")
	require.NoError(t, os.WriteFile(path, []byte("not gzip"), 0o644))
	_, err := ReadCapture(path)
	assert.Error(t, err)

	_, err = NewReplaySource(filepath.Join(t.TempDir(), "missing"), wire.Layout{})
	assert.Error(t, err)
}

func TestNewReplaySource_NoRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.mmcap")
	c, err := NewCaptureSource(NewMockSource(), path, nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = NewReplaySource(path, wire.Layout{})
	assert.ErrorContains(t, err, "no device list")
}

func TestNewCaptureSource_RejectsEscapingPath(t *testing.T) {
	_, err := NewCaptureSource(NewMockSource(), "/proc/../etc/mm.mmcap", nil)
	assert.Error(t, err)
}
