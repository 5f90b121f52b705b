package dashapi

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/banshee-data/marvelmind/internal/security"
	"github.com/banshee-data/marvelmind/internal/wire"
)

// Capture files are a gzip stream of records:
//
//	kind (1) | unix nanos int64 LE (8) | length uint32 LE (4) | buffer
//
// Only successful DeviceList and LastLocations calls are recorded.
const (
	recordRoster    byte = 1
	recordLocations byte = 2

	recordHeaderSize = 13
	maxRecordSize    = 1 << 20
)

// CaptureSource wraps a Source and records every buffer it returns.
type CaptureSource struct {
	Source

	mu    sync.Mutex
	now   func() time.Time
	f     *os.File
	gz    *gzip.Writer
	w     *bufio.Writer
	count int
	err   error
}

// NewCaptureSource creates (or truncates) path and records src's buffers into it.
func NewCaptureSource(src Source, path string, now func() time.Time) (*CaptureSource, error) {
	if err := security.ValidateExportPath(path); err != nil {
		return nil, fmt.Errorf("capture path: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	gz := gzip.NewWriter(f)
	return &CaptureSource{Source: src, now: now, f: f, gz: gz, w: bufio.NewWriter(gz)}, nil
}

func (c *CaptureSource) DeviceList(buf []byte) bool {
	ok := c.Source.DeviceList(buf)
	if ok {
		c.record(recordRoster, buf)
	}
	return ok
}

func (c *CaptureSource) LastLocations(buf []byte) bool {
	ok := c.Source.LastLocations(buf)
	if ok {
		c.record(recordLocations, buf)
	}
	return ok
}

func (c *CaptureSource) record(kind byte, buf []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil || c.w == nil {
		return
	}
	var hdr [recordHeaderSize]byte
	hdr[0] = kind
	binary.LittleEndian.PutUint64(hdr[1:9], uint64(c.now().UnixNano()))
	binary.LittleEndian.PutUint32(hdr[9:13], uint32(len(buf)))
	if _, err := c.w.Write(hdr[:]); err != nil {
		c.err = err
		return
	}
	if _, err := c.w.Write(buf); err != nil {
		c.err = err
		return
	}
	c.count++
}

// Records returns the number of buffers written so far.
func (c *CaptureSource) Records() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Close flushes and closes the capture file. It does not close the port.
func (c *CaptureSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return c.err
	}
	errs := []error{c.err, c.w.Flush(), c.gz.Close(), c.f.Close()}
	c.w = nil
	return errors.Join(errs...)
}

// CaptureRecord is one buffer read back from a capture file.
type CaptureRecord struct {
	Kind byte
	At   time.Time
	Data []byte
}

// IsRoster reports whether the record holds a device list buffer.
func (r CaptureRecord) IsRoster() bool { return r.Kind == recordRoster }

// ReadCapture reads every record of a capture file.
func ReadCapture(path string) ([]CaptureRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read capture %s: %w", path, err)
	}
	defer gz.Close()

	r := bufio.NewReader(gz)
	var records []CaptureRecord
	for {
		var hdr [recordHeaderSize]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return nil, fmt.Errorf("read capture record %d header: %w", len(records), err)
		}
		kind := hdr[0]
		if kind != recordRoster && kind != recordLocations {
			return nil, fmt.Errorf("capture record %d: unknown kind %d", len(records), kind)
		}
		size := binary.LittleEndian.Uint32(hdr[9:13])
		if size > maxRecordSize {
			return nil, fmt.Errorf("capture record %d: size %d too large", len(records), size)
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("read capture record %d: %w", len(records), err)
		}
		records = append(records, CaptureRecord{
			Kind: kind,
			At:   time.Unix(0, int64(binary.LittleEndian.Uint64(hdr[1:9]))).UTC(),
			Data: data,
		})
	}
}

// ReplaySource serves a capture file as a Source. The first device list is
// always returned; location buffers are served in order, and once they run out
// every slot reads as invalid.
type ReplaySource struct {
	mu        sync.Mutex
	layout    wire.Layout
	roster    []byte
	locations [][]byte
	next      int
	empty     []byte
	done      chan struct{}
	exhausted bool
	open      bool
}

// NewReplaySource loads path. The capture must contain at least one device
// list, and every record must match layout.
func NewReplaySource(path string, layout wire.Layout) (*ReplaySource, error) {
	records, err := ReadCapture(path)
	if err != nil {
		return nil, err
	}
	if layout == (wire.Layout{}) {
		layout = wire.DefaultLayout
	}

	rs := &ReplaySource{layout: layout, done: make(chan struct{})}
	for i, rec := range records {
		if rec.IsRoster() {
			if len(rec.Data) != layout.RosterSize() {
				return nil, fmt.Errorf("capture %s record %d: device list is %d bytes, want %d",
					path, i, len(rec.Data), layout.RosterSize())
			}
			if rs.roster == nil {
				rs.roster = rec.Data
			}
			continue
		}
		if len(rec.Data) != layout.LocationsSize() {
			return nil, fmt.Errorf("capture %s record %d: locations buffer is %d bytes, want %d",
				path, i, len(rec.Data), layout.LocationsSize())
		}
		rs.locations = append(rs.locations, rec.Data)
	}
	if rs.roster == nil {
		return nil, fmt.Errorf("capture %s has no device list", path)
	}
	rs.empty, err = layout.EncodeLocations(nil)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// Done is closed on the first read past the last captured location buffer,
// so every captured buffer has already been handed to the caller.
func (r *ReplaySource) Done() <-chan struct{} { return r.done }

// Remaining returns how many location buffers are left.
func (r *ReplaySource) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locations) - r.next
}

func (r *ReplaySource) APIVersion() (uint32, bool) { return 0, true }

func (r *ReplaySource) OpenPort() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = true
	return true
}

func (r *ReplaySource) ClosePort() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	return true
}

func (r *ReplaySource) DeviceList(buf []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(buf) != len(r.roster) {
		return false
	}
	copy(buf, r.roster)
	return true
}

func (r *ReplaySource) LastLocations(buf []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	src := r.empty
	if r.next < len(r.locations) {
		src = r.locations[r.next]
		r.next++
	} else if !r.exhausted {
		r.exhausted = true
		close(r.done)
	}
	if len(buf) != len(src) {
		return false
	}
	copy(buf, src)
	return true
}

func (r *ReplaySource) LastError() (uint32, bool) { return 0, true }
