package dashapi

import (
	"sync"

	"github.com/banshee-data/marvelmind/internal/wire"
)

// Op names a Source call for failure injection.
type Op string

const (
	OpAPIVersion    Op = "api version"
	OpOpenPort      Op = "open port"
	OpClosePort     Op = "close port"
	OpDeviceList    Op = "device list"
	OpLastLocations Op = "last locations"
)

// MockSource is a scripted Source for tests and dev mode. Location snapshots are
// served from a queue; once it is drained the last snapshot repeats, or
// Generator is consulted when set.
type MockSource struct {
	mu sync.Mutex

	layout  wire.Layout
	version uint32
	entries []wire.RosterEntry
	queue   [][]wire.CoordinateEntry
	last    []wire.CoordinateEntry

	// Generator, when non-nil, produces the coordinates for call n (starting
	// at 0) whenever the queue is empty.
	Generator func(n int) []wire.CoordinateEntry

	openFailures   int
	failures       map[Op][]uint32
	lastCode       uint32
	lastLookupFail bool

	open      bool
	calls     map[Op]int
	generated int
}

// NewMockSource returns a MockSource reporting entries as its device list.
func NewMockSource(entries ...wire.RosterEntry) *MockSource {
	return &MockSource{
		layout:   wire.DefaultLayout,
		version:  1,
		entries:  entries,
		failures: make(map[Op][]uint32),
		calls:    make(map[Op]int),
	}
}

// WithLayout sets the buffer geometry the mock encodes with.
func (m *MockSource) WithLayout(l wire.Layout) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layout = l
	return m
}

// SetVersion sets the value returned by APIVersion.
func (m *MockSource) SetVersion(v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version = v
}

// SetRoster replaces the device list.
func (m *MockSource) SetRoster(entries ...wire.RosterEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = entries
}

// PushLocations queues one coordinate snapshot.
func (m *MockSource) PushLocations(coords ...wire.CoordinateEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, coords)
}

// FailOpen makes the next n OpenPort calls fail with code.
func (m *MockSource) FailOpen(n int, code uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openFailures = n
	m.lastCode = code
}

// FailNext makes the next call of op fail with code. Calls queue up.
func (m *MockSource) FailNext(op Op, code uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], code)
}

// BreakErrorLookup makes LastError itself fail.
func (m *MockSource) BreakErrorLookup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLookupFail = true
}

// Calls returns how many times op was invoked.
func (m *MockSource) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// IsOpen reports whether the port is currently open.
func (m *MockSource) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// fail consumes a queued failure for op. Must hold m.mu.
func (m *MockSource) fail(op Op) bool {
	m.calls[op]++
	codes := m.failures[op]
	if len(codes) == 0 {
		return false
	}
	m.lastCode = codes[0]
	m.failures[op] = codes[1:]
	return true
}

func (m *MockSource) APIVersion() (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail(OpAPIVersion) {
		return 0, false
	}
	return m.version, true
}

func (m *MockSource) OpenPort() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail(OpOpenPort) {
		return false
	}
	if m.openFailures > 0 {
		m.openFailures--
		return false
	}
	m.open = true
	return true
}

func (m *MockSource) ClosePort() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail(OpClosePort) {
		return false
	}
	m.open = false
	return true
}

func (m *MockSource) DeviceList(buf []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail(OpDeviceList) {
		return false
	}
	enc, err := m.layout.EncodeRoster(m.entries)
	if err != nil || len(buf) != len(enc) {
		m.lastCode = 0
		return false
	}
	copy(buf, enc)
	return true
}

func (m *MockSource) LastLocations(buf []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail(OpLastLocations) {
		return false
	}
	switch {
	case len(m.queue) > 0:
		m.last = m.queue[0]
		m.queue = m.queue[1:]
	case m.Generator != nil:
		m.last = m.Generator(m.generated)
		m.generated++
	}
	enc, err := m.layout.EncodeLocations(m.last)
	if err != nil || len(buf) != len(enc) {
		m.lastCode = 0
		return false
	}
	copy(buf, enc)
	return true
}

func (m *MockSource) LastError() (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastLookupFail {
		return 0, false
	}
	return m.lastCode, true
}
