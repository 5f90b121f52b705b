// Package export writes tracked positions out of the process: a semicolon
// separated log of fresh fixes and PNG track plots.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/banshee-data/marvelmind/internal/roster"
	"github.com/banshee-data/marvelmind/internal/security"
)

// CSVHeader is the first record of every log.
var CSVHeader = []string{"address", "x", "y", "z", "q", "t"}

// CSVLog appends one record per fresh fix: address, x, y, z in millimetres,
// quality and the update time in milliseconds since the Unix epoch. It
// satisfies tracker.Sink.
type CSVLog struct {
	mu     sync.Mutex
	w      *csv.Writer
	c      io.Closer
	filter map[uint8]bool // nil logs every address
	rows   int
}

// NewCSVLog writes the header to w. Only addresses are logged when any are
// given.
func NewCSVLog(w io.Writer, addresses ...uint8) (*CSVLog, error) {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(CSVHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	l := &CSVLog{w: cw}
	if len(addresses) > 0 {
		l.filter = make(map[uint8]bool, len(addresses))
		for _, a := range addresses {
			l.filter[a] = true
		}
	}
	return l, nil
}

// CreateCSVLog truncates path and returns a log writing to it. path must be
// inside the temp directory, the working directory or one of allowedDirs.
func CreateCSVLog(path string, allowedDirs []string, addresses ...uint8) (*CSVLog, error) {
	if err := security.ValidateExportPath(path, allowedDirs...); err != nil {
		return nil, fmt.Errorf("csv path: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open csv output: %w", err)
	}
	l, err := NewCSVLog(f, addresses...)
	if err != nil {
		f.Close()
		return nil, err
	}
	l.c = f
	return l, nil
}

func (l *CSVLog) Consume(devices []roster.Device) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range devices {
		if l.filter != nil && !l.filter[d.Address()] {
			continue
		}
		rec := []string{
			strconv.Itoa(int(d.Address())),
			strconv.Itoa(int(d.X())),
			strconv.Itoa(int(d.Y())),
			strconv.Itoa(int(d.Z())),
			strconv.Itoa(int(d.Quality())),
			strconv.FormatInt(d.UpdatedAt().UnixMilli(), 10),
		}
		if err := l.w.Write(rec); err != nil {
			return err
		}
		l.rows++
	}
	l.w.Flush()
	return l.w.Error()
}

// Rows returns how many records have been written after the header.
func (l *CSVLog) Rows() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows
}

// Close flushes and, for logs created by CreateCSVLog, closes the file.
func (l *CSVLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	err := l.w.Error()
	if l.c != nil {
		if cerr := l.c.Close(); err == nil {
			err = cerr
		}
		l.c = nil
	}
	return err
}
