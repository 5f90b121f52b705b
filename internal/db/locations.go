package db

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/marvelmind/internal/roster"
)

// Location is one stored fix. Coordinates are millimetres.
type Location struct {
	SessionID string    `json:"session_id"`
	Address   uint8     `json:"address"`
	X         int32     `json:"x"`
	Y         int32     `json:"y"`
	Z         int32     `json:"z"`
	Quality   uint8     `json:"q"`
	At        time.Time `json:"t"`
}

// RecordLocations stores the current fix of every device in one transaction.
// Devices that were never updated are skipped.
func (db *DB) RecordLocations(ctx context.Context, sessionID string, devices []roster.Device) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO locations (
		session_id, address, x_mm, y_mm, z_mm, quality, t_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare locations: %w", err)
	}
	defer stmt.Close()

	for _, d := range devices {
		if !d.Tracking() {
			continue
		}
		if _, err := stmt.ExecContext(ctx, sessionID, d.Address(), d.X(), d.Y(), d.Z(), d.Quality(), d.UpdatedAt().UnixMilli()); err != nil {
			return fmt.Errorf("insert location %d: %w", d.Address(), err)
		}
	}
	return tx.Commit()
}

func (db *DB) queryLocations(ctx context.Context, query string, args ...interface{}) ([]Location, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		var (
			l  Location
			ms int64
		)
		if err := rows.Scan(&l.SessionID, &l.Address, &l.X, &l.Y, &l.Z, &l.Quality, &ms); err != nil {
			return nil, err
		}
		l.At = time.UnixMilli(ms).UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}

// LatestLocations returns the newest fix of every address, in address order.
func (db *DB) LatestLocations(ctx context.Context) ([]Location, error) {
	return db.queryLocations(ctx, `
		SELECT l.session_id, l.address, l.x_mm, l.y_mm, l.z_mm, l.quality, l.t_ms
		FROM locations l
		JOIN (
			SELECT address, MAX(location_id) AS location_id FROM locations GROUP BY address
		) latest ON latest.location_id = l.location_id
		ORDER BY l.address`)
}

// LocationsForAddress returns fixes of address at or after since, oldest
// first, at most limit rows (all if limit <= 0).
func (db *DB) LocationsForAddress(ctx context.Context, address uint8, since time.Time, limit int) ([]Location, error) {
	if limit <= 0 {
		limit = -1
	}
	return db.queryLocations(ctx, `
		SELECT session_id, address, x_mm, y_mm, z_mm, quality, t_ms
		FROM locations
		WHERE address = ? AND t_ms >= ?
		ORDER BY t_ms, location_id
		LIMIT ?`, address, since.UnixMilli(), limit)
}

// Recorder stores fresh fixes for one session. It satisfies tracker.Sink.
type Recorder struct {
	DB        *DB
	SessionID string
	Timeout   time.Duration // per batch, default 5s
}

func (r *Recorder) Consume(devices []roster.Device) error {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return r.DB.RecordLocations(ctx, r.SessionID, devices)
}
