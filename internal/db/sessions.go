package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/marvelmind/internal/roster"
)

// Session is one run of the tracker against a modem, capture or mock.
type Session struct {
	ID         string     `json:"session_id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	APIVersion uint32     `json:"api_version"`
	Source     string     `json:"source"`
}

// DeviceRecord is a roster entry as stored for a session.
type DeviceRecord struct {
	Address    uint8  `json:"address"`
	TypeCode   uint8  `json:"type_code"`
	TypeName   string `json:"type"`
	Firmware   string `json:"firmware"`
	Duplicated bool   `json:"duplicated"`
	Sleeping   bool   `json:"sleeping"`
	Connected  bool   `json:"connected"`
}

// StartSession stores a new session and its roster, returning the session id.
func (db *DB) StartSession(ctx context.Context, startedAt time.Time, apiVersion uint32, source string, devices []roster.Device) (string, error) {
	id := uuid.NewString()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, started_at, api_version, source) VALUES (?, ?, ?, ?)`,
		id, startedAt.UnixMilli(), apiVersion, source,
	); err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO devices (
		session_id, address, type_code, type_name, firmware, duplicated, sleeping, connected
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare devices: %w", err)
	}
	defer stmt.Close()
	for _, d := range devices {
		if _, err := stmt.ExecContext(ctx, id, d.Address(), d.TypeCode, d.Type.String(), d.Firmware(),
			d.Duplicated, d.Sleeping, d.Connected); err != nil {
			return "", fmt.Errorf("insert device %d: %w", d.Address(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit session: %w", err)
	}
	return id, nil
}

// EndSession stamps the end time of a session.
func (db *DB) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	res, err := db.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE session_id = ?`, endedAt.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session: %w", sql.ErrNoRows)
	}
	return nil
}

// Sessions lists sessions, newest first.
func (db *DB) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `SELECT session_id, started_at, ended_at, api_version, source
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			s       Session
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &started, &ended, &s.APIVersion, &s.Source); err != nil {
			return nil, err
		}
		s.StartedAt = time.UnixMilli(started).UTC()
		if ended.Valid {
			t := time.UnixMilli(ended.Int64).UTC()
			s.EndedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SessionDevices returns the stored roster of a session in address order.
func (db *DB) SessionDevices(ctx context.Context, id string) ([]DeviceRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT address, type_code, type_name, firmware, duplicated, sleeping, connected
		FROM devices WHERE session_id = ? ORDER BY address`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeviceRecord
	for rows.Next() {
		var d DeviceRecord
		if err := rows.Scan(&d.Address, &d.TypeCode, &d.TypeName, &d.Firmware, &d.Duplicated, &d.Sleeping, &d.Connected); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
