// Package api serves the tracker's live state, stored history and debug
// charts over HTTP, and its liveness over the gRPC health protocol.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/marvelmind/internal/dashapi"
	"github.com/banshee-data/marvelmind/internal/db"
	"github.com/banshee-data/marvelmind/internal/httputil"
	"github.com/banshee-data/marvelmind/internal/monitoring"
	"github.com/banshee-data/marvelmind/internal/roster"
	"github.com/banshee-data/marvelmind/internal/tracker"
	"github.com/banshee-data/marvelmind/internal/units"
)

var logf = monitoring.Component("api")

const (
	defaultHistoryLimit = 256
	maxHistoryLimit     = 100000
	dbTimeout           = 5 * time.Second
)

// Status is what /api/status reports about the acquisition loop.
type Status struct {
	Open         bool                `json:"open"`
	SessionID    string              `json:"session_id,omitempty"`
	APIVersion   uint32              `json:"api_version"`
	Source       string              `json:"source"`
	Seq          uint64              `json:"seq"`
	Poller       tracker.PollerStats `json:"poller"`
	SinkFailures int64               `json:"sink_failures"`
}

// Config wires a Server. Only State is required.
type Config struct {
	State *tracker.State
	DB    *db.DB // nil disables the stored-history routes
	Units string

	// Ports lists serial ports; dashapi.DetectPorts by default.
	Ports func() ([]dashapi.PortInfo, error)
	// Status fills the loop counters for /api/status.
	Status func() Status
}

type Server struct {
	state  *tracker.State
	db     *db.DB
	units  string
	ports  func() ([]dashapi.PortInfo, error)
	status func() Status
	mux    *http.ServeMux
}

func NewServer(cfg Config) *Server {
	s := &Server{
		state:  cfg.State,
		db:     cfg.DB,
		units:  cfg.Units,
		ports:  cfg.Ports,
		status: cfg.Status,
	}
	if !units.IsValid(s.units) {
		s.units = units.M
	}
	if s.ports == nil {
		s.ports = dashapi.DetectPorts
	}
	return s
}

// ServeMux returns the routes, building them on first use.
func (s *Server) ServeMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/ports", s.handlePorts)
	mux.HandleFunc("/api/locations", s.handleLocations)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/devices", s.handleSessionDevices)
	mux.HandleFunc("/api/track.png", s.handleTrackPNG)
	mux.HandleFunc("/debug/positions", s.handlePositionsChart)
	s.mux = mux
	return mux
}

// DeviceView is the JSON form of a roster device. Coordinates are in the
// server's display unit.
type DeviceView struct {
	Address    uint8      `json:"address"`
	Type       string     `json:"type"`
	TypeCode   uint8      `json:"type_code"`
	Firmware   string     `json:"firmware"`
	Connected  bool       `json:"connected"`
	Sleeping   bool       `json:"sleeping"`
	Duplicated bool       `json:"duplicated"`
	Tracking   bool       `json:"tracking"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Z          float64    `json:"z"`
	Quality    uint8      `json:"q"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

func (s *Server) deviceView(d roster.Device) DeviceView {
	v := DeviceView{
		Address:    d.Address(),
		Type:       d.Type.String(),
		TypeCode:   d.TypeCode,
		Firmware:   d.Firmware(),
		Connected:  d.Connected,
		Sleeping:   d.Sleeping,
		Duplicated: d.Duplicated,
		Tracking:   d.Tracking(),
		X:          units.FromMillimetres(d.X(), s.units),
		Y:          units.FromMillimetres(d.Y(), s.units),
		Z:          units.FromMillimetres(d.Z(), s.units),
		Quality:    d.Quality(),
	}
	if d.Tracking() {
		at := d.UpdatedAt()
		v.UpdatedAt = &at
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	if !s.state.Open() {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "down", "open": false})
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"status": "ok", "open": true})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":       s.units,
		"valid_units": units.ValidUnits,
		"database":    s.db != nil,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	st := Status{}
	if s.status != nil {
		st = s.status()
	}
	st.Open = s.state.Open()
	st.Seq = s.state.Latest().Seq
	httputil.WriteJSONOK(w, st)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	devs := s.state.Devices()
	out := make([]DeviceView, 0, len(devs))
	for _, d := range devs {
		out = append(out, s.deviceView(d))
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":   s.units,
		"seq":     s.state.Latest().Seq,
		"devices": out,
	})
}

// queryAddress reads the mandatory address parameter, writing 400 on failure.
func queryAddress(w http.ResponseWriter, r *http.Request) (uint8, bool) {
	if r.URL.Query().Get("address") == "" {
		httputil.BadRequest(w, "missing 'address' parameter")
		return 0, false
	}
	a, ok := httputil.QueryInt(r, "address", 0, 0, 255)
	if !ok {
		httputil.BadRequest(w, "invalid 'address' parameter: must be 0-255")
		return 0, false
	}
	return uint8(a), true
}

// FixView is a history entry in the display unit.
type FixView struct {
	At      time.Time `json:"t"`
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
	Z       float64   `json:"z"`
	Quality uint8     `json:"q"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	addr, ok := queryAddress(w, r)
	if !ok {
		return
	}
	limit, ok := httputil.QueryInt(r, "limit", defaultHistoryLimit, 1, maxHistoryLimit)
	if !ok {
		httputil.BadRequest(w, "invalid 'limit' parameter")
		return
	}
	h := s.state.History(addr)
	if len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]FixView, len(h))
	for i, f := range h {
		out[i] = FixView{
			At:      f.At,
			X:       units.FromMillimetres(f.Pos.X, s.units),
			Y:       units.FromMillimetres(f.Pos.Y, s.units),
			Z:       units.FromMillimetres(f.Pos.Z, s.units),
			Quality: f.Quality,
		}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"address": addr,
		"units":   s.units,
		"fixes":   out,
	})
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	ports, err := s.ports()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list ports: %v", err))
		return
	}
	if ports == nil {
		ports = []dashapi.PortInfo{}
	}
	httputil.WriteJSONOK(w, ports)
}

// requireDB writes 503 when no database is attached.
func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		httputil.ServiceUnavailable(w, "database disabled")
		return false
	}
	return true
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) || !s.requireDB(w) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), dbTimeout)
	defer cancel()

	if r.URL.Query().Get("address") == "" {
		locs, err := s.db.LatestLocations(ctx)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to query locations: %v", err))
			return
		}
		httputil.WriteJSONOK(w, nonNil(locs))
		return
	}

	addr, ok := queryAddress(w, r)
	if !ok {
		return
	}
	since, ok := parseSince(w, r)
	if !ok {
		return
	}
	limit, ok := httputil.QueryInt(r, "limit", defaultHistoryLimit, 1, maxHistoryLimit)
	if !ok {
		httputil.BadRequest(w, "invalid 'limit' parameter")
		return
	}
	locs, err := s.db.LocationsForAddress(ctx, addr, since, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query locations: %v", err))
		return
	}
	httputil.WriteJSONOK(w, nonNil(locs))
}

// parseSince reads an optional RFC 3339 'since' parameter.
func parseSince(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		httputil.BadRequest(w, "invalid 'since' parameter: want RFC 3339")
		return time.Time{}, false
	}
	return t, true
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) || !s.requireDB(w) {
		return
	}
	limit, ok := httputil.QueryInt(r, "limit", 50, 1, 1000)
	if !ok {
		httputil.BadRequest(w, "invalid 'limit' parameter")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), dbTimeout)
	defer cancel()
	sessions, err := s.db.Sessions(ctx, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query sessions: %v", err))
		return
	}
	httputil.WriteJSONOK(w, nonNil(sessions))
}

func (s *Server) handleSessionDevices(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) || !s.requireDB(w) {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "missing 'id' parameter")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), dbTimeout)
	defer cancel()
	devs, err := s.db.SessionDevices(ctx, id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query session devices: %v", err))
		return
	}
	if len(devs) == 0 {
		httputil.NotFound(w, "session not found")
		return
	}
	httputil.WriteJSONOK(w, devs)
}
