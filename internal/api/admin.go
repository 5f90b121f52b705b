package api

import (
	"fmt"
	"net/http"

	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts a plain-text roster dump under /debug/roster.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("roster", "Current roster and last fixes", http.HandlerFunc(s.serveRosterDump))
}

func (s *Server) serveRosterDump(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Latest()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "seq %d at %s open %t\n", snap.Seq, snap.At.Format("2006-01-02T15:04:05.000Z07:00"), s.state.Open())
	for _, d := range snap.Devices() {
		updated := "never"
		if d.Tracking() {
			updated = d.UpdatedAt().Format("15:04:05.000")
		}
		fmt.Fprintf(w, "%s fw %s connected %t sleeping %t updated %s\n",
			d, d.Firmware(), d.Connected, d.Sleeping, updated)
	}
}
