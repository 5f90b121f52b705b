// Command mmplot draws the stored XY track of one device as a PNG.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/marvelmind/internal/db"
	"github.com/banshee-data/marvelmind/internal/export"
	"github.com/banshee-data/marvelmind/internal/security"
	"github.com/banshee-data/marvelmind/internal/version"
)

var (
	dbPath      = flag.String("db", "mmtrack.db", "SQLite database written by mmtrack")
	address     = flag.Int("address", -1, "Device address to plot (0-255)")
	out         = flag.String("out", "", "Output PNG (default track-<address>.png)")
	since       = flag.String("since", "", "Only fixes at or after this RFC 3339 time, or a duration like 15m")
	session     = flag.String("session", "", "Only fixes from this session id")
	limit       = flag.Int("limit", 0, "At most this many fixes (0 for all)")
	unit        = flag.String("units", "m", "Axis units: mm, cm, m, in, ft")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("mmplot"))
		return
	}
	if *address < 0 || *address > 255 {
		log.Fatal("-address is required and must be 0-255")
	}

	from, err := parseSince(*since, time.Now())
	if err != nil {
		log.Fatal(err)
	}
	path := *out
	if path == "" {
		path = security.SanitizeFilename(fmt.Sprintf("track-%03d", *address)) + ".png"
	}

	n, err := plotAddress(context.Background(), *dbPath, uint8(*address), from, *session, *limit, path, *unit)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %d fixes to %s", n, path)
}

// parseSince accepts an RFC 3339 time or a duration back from now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid -since %q: want RFC 3339 or a positive duration", s)
	}
	return now.Add(-d), nil
}

func plotAddress(ctx context.Context, dbFile string, addr uint8, from time.Time, sessionID string, max int, path, unit string) (int, error) {
	if _, err := os.Stat(dbFile); err != nil {
		return 0, fmt.Errorf("database: %w", err)
	}
	store, err := db.NewDB(dbFile)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	locs, err := store.LocationsForAddress(ctx, addr, from, 0)
	if err != nil {
		return 0, err
	}

	pts := make([]export.TrackPoint, 0, len(locs))
	for _, l := range locs {
		if sessionID != "" && l.SessionID != sessionID {
			continue
		}
		pts = append(pts, export.TrackPoint{X: l.X, Y: l.Y, Quality: l.Quality, At: l.At})
	}
	if max > 0 && len(pts) > max {
		pts = pts[len(pts)-max:]
	}
	if len(pts) == 0 {
		return 0, fmt.Errorf("no fixes for address %d", addr)
	}

	title := fmt.Sprintf("address %d (%s to %s)", addr,
		pts[0].At.Format(time.DateTime), pts[len(pts)-1].At.Format(time.DateTime))
	allowed := []string{filepath.Dir(dbFile)}
	if err := export.SaveTrackPNG(path, allowed, title, pts, unit); err != nil {
		return 0, err
	}
	return len(pts), nil
}
