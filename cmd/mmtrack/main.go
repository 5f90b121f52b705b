// Command mmtrack polls a Marvelmind modem through libdashapi, prints and logs
// every fresh fix, stores it in SQLite and serves the live state over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/marvelmind/internal/api"
	"github.com/banshee-data/marvelmind/internal/config"
	"github.com/banshee-data/marvelmind/internal/dashapi"
	"github.com/banshee-data/marvelmind/internal/db"
	"github.com/banshee-data/marvelmind/internal/export"
	"github.com/banshee-data/marvelmind/internal/monitoring"
	"github.com/banshee-data/marvelmind/internal/roster"
	"github.com/banshee-data/marvelmind/internal/timeutil"
	"github.com/banshee-data/marvelmind/internal/tracker"
	"github.com/banshee-data/marvelmind/internal/version"
	"github.com/banshee-data/marvelmind/internal/wire"
)

// disabled switches off an output or server configured in the file.
const disabled = "none"

var (
	configPath  = flag.String("config", "", "Path to a JSON tracker config (built-in defaults when empty)")
	devMode     = flag.Bool("dev", false, "Use a simulated modem instead of libdashapi")
	replayPath  = flag.String("replay", "", "Replay a capture file instead of reading the modem")
	capturePath = flag.String("capture", "", "Record every buffer read from the modem to this file")
	listen      = flag.String("listen", "", "HTTP listen address (overrides config)")
	grpcListen  = flag.String("grpc-listen", "", "gRPC health listen address (overrides config)")
	dbPath      = flag.String("db", "", "SQLite database path (overrides config; \"none\" disables)")
	csvPath     = flag.String("csv", "", "CSV log path (overrides config; \"none\" disables)")
	units       = flag.String("units", "", "Display units: mm, cm, m, in, ft (overrides config)")
	noConsole   = flag.Bool("quiet-console", false, "Do not print fixes to stdout")
	quiet       = flag.Bool("quiet", false, "Mute diagnostic logging")
	listPorts   = flag.Bool("ports", false, "List candidate modem ports and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("mmtrack"))
		return
	}
	if *quiet {
		monitoring.SetLogger(nil)
	}
	if *listPorts {
		if err := printPorts(os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
	log.Printf("Graceful shutdown complete")
}

// loadConfig reads -config (or starts from defaults) and applies the flag
// overrides.
func loadConfig() (*config.TrackerConfig, error) {
	cfg := &config.TrackerConfig{}
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	applyFlags(cfg, flagOverrides{
		replay:    *replayPath,
		capture:   *capturePath,
		listen:    *listen,
		grpc:      *grpcListen,
		db:        *dbPath,
		csv:       *csvPath,
		units:     *units,
		noConsole: *noConsole,
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type flagOverrides struct {
	replay, capture, listen, grpc, db, csv, units string
	noConsole                                     bool
}

func applyFlags(cfg *config.TrackerConfig, f flagOverrides) {
	set := func(dst **string, v string) {
		switch v {
		case "":
		case disabled:
			empty := ""
			*dst = &empty
		default:
			*dst = &v
		}
	}
	set(&cfg.ReplayPath, f.replay)
	set(&cfg.CapturePath, f.capture)
	set(&cfg.Listen, f.listen)
	set(&cfg.GRPCListen, f.grpc)
	set(&cfg.DBPath, f.db)
	set(&cfg.CSVPath, f.csv)
	set(&cfg.Units, f.units)
	if f.noConsole {
		off := false
		cfg.Console = &off
	}
}

func printPorts(w io.Writer) error {
	ports, err := dashapi.DetectPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		marker := " "
		if p.Modem {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-20s vid=%s pid=%s serial=%s %s\n", marker, p.Name, p.VID, p.PID, p.SerialNumber, p.Product)
	}
	return nil
}

// source is the acquisition backend chosen from the flags and config.
type source struct {
	dashapi.Source
	name    string
	replay  *dashapi.ReplaySource
	capture *dashapi.CaptureSource
}

func (s *source) Close() error {
	if s.capture != nil {
		return s.capture.Close()
	}
	return nil
}

func openSource(cfg *config.TrackerConfig, dev bool) (*source, error) {
	var s source
	switch {
	case cfg.GetReplayPath() != "":
		rs, err := dashapi.NewReplaySource(cfg.GetReplayPath(), wire.DefaultLayout)
		if err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
		s.Source, s.replay, s.name = rs, rs, "replay:"+cfg.GetReplayPath()
	case dev:
		s.Source, s.name = devSource(), "mock"
	default:
		ns, err := dashapi.NewNativeSource()
		if err != nil {
			return nil, err
		}
		s.Source, s.name = ns, "dashapi"
	}

	if path := cfg.GetCapturePath(); path != "" {
		cs, err := dashapi.NewCaptureSource(s.Source, path, time.Now)
		if err != nil {
			return nil, fmt.Errorf("capture: %w", err)
		}
		s.Source, s.capture = cs, cs
		s.name += "+capture"
	}
	return &s, nil
}

func run(ctx context.Context, cfg *config.TrackerConfig) error {
	src, err := openSource(cfg, *devMode)
	if err != nil {
		return err
	}
	defer src.Close()

	clock := timeutil.RealClock{}
	session, err := dashapi.Open(ctx, src, dashapi.OpenOptions{
		Timeout:       cfg.GetOpenTimeout(),
		RetryInterval: cfg.GetOpenRetryInterval(),
		Clock:         clock,
	})
	if err != nil {
		return fmt.Errorf("open modem port: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Printf("close modem port: %v", err)
		}
	}()

	apiVersion, err := session.Version()
	if err != nil {
		log.Printf("api version unavailable: %v", err)
	} else {
		log.Printf("dashapi version %d via %s", apiVersion, src.name)
	}

	policy := roster.StrictTypes
	if !cfg.GetStrictDeviceTypes() {
		policy = roster.RelaxedTypes
	}
	r, err := session.Roster(roster.WithTypePolicy(policy))
	if err != nil {
		return fmt.Errorf("read device list: %w", err)
	}
	for _, d := range r.Devices() {
		log.Printf("device %s fw %s", d, d.Firmware())
	}

	state := tracker.NewState(tracker.DefaultHistory)
	state.SetOpen(true)
	defer state.SetOpen(false)

	var sinks []tracker.Sink
	if cfg.GetConsole() {
		sinks = append(sinks, tracker.ConsoleSink{W: os.Stdout, Unit: cfg.GetUnits()})
	}

	var extraDirs []string
	if dir := cfg.GetDataDir(); dir != "" {
		extraDirs = append(extraDirs, dir)
	}
	if path := cfg.GetCSVPath(); path != "" {
		csvLog, err := export.CreateCSVLog(path, extraDirs, cfg.GetCSVAddresses()...)
		if err != nil {
			return err
		}
		defer csvLog.Close()
		sinks = append(sinks, csvLog)
	}

	var store *db.DB
	var sessionID string
	if path := cfg.GetDBPath(); path != "" {
		store, err = db.NewDB(path)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer store.Close()

		sessionID, err = store.StartSession(ctx, clock.Now(), apiVersion, src.name, r.Devices())
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		defer func() {
			endCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := store.EndSession(endCtx, sessionID, time.Now()); err != nil {
				log.Printf("end session: %v", err)
			}
		}()
		sinks = append(sinks, &db.Recorder{DB: store, SessionID: sessionID})
		log.Printf("recording session %s to %s", sessionID, path)
	}

	poller := tracker.NewPoller(session, r, tracker.PollerConfig{
		Interval:     cfg.GetPollInterval(),
		ErrorBackoff: cfg.GetErrorBackoff(),
		Clock:        clock,
	})
	state.Set(poller.Initial())
	dispatcher := tracker.NewDispatcher(state, sinks...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		pollErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := poller.Run(ctx); err != nil {
			pollErr = err
			state.SetOpen(false)
		}
		log.Print("poll routine terminated")
		cancel()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(poller.Snapshots())
		log.Print("dispatch routine terminated")
	}()

	if src.replay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Done closes on the first poll past the capture, after the last
			// captured snapshot was queued; the dispatcher drains the rest.
			select {
			case <-src.replay.Done():
				log.Print("replay finished")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	srv := api.NewServer(api.Config{
		State: state,
		DB:    store,
		Units: cfg.GetUnits(),
		Status: func() api.Status {
			return api.Status{
				SessionID:    sessionID,
				APIVersion:   apiVersion,
				Source:       src.name,
				Poller:       poller.Stats(),
				SinkFailures: dispatcher.Failures(),
			}
		},
	})

	if addr := cfg.GetGRPCListen(); addr != "" {
		health := api.NewHealthServer(state)
		if err := health.Start(addr); err != nil {
			return fmt.Errorf("grpc health: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			health.Watch(ctx, clock, time.Second)
			health.Stop()
		}()
	}

	if addr := cfg.GetListen(); addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveHTTP(ctx, addr, srv, store)
		}()
	}

	wg.Wait()
	return pollErr
}

func serveHTTP(ctx context.Context, addr string, srv *api.Server, store *db.DB) {
	mux := srv.ServeMux()
	srv.AttachAdminRoutes(mux)
	if store != nil {
		if err := store.AttachAdminRoutes(mux); err != nil {
			log.Printf("db admin routes: %v", err)
		}
	}

	server := &http.Server{
		Addr:    addr,
		Handler: api.LoggingMiddleware(mux),
	}
	go func() {
		log.Printf("HTTP listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
}
