// Package config loads the tracker's JSON configuration. Every field is
// optional; the Get* accessors supply defaults for anything left out.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/marvelmind/internal/units"
)

// DefaultConfigPath is the canonical defaults file, relative to the repo root.
const DefaultConfigPath = "config/mmtrack.defaults.json"

const maxConfigSize = 1 << 20

// Defaults for fields omitted from the file.
const (
	DefaultPollInterval      = time.Millisecond
	DefaultOpenTimeout       = 30 * time.Second
	DefaultOpenRetryInterval = time.Millisecond
	DefaultErrorBackoff      = time.Second
	DefaultListen            = "localhost:8090"
	DefaultUnits             = units.M
)

// TrackerConfig is the root configuration of cmd/mmtrack.
type TrackerConfig struct {
	// Acquisition
	PollInterval      *string `json:"poll_interval,omitempty"`       // duration string like "1ms"
	OpenTimeout       *string `json:"open_timeout,omitempty"`        // "0s" means a single attempt
	OpenRetryInterval *string `json:"open_retry_interval,omitempty"` // pause between open attempts
	ErrorBackoff      *string `json:"error_backoff,omitempty"`       // pause after a classified error
	StrictDeviceTypes *bool   `json:"strict_device_types,omitempty"`
	CapturePath       *string `json:"capture_path,omitempty"`
	ReplayPath        *string `json:"replay_path,omitempty"`

	// Outputs
	DataDir      *string `json:"data_dir,omitempty"`
	DBPath       *string `json:"db_path,omitempty"`
	CSVPath      *string `json:"csv_path,omitempty"`
	CSVAddresses []int   `json:"csv_addresses,omitempty"` // empty logs every address
	Console      *bool   `json:"console,omitempty"`
	Units        *string `json:"units,omitempty"`

	// Servers
	Listen     *string `json:"listen,omitempty"`
	GRPCListen *string `json:"grpc_listen,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrBool(v bool) *bool       { return &v }

// Load reads a TrackerConfig from a .json file of at most 1MB and validates it.
func Load(path string) (*TrackerConfig, error) {
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TrackerConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func checkDuration(name string, v *string, allowZero bool) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, *v, err)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return nil
}

// Validate checks every field that is set.
func (c *TrackerConfig) Validate() error {
	if err := checkDuration("poll_interval", c.PollInterval, false); err != nil {
		return err
	}
	if err := checkDuration("open_timeout", c.OpenTimeout, true); err != nil {
		return err
	}
	if err := checkDuration("open_retry_interval", c.OpenRetryInterval, false); err != nil {
		return err
	}
	if err := checkDuration("error_backoff", c.ErrorBackoff, true); err != nil {
		return err
	}
	for _, a := range c.CSVAddresses {
		if a < 0 || a > 255 {
			return fmt.Errorf("csv_addresses: address %d out of range 0-255", a)
		}
	}
	if c.Units != nil && !units.IsValid(*c.Units) {
		return fmt.Errorf("units must be one of %s, got %q", units.GetValidUnitsString(), *c.Units)
	}
	if c.CapturePath != nil && c.ReplayPath != nil && *c.CapturePath != "" && *c.ReplayPath != "" {
		return fmt.Errorf("capture_path and replay_path are mutually exclusive")
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

// GetPollInterval returns how often last locations are fetched.
func (c *TrackerConfig) GetPollInterval() time.Duration {
	return durationOr(c.PollInterval, DefaultPollInterval)
}

// GetOpenTimeout returns how long opening the port is retried.
func (c *TrackerConfig) GetOpenTimeout() time.Duration {
	return durationOr(c.OpenTimeout, DefaultOpenTimeout)
}

func (c *TrackerConfig) GetOpenRetryInterval() time.Duration {
	return durationOr(c.OpenRetryInterval, DefaultOpenRetryInterval)
}

func (c *TrackerConfig) GetErrorBackoff() time.Duration {
	return durationOr(c.ErrorBackoff, DefaultErrorBackoff)
}

// GetStrictDeviceTypes reports whether unknown hardware codes abort the roster build.
func (c *TrackerConfig) GetStrictDeviceTypes() bool {
	if c.StrictDeviceTypes == nil {
		return true
	}
	return *c.StrictDeviceTypes
}

// GetConsole reports whether fixes are printed to stdout.
func (c *TrackerConfig) GetConsole() bool {
	if c.Console == nil {
		return true
	}
	return *c.Console
}

func (c *TrackerConfig) GetDataDir() string    { return stringOr(c.DataDir, "") }
func (c *TrackerConfig) GetCapturePath() string { return stringOr(c.CapturePath, "") }
func (c *TrackerConfig) GetReplayPath() string  { return stringOr(c.ReplayPath, "") }
func (c *TrackerConfig) GetCSVPath() string     { return c.resolve(stringOr(c.CSVPath, "")) }
func (c *TrackerConfig) GetDBPath() string      { return c.resolve(stringOr(c.DBPath, "")) }
func (c *TrackerConfig) GetListen() string      { return stringOr(c.Listen, DefaultListen) }
func (c *TrackerConfig) GetGRPCListen() string  { return stringOr(c.GRPCListen, "") }
func (c *TrackerConfig) GetUnits() string       { return stringOr(c.Units, DefaultUnits) }

// GetCSVAddresses returns the addresses written to the CSV log.
func (c *TrackerConfig) GetCSVAddresses() []uint8 {
	out := make([]uint8, 0, len(c.CSVAddresses))
	for _, a := range c.CSVAddresses {
		out = append(out, uint8(a))
	}
	return out
}

// resolve places relative output paths under data_dir when one is set.
func (c *TrackerConfig) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.GetDataDir() == "" {
		return p
	}
	return filepath.Join(c.GetDataDir(), p)
}
