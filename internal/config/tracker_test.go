package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultConfigPath))
	require.NoError(t, err)

	assert.Equal(t, time.Millisecond, cfg.GetPollInterval())
	assert.Equal(t, 30*time.Second, cfg.GetOpenTimeout())
	assert.Equal(t, time.Millisecond, cfg.GetOpenRetryInterval())
	assert.Equal(t, time.Second, cfg.GetErrorBackoff())
	assert.True(t, cfg.GetStrictDeviceTypes())
	assert.Equal(t, []uint8{11}, cfg.GetCSVAddresses())
	assert.Equal(t, "m", cfg.GetUnits())
	assert.Equal(t, "mmtrack.db", cfg.GetDBPath())
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := &TrackerConfig{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultPollInterval, cfg.GetPollInterval())
	assert.Equal(t, DefaultOpenTimeout, cfg.GetOpenTimeout())
	assert.Equal(t, DefaultErrorBackoff, cfg.GetErrorBackoff())
	assert.True(t, cfg.GetStrictDeviceTypes())
	assert.True(t, cfg.GetConsole())
	assert.Equal(t, DefaultListen, cfg.GetListen())
	assert.Empty(t, cfg.GetGRPCListen())
	assert.Empty(t, cfg.GetCSVPath())
	assert.Empty(t, cfg.GetCSVAddresses())
}

func TestLoad_Partial(t *testing.T) {
	path := writeConfig(t, "mm.json", `{"open_timeout": "0s", "strict_device_types": false, "units": "cm"}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Zero(t, cfg.GetOpenTimeout())
	assert.False(t, cfg.GetStrictDeviceTypes())
	assert.Equal(t, "cm", cfg.GetUnits())
	assert.Equal(t, DefaultPollInterval, cfg.GetPollInterval())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"wrong extension", "mm.yaml", `{}`, ".json extension"},
		{"bad json", "mm.json", `{`, "parse config JSON"},
		{"bad duration", "mm.json", `{"poll_interval": "fast"}`, "invalid poll_interval"},
		{"zero poll", "mm.json", `{"poll_interval": "0s"}`, "must be positive"},
		{"negative backoff", "mm.json", `{"error_backoff": "-1s"}`, "must be positive"},
		{"bad address", "mm.json", `{"csv_addresses": [300]}`, "out of range"},
		{"bad units", "mm.json", `{"units": "mph"}`, "units must be one of"},
		{"capture and replay", "mm.json", `{"capture_path": "a", "replay_path": "b"}`, "mutually exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			assert.ErrorContains(t, err, tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "stat config file")
}

func TestResolveUnderDataDir(t *testing.T) {
	cfg := &TrackerConfig{
		DataDir: ptrString("/var/lib/mm"),
		DBPath:  ptrString("track.db"),
		CSVPath: ptrString("/tmp/log.csv"),
		Console: ptrBool(false),
	}
	assert.Equal(t, filepath.Join("/var/lib/mm", "track.db"), cfg.GetDBPath())
	assert.Equal(t, "/tmp/log.csv", cfg.GetCSVPath())
	assert.False(t, cfg.GetConsole())
}
