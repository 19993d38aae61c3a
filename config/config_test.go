package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.Analysis.UpdateInterval.Std())
	assert.Equal(t, 15, cfg.Acquisition.BatteryIndex(17))
	assert.Equal(t, 1e9, cfg.Classifier.AsymmetryThreshold)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"acquisition": {"device": "/dev/ttyUSB0", "frame_length": 4},
		"analysis": {"update_interval": "2s", "window_seconds": 4},
		"output": {"show_plots": true, "mqtt": {"broker": "tcp://localhost:1883"}},
		"log_level": "debug"
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Acquisition.Device)
	assert.Equal(t, 4, cfg.Acquisition.FrameLength)
	assert.Equal(t, 250, cfg.Acquisition.SampleRate, "untouched default")
	assert.Equal(t, 2*time.Second, cfg.Analysis.UpdateInterval.Std())
	assert.Equal(t, 4.0, cfg.Analysis.WindowSeconds)
	assert.True(t, cfg.Output.ShowPlots)
	assert.Equal(t, "tcp://localhost:1883", cfg.Output.MQTT.Broker)
	assert.Equal(t, "neurosonar/prompts", cfg.Output.MQTT.Topic)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadNumericDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"analysis": {"update_interval": 1.5}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.Analysis.UpdateInterval.Std())
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"analysis": {"update_interval": "soon"}}`), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero frame length", func(c *Config) { c.Acquisition.FrameLength = 0 }},
		{"too many eeg channels", func(c *Config) { c.Acquisition.EEGChannels = 20 }},
		{"label count", func(c *Config) { c.Acquisition.ChannelLabels = []string{"Fz"} }},
		{"battery out of range", func(c *Config) { c.Acquisition.BatteryChannel = 40 }},
		{"zero window", func(c *Config) { c.Analysis.WindowSeconds = 0 }},
		{"zero interval", func(c *Config) { c.Analysis.UpdateInterval = 0 }},
		{"inverted band", func(c *Config) { c.Analysis.Bands.Alpha.Low = 20 }},
		{"region outside eeg", func(c *Config) { c.Analysis.Regions.Gamma = []int{9} }},
		{"edf range", func(c *Config) {
			c.Recording.EDFPath = "out.edf"
			c.Recording.PhysicalMax = c.Recording.PhysicalMin
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
