// ABOUTME: Tests for configuration loading
// ABOUTME: Covers defaults, YAML files, environment overrides and validation
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 80, cfg.Stream.UnpauseThreshold)
	assert.Equal(t, 2, cfg.Stream.MaxRetries)
	assert.Equal(t, 10000, cfg.Stream.BufferMs)
	assert.Equal(t, 400, cfg.Stream.DecodeBufferMs)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
stream:
  url: http://radio.example/live
  gain: 0.5
  max_retries: 4
audio:
  output: "null"
  sample_rate: 48000
tick_interval: 250ms
mqtt:
  enabled: true
  broker: tcp://localhost:1883
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, "http://radio.example/live", cfg.Stream.URL)
	assert.InDelta(t, 0.5, cfg.Stream.Gain, 1e-9)
	assert.Equal(t, 4, cfg.Stream.MaxRetries)
	assert.Equal(t, "null", cfg.Audio.Output)
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.Equal(t, 2, cfg.Audio.Channels, "unset keys keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "resonate-radio", cfg.MQTT.Topic)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stream:\n  url: http://file.example/\n"), 0o644))

	t.Setenv("RESONATE_RADIO_STREAM_URL", "http://env.example/")
	t.Setenv("RESONATE_RADIO_STREAM_UNPAUSE_THRESHOLD", "90")

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "http://env.example/", cfg.Stream.URL)
	assert.Equal(t, 90, cfg.Stream.UnpauseThreshold)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"gain too high", func(c *Config) { c.Stream.Gain = 1.5 }},
		{"negative retries", func(c *Config) { c.Stream.MaxRetries = -1 }},
		{"threshold over 100", func(c *Config) { c.Stream.UnpauseThreshold = 101 }},
		{"zero buffer", func(c *Config) { c.Stream.BufferMs = 0 }},
		{"unknown output", func(c *Config) { c.Audio.Output = "alsa" }},
		{"three channels", func(c *Config) { c.Audio.Channels = 3 }},
		{"tiny wave buffer", func(c *Config) { c.Audio.WaveSize = 1 }},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"remote without addr", func(c *Config) { c.Remote.Enabled = true; c.Remote.Addr = "" }},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Stream.URL = "http://radio.example/live"
	cfg.TickInterval = 100 * time.Millisecond
	require.NoError(t, cfg.Write(path, false))

	assert.Error(t, cfg.Write(path, false), "refuses to overwrite")
	require.NoError(t, cfg.Write(path, true))

	loaded, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}
