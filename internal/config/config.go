// ABOUTME: Player configuration
// ABOUTME: Loads settings from YAML, RESONATE_RADIO_ environment variables and flags via viper
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to environment overrides, e.g. RESONATE_RADIO_STREAM_URL
const EnvPrefix = "RESONATE_RADIO"

// Config is the complete player configuration
type Config struct {
	Stream       StreamConfig  `yaml:"stream" mapstructure:"stream"`
	Audio        AudioConfig   `yaml:"audio" mapstructure:"audio"`
	TickInterval time.Duration `yaml:"tick_interval" mapstructure:"tick_interval"`
	Log          LogConfig     `yaml:"log" mapstructure:"log"`
	Remote       RemoteConfig  `yaml:"remote" mapstructure:"remote"`
	MQTT         MQTTConfig    `yaml:"mqtt" mapstructure:"mqtt"`
	TUI          bool          `yaml:"tui" mapstructure:"tui"`
}

// StreamConfig controls the internet stream session
type StreamConfig struct {
	URL              string        `yaml:"url" mapstructure:"url"`
	Gain             float64       `yaml:"gain" mapstructure:"gain"`
	BufferMs         int           `yaml:"buffer_ms" mapstructure:"buffer_ms"`
	DecodeBufferMs   int           `yaml:"decode_buffer_ms" mapstructure:"decode_buffer_ms"`
	UnpauseThreshold int           `yaml:"unpause_threshold" mapstructure:"unpause_threshold"`
	MaxRetries       int           `yaml:"max_retries" mapstructure:"max_retries"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	UserAgent        string        `yaml:"user_agent" mapstructure:"user_agent"`
}

// AudioConfig controls the output device and mixer
type AudioConfig struct {
	Output     string `yaml:"output" mapstructure:"output"`
	SampleRate int    `yaml:"sample_rate" mapstructure:"sample_rate"`
	Channels   int    `yaml:"channels" mapstructure:"channels"`
	MaxVoices  int    `yaml:"max_voices" mapstructure:"max_voices"`
	WaveSize   int    `yaml:"wave_size" mapstructure:"wave_size"`
}

// LogConfig controls logging
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
}

// RemoteConfig controls the HTTP control API
type RemoteConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Advertise bool   `yaml:"advertise" mapstructure:"advertise"`
	Name      string `yaml:"name" mapstructure:"name"`
}

// MQTTConfig controls metadata publication
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker   string `yaml:"broker" mapstructure:"broker"`
	Topic    string `yaml:"topic" mapstructure:"topic"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Stream: StreamConfig{
			Gain:             1,
			BufferMs:         10000,
			DecodeBufferMs:   400,
			UnpauseThreshold: 80,
			MaxRetries:       2,
			ConnectTimeout:   10 * time.Second,
			UserAgent:        "resonate-radio",
		},
		Audio: AudioConfig{
			Output:     "malgo",
			SampleRate: 44100,
			Channels:   2,
			MaxVoices:  4,
			WaveSize:   1024,
		},
		TickInterval: 50 * time.Millisecond,
		Log: LogConfig{
			Level: "info",
			File:  "resonate-radio.log",
		},
		Remote: RemoteConfig{
			Addr: ":8928",
		},
		MQTT: MQTTConfig{
			Topic: "resonate-radio",
		},
		TUI: true,
	}
}

// DefaultPath returns the per-user config file location
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "resonate-radio", "config.yaml")
}

// NewViper returns a viper instance holding the defaults and environment bindings
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("stream.url", d.Stream.URL)
	v.SetDefault("stream.gain", d.Stream.Gain)
	v.SetDefault("stream.buffer_ms", d.Stream.BufferMs)
	v.SetDefault("stream.decode_buffer_ms", d.Stream.DecodeBufferMs)
	v.SetDefault("stream.unpause_threshold", d.Stream.UnpauseThreshold)
	v.SetDefault("stream.max_retries", d.Stream.MaxRetries)
	v.SetDefault("stream.connect_timeout", d.Stream.ConnectTimeout)
	v.SetDefault("stream.user_agent", d.Stream.UserAgent)

	v.SetDefault("audio.output", d.Audio.Output)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.channels", d.Audio.Channels)
	v.SetDefault("audio.max_voices", d.Audio.MaxVoices)
	v.SetDefault("audio.wave_size", d.Audio.WaveSize)

	v.SetDefault("tick_interval", d.TickInterval)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)

	v.SetDefault("remote.enabled", d.Remote.Enabled)
	v.SetDefault("remote.addr", d.Remote.Addr)
	v.SetDefault("remote.advertise", d.Remote.Advertise)
	v.SetDefault("remote.name", d.Remote.Name)

	v.SetDefault("mqtt.enabled", d.MQTT.Enabled)
	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.topic", d.MQTT.Topic)
	v.SetDefault("mqtt.username", d.MQTT.Username)
	v.SetDefault("mqtt.password", d.MQTT.Password)

	v.SetDefault("tui", d.TUI)
}

// Load reads path into v and returns the merged, validated configuration.
// An empty path looks for config.yaml in the user config directory and the
// working directory, and a missing file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Dir(DefaultPath()))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and required fields
func (c *Config) Validate() error {
	var errs []error

	if c.Stream.Gain < 0 || c.Stream.Gain > 1 {
		errs = append(errs, fmt.Errorf("stream.gain must be between 0 and 1, got %v", c.Stream.Gain))
	}
	if c.Stream.BufferMs <= 0 || c.Stream.DecodeBufferMs <= 0 {
		errs = append(errs, errors.New("stream buffer sizes must be positive"))
	}
	if c.Stream.UnpauseThreshold < 0 || c.Stream.UnpauseThreshold > 100 {
		errs = append(errs, fmt.Errorf("stream.unpause_threshold must be a percentage, got %d", c.Stream.UnpauseThreshold))
	}
	if c.Stream.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("stream.max_retries cannot be negative, got %d", c.Stream.MaxRetries))
	}

	switch c.Audio.Output {
	case "malgo", "oto", "null":
	default:
		errs = append(errs, fmt.Errorf("unknown audio.output %q (supported: malgo, oto, null)", c.Audio.Output))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1 or 2, got %d", c.Audio.Channels))
	}
	if c.Audio.WaveSize < 2 {
		errs = append(errs, fmt.Errorf("audio.wave_size must be at least 2, got %d", c.Audio.WaveSize))
	}

	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("tick_interval must be positive"))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("invalid log.level %q", c.Log.Level))
	}
	if c.Remote.Enabled && c.Remote.Addr == "" {
		errs = append(errs, errors.New("remote.addr is required when the remote API is enabled"))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when MQTT is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Write saves c as YAML, creating parent directories. Existing files are
// only replaced when overwrite is set.
func (c *Config) Write(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
