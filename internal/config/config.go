package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.mixdesk/config.toml.
type Config struct {
	DefaultProfile string  `toml:"default_profile"`
	API            API     `toml:"api"`
	Hub            Hub     `toml:"hub"`
	Log            Log     `toml:"log"`
	Metrics        Metrics `toml:"metrics"`
}

// API configures the marketplace HTTP backend.
type API struct {
	BaseURL string   `toml:"base_url"`
	HubPath string   `toml:"hub_path"`
	Timeout Duration `toml:"timeout"`
}

// Hub configures the realtime connection.
type Hub struct {
	Keepalive        Duration `toml:"keepalive"`
	ReconnectInitial Duration `toml:"reconnect_initial"`
	ReconnectMax     Duration `toml:"reconnect_max"`
}

// Log configures the daemon logger.
type Log struct {
	Level string `toml:"level"`
}

// Metrics configures the optional Prometheus listener. Empty Addr disables it.
type Metrics struct {
	Addr string `toml:"addr"`
}

// Duration is a time.Duration written as a Go duration string ("15s").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		API: API{
			BaseURL: "http://localhost:5000/api/",
			HubPath: "/chatHub",
			Timeout: Duration{15 * time.Second},
		},
		Hub: Hub{
			Keepalive:        Duration{15 * time.Second},
			ReconnectInitial: Duration{500 * time.Millisecond},
			ReconnectMax:     Duration{30 * time.Second},
		},
		Log: Log{Level: "info"},
	}
}

// Load reads config from the given path on top of Default. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
