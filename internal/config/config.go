package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Capture backends.
const (
	BackendPortal = "portal"
	BackendMock   = "mock"
)

// EnvPrefix prefixes every environment override, e.g. SCREENCHECK_SERVER_PORT.
const EnvPrefix = "SCREENCHECK_"

type Config struct {
	Server        ServerConfig        `yaml:"server" envPrefix:"SERVER_"`
	Broadcast     BroadcastConfig     `yaml:"broadcast" envPrefix:"BROADCAST_"`
	Capture       CaptureConfig       `yaml:"capture" envPrefix:"CAPTURE_"`
	Notifications NotificationsConfig `yaml:"notifications" envPrefix:"NOTIFICATIONS_"`
	Log           LogConfig           `yaml:"log" envPrefix:"LOG_"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" env:"PORT"`
	Host           string   `yaml:"host" env:"HOST"`
	AuthToken      string   `yaml:"auth_token" env:"AUTH_TOKEN"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

type BroadcastConfig struct {
	Throttle         time.Duration `yaml:"throttle" env:"THROTTLE"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval" env:"SNAPSHOT_INTERVAL"`
}

type CaptureConfig struct {
	Backend        string        `yaml:"backend" env:"BACKEND"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	Mock           MockConfig    `yaml:"mock" envPrefix:"MOCK_"`
}

// MockConfig scripts the mock backend. FailWith names a capture error
// (e.g. "NotAllowedError") every request should fail with.
type MockConfig struct {
	Surface   string        `yaml:"surface" env:"SURFACE"`
	Width     int           `yaml:"width" env:"WIDTH"`
	Height    int           `yaml:"height" env:"HEIGHT"`
	FrameRate float64       `yaml:"frame_rate" env:"FRAME_RATE"`
	FailWith  string        `yaml:"fail_with" env:"FAIL_WITH"`
	Delay     time.Duration `yaml:"delay" env:"DELAY"`
}

type NotificationsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8090,
			Host: "127.0.0.1",
		},
		Broadcast: BroadcastConfig{
			Throttle:         100 * time.Millisecond,
			SnapshotInterval: 5 * time.Second,
		},
		Capture: CaptureConfig{
			Backend:        BackendPortal,
			RequestTimeout: 2 * time.Minute,
			Mock: MockConfig{
				Surface:   "monitor",
				Width:     1920,
				Height:    1080,
				FrameRate: 30,
			},
		},
		Notifications: NotificationsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path skips
// the file. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg, nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from SCREENCHECK_* variables. A nil environ reads
// the process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Broadcast.Throttle <= 0 {
		errs = append(errs, errors.New("broadcast.throttle must be positive"))
	}
	if c.Broadcast.SnapshotInterval <= 0 {
		errs = append(errs, errors.New("broadcast.snapshot_interval must be positive"))
	}
	switch c.Capture.Backend {
	case BackendPortal, BackendMock:
	default:
		errs = append(errs, fmt.Errorf("capture.backend %q is not one of %s, %s", c.Capture.Backend, BackendPortal, BackendMock))
	}
	if c.Capture.RequestTimeout <= 0 {
		errs = append(errs, errors.New("capture.request_timeout must be positive"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
