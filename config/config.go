// Package config centralises runtime configuration for pgpool binaries.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coachpo/pgpool/errs"
)

// Duration wraps time.Duration with YAML decoding from "250ms"-style strings.
type Duration struct {
	value time.Duration
}

// UnmarshalYAML accepts Go duration strings and bare integers (nanoseconds).
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		d.value = 0
		return nil
	}
	text := strings.TrimSpace(node.Value)
	if text == "" {
		d.value = 0
		return nil
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		d.value = time.Duration(n)
		return nil
	}
	dur, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("duration: invalid value %q", node.Value)
	}
	d.value = dur
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return d.value }

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	Name           string   `yaml:"name"`
	Capacity       int      `yaml:"capacity"`
	AcquireTimeout Duration `yaml:"acquireTimeout"`
}

// DatabaseConfig names the backing database and its pool sizing.
type DatabaseConfig struct {
	DSN  string     `yaml:"dsn"`
	Pool PoolConfig `yaml:"pool"`
}

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// Settings contains the configuration tree loaded from defaults, an optional
// YAML file, and environment overrides.
type Settings struct {
	Database  DatabaseConfig  `yaml:"database"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Default returns the default configuration.
func Default() Settings {
	return Settings{
		Database: DatabaseConfig{
			DSN: "",
			Pool: PoolConfig{
				Name:           "primary",
				Capacity:       100,
				AcquireTimeout: Duration{value: 10 * time.Second},
			},
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "",
			ServiceName:  "pgpool",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides, and validates the result.
func Load(path string) (Settings, error) {
	settings := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, errs.New("config", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("read %s", path)), errs.WithCause(err))
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, errs.New("config", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("parse %s", path)), errs.WithCause(err))
	}

	applyEnvOverrides(&settings)
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// LoadOrDefault behaves like Load but falls back to defaults (plus
// environment overrides) when the file does not exist. The boolean reports
// whether a file was read.
func LoadOrDefault(path string) (Settings, bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			settings := Default()
			applyEnvOverrides(&settings)
			if verr := settings.Validate(); verr != nil {
				return Settings{}, false, verr
			}
			return settings, false, nil
		}
		return Settings{}, false, errs.New("config", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("stat %s", path)), errs.WithCause(err))
	}
	settings, err := Load(path)
	if err != nil {
		return Settings{}, false, err
	}
	return settings, true, nil
}

// Validate checks the settings tree for internally inconsistent values.
func (s Settings) Validate() error {
	if s.Database.Pool.Capacity < 0 {
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("pool capacity must be >= 0, got %d", s.Database.Pool.Capacity)))
	}
	if s.Database.Pool.AcquireTimeout.Std() < 0 {
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage("pool acquireTimeout must not be negative"))
	}
	return nil
}

func applyEnvOverrides(s *Settings) {
	if v, ok := lookupEnv("PGPOOL_DSN"); ok {
		s.Database.DSN = v
	}
	if v, ok := lookupEnv("PGPOOL_POOL_NAME"); ok {
		s.Database.Pool.Name = v
	}
	if v, ok := lookupEnv("PGPOOL_POOL_CAPACITY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.Database.Pool.Capacity = n
		}
	}
	if v, ok := lookupEnv("PGPOOL_ACQUIRE_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			s.Database.Pool.AcquireTimeout = Duration{value: d}
		}
	}
	if v, ok := lookupEnv("PGPOOL_OTLP_ENDPOINT"); ok {
		s.Telemetry.OTLPEndpoint = v
	}
	if v, ok := lookupEnv("PGPOOL_SERVICE_NAME"); ok {
		s.Telemetry.ServiceName = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}
