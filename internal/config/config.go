// Package config loads the daemon settings from YAML.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/humidex-sensor/internal/logger"
	"github.com/sweeney/humidex-sensor/internal/logic"
	"github.com/sweeney/humidex-sensor/internal/mqtt"
	"github.com/sweeney/humidex-sensor/internal/registry"
)

// Config holds the settings of the humidex daemon and CLI.
type Config struct {
	MQTT MQTT `yaml:"mqtt"`
	HTTP HTTP `yaml:"http"`
	// Database is the path of the SQLite registration store.
	Database string `yaml:"database"`
	// FallbackUnit is used for temperature readings that declare no unit.
	FallbackUnit string `yaml:"fallback_unit"`
	// SyncInterval is how often the daemon reloads registrations.
	SyncInterval time.Duration `yaml:"sync_interval"`
	// Heartbeat is the interval of HEARTBEAT status events; zero disables them.
	Heartbeat time.Duration `yaml:"heartbeat"`
	Log       Log           `yaml:"log"`
	// LegacySensors are imported once as registrations at startup.
	// Deprecated: register sensors with the CLI instead.
	LegacySensors []registry.Legacy `yaml:"legacy_sensors"`
}

// MQTT holds broker and topic settings.
type MQTT struct {
	Broker          string        `yaml:"broker"`
	ClientID        string        `yaml:"client_id"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	StatePrefix     string        `yaml:"state_prefix"`
	OutputPrefix    string        `yaml:"output_prefix"`
	DiscoveryPrefix string        `yaml:"discovery_prefix"`
	BufferSize      int           `yaml:"buffer_size"`
	Timeout         time.Duration `yaml:"timeout"`
}

// HTTP holds status server settings. An empty Addr disables the server.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Log holds logging settings.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "humidex-sensor.yaml"

	DefaultBroker       = "tcp://localhost:1883"
	DefaultClientID     = "humidex-sensor"
	DefaultDatabase     = "humidex-sensor.db"
	DefaultHTTPAddr     = ":8080"
	DefaultBufferSize   = 1000
	DefaultTimeout      = 10 * time.Second
	DefaultSyncInterval = 30 * time.Second
)

var (
	errBrokerRequired   = errors.New("mqtt broker must be provided")
	errDatabaseRequired = errors.New("database path must be provided")
)

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	// Defaults always validate.
	_ = Validate(cfg)
	return cfg
}

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	return Parse(contents)
}

// Parse decodes YAML settings and validates them.
func Parse(contents []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate applies defaults and checks the provided settings.
func Validate(cfg *Config) error {
	applyDefaults(cfg)

	if cfg.MQTT.Broker == "" {
		return errBrokerRequired
	}
	u, err := url.Parse(cfg.MQTT.Broker)
	if err != nil {
		return fmt.Errorf("invalid broker url: %w", err)
	}
	switch u.Scheme {
	case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss":
	default:
		return fmt.Errorf("invalid broker url %q: unsupported scheme %q", cfg.MQTT.Broker, u.Scheme)
	}

	for name, prefix := range map[string]string{
		"state_prefix":     cfg.MQTT.StatePrefix,
		"output_prefix":    cfg.MQTT.OutputPrefix,
		"discovery_prefix": cfg.MQTT.DiscoveryPrefix,
	} {
		if strings.ContainsAny(prefix, "+#") || strings.HasSuffix(prefix, "/") || strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("invalid mqtt %s %q", name, prefix)
		}
	}

	if cfg.Heartbeat < 0 {
		return fmt.Errorf("invalid heartbeat %v", cfg.Heartbeat)
	}

	if cfg.MQTT.BufferSize < 0 {
		return fmt.Errorf("invalid mqtt buffer_size %d", cfg.MQTT.BufferSize)
	}

	if strings.TrimSpace(cfg.Database) == "" {
		return errDatabaseRequired
	}

	if _, ok := logic.ParseUnit(cfg.FallbackUnit); !ok {
		return fmt.Errorf("invalid fallback_unit %q", cfg.FallbackUnit)
	}

	if _, ok := logger.ParseLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case logger.FormatConsole, logger.FormatJSON:
	default:
		return fmt.Errorf("invalid log format %q", cfg.Log.Format)
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = DefaultBroker
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultClientID
	}
	if cfg.MQTT.StatePrefix == "" {
		cfg.MQTT.StatePrefix = mqtt.DefaultStatePrefix
	}
	if cfg.MQTT.OutputPrefix == "" {
		cfg.MQTT.OutputPrefix = mqtt.DefaultOutputPrefix
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = mqtt.DefaultDiscoveryPrefix
	}
	if cfg.MQTT.BufferSize == 0 {
		cfg.MQTT.BufferSize = DefaultBufferSize
	}
	if cfg.MQTT.Timeout <= 0 {
		cfg.MQTT.Timeout = DefaultTimeout
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.FallbackUnit == "" {
		cfg.FallbackUnit = string(logic.UnitCelsius)
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = logger.FormatConsole
	}
}

// Topics returns the MQTT topic prefixes.
func (c *Config) Topics() mqtt.Topics {
	return mqtt.Topics{
		StatePrefix:     c.MQTT.StatePrefix,
		OutputPrefix:    c.MQTT.OutputPrefix,
		DiscoveryPrefix: c.MQTT.DiscoveryPrefix,
	}
}

// Fallback returns the resolved fallback unit.
func (c *Config) Fallback() logic.Unit {
	u, ok := logic.ParseUnit(c.FallbackUnit)
	if !ok {
		return logic.UnitCelsius
	}
	return u
}

// MQTTOptions returns the broker connection options.
func (c *Config) MQTTOptions() mqtt.Options {
	return mqtt.Options{
		Broker:         c.MQTT.Broker,
		ClientID:       c.MQTT.ClientID,
		Username:       c.MQTT.Username,
		Password:       c.MQTT.Password,
		Topics:         c.Topics(),
		BufferSize:     c.MQTT.BufferSize,
		ConnectTimeout: c.MQTT.Timeout,
	}
}
