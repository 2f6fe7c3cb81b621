// Package config loads the rain-gauge YAML configuration over compiled defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/rain-gauge/internal/gpio"
	"github.com/sweeney/rain-gauge/internal/rain"
	"github.com/sweeney/rain-gauge/internal/store"
	"github.com/sweeney/rain-gauge/internal/timesource"
	"github.com/sweeney/rain-gauge/internal/tip"
)

// Storage kinds.
const (
	StorageFile   = "file"
	StorageEEPROM = "eeprom"
	StorageMemory = "memory"
)

// RTC kinds.
const (
	RTCSystem = "system"
	RTCDS3231 = "ds3231"
)

// DefaultPath is where the daemon looks for its config file.
const DefaultPath = "/etc/rain-gauge/config.yaml"

// Config holds the daemon configuration
type Config struct {
	LogLevel           string        `yaml:"log_level"`
	Timezone           string        `yaml:"timezone,omitempty"` // IANA name; empty = host local time
	Poll               time.Duration `yaml:"poll"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`

	Sensor  SensorConfig  `yaml:"sensor"`
	Storage StorageConfig `yaml:"storage"`
	Time    TimeConfig    `yaml:"time"`
	HTTP    HTTPConfig    `yaml:"http"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Archive ArchiveConfig `yaml:"archive"`
	WOW     WOWConfig     `yaml:"wow"`
}

// SensorConfig describes the reed switch input.
type SensorConfig struct {
	Chip     string        `yaml:"chip"`
	Pin      int           `yaml:"pin"` // BCM line offset
	Debounce time.Duration `yaml:"debounce"`
	MMPerTip float64       `yaml:"mm_per_tip"`
}

// StorageConfig selects the persistent record device.
type StorageConfig struct {
	Kind   string `yaml:"kind"`              // file, eeprom or memory
	Path   string `yaml:"path,omitempty"`    // file
	I2CBus string `yaml:"i2c_bus,omitempty"` // eeprom; empty = first bus
	Addr   uint16 `yaml:"addr,omitempty"`    // eeprom
}

// TimeConfig selects the RTC and the boot fallback.
type TimeConfig struct {
	RTC                 string `yaml:"rtc"`               // system or ds3231
	I2CBus              string `yaml:"i2c_bus,omitempty"` // ds3231; empty = first bus
	Fallback            string `yaml:"fallback"`          // RFC3339
	ResyncOnDayRollover bool   `yaml:"resync_on_day_rollover"`
}

// HTTPConfig holds the status server settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty = disabled
}

// MQTTConfig holds the broker settings.
type MQTTConfig struct {
	Broker     string `yaml:"broker,omitempty"` // empty = disabled
	BufferSize int    `yaml:"buffer_size"`
}

// ArchiveConfig holds the SQLite archive settings.
type ArchiveConfig struct {
	Path string `yaml:"path,omitempty"` // empty = disabled
}

// WOWConfig holds the Met Office WOW credentials.
type WOWConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
	SiteID  string `yaml:"site_id,omitempty"`
	AuthKey string `yaml:"auth_key,omitempty"`
}

// Default returns the compiled defaults.
func Default() *Config {
	return &Config{
		LogLevel:           "info",
		Poll:               250 * time.Millisecond,
		CheckpointInterval: rain.DefaultCheckpointInterval,
		Sensor: SensorConfig{
			Chip:     gpio.DefaultChip,
			Pin:      gpio.DefaultPin,
			Debounce: tip.DefaultDebounce,
			MMPerTip: rain.DefaultMMPerTip,
		},
		Storage: StorageConfig{
			Kind: StorageFile,
			Path: "/var/lib/rain-gauge/nvram.bin",
			Addr: store.EEPROMAddr,
		},
		Time: TimeConfig{
			RTC:                 RTCSystem,
			Fallback:            timesource.DefaultFallback.Format(time.RFC3339),
			ResyncOnDayRollover: true,
		},
		HTTP: HTTPConfig{Addr: ":80"},
		MQTT: MQTTConfig{BufferSize: 256},
	}
}

// Load reads the config file over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Save writes the config to file
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if c.Poll <= 0 {
		errs = append(errs, fmt.Errorf("poll must be positive, got %s", c.Poll))
	}
	if c.CheckpointInterval <= 0 {
		errs = append(errs, fmt.Errorf("checkpoint_interval must be positive, got %s", c.CheckpointInterval))
	}
	if c.Sensor.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("sensor.debounce must be positive, got %s", c.Sensor.Debounce))
	}
	if c.Sensor.MMPerTip <= 0 {
		errs = append(errs, fmt.Errorf("sensor.mm_per_tip must be positive, got %v", c.Sensor.MMPerTip))
	}
	if c.Sensor.Pin < 0 {
		errs = append(errs, fmt.Errorf("sensor.pin must not be negative, got %d", c.Sensor.Pin))
	}

	switch c.Storage.Kind {
	case StorageFile:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for file storage"))
		}
	case StorageEEPROM, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.kind %q", c.Storage.Kind))
	}

	switch c.Time.RTC {
	case RTCSystem, RTCDS3231:
	default:
		errs = append(errs, fmt.Errorf("unknown time.rtc %q", c.Time.RTC))
	}
	if _, err := c.FallbackTime(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	if c.WOW.Enabled && (c.WOW.SiteID == "" || c.WOW.AuthKey == "") {
		errs = append(errs, errors.New("wow.site_id and wow.auth_key are required when wow is enabled"))
	}
	return errors.Join(errs...)
}

// FallbackTime parses Time.Fallback.
func (c *Config) FallbackTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.Time.Fallback)
	if err != nil {
		return time.Time{}, fmt.Errorf("time.fallback: %w", err)
	}
	return t, nil
}

// Location resolves Timezone. Rollovers happen at local midnight in this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}
