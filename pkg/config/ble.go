package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// BLEConfig is the top-level configuration for the bleconn resilience
// layer and its cobra-driven CLI (§9 ambient stack), loaded from YAML
// with yaml.v3 and checked with validator/v10 struct tags.
type BLEConfig struct {
	// Adapter is the BlueZ adapter name to register with the slot
	// manager on startup, e.g. "hci0". Empty passes validation, but no
	// adapter is discovered from the platform: slots are then registered
	// under the empty name, which matches no device path.
	Adapter string `yaml:"adapter" json:"adapter" validate:"omitempty"`

	// AdapterSlots is the number of simultaneous connection slots to
	// assume for Adapter, mirroring BleakSlotManager.register_adapter.
	AdapterSlots int `yaml:"adapter_slots" json:"adapter_slots" validate:"required,min=1"`

	// MaxAttempts caps Timeouts+ConnectErrors per connection attempt
	// sequence. Zero selects bleconn.DefaultMaxAttempts.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" validate:"omitempty,min=1"`

	// ConnectTimeout is loaded and saved but not read by the CLI; each
	// connect attempt is bounded by bleconn.BleakTimeout.
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" validate:"omitempty"`

	// UseServicesCache enables reusing a backend's cached service table
	// across reconnects when it still validates against the current
	// device view.
	UseServicesCache bool `yaml:"use_services_cache" json:"use_services_cache"`

	// Logging reuses the same logger configuration shape as the rest of
	// the module.
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Metrics reuses the same Prometheus exporter configuration shape.
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// LoggingConfig mirrors logger.Config's fields.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=text json"`
	Output string `yaml:"output" json:"output" validate:"omitempty,oneof=stdout file"`
	File   string `yaml:"file" json:"file"`
}

// MetricsConfig holds the Prometheus exporter settings.
type MetricsConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// DefaultBLEConfig returns the default BLE configuration.
func DefaultBLEConfig() *BLEConfig {
	return &BLEConfig{
		Adapter:          "hci0",
		AdapterSlots:     1,
		MaxAttempts:      4,
		ConnectTimeout:   20 * time.Second,
		UseServicesCache: true,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
			Interval: 10 * time.Second,
		},
	}
}

// LoadBLEConfig loads a BLEConfig from path, or returns
// DefaultBLEConfig() if path is empty and no default file exists.
func LoadBLEConfig(path string) (*BLEConfig, error) {
	if path != "" {
		return loadBLEFile(path)
	}
	for _, p := range []string{"./ble.yaml", "./ble.yml", "~/.config/comx/ble.yaml", "/etc/comx/ble.yaml"} {
		if p[0] == '~' {
			home, err := os.UserHomeDir()
			if err == nil {
				p = filepath.Join(home, p[2:])
			}
		}
		if _, err := os.Stat(p); err == nil {
			return loadBLEFile(p)
		}
	}
	return DefaultBLEConfig(), nil
}

func loadBLEFile(path string) (*BLEConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultBLEConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := ValidateBLEConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateBLEConfig validates cfg against its struct tags.
func ValidateBLEConfig(cfg *BLEConfig) error {
	validate := validator.New()
	return validate.Struct(cfg)
}

// SaveBLEConfig writes cfg to path as YAML, creating parent directories
// as needed.
func SaveBLEConfig(path string, cfg *BLEConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}
