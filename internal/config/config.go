// Package config loads and validates the daemon's YAML configuration.
//
// Defaults come from DefaultConfig, the file is decoded on top of them,
// then flag overrides are applied and the result is validated. Anything
// that passes Validate can be turned into controllers without further checks.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/layer-threshold/internal/logic"
)

// MaxLayer is the highest layer a processor may activate.
const MaxLayer = 31

// Config is the top-level YAML configuration.
type Config struct {
	Logging     LoggingConfig      `yaml:"logging"`
	MQTT        MQTTConfig         `yaml:"mqtt"`
	HTTP        HTTPConfig         `yaml:"http"`
	HeartbeatMS int                `yaml:"heartbeat_ms"`
	Indicator   IndicatorConfig    `yaml:"indicator"`
	Controllers []ControllerConfig `yaml:"controllers"`
	Devices     []DeviceConfig     `yaml:"devices"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MQTTConfig struct {
	// Empty disables MQTT publishing.
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

type HTTPConfig struct {
	// Empty disables the status server.
	Addr string `yaml:"addr"`
}

// IndicatorConfig selects the GPIO line driving the layer LED.
type IndicatorConfig struct {
	Chip string `yaml:"chip"`
	// Negative disables the indicator.
	Pin int `yaml:"pin"`
}

// ControllerConfig is one threshold layer controller.
type ControllerConfig struct {
	Name               string   `yaml:"name"`
	Threshold          int64    `yaml:"threshold"`
	ThresholdTimeMS    int      `yaml:"threshold_time_ms"`
	RequirePriorIdleMS int      `yaml:"require_prior_idle_ms"`
	ExcludedPositions  []uint32 `yaml:"excluded_positions"`
}

// DeviceConfig is one evdev input device and its motion processors.
type DeviceConfig struct {
	Path       string            `yaml:"path"`
	Grab       bool              `yaml:"grab,omitempty"`
	Processors []ProcessorConfig `yaml:"processors,omitempty"`
}

// ProcessorConfig binds a controller to a device with call-site parameters.
type ProcessorConfig struct {
	Controller string `yaml:"controller"`
	Layer      int    `yaml:"layer"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

// DefaultConfig returns a Config with every optional field populated.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		MQTT: MQTTConfig{
			ClientID: "layer-threshold",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		HeartbeatMS: int((15 * time.Minute).Milliseconds()),
		Indicator: IndicatorConfig{
			Chip: "gpiochip0",
			Pin:  -1,
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
// Unknown fields are rejected.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of DefaultConfig.
func Parse(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// Marshal renders the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// FlagOverrides holds values from command-line flags. Nil pointers are
// left alone; non-nil values are applied even if zero.
type FlagOverrides struct {
	Broker      *string
	HTTPAddr    *string
	LogLevel    *string
	HeartbeatMS *int
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Broker != nil {
		cfg.MQTT.Broker = *o.Broker
	}
	if o.HTTPAddr != nil {
		cfg.HTTP.Addr = *o.HTTPAddr
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.HeartbeatMS != nil {
		cfg.HeartbeatMS = *o.HeartbeatMS
	}
}

// Validate checks config invariants and returns a user-friendly error.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	if c.MQTT.Broker != "" && c.MQTT.ClientID == "" {
		return errors.New("mqtt.client_id must not be empty when mqtt.broker is set")
	}
	if c.HeartbeatMS < 0 {
		return errors.New("heartbeat_ms must be >= 0")
	}
	if c.Indicator.Pin >= 0 && c.Indicator.Chip == "" {
		return errors.New("indicator.chip must not be empty when indicator.pin is set")
	}

	if len(c.Controllers) == 0 {
		return errors.New("controllers must not be empty")
	}
	names := make(map[string]bool, len(c.Controllers))
	for i, ctl := range c.Controllers {
		if ctl.Name == "" {
			return fmt.Errorf("controllers[%d].name is empty", i)
		}
		if names[ctl.Name] {
			return fmt.Errorf("controllers[%d].name %q is duplicated", i, ctl.Name)
		}
		names[ctl.Name] = true
		if ctl.Threshold < 0 {
			return fmt.Errorf("controllers[%d].threshold must be >= 0", i)
		}
		if ctl.ThresholdTimeMS <= 0 {
			return fmt.Errorf("controllers[%d].threshold_time_ms must be > 0", i)
		}
		if ctl.RequirePriorIdleMS < 0 {
			return fmt.Errorf("controllers[%d].require_prior_idle_ms must be >= 0", i)
		}
	}

	if len(c.Devices) == 0 {
		return errors.New("devices must not be empty")
	}
	paths := make(map[string]bool, len(c.Devices))
	for i, dev := range c.Devices {
		if dev.Path == "" {
			return fmt.Errorf("devices[%d].path is empty", i)
		}
		if paths[dev.Path] {
			return fmt.Errorf("devices[%d].path %q is duplicated", i, dev.Path)
		}
		paths[dev.Path] = true
		for j, p := range dev.Processors {
			if !names[p.Controller] {
				return fmt.Errorf("devices[%d].processors[%d]: unknown controller %q", i, j, p.Controller)
			}
			if p.Layer < 0 || p.Layer > MaxLayer {
				return fmt.Errorf("devices[%d].processors[%d].layer must be between 0 and %d", i, j, MaxLayer)
			}
			if p.TimeoutMS <= 0 {
				return fmt.Errorf("devices[%d].processors[%d].timeout_ms must be > 0", i, j)
			}
		}
	}

	return nil
}

// Engine converts the file representation into the engine config.
func (c ControllerConfig) Engine() logic.Config {
	return logic.Config{
		Threshold:         c.Threshold,
		ThresholdTime:     time.Duration(c.ThresholdTimeMS) * time.Millisecond,
		RequirePriorIdle:  time.Duration(c.RequirePriorIdleMS) * time.Millisecond,
		ExcludedPositions: append([]uint32(nil), c.ExcludedPositions...),
	}
}

// Heartbeat returns the heartbeat interval.
func (c Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatMS) * time.Millisecond
}

// Timeout returns the processor's disable timeout.
func (p ProcessorConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}
