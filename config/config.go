// Package config loads the node configuration from a YAML file. It also
// persists the sensor identity, so a node keeps its id across reinstalls.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/michcald/foxgeig/node"
)

// ErrNoIdentity is returned by ReadIdentity when no identity is stored.
var ErrNoIdentity = errors.New("no sensor identity configured")

var _ node.IdentityStore = (*Config)(nil)

// Config represents the node configuration.
type Config struct {
	Log      LogConfig       `yaml:"log"`
	Radio    RadioConfig     `yaml:"radio"`
	Node     NodeConfig      `yaml:"node"`
	Hardware HardwareConfig  `yaml:"hardware"`
	Console  ConsoleConfig   `yaml:"console"`
	Identity *IdentityConfig `yaml:"identity,omitempty"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn or error
}

// RadioConfig contains the RFM69 modem settings.
type RadioConfig struct {
	FrequencyHz uint32 `yaml:"frequency_hz"`
	BitRate     uint32 `yaml:"bit_rate"`
	DeviationHz uint32 `yaml:"deviation_hz"`
	PALevel     uint8  `yaml:"pa_level"`
	SyncWord    []int  `yaml:"sync_word,flow"`
	RetryBudget int    `yaml:"retry_budget"` // Status polls before a transmit times out
}

// NodeConfig contains the control loop timing.
type NodeConfig struct {
	TickPeriod       time.Duration `yaml:"tick_period"`
	BaseInterval     uint32        `yaml:"base_interval"` // Ticks between frames, jittered by one
	WatchdogTimeout  time.Duration `yaml:"watchdog_timeout"`
	ConsolePoll      time.Duration `yaml:"console_poll"`
	HistorySlots     int           `yaml:"history_slots"` // 30 second slots
	BatteryChannel   uint8         `yaml:"battery_channel"`
	BatteryFullScale float32       `yaml:"battery_full_scale"` // Battery volts at the top ADC code
}

// HardwareConfig describes how the parts are wired to the host.
type HardwareConfig struct {
	SPIPort      string  `yaml:"spi_port"` // Empty selects the first bus
	SPIClockHz   int     `yaml:"spi_clock_hz"`
	PulsePin     int     `yaml:"pulse_pin"`
	PulseEdge    string  `yaml:"pulse_edge"` // rising, falling or both
	ResetPin     int     `yaml:"reset_pin"`  // 0 if not connected
	I2CBus       string  `yaml:"i2c_bus"`    // Empty selects the first bus
	ADCAddress   uint16  `yaml:"adc_address"`
	ADCInput     int     `yaml:"adc_input"`      // ADS1115 input 0..3 wired to the battery divider
	ADCFullScale float32 `yaml:"adc_full_scale"` // Input volts at the top ADC code
}

// ConsoleConfig contains the debug console settings.
type ConsoleConfig struct {
	Port     string `yaml:"port"` // Empty disables the console
	BaudRate int    `yaml:"baud_rate"`
}

// IdentityConfig is the persisted sensor identity. Check must be the one's
// complement of SensorID for the identity to be used.
type IdentityConfig struct {
	SensorID uint8 `yaml:"sensor_id"`
	Check    uint8 `yaml:"check"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Radio: RadioConfig{
			FrequencyHz: 868300000,
			BitRate:     17241,
			DeviationHz: 90000,
			PALevel:     0x9F,
			SyncWord:    []int{0x2D, 0xD4},
			RetryBudget: 10000,
		},
		Node: NodeConfig{
			TickPeriod:       node.DefaultTickPeriod,
			BaseInterval:     node.DefaultBaseInterval,
			WatchdogTimeout:  node.DefaultWatchdogTimeout,
			ConsolePoll:      node.DefaultConsolePoll,
			HistorySlots:     120,
			BatteryChannel:   node.DefaultBatteryChannel,
			BatteryFullScale: node.DefaultBatteryFullScale,
		},
		Hardware: HardwareConfig{
			SPIClockHz:   4000000,
			PulsePin:     17,
			PulseEdge:    "falling",
			ResetPin:     25,
			ADCAddress:   0x48,
			ADCInput:     0,
			ADCFullScale: 3.3,
		},
		Console: ConsoleConfig{
			BaudRate: 115200,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ReadIdentity returns the stored sensor id and its check byte.
func (c *Config) ReadIdentity() (id, check byte, err error) {
	if c.Identity == nil {
		return 0, 0, ErrNoIdentity
	}
	return c.Identity.SensorID, c.Identity.Check, nil
}

// SetIdentity stores id together with its check byte.
func (c *Config) SetIdentity(id byte) {
	c.Identity = &IdentityConfig{SensorID: id, Check: id ^ 0xFF}
}

// SyncBytes returns the sync word as bytes.
func (c *RadioConfig) SyncBytes() []byte {
	b := make([]byte, len(c.SyncWord))
	for i, v := range c.SyncWord {
		b[i] = byte(v)
	}
	return b
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}

	if c.Radio.FrequencyHz == 0 {
		c.Radio.FrequencyHz = def.Radio.FrequencyHz
	}
	if c.Radio.BitRate == 0 {
		c.Radio.BitRate = def.Radio.BitRate
	}
	if c.Radio.DeviationHz == 0 {
		c.Radio.DeviationHz = def.Radio.DeviationHz
	}
	if c.Radio.PALevel == 0 {
		c.Radio.PALevel = def.Radio.PALevel
	}
	if len(c.Radio.SyncWord) == 0 {
		c.Radio.SyncWord = def.Radio.SyncWord
	}
	if c.Radio.RetryBudget <= 0 {
		c.Radio.RetryBudget = def.Radio.RetryBudget
	}

	if c.Node.TickPeriod <= 0 {
		c.Node.TickPeriod = def.Node.TickPeriod
	}
	if c.Node.BaseInterval < 2 {
		c.Node.BaseInterval = def.Node.BaseInterval
	}
	if c.Node.WatchdogTimeout <= 0 {
		c.Node.WatchdogTimeout = def.Node.WatchdogTimeout
	}
	if c.Node.ConsolePoll <= 0 {
		c.Node.ConsolePoll = def.Node.ConsolePoll
	}
	if c.Node.HistorySlots < 2 {
		c.Node.HistorySlots = def.Node.HistorySlots
	}
	if c.Node.BatteryChannel == 0 {
		c.Node.BatteryChannel = def.Node.BatteryChannel
	}
	if c.Node.BatteryFullScale <= 0 {
		c.Node.BatteryFullScale = def.Node.BatteryFullScale
	}

	if c.Hardware.SPIClockHz <= 0 {
		c.Hardware.SPIClockHz = def.Hardware.SPIClockHz
	}
	if c.Hardware.PulsePin == 0 {
		c.Hardware.PulsePin = def.Hardware.PulsePin
	}
	if c.Hardware.PulseEdge == "" {
		c.Hardware.PulseEdge = def.Hardware.PulseEdge
	}
	if c.Hardware.ADCAddress == 0 {
		c.Hardware.ADCAddress = def.Hardware.ADCAddress
	}
	if c.Hardware.ADCFullScale <= 0 {
		c.Hardware.ADCFullScale = def.Hardware.ADCFullScale
	}

	if c.Console.BaudRate <= 0 {
		c.Console.BaudRate = def.Console.BaudRate
	}
}
