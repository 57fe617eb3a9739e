// Package config loads and validates the PLKG run configuration: the
// serial link, WiFi probe parameters, subcarrier ranges, and the
// reconciliation tunables, all overridable from YAML with CLI flag
// overrides layered on top by cmd/plkg.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/barnettlynn/plkg/internal/csiagg"
)

// Config is the full configuration surface from spec §6.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Radio    RadioConfig    `yaml:"radio"`
	Phase    PhaseConfig    `yaml:"phase"`
	CSI      CSIConfig      `yaml:"csi"`
	Cascade  CascadeConfig  `yaml:"cascade"`
	RNGSeed  string         `yaml:"rng_seed"` // "fixed:<n>" or "time"
	StateLog StateLogConfig `yaml:"state_log"`
}

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type RadioConfig struct {
	Channel   int    `yaml:"channel"`
	Bandwidth string `yaml:"bandwidth"` // "HT20", "HT40", "legacy"
	LocalMAC  string `yaml:"local_mac"`
	PeerMAC   string `yaml:"peer_mac"`
}

type PhaseConfig struct {
	Duration time.Duration `yaml:"duration"`
	PingRate int           `yaml:"ping_rate_hz"`
}

type CSIConfig struct {
	SubcarrierRanges []csiagg.Range `yaml:"subcarrier_ranges"`
	Window           int            `yaml:"window"`
	KMain            int            `yaml:"k_main"`
	MNeighbors       int            `yaml:"m_neighbors"`
}

type CascadeConfig struct {
	InitialBlock int           `yaml:"initial_block"`
	Passes       int           `yaml:"passes"`
	InitTimeout  time.Duration `yaml:"init_timeout"`
	RespTimeout  time.Duration `yaml:"resp_timeout"`
}

type StateLogConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration spec §4 and §6 list as defaults.
func Default() Config {
	return Config{
		Serial: SerialConfig{Port: "/dev/ttyUSB0", Baud: 921600},
		Radio:  RadioConfig{Channel: 6, Bandwidth: "HT20"},
		Phase:  PhaseConfig{Duration: 12 * time.Second, PingRate: 20},
		CSI: CSIConfig{
			SubcarrierRanges: csiagg.DefaultRanges(),
			Window:           csiagg.DefaultWindow,
			KMain:            16,
			MNeighbors:       2,
		},
		Cascade: CascadeConfig{
			InitialBlock: 4,
			Passes:       8,
			InitTimeout:  8 * time.Second,
			RespTimeout:  3 * time.Second,
		},
		RNGSeed: "time",
	}
}

// Load reads and validates a YAML config file, layering it over Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Serial.Port) == "" {
		return fmt.Errorf("config.serial.port is required")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("config.serial.baud must be positive")
	}
	if c.Radio.Channel <= 0 {
		return fmt.Errorf("config.radio.channel must be positive")
	}
	if c.Phase.Duration <= 0 {
		return fmt.Errorf("config.phase.duration must be positive")
	}
	if c.Phase.PingRate <= 0 {
		return fmt.Errorf("config.phase.ping_rate_hz must be positive")
	}
	if len(c.CSI.SubcarrierRanges) == 0 {
		return fmt.Errorf("config.csi.subcarrier_ranges must not be empty")
	}
	for _, r := range c.CSI.SubcarrierRanges {
		if r.Start < 0 || r.End <= r.Start {
			return fmt.Errorf("config.csi.subcarrier_ranges: invalid range [%d,%d)", r.Start, r.End)
		}
	}
	if c.CSI.KMain <= 0 {
		return fmt.Errorf("config.csi.k_main must be positive")
	}
	if c.CSI.MNeighbors <= 0 {
		return fmt.Errorf("config.csi.m_neighbors must be positive")
	}
	if c.Cascade.InitialBlock < 2 {
		return fmt.Errorf("config.cascade.initial_block must be >= 2")
	}
	if c.Cascade.Passes <= 0 {
		return fmt.Errorf("config.cascade.passes must be positive")
	}
	if c.Cascade.InitTimeout <= 0 || c.Cascade.RespTimeout <= 0 {
		return fmt.Errorf("config.cascade timeouts must be positive")
	}
	return nil
}

func (c *Config) resolvePaths(configPath string) {
	if c.StateLog.Path == "" {
		return
	}
	configDir := filepath.Dir(configPath)
	if !filepath.IsAbs(c.StateLog.Path) {
		c.StateLog.Path = filepath.Clean(filepath.Join(configDir, c.StateLog.Path))
	}
}
