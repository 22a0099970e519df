package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"bountypot/internal/money"
)

// Config models bountypot.yml. The lottery parameters are fixed at init
// time and stored alongside the ledger; editing the file after init has no
// effect on a running workspace until re-imported.
type Config struct {
	Lottery struct {
		MinEntryFee      string `yaml:"min_entry_fee"`
		RoundDuration    string `yaml:"round_duration"`
		MinUniquePlayers int    `yaml:"min_unique_players"`
		OwnerFeeBps      int64  `yaml:"owner_fee_bps"`
	} `yaml:"lottery"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	fee, err := money.Parse(c.Lottery.MinEntryFee)
	if err != nil {
		return fmt.Errorf("config.lottery.min_entry_fee: %w", err)
	}
	if fee <= 0 {
		return fmt.Errorf("config.lottery.min_entry_fee must be positive")
	}
	d, err := time.ParseDuration(c.Lottery.RoundDuration)
	if err != nil {
		return fmt.Errorf("config.lottery.round_duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("config.lottery.round_duration must be positive")
	}
	if c.Lottery.MinUniquePlayers < 1 {
		return fmt.Errorf("config.lottery.min_unique_players must be at least 1")
	}
	if c.Lottery.OwnerFeeBps < 0 || c.Lottery.OwnerFeeBps > 10000 {
		return fmt.Errorf("config.lottery.owner_fee_bps must be in [0,10000]")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// MinEntryFeeUnits returns the minimum entry fee in base units. Only valid
// after Validate has passed.
func (c *Config) MinEntryFeeUnits() int64 {
	v, _ := money.Parse(c.Lottery.MinEntryFee)
	return v
}

// RoundDuration returns the parsed round duration. Only valid after
// Validate has passed.
func (c *Config) RoundDuration() time.Duration {
	d, _ := time.ParseDuration(c.Lottery.RoundDuration)
	return d
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "bountypot.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	cfg, _ := FromYAML([]byte(defaultTemplate))
	return cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `lottery:
  min_entry_fee: "0.01"
  round_duration: 24h
  min_unique_players: 3
  owner_fee_bps: 1000
`
