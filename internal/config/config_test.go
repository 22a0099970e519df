package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if cfg == nil {
		t.Fatal("default config is nil")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.MinEntryFeeUnits() != 10_000_000 {
		t.Fatalf("min entry fee = %d units", cfg.MinEntryFeeUnits())
	}
	if cfg.RoundDuration() != 24*time.Hour {
		t.Fatalf("round duration = %s", cfg.RoundDuration())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		muck func(*Config)
	}{
		{"bad fee", func(c *Config) { c.Lottery.MinEntryFee = "abc" }},
		{"zero fee", func(c *Config) { c.Lottery.MinEntryFee = "0" }},
		{"bad duration", func(c *Config) { c.Lottery.RoundDuration = "yesterday" }},
		{"negative duration", func(c *Config) { c.Lottery.RoundDuration = "-1h" }},
		{"zero players", func(c *Config) { c.Lottery.MinUniquePlayers = 0 }},
		{"fee bps too high", func(c *Config) { c.Lottery.OwnerFeeBps = 10001 }},
		{"negative fee bps", func(c *Config) { c.Lottery.OwnerFeeBps = -1 }},
		{"webhook without url", func(c *Config) { c.Webhooks = []WebhookConfig{{}} }},
	}
	for _, c := range cases {
		cfg := Default()
		c.muck(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: validate succeeded", c.name)
		}
	}
}

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`lottery:
  min_entry_fee: "0.5"
  round_duration: 1h
  min_unique_players: 2
  owner_fee_bps: 250
`))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.MinEntryFeeUnits() != 500_000_000 {
		t.Fatalf("fee = %d units", cfg.MinEntryFeeUnits())
	}
	if cfg.Lottery.OwnerFeeBps != 250 {
		t.Fatalf("fee bps = %d", cfg.Lottery.OwnerFeeBps)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if cfg != nil {
		t.Fatal("missing config file returned a config")
	}

	if err := os.WriteFile(filepath.Join(dir, "bountypot.yml"), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg == nil {
		t.Fatal("config file present but load returned nil")
	}
}
