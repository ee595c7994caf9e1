package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"momentum/internal/sizing"
)

func TestValidateConfigRejectsInvalidValues(t *testing.T) {
	cfg := Default()
	cfg.Mode = ModeLive
	cfg.MaxTradesPerDay = 0
	cfg.BalanceUsage = 1.5
	cfg.Sizing = "martingale"

	err := validate(cfg)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APCA_API_KEY_ID", "max-trades-per-day", "balance-usage", "martingale"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestValidateBalanceUsageBound(t *testing.T) {
	for _, usage := range []float64{0, 0.95, 1} {
		cfg := Default()
		cfg.BalanceUsage = usage
		if err := validate(cfg); err == nil || !strings.Contains(err.Error(), "balance-usage") {
			t.Fatalf("expected balance-usage %v to be rejected, got %v", usage, err)
		}
	}
	cfg := Default()
	cfg.BalanceUsage = 0.9
	if err := validate(cfg); err != nil {
		t.Fatalf("expected 0.9 to be accepted, got %v", err)
	}
}

func TestValidateConfigAcceptsDefaults(t *testing.T) {
	cfg := Default()
	if err := validate(cfg); err != nil {
		t.Fatalf("expected defaults to be valid, got %v", err)
	}
	if cfg.BaseAsset != "XRP" || cfg.QuoteAsset != "USD" {
		t.Fatalf("expected assets from symbol, got %s/%s", cfg.BaseAsset, cfg.QuoteAsset)
	}
	if cfg.DustNotional != cfg.MinNotional {
		t.Fatalf("expected dust notional to default to min notional, got %v", cfg.DustNotional)
	}
	if cfg.MinHold != 30*time.Minute || cfg.WarmupSamples != 15 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	configContents := `mode: simulate
symbol: SOL/USD
sizing: momentum
max-trades-per-day: 5
buy-threshold: 0.004
`
	if err := os.WriteFile(configPath, []byte(configContents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MOMENTUM_SIZING", "adaptive")
	t.Setenv("MOMENTUM_BUY_THRESHOLD", "0.005")
	t.Setenv("APCA_API_KEY_ID", "env-key")

	cfg, err := Load([]string{
		"--config", configPath,
		"--buy-threshold", "0.007",
		"--min-hold", "45m",
	})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Symbol != "SOL/USD" || cfg.BaseAsset != "SOL" {
		t.Fatalf("expected symbol from file, got %q", cfg.Symbol)
	}
	if cfg.MaxTradesPerDay != 5 {
		t.Fatalf("expected max trades from file, got %d", cfg.MaxTradesPerDay)
	}
	if cfg.Sizing != sizing.Adaptive {
		t.Fatalf("expected sizing from env, got %q", cfg.Sizing)
	}
	if cfg.BuyThreshold != 0.007 {
		t.Fatalf("expected buy threshold from CLI, got %v", cfg.BuyThreshold)
	}
	if cfg.MinHold != 45*time.Minute {
		t.Fatalf("expected min hold from CLI, got %v", cfg.MinHold)
	}
	if cfg.APIKey != "env-key" {
		t.Fatalf("expected API key from env, got %q", cfg.APIKey)
	}
}

func TestValidateAdvisorSettings(t *testing.T) {
	cfg := Default()
	cfg.AdvisorURL = "http://localhost:11434"
	cfg.AdvisorModel = ""
	cfg.AdvisorTimeout = 0

	err := validate(cfg)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"advisor-model", "advisor-timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestParseAcceptsDriverFlags(t *testing.T) {
	flags := NewFlagSet("backtest")
	candles := flags.String("candles", "", "")
	cfg, err := Parse(flags, []string{"--candles", "xrp.json", "--symbol", "ETH/USD"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if *candles != "xrp.json" || cfg.BaseAsset != "ETH" {
		t.Fatalf("unexpected parse result %q %+v", *candles, cfg)
	}
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	if _, err := Load([]string{"--no-such-flag"}); err == nil {
		t.Fatalf("expected flag parse error")
	}
}

func TestPresetFor(t *testing.T) {
	tests := []struct {
		change float64
		want   string
	}{
		{change: 20, want: "very_high"},
		{change: -9, want: "high"},
		{change: 8, want: "medium"},
		{change: 3.5, want: "medium"},
		{change: 3, want: "low"},
		{change: 0, want: "low"},
	}
	for _, tt := range tests {
		preset, err := PresetFor(tt.change)
		if err != nil {
			t.Fatalf("preset for %v: %v", tt.change, err)
		}
		if preset.Name != tt.want {
			t.Fatalf("change %v: expected %s, got %s", tt.change, tt.want, preset.Name)
		}
	}
}

func TestPresetsAreComplete(t *testing.T) {
	presets, err := Presets()
	if err != nil {
		t.Fatalf("presets: %v", err)
	}
	for _, p := range presets {
		if len(p.BuyThresholds) == 0 || len(p.TakeProfits) == 0 || len(p.Sizing) == 0 {
			t.Fatalf("preset %s is incomplete: %+v", p.Name, p)
		}
	}
}

func TestParsePresetsRejectsUnknownSizing(t *testing.T) {
	data := []byte("categories:\n  - name: odd\n    sizing: [martingale]\n")
	if _, err := parsePresets(data); err == nil {
		t.Fatalf("expected error for unknown sizing")
	}
}
