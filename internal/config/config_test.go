package config

import (
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "tradebot-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.App.Mode != "paper" {
		t.Fatalf("unexpected App.Mode: %s", cfg.App.Mode)
	}
	if cfg.Intake.Addr != ":8080" {
		t.Fatalf("unexpected Intake.Addr: %s", cfg.Intake.Addr)
	}
	if cfg.Intake.QueueSize != 256 || cfg.Intake.Workers != 4 {
		t.Fatalf("unexpected intake sizing: %+v", cfg.Intake)
	}
	if cfg.Intake.TickRateLimit != 20 || cfg.Intake.TickBurst != 40 {
		t.Fatalf("unexpected tick limiter tuning: %+v", cfg.Intake)
	}
	if cfg.Scoring.AutoThreshold != 0.8 {
		t.Fatalf("unexpected auto threshold: %.2f", cfg.Scoring.AutoThreshold)
	}
	if cfg.Safety.ProviderBaseURL != "https://api.rugcheck.xyz" {
		t.Fatalf("unexpected safety provider: %s", cfg.Safety.ProviderBaseURL)
	}
	if cfg.Safety.Timeout().Milliseconds() != 5000 {
		t.Fatalf("unexpected safety timeout: %v", cfg.Safety.Timeout())
	}
	if cfg.Safety.Thresholds.MinLiquidityUSD != 100000 {
		t.Fatalf("unexpected min liquidity: %.2f", cfg.Safety.Thresholds.MinLiquidityUSD)
	}
	if cfg.Stops.Mode != "liquidity" {
		t.Fatalf("unexpected stops mode: %s", cfg.Stops.Mode)
	}
	if cfg.Stops.Params.FloorPct != 0.06 || cfg.Stops.Params.CeilingPct != 0.40 {
		t.Fatalf("unexpected width clamps: %+v", cfg.Stops.Params)
	}
	if cfg.Sizing.SoftRiskDampening != 0.5 {
		t.Fatalf("unexpected dampening: %.2f", cfg.Sizing.SoftRiskDampening)
	}
	if cfg.Storage.Path != "data/tradebot.db" {
		t.Fatalf("unexpected storage path: %s", cfg.Storage.Path)
	}
	if cfg.Feed.Provider != "dexscreener" {
		t.Fatalf("unexpected feed provider: %s", cfg.Feed.Provider)
	}
	if cfg.Feed.PollInterval().Milliseconds() != 750 {
		t.Fatalf("unexpected poll interval: %v", cfg.Feed.PollInterval())
	}
	if cfg.Execution.SlippageBps != 50 || cfg.Execution.Attempts != 3 {
		t.Fatalf("unexpected execution tuning: %+v", cfg.Execution)
	}
	if cfg.Paper.StartingCash != 5000 {
		t.Fatalf("expected starting cash 5000, got %.2f", cfg.Paper.StartingCash)
	}
	if cfg.Dex.Commitment != "processed" {
		t.Fatalf("expected processed commitment, got %s", cfg.Dex.Commitment)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	out := filepath.Join(t.TempDir(), "config.yaml")
	if err := Save(out, cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	again, err := Load(out)
	if err != nil {
		t.Fatalf("reload returned error: %v", err)
	}
	if again.App.Name != cfg.App.Name || again.Feed.Provider != cfg.Feed.Provider {
		t.Fatalf("round trip mismatch: %+v vs %+v", again.App, cfg.App)
	}
}
