// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Carl590/ai-trading-bot/internal/policy"
	"github.com/Carl590/ai-trading-bot/internal/safety"
	"github.com/Carl590/ai-trading-bot/internal/score"
	"github.com/Carl590/ai-trading-bot/internal/stops"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	Mode        string `yaml:"mode"` // paper|live
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
}

// Intake configures the signal webhook server and the bounded work queue
// behind it.
type Intake struct {
	Addr          string  `yaml:"addr"`
	QueueSize     int     `yaml:"queue_size"`
	Workers       int     `yaml:"workers"`
	TickRateLimit float64 `yaml:"tick_rate_limit"` // per-token observed ticks/sec
	TickBurst     int     `yaml:"tick_burst"`
}

// Safety wires the token-report provider and the gate thresholds.
type Safety struct {
	ProviderBaseURL string            `yaml:"provider_base_url"`
	TimeoutMs       int               `yaml:"timeout_ms"`
	CacheTTLSecs    int               `yaml:"cache_ttl_secs"`
	Thresholds      safety.Thresholds `yaml:"thresholds"`
}

// Timeout returns the provider timeout as a duration.
func (s Safety) Timeout() time.Duration { return time.Duration(s.TimeoutMs) * time.Millisecond }

// CacheTTL returns the verdict cache TTL as a duration.
func (s Safety) CacheTTL() time.Duration { return time.Duration(s.CacheTTLSecs) * time.Second }

// Stops selects the trailing width model and its parameters.
type Stops struct {
	Mode   string            `yaml:"mode"` // liquidity|fixed
	Params stops.WidthParams `yaml:"params"`
}

// Storage holds file locations for the ledger database and audit trail.
type Storage struct {
	Path      string `yaml:"path"`
	AuditPath string `yaml:"audit_path"`
}

// Feed configures the market data source for the stop engine.
type Feed struct {
	Provider           string `yaml:"provider"` // stub|dexscreener|pumpportal
	DexScreenerBaseURL string `yaml:"dexscreener_base_url"`
	PollIntervalMs     int    `yaml:"poll_interval_ms"`
	PumpPortalURL      string `yaml:"pumpportal_url"`
}

// PollInterval returns the polling cadence as a duration.
func (f Feed) PollInterval() time.Duration { return time.Duration(f.PollIntervalMs) * time.Millisecond }

// Execution tunes order submission and retry behavior.
type Execution struct {
	SlippageBps int `yaml:"slippage_bps"`
	Attempts    int `yaml:"attempts"`
	BackoffMs   int `yaml:"backoff_ms"`
}

// Backoff returns the initial retry backoff as a duration.
func (e Execution) Backoff() time.Duration { return time.Duration(e.BackoffMs) * time.Millisecond }

// Paper captures paper-trading account settings.
type Paper struct {
	StartingCash        float64 `yaml:"starting_cash"`
	MaxPositionPerToken float64 `yaml:"max_position_per_token"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App           `yaml:"app"`
	Intake    Intake        `yaml:"intake"`
	Scoring   score.Params  `yaml:"scoring"`
	Safety    Safety        `yaml:"safety"`
	Stops     Stops         `yaml:"stops"`
	Sizing    policy.Sizing `yaml:"sizing"`
	Storage   Storage       `yaml:"storage"`
	Feed      Feed          `yaml:"feed"`
	Execution Execution     `yaml:"execution"`
	Paper     Paper         `yaml:"paper"`
	Dex       Dex           `yaml:"dex"`
	Wallet    Wallet        `yaml:"wallet"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
