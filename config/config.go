package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the runtime configuration for the notes service. Values come
// from an optional TOML file with environment variables taking precedence.
type Config struct {
	Port        string `toml:"Port"`
	Env         string `toml:"Env"`
	DatabaseURL string `toml:"DatabaseURL"`

	Ledger LedgerConfig `toml:"Ledger"`
	Worker WorkerConfig `toml:"Worker"`
}

// LedgerConfig points the verification subsystem at the Blockfrost indexer.
type LedgerConfig struct {
	BaseURL        string `toml:"BaseURL"`
	ProjectID      string `toml:"ProjectID"`
	TimeoutSeconds int    `toml:"TimeoutSeconds"`
}

// WorkerConfig tunes the verification worker cadence and budgets.
type WorkerConfig struct {
	IntervalSeconds        int `toml:"IntervalSeconds"`
	SweepIntervalSeconds   int `toml:"SweepIntervalSeconds"`
	BatchSize              int `toml:"BatchSize"`
	PaceMillis             int `toml:"PaceMillis"`
	MaxRetries             int `toml:"MaxRetries"`
	ProcessingGraceSeconds int `toml:"ProcessingGraceSeconds"`
}

// Load reads configuration from the given path (skipped when empty or absent)
// and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Port: "8080",
		Env:  "development",
		Ledger: LedgerConfig{
			BaseURL:        "https://cardano-preprod.blockfrost.io/api/v0",
			TimeoutSeconds: 15,
		},
		Worker: WorkerConfig{
			IntervalSeconds:        30,
			SweepIntervalSeconds:   300,
			BatchSize:              10,
			PaceMillis:             500,
			MaxRetries:             10,
			ProcessingGraceSeconds: 600,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Port = normalizePort(envDefault("REDMATRIX_PORT", cfg.Port))
	cfg.Env = envDefault("REDMATRIX_ENV", cfg.Env)
	cfg.DatabaseURL = envDefault("REDMATRIX_DB_URL", cfg.DatabaseURL)

	cfg.Ledger.BaseURL = envDefault("BLOCKFROST_API_URL", cfg.Ledger.BaseURL)
	cfg.Ledger.ProjectID = envDefault("BLOCKFROST_PROJECT_ID", cfg.Ledger.ProjectID)
	cfg.Ledger.TimeoutSeconds = envInt("BLOCKFROST_TIMEOUT_SECONDS", cfg.Ledger.TimeoutSeconds)

	cfg.Worker.IntervalSeconds = envInt("VERIFICATION_INTERVAL_SECONDS", cfg.Worker.IntervalSeconds)
	cfg.Worker.SweepIntervalSeconds = envInt("VERIFICATION_SWEEP_INTERVAL_SECONDS", cfg.Worker.SweepIntervalSeconds)
	cfg.Worker.BatchSize = envInt("VERIFICATION_BATCH_SIZE", cfg.Worker.BatchSize)
	cfg.Worker.PaceMillis = envInt("VERIFICATION_PACE_MILLIS", cfg.Worker.PaceMillis)
	cfg.Worker.MaxRetries = envInt("VERIFICATION_MAX_RETRIES", cfg.Worker.MaxRetries)
	cfg.Worker.ProcessingGraceSeconds = envInt("VERIFICATION_PROCESSING_GRACE_SECONDS", cfg.Worker.ProcessingGraceSeconds)
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("config: database URL is required (set REDMATRIX_DB_URL)")
	}
	if strings.TrimSpace(c.Ledger.BaseURL) == "" {
		return fmt.Errorf("config: ledger base URL is required")
	}
	if c.Ledger.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: ledger timeout must be positive")
	}
	if c.Worker.IntervalSeconds <= 0 {
		return fmt.Errorf("config: worker interval must be positive")
	}
	if c.Worker.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("config: sweep interval must be positive")
	}
	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("config: batch size must be positive")
	}
	if c.Worker.MaxRetries <= 0 {
		return fmt.Errorf("config: max retries must be positive")
	}
	return nil
}

// ListenAddress returns the HTTP bind address derived from the port.
func (c *Config) ListenAddress() string {
	return ":" + c.Port
}

// LedgerTimeout returns the per-call timeout for ledger fetches.
func (c *Config) LedgerTimeout() time.Duration {
	return time.Duration(c.Ledger.TimeoutSeconds) * time.Second
}

// WorkerInterval returns the reconciliation cycle cadence.
func (c *Config) WorkerInterval() time.Duration {
	return time.Duration(c.Worker.IntervalSeconds) * time.Second
}

// SweepInterval returns the expiry sweep cadence.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Worker.SweepIntervalSeconds) * time.Second
}

// PaceInterval returns the minimum spacing between ledger calls in one cycle.
func (c *Config) PaceInterval() time.Duration {
	return time.Duration(c.Worker.PaceMillis) * time.Millisecond
}

// ProcessingGrace returns how long a PROCESSING record is treated as in
// flight before it re-enters retry eligibility.
func (c *Config) ProcessingGrace() time.Duration {
	return time.Duration(c.Worker.ProcessingGraceSeconds) * time.Second
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return def
}

func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return "8080"
	}
	return strings.TrimPrefix(port, ":")
}
