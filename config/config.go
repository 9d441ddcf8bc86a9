package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SimulatorConfig configuration for a single simulator instance.
type SimulatorConfig struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`

	// Mode keys the portfolio document: "paper" runs the full
	// simulation loop, "live" only marks positions to market (order
	// execution against a real exchange is handled elsewhere).
	Mode string `json:"mode"`

	InitialBalance      float64 `json:"initial_balance"`
	ScanIntervalMinutes float64 `json:"scan_interval_minutes"`

	// SignalAPIURL endpoint that produces the per-asset decision JSON.
	SignalAPIURL string `json:"signal_api_url,omitempty"`
}

// TelegramConfig trade-notification side channel. Optional; with no
// token configured notifications are silently disabled.
type TelegramConfig struct {
	BotToken string `json:"bot_token,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
}

// DatabaseConfig portfolio/trade storage.
type DatabaseConfig struct {
	Driver string `json:"driver,omitempty"` // "sqlite" (default) or "postgres"
	Path   string `json:"path,omitempty"`   // SQLite file path
	URL    string `json:"url,omitempty"`    // PostgreSQL connection string
	Schema string `json:"schema,omitempty"` // PostgreSQL schema (default: "public")
}

// Config main configuration.
type Config struct {
	Simulators []SimulatorConfig `json:"simulators"`

	// Symbols tradable whitelist of base symbols; also the fixed order
	// in which trade intents are admitted each cycle.
	Symbols []string `json:"symbols"`

	APIServerPort       int    `json:"api_server_port"`
	MarkIntervalSeconds int    `json:"mark_interval_seconds"` // mark-to-market tick
	CronSecret          string `json:"cron_secret,omitempty"` // bearer token guarding the cycle endpoint

	Telegram TelegramConfig `json:"telegram,omitempty"`
	Database DatabaseConfig `json:"database,omitempty"`
}

// LoadConfig loads configuration from file, applies environment
// overrides for secrets, and validates the result.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Secrets prefer the environment over the config file.
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		config.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		config.Telegram.ChatID = v
	}
	if v := os.Getenv("CRON_SECRET"); v != "" {
		config.CronSecret = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Database.URL = v
		if config.Database.Driver == "" {
			config.Database.Driver = "postgres"
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates configuration validity and fills in defaults.
func (c *Config) Validate() error {
	if len(c.Simulators) == 0 {
		return fmt.Errorf("at least one simulator must be configured")
	}

	ids := make(map[string]bool)
	modes := make(map[string]string)
	for i := range c.Simulators {
		s := &c.Simulators[i]
		if s.ID == "" {
			return fmt.Errorf("simulator[%d]: ID cannot be empty", i)
		}
		if ids[s.ID] {
			return fmt.Errorf("simulator[%d]: ID '%s' is duplicated", i, s.ID)
		}
		ids[s.ID] = true

		if s.Name == "" {
			s.Name = s.ID
		}
		if s.Mode == "" {
			s.Mode = "paper"
		}
		if s.Mode != "paper" && s.Mode != "live" {
			return fmt.Errorf("simulator[%d]: mode must be 'paper' or 'live'", i)
		}
		if s.InitialBalance <= 0 {
			return fmt.Errorf("simulator[%d]: initial_balance must be greater than 0", i)
		}

		// The mode keys the stored portfolio document, so two enabled
		// simulators on the same mode would overwrite each other's
		// snapshot from independent loops.
		if s.Enabled {
			if other, taken := modes[s.Mode]; taken {
				return fmt.Errorf("simulator[%d]: mode '%s' is already used by enabled simulator '%s'; each enabled simulator needs its own mode", i, s.Mode, other)
			}
			modes[s.Mode] = s.ID
		}
		if s.ScanIntervalMinutes <= 0 {
			s.ScanIntervalMinutes = 5.0 // Default 5 minutes
		}
	}

	if len(c.Symbols) == 0 {
		c.Symbols = []string{"BTC", "ETH", "SOL", "XRP", "DOGE", "BNB"}
	}

	if c.APIServerPort <= 0 {
		c.APIServerPort = 8080
	}
	if c.MarkIntervalSeconds <= 0 {
		c.MarkIntervalSeconds = 60
	}

	switch c.Database.Driver {
	case "":
		c.Database.Driver = "sqlite"
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database driver must be 'sqlite' or 'postgres', got '%s'", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("database url must be configured when using postgres")
	}

	return nil
}

// GetScanInterval gets the signal scan interval.
func (sc *SimulatorConfig) GetScanInterval() time.Duration {
	return time.Duration(sc.ScanIntervalMinutes * float64(time.Minute))
}

// GetMarkInterval gets the mark-to-market interval.
func (c *Config) GetMarkInterval() time.Duration {
	return time.Duration(c.MarkIntervalSeconds) * time.Second
}
