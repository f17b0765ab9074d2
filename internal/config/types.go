package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	Chain    ChainConfig    `json:"chain"`
	Logging  LoggingConfig  `json:"logging"`
	State    StateConfig    `json:"state"`
}

// TelegramConfig configures the Telegram bot instance.
// The instance is enabled when a token is present (config or TELEGRAM_TOKEN).
type TelegramConfig struct {
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m") for long polling.
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outbound message sends. Default 20.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// DiscordConfig configures the Discord bot instance.
// The instance is enabled when a token is present (config or DISCORD_TOKEN).
type DiscordConfig struct {
	Token string `json:"token,omitempty"`
	// RatePerSec caps outbound message sends. Default 20.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// ChainConfig configures the announcement source.
//
// Contract may be left empty here and provided via ANNOUNCEMENT_CONTRACT;
// its absence is surfaced at query time, not at startup.
type ChainConfig struct {
	LCDURL   string `json:"lcd_url,omitempty"`
	Contract string `json:"contract,omitempty"`
	// PollSchedule is either a Go duration string ("30s") or a cron spec
	// ("cron:*/5 * * * *"). Default: "30s".
	PollSchedule string `json:"poll_schedule,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StateConfig controls the persistence layer for subscriber registries and
// watermarks.
//
// Driver values:
//   - "file" (default): human-readable JSON files under Dir
//   - "sqlite": a SQLite database file under Dir
type StateConfig struct {
	Driver string `json:"driver,omitempty"`
	Dir    string `json:"dir,omitempty"`
	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

const DefaultLCDURL = "https://terra-classic-lcd.publicnode.com"

func Default() *Config {
	return &Config{
		Chain: ChainConfig{
			LCDURL:       DefaultLCDURL,
			PollSchedule: "30s",
		},
		Logging: LoggingConfig{Level: "info", Console: true},
		State:   StateConfig{Driver: "file", Dir: "./data"},
	}
}

// Normalize fills defaults and validates field combinations.
func (c *Config) Normalize() error {
	if strings.TrimSpace(c.Chain.LCDURL) == "" {
		c.Chain.LCDURL = DefaultLCDURL
	}
	if strings.TrimSpace(c.Chain.PollSchedule) == "" {
		c.Chain.PollSchedule = "30s"
	}
	if strings.TrimSpace(c.State.Driver) == "" {
		c.State.Driver = "file"
	}
	if strings.TrimSpace(c.State.Dir) == "" {
		c.State.Dir = "./data"
	}
	if c.Telegram.RatePerSec <= 0 {
		c.Telegram.RatePerSec = 20
	}
	if c.Discord.RatePerSec <= 0 {
		c.Discord.RatePerSec = 20
	}
	switch strings.ToLower(strings.TrimSpace(c.State.Driver)) {
	case "file", "sqlite", "sqlite3":
	default:
		return errors.New("state.driver must be \"file\" or \"sqlite\"")
	}
	return nil
}

func decodeStrict(b []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("invalid config: trailing data")
		}
		return err
	}
	return nil
}
