package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file into the environment if one exists.
// A missing file is not an error.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// FromEnv builds a config from defaults and environment variables alone,
// used when no config file is present.
func FromEnv() (*Config, error) {
	cfg := Default()
	applyEnv(cfg)
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables over the file config. Secrets are
// expected in the environment in deployments; file values act as fallbacks.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("DISCORD_TOKEN")); v != "" {
		cfg.Discord.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("ANNOUNCEMENT_CONTRACT")); v != "" {
		cfg.Chain.Contract = v
	}
	if v := strings.TrimSpace(os.Getenv("LCD_URL")); v != "" {
		cfg.Chain.LCDURL = v
	}
}
