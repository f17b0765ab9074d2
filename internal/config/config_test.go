package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"telegram": {"token": "tg-token", "poll_timeout": "15s"},
		"chain": {"contract": "terra1abc", "poll_schedule": "1m"}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "tg-token" || cfg.Chain.Contract != "terra1abc" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Chain.PollSchedule != "1m" {
		t.Fatalf("PollSchedule = %q", cfg.Chain.PollSchedule)
	}
	// defaults fill the rest
	if cfg.Chain.LCDURL != DefaultLCDURL {
		t.Fatalf("LCDURL = %q", cfg.Chain.LCDURL)
	}
	if cfg.State.Driver != "file" || cfg.State.Dir != "./data" {
		t.Fatalf("state = %+v", cfg.State)
	}
	if cfg.Telegram.RatePerSec != 20 {
		t.Fatalf("RatePerSec = %d, want default 20", cfg.Telegram.RatePerSec)
	}
}

func TestParseYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
discord:
  token: dc-token
chain:
  lcd_url: https://lcd.example
state:
  driver: sqlite
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Discord.Token != "dc-token" || cfg.Chain.LCDURL != "https://lcd.example" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.State.Driver != "sqlite" {
		t.Fatalf("driver = %q", cfg.State.Driver)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "config.json", `{"telgram": {"token": "oops"}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestParseRejectsBadDriver(t *testing.T) {
	path := writeFile(t, "config.json", `{"state": {"driver": "redis"}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"telegram": {"token": "file-token"},
		"chain": {"contract": "file-contract"}
	}`)
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("ANNOUNCEMENT_CONTRACT", "env-contract")

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q, want env override", cfg.Telegram.Token)
	}
	if cfg.Chain.Contract != "env-contract" {
		t.Fatalf("contract = %q, want env override", cfg.Chain.Contract)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "dc")
	t.Setenv("LCD_URL", "https://other-lcd.example")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Discord.Token != "dc" || cfg.Chain.LCDURL != "https://other-lcd.example" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Chain.PollSchedule != "30s" {
		t.Fatalf("PollSchedule = %q, want default", cfg.Chain.PollSchedule)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("telegram.poll_timeout", "", 10*time.Second)
	if err != nil || d != 10*time.Second {
		t.Fatalf("default = (%v, %v)", d, err)
	}
	d, err = ParseDurationOrDefault("telegram.poll_timeout", "45s", 10*time.Second)
	if err != nil || d != 45*time.Second {
		t.Fatalf("explicit = (%v, %v)", d, err)
	}
	if _, err := ParseDurationField("x", "nonsense"); err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
}
