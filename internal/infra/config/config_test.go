package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("TG_SUDO_IDS", "11,12")

	cfg, err := load()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if cfg.Drops.DefaultFrequency != 100 || cfg.Drops.MatchMode != "any_token" {
		t.Fatalf("неожиданные значения по умолчанию: %+v", cfg.Drops)
	}
	if cfg.Events.AuctionDuration != 10*time.Minute || cfg.Events.RaidDuration != 24*time.Hour {
		t.Fatalf("неожиданные длительности: %+v", cfg.Events)
	}
	if len(cfg.Telegram.SudoIDs) != 2 || cfg.Telegram.SudoIDs[1] != 12 {
		t.Fatalf("ожидали два sudo, получили %v", cfg.Telegram.SudoIDs)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"GUESS_MATCH_MODE":       "fuzzy",
		"QUEUE_DRIVER":           "kafka",
		"DROP_DEFAULT_FREQUENCY": "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("APP_ENV", "test")
			t.Setenv(key, value)
			if _, err := load(); err == nil {
				t.Fatalf("%s=%s должен отклоняться", key, value)
			}
		})
	}
}

func TestRequire(t *testing.T) {
	var cfg AppConfig
	cfg.PGDSN = "postgres://localhost/bot"
	if err := cfg.Require("PG_DSN"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := cfg.Require("PG_DSN", "TG_BOT_TOKEN", "REDIS_ADDR"); err == nil {
		t.Fatal("ожидали ошибку для пустых переменных")
	}
	if err := cfg.Require("NOPE"); err == nil {
		t.Fatal("ожидали ошибку для неизвестной переменной")
	}
}
