package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev" validate:"oneof=dev test prod"`
	Port        int    `envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Telegram struct {
		Token          string  `envconfig:"TG_BOT_TOKEN"`
		WebhookURL     string  `envconfig:"TG_WEBHOOK_URL" validate:"omitempty,url"`
		OwnerID        int64   `envconfig:"TG_OWNER_ID" validate:"gte=0"`
		SudoIDs        []int64 `envconfig:"TG_SUDO_IDS"`
		CatalogChannel int64   `envconfig:"TG_CATALOG_CHANNEL"`
		AuctionChannel int64   `envconfig:"TG_AUCTION_CHANNEL"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Drops struct {
		DefaultFrequency  int    `envconfig:"DROP_DEFAULT_FREQUENCY" default:"100" validate:"min=1"`
		MinAdminFrequency int    `envconfig:"DROP_MIN_ADMIN_FREQUENCY" default:"100" validate:"min=1"`
		MatchMode         string `envconfig:"GUESS_MATCH_MODE" default:"any_token" validate:"oneof=any_token token_set"`
	} `envconfig:""`

	Events struct {
		AuctionDuration time.Duration `envconfig:"AUCTION_DURATION" default:"10m" validate:"gt=0"`
		RaidDuration    time.Duration `envconfig:"RAID_DURATION" default:"24h" validate:"gt=0"`
	} `envconfig:""`

	Queues struct {
		Driver      string `envconfig:"QUEUE_DRIVER" default:"redis" validate:"oneof=redis rabbitmq memory"`
		RabbitURL   string `envconfig:"RABBITMQ_URL" validate:"omitempty,url"`
		Settlements string `envconfig:"SETTLEMENT_QUEUE_KEY" default:"settlement_jobs" validate:"required"`
	} `envconfig:""`
}

var validate = validator.New()

// Load загружает конфиг из окружения. Файл .env, если он есть, подмешивается в окружение.
func Load() AppConfig {
	cfg, err := load()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

func load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf(".env: %w", err)
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	if err := validate.Struct(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Require проверяет, что заданы переменные, без которых сервис не стартует.
// Поддерживаются TG_BOT_TOKEN, PG_DSN, REDIS_ADDR и RABBITMQ_URL.
func (c AppConfig) Require(keys ...string) error {
	values := map[string]string{
		"TG_BOT_TOKEN": c.Telegram.Token,
		"PG_DSN":       c.PGDSN,
		"REDIS_ADDR":   c.RedisAddr,
		"RABBITMQ_URL": c.Queues.RabbitURL,
	}
	var missing []string
	for _, key := range keys {
		value, ok := values[key]
		if !ok {
			return fmt.Errorf("неизвестная переменная %s", key)
		}
		if err := validate.Var(strings.TrimSpace(value), "required"); err != nil {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("не заданы переменные: %s", strings.Join(missing, ", "))
	}
	return nil
}

// IsDev сообщает, запущен ли сервис в режиме разработки.
func (c AppConfig) IsDev() bool {
	return c.AppEnv == "dev"
}
