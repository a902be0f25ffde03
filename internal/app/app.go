// Package app собирает хранилища и сценарии для бинарников cmd/*.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-collector-bot/internal/adapters/bot"
	"tg-collector-bot/internal/adapters/memory"
	"tg-collector-bot/internal/adapters/repo"
	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/infra/cache"
	"tg-collector-bot/internal/infra/config"
	"tg-collector-bot/internal/infra/db"
	httpserver "tg-collector-bot/internal/infra/http"
	"tg-collector-bot/internal/infra/log"
	"tg-collector-bot/internal/infra/queue"
	"tg-collector-bot/internal/usecase/auction"
	"tg-collector-bot/internal/usecase/catalog"
	"tg-collector-bot/internal/usecase/collection"
	"tg-collector-bot/internal/usecase/drops"
	"tg-collector-bot/internal/usecase/economy"
	"tg-collector-bot/internal/usecase/raid"
	"tg-collector-bot/internal/usecase/settlement"
	"tg-collector-bot/internal/usecase/spam"
	"tg-collector-bot/internal/usecase/summon"
)

const memoryQueueSize = 1024

// Store объединяет репозитории игры.
type Store interface {
	domain.CharacterRepo
	domain.DropStateRepo
	domain.SettlementRepo
	domain.ProfileRepo
	domain.PassRepo
	domain.AuctionRepo
	domain.RaidRepo
	domain.BannerRepo
	domain.RedeemRepo
	domain.RoleRepo
	domain.AdminRepo
	domain.GameEventRepo
}

// Deps содержит подключённые хранилища процесса.
type Deps struct {
	Store  Store
	Jobs   domain.SettlementJobStatusRepo
	Cache  domain.Cache
	Queue  domain.SettlementQueue
	Checks map[string]httpserver.Pinger

	// InProcessQueue сообщает, что очередь сверки живёт в памяти и её нужно разбирать в этом же процессе.
	InProcessQueue bool

	closers []func()
}

// Open подключает Postgres, Redis и очередь сверки. Без PG_DSN и REDIS_ADDR данные хранятся в памяти.
func Open(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*Deps, error) {
	d := &Deps{Checks: make(map[string]httpserver.Pinger)}

	if cfg.PGDSN != "" {
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("подключение к БД: %w", err)
		}
		d.closers = append(d.closers, pool.Close)
		pg := repo.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			d.Close()
			return nil, fmt.Errorf("миграция: %w", err)
		}
		d.Store, d.Jobs = pg, pg
		d.Checks["postgres"] = pg
	} else {
		logger.Warn().Msg("PG_DSN не задан, игровые данные хранятся в памяти")
		d.Store, d.Jobs = memory.NewStore(), memory.NewJobStatuses()
	}

	var client *redis.Client
	if cfg.RedisAddr != "" {
		client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		d.closers = append(d.closers, func() { _ = client.Close() })
		d.Cache = cache.NewRedis(client)
		d.Checks["redis"] = httpserver.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	} else {
		d.Cache = memory.NewCache()
	}

	switch cfg.Queues.Driver {
	case "rabbitmq":
		if err := cfg.Require("RABBITMQ_URL"); err != nil {
			d.Close()
			return nil, err
		}
		q, err := queue.NewRabbitSettlementQueue(cfg.Queues.RabbitURL, cfg.Queues.Settlements)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("очередь RabbitMQ: %w", err)
		}
		d.closers = append(d.closers, func() { _ = q.Close() })
		d.Queue = q
	case "redis":
		if client != nil {
			d.Queue = queue.NewRedisSettlementQueue(client, cfg.Queues.Settlements)
			break
		}
		logger.Warn().Msg("REDIS_ADDR не задан, очередь сверки работает в памяти")
		fallthrough
	default:
		d.Queue = memory.NewQueue(memoryQueueSize)
		d.InProcessQueue = true
	}
	return d, nil
}

// Close освобождает подключения в обратном порядке.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// Services объединяет сценарии игры поверх подключённых хранилищ.
type Services struct {
	bot.Services
	Settlement *settlement.Service
}

// NewServices создаёт сценарии. timers получают таймеры аукционов и рейдов.
func NewServices(cfg config.AppConfig, d *Deps, timers domain.Timers, logger zerolog.Logger) (Services, error) {
	mode, err := drops.ParseMatchMode(cfg.Drops.MatchMode)
	if err != nil {
		return Services{}, err
	}
	store := d.Store
	settler := settlement.NewService(store, store, d.Queue, nil, log.Component(logger, "settlement"))
	selector := drops.NewSelector(store, store, store, nil, cfg.Drops.DefaultFrequency, log.Component(logger, "drops"))

	return Services{
		Services: bot.Services{
			Drops: drops.NewScheduler(store, selector, drops.SchedulerConfig{
				DefaultFrequency:  cfg.Drops.DefaultFrequency,
				MinAdminFrequency: cfg.Drops.MinAdminFrequency,
			}, log.Component(logger, "drops")),
			Arbiter:    drops.NewArbiter(store, store, store, settler, drops.NewMatcher(mode), log.Component(logger, "drops")),
			Auctions:   auction.NewService(store, store, store, store, timers, auction.Config{Duration: cfg.Events.AuctionDuration}, log.Component(logger, "auction")),
			Raids:      raid.NewService(store, store, store, timers, cfg.Events.RaidDuration, log.Component(logger, "raid")),
			Economy:    economy.NewService(store, store, store, nil, log.Component(logger, "economy")),
			Collection: collection.NewService(store, store, d.Cache, log.Component(logger, "collection")),
			Summon:     summon.NewService(store, store, store, nil, log.Component(logger, "summon")),
			Catalog: catalog.NewService(store, store, store, store, store, catalog.AccessConfig{
				OwnerID: cfg.Telegram.OwnerID,
				SudoIDs: cfg.Telegram.SudoIDs,
			}, nil, log.Component(logger, "catalog")),
			Spam: spam.NewLimiter(d.Cache, spam.DefaultConfig()),
		},
		Settlement: settler,
	}, nil
}

// HandlerConfig переносит настройки бота из конфига.
func HandlerConfig(cfg config.AppConfig) bot.Config {
	return bot.Config{AuctionChannel: cfg.Telegram.AuctionChannel}
}

var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*repo.Postgres)(nil)
)
