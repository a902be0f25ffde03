package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-collector-bot/internal/adapters/memory"
	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/infra/config"
)

func memoryConfig() config.AppConfig {
	var cfg config.AppConfig
	cfg.Queues.Driver = "memory"
	cfg.Queues.Settlements = "settlement_jobs"
	cfg.Drops.DefaultFrequency = 2
	cfg.Drops.MinAdminFrequency = 100
	cfg.Drops.MatchMode = "token_set"
	cfg.Events.AuctionDuration = time.Minute
	cfg.Events.RaidDuration = time.Hour
	cfg.Telegram.OwnerID = 1
	return cfg
}

func TestOpenWithoutServicesUsesMemory(t *testing.T) {
	deps, err := Open(context.Background(), memoryConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	defer deps.Close()

	if _, ok := deps.Store.(*memory.Store); !ok {
		t.Fatalf("ожидали хранилище в памяти, получили %T", deps.Store)
	}
	if _, ok := deps.Cache.(*memory.Cache); !ok {
		t.Fatalf("ожидали кеш в памяти, получили %T", deps.Cache)
	}
	if !deps.InProcessQueue {
		t.Fatal("очередь в памяти нужно разбирать в процессе")
	}
	if len(deps.Checks) != 0 {
		t.Fatalf("без внешних сервисов проверок быть не должно, получили %d", len(deps.Checks))
	}
}

func TestOpenRedisQueueWithoutRedisFallsBack(t *testing.T) {
	cfg := memoryConfig()
	cfg.Queues.Driver = "redis"
	deps, err := Open(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	defer deps.Close()
	if _, ok := deps.Queue.(*memory.Queue); !ok || !deps.InProcessQueue {
		t.Fatalf("ожидали очередь в памяти, получили %T", deps.Queue)
	}
}

func TestOpenRabbitRequiresURL(t *testing.T) {
	cfg := memoryConfig()
	cfg.Queues.Driver = "rabbitmq"
	if _, err := Open(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatal("без RABBITMQ_URL драйвер rabbitmq должен отклоняться")
	}
}

func TestNewServicesWiresDropFlow(t *testing.T) {
	cfg := memoryConfig()
	deps, err := Open(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	defer deps.Close()
	svc, err := NewServices(cfg, deps, memory.NewTimers(), zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	ctx := context.Background()
	if err := deps.Store.CreateCharacter(ctx, domain.Character{ID: "001", Name: "Son Goku", Rarity: domain.RarityCommon}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	for i := 0; i < cfg.Drops.DefaultFrequency; i++ {
		if _, _, err := svc.Drops.RecordMessage(ctx, -1, domain.MessageKindText); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	role, err := svc.Catalog.RoleOf(ctx, 1)
	if err != nil || !role.IsOwner() {
		t.Fatalf("владелец из конфига должен получать роль owner, получили %q %v", role, err)
	}
	if svc.Settlement == nil || svc.Auctions == nil || svc.Raids == nil {
		t.Fatal("ожидали собранные сервисы")
	}
	state, err := deps.Store.GetDropState(ctx, -1)
	if err != nil || state.ActiveDrop == nil {
		t.Fatalf("ожидали активный дроп, получили %+v %v", state, err)
	}
}

func TestNewServicesRejectsUnknownMatchMode(t *testing.T) {
	cfg := memoryConfig()
	cfg.Drops.MatchMode = "fuzzy"
	deps, err := Open(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	defer deps.Close()
	if _, err := NewServices(cfg, deps, memory.NewTimers(), zerolog.Nop()); err == nil {
		t.Fatal("неизвестный режим сравнения должен отклоняться")
	}
}
