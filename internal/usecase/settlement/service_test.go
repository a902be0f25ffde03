package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-collector-bot/internal/adapters/memory"
	"tg-collector-bot/internal/domain"
)

type failingRepo struct {
	err   error
	calls int
}

func (f *failingRepo) ApplySettlement(context.Context, domain.Settlement) error {
	f.calls++
	return f.err
}

type brokenQueue struct{}

func (brokenQueue) Enqueue(context.Context, domain.SettlementJob) error {
	return errors.New("брокер недоступен")
}
func (brokenQueue) Receive(context.Context) (domain.SettlementJob, domain.SettlementAckFunc, error) {
	return domain.SettlementJob{}, nil, errors.New("не реализовано")
}

func sampleClaim(rarity domain.Rarity) domain.Claim {
	return domain.Claim{
		DropID:    "drop-1",
		ChatID:    -100,
		UserID:    42,
		Character: domain.Character{ID: "007", Name: "Trunks", Rarity: rarity},
		ClaimedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// storeWith возвращает хранилище, в каталоге которого есть персонаж из sampleClaim.
func storeWith(t *testing.T, rarity domain.Rarity) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	if err := store.CreateCharacter(context.Background(), sampleClaim(rarity).Character); err != nil {
		t.Fatalf("не удалось добавить персонажа: %v", err)
	}
	return store
}

func TestSettleCreditsExactlyOneRewardInRange(t *testing.T) {
	for _, rarity := range domain.AllRarities() {
		store := storeWith(t, rarity)
		service := NewService(store, store, nil, nil, zerolog.Nop())
		claim := sampleClaim(rarity)

		reward, err := service.Settle(context.Background(), claim)
		if err != nil {
			t.Fatalf("%s: не ожидали ошибку: %v", rarity, err)
		}
		if !domain.RewardFor(rarity).Contains(reward) {
			t.Fatalf("%s: награда %+v вне диапазона", rarity, reward)
		}
		profile, err := store.GetProfile(context.Background(), 42)
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if profile.Balances.Tokens != reward.Tokens || profile.Balances.Diamonds != reward.Diamonds {
			t.Fatalf("%s: баланс %+v не совпадает с наградой %+v", rarity, profile.Balances, reward)
		}
		owned, _ := store.ListOwned(context.Background(), 42)
		if len(owned) != 1 || owned[0].ID != "007" {
			t.Fatalf("%s: ожидали одного персонажа в коллекции", rarity)
		}
		chatTotal, userTotal := store.GuessedTotals(-100, 42)
		if chatTotal != 1 || userTotal != 1 {
			t.Fatalf("%s: ожидали счётчики 1/1, получили %d/%d", rarity, chatTotal, userTotal)
		}

		if _, err := service.Settle(context.Background(), claim); !errors.Is(err, domain.ErrAlreadySettled) {
			t.Fatalf("%s: повторный расчёт должен отклоняться, получили %v", rarity, err)
		}
		again, _ := store.GetProfile(context.Background(), 42)
		if again.Balances != profile.Balances {
			t.Fatalf("%s: повторный расчёт изменил баланс", rarity)
		}
	}
}

func TestSettleFailureIsQueuedForReconciliation(t *testing.T) {
	repo := &failingRepo{err: errors.New("соединение разорвано")}
	events := memory.NewStore()
	queue := memory.NewQueue(4)
	service := NewService(repo, events, queue, nil, zerolog.Nop())

	_, err := service.Settle(context.Background(), sampleClaim(domain.RarityRare))
	if !errors.Is(err, domain.ErrSettlementQueued) {
		t.Fatalf("ожидали ErrSettlementQueued, получили %v", err)
	}
	if queue.Len() != 1 {
		t.Fatalf("ожидали задачу в очереди, в очереди %d", queue.Len())
	}
	job, ack, err := queue.Receive(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if job.Claim.DropID != "drop-1" || job.ID == "" {
		t.Fatalf("неверная задача: %+v", job)
	}
	if !domain.RewardFor(domain.RarityRare).Contains(job.Reward) {
		t.Fatalf("в задаче должна быть вытянутая награда, получили %+v", job.Reward)
	}
	_ = ack(true)

	found := false
	for _, e := range events.Events() {
		if e.Event == domain.GameEventSettlementFailed {
			found = true
		}
	}
	if !found {
		t.Fatal("ожидали событие settlement_failed")
	}
}

func TestSettleFailureWithBrokenQueue(t *testing.T) {
	repo := &failingRepo{err: errors.New("таймаут")}
	service := NewService(repo, nil, brokenQueue{}, nil, zerolog.Nop())

	_, err := service.Settle(context.Background(), sampleClaim(domain.RarityCommon))
	if err == nil || errors.Is(err, domain.ErrSettlementQueued) {
		t.Fatalf("без очереди задача не считается поставленной, получили %v", err)
	}
}

func TestReplayIsExactlyOnce(t *testing.T) {
	store := storeWith(t, domain.RaritySparking)
	service := NewService(store, store, nil, nil, zerolog.Nop())
	job := domain.SettlementJob{ID: "job-1", Claim: sampleClaim(domain.RaritySparking), Reward: domain.Reward{Tokens: 500, Diamonds: 9}}

	for i := 0; i < 3; i++ {
		if err := service.Replay(context.Background(), job); err != nil {
			t.Fatalf("попытка %d: не ожидали ошибку: %v", i, err)
		}
	}
	profile, err := store.GetProfile(context.Background(), 42)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if profile.Balances.Tokens != 500 || profile.Balances.Diamonds != 9 {
		t.Fatalf("награда должна начислиться один раз, баланс %+v", profile.Balances)
	}
	if owned, _ := store.ListOwned(context.Background(), 42); len(owned) != 1 {
		t.Fatalf("персонаж должен добавиться один раз, в коллекции %d", len(owned))
	}
}

func TestReplayPropagatesStoreErrors(t *testing.T) {
	repo := &failingRepo{err: errors.New("база недоступна")}
	service := NewService(repo, nil, nil, nil, zerolog.Nop())
	if err := service.Replay(context.Background(), domain.SettlementJob{Claim: sampleClaim(domain.RarityCommon)}); err == nil {
		t.Fatal("ожидали ошибку")
	}
}
