package economy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-collector-bot/internal/adapters/memory"
	"tg-collector-bot/internal/domain"
)

// 2025-06-02 — понедельник.
var monday = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func newService(now time.Time) (*Service, *memory.Store) {
	store := memory.NewStore()
	service := NewService(store, store, store, nil, zerolog.Nop())
	service.now = func() time.Time { return now }
	return service, store
}

func TestClaimDailyRespectsCooldown(t *testing.T) {
	service, _ := newService(monday)
	user := domain.Profile{UserID: 1, DisplayName: "Goku"}

	res, err := service.Claim(context.Background(), user, domain.CooldownDaily)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if res.Credit.Crystals < 20 || res.Credit.Crystals > 40 || res.Credit.Coins < 5000 || res.Credit.Coins > 8000 {
		t.Fatalf("награда вне диапазона: %+v", res.Credit)
	}
	if res.Balances != res.Credit {
		t.Fatalf("баланс должен совпасть с наградой: %+v", res.Balances)
	}

	service.now = func() time.Time { return monday.Add(23 * time.Hour) }
	res, err = service.Claim(context.Background(), user, domain.CooldownDaily)
	if !errors.Is(err, ErrCooldown) {
		t.Fatalf("ожидали ErrCooldown, получили %v", err)
	}
	if res.State.Remaining != time.Hour {
		t.Fatalf("ожидали остаток 1ч, получили %s", res.State.Remaining)
	}

	service.now = func() time.Time { return monday.Add(24 * time.Hour) }
	if _, err := service.Claim(context.Background(), user, domain.CooldownDaily); err != nil {
		t.Fatalf("через сутки награда доступна: %v", err)
	}
}

func TestExploreDailyLimit(t *testing.T) {
	service, _ := newService(monday)
	user := domain.Profile{UserID: 2}
	ctx := context.Background()

	if _, err := service.Explore(ctx, user, "Mars"); !errors.Is(err, ErrUnknownLocation) {
		t.Fatalf("ожидали ErrUnknownLocation, получили %v", err)
	}
	for i := 0; i < 20; i++ {
		at := monday.Add(time.Duration(i) * 6 * time.Minute)
		service.now = func() time.Time { return at }
		if _, err := service.Explore(ctx, user, Locations[0]); err != nil {
			t.Fatalf("попытка %d: не ожидали ошибку: %v", i+1, err)
		}
	}
	service.now = func() time.Time { return monday.Add(3 * time.Hour) }
	if _, err := service.Explore(ctx, user, Locations[0]); !errors.Is(err, ErrDailyLimit) {
		t.Fatalf("ожидали ErrDailyLimit, получили %v", err)
	}
	service.now = func() time.Time { return monday.Add(24 * time.Hour) }
	if _, err := service.Explore(ctx, user, Locations[1]); err != nil {
		t.Fatalf("на следующий день лимит сбрасывается: %v", err)
	}
}

func TestBank(t *testing.T) {
	service, store := newService(monday)
	ctx := context.Background()
	if _, err := store.Exchange(ctx, 3, domain.Balances{}, domain.Balances{Coins: 2000}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if _, err := service.Deposit(ctx, 3, 100); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("ожидали ErrInvalidAmount, получили %v", err)
	}
	if _, err := service.Deposit(ctx, 3, 5000); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("ожидали ErrInsufficientFunds, получили %v", err)
	}
	balances, err := service.Deposit(ctx, 3, 1000)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if balances.Coins != 1000 || balances.Bank != 1000 {
		t.Fatalf("неверные балансы после вклада: %+v", balances)
	}
	if _, err := service.Withdraw(ctx, 3, 600); !errors.Is(err, ErrWithdrawLimit) {
		t.Fatalf("ожидали ErrWithdrawLimit, получили %v", err)
	}
	balances, err = service.Withdraw(ctx, 3, 500)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if balances.Coins != 1500 || balances.Bank != 500 {
		t.Fatalf("неверные балансы после снятия: %+v", balances)
	}
}

func TestBuy(t *testing.T) {
	service, store := newService(monday)
	ctx := context.Background()
	if _, err := store.Exchange(ctx, 4, domain.Balances{}, domain.Balances{Coins: 3000}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := service.Buy(ctx, 4, Item("sword"), 1); !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("ожидали ErrUnknownItem, получили %v", err)
	}
	balances, err := service.Buy(ctx, 4, ItemCrystals, 2)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if balances.Crystals != 2 || balances.Coins != 2000 {
		t.Fatalf("неверные балансы: %+v", balances)
	}
	balances, err = service.Buy(ctx, 4, ItemTickets, 2)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if balances.Tickets != 2 || balances.Coins != 0 {
		t.Fatalf("неверные балансы: %+v", balances)
	}
	if _, err := service.Buy(ctx, 4, ItemTickets, 1); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("ожидали ErrInsufficientFunds, получили %v", err)
	}
}

func TestPassPayoutsAreIdempotentPerDay(t *testing.T) {
	service, store := newService(monday)
	ctx := context.Background()
	if err := store.CreateCharacter(ctx, domain.Character{ID: "050", Name: "Android 18", Rarity: domain.RarityRare}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	user := domain.Profile{UserID: 5}
	if _, err := service.BuyPass(ctx, user); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("ожидали ErrInsufficientFunds, получили %v", err)
	}
	if _, err := store.Exchange(ctx, 5, domain.Balances{}, domain.Balances{Diamonds: 9000}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	expires, err := service.BuyPass(ctx, user)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !expires.Equal(monday.Add(7 * 24 * time.Hour)) {
		t.Fatalf("пропуск действует 7 дней, получили %s", expires)
	}
	if _, err := service.BuyPass(ctx, user); !errors.Is(err, domain.ErrPassActive) {
		t.Fatalf("ожидали ErrPassActive, получили %v", err)
	}

	report, err := service.PayPasses(ctx)
	if err != nil || report.Paid != 1 {
		t.Fatalf("ожидали одну выплату, получили %+v, %v", report, err)
	}
	report, err = service.PayPasses(ctx)
	if err != nil || report.Paid != 0 || report.Skipped != 1 {
		t.Fatalf("повторная выплата за день запрещена, получили %+v, %v", report, err)
	}

	profile, _ := store.GetProfile(ctx, 5)
	want := PassRewardFor(time.Monday)
	if profile.Balances.Tokens != want.Tokens || profile.Balances.Diamonds != 1000+want.Diamonds {
		t.Fatalf("неверные балансы после выплаты: %+v", profile.Balances)
	}
	owned, _ := store.ListOwned(ctx, 5)
	if len(owned) != 1 || owned[0].Source != domain.SourcePass {
		t.Fatalf("ожидали персонажа из пропуска, получили %+v", owned)
	}

	service.now = func() time.Time { return monday.Add(8 * 24 * time.Hour) }
	report, err = service.PayPasses(ctx)
	if err != nil || report.Cleared != 1 || report.Paid != 0 {
		t.Fatalf("просроченный пропуск должен сниматься, получили %+v, %v", report, err)
	}
}
