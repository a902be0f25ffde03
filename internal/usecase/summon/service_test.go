package summon

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"tg-collector-bot/internal/adapters/memory"
	"tg-collector-bot/internal/domain"
)

func setup(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	for _, c := range []domain.Character{
		{ID: "001", Name: "Krillin", Rarity: domain.RarityCommon},
		{ID: "002", Name: "Tien", Rarity: domain.RarityRare},
		{ID: "003", Name: "Beerus", Rarity: domain.RaritySupreme},
	} {
		if err := store.CreateCharacter(ctx, c); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	return NewService(store, store, store, nil, zerolog.Nop()), store
}

func TestCost(t *testing.T) {
	cases := []struct {
		currency Currency
		count    int
		want     domain.Balances
		err      error
	}{
		{currency: CurrencyCrystals, count: 1, want: domain.Balances{Crystals: 120}},
		{currency: CurrencyCrystals, count: 10, want: domain.Balances{Crystals: 1200}},
		{currency: CurrencyTickets, count: 10, want: domain.Balances{Tickets: 10}},
		{currency: CurrencyTickets, count: 5, err: ErrInvalidCount},
		{currency: Currency("zeni"), count: 1, err: ErrUnknownCurrency},
	}
	for _, tc := range cases {
		got, err := Cost(tc.currency, tc.count)
		if !errors.Is(err, tc.err) {
			t.Fatalf("%s x%d: ожидали ошибку %v, получили %v", tc.currency, tc.count, tc.err, err)
		}
		if got != tc.want {
			t.Fatalf("%s x%d: ожидали %+v, получили %+v", tc.currency, tc.count, tc.want, got)
		}
	}
}

func TestSummonChargesAndGrants(t *testing.T) {
	service, store := setup(t)
	ctx := context.Background()
	if _, err := service.CreateBanner(ctx, domain.RoleUser, "fest", ""); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("ожидали ErrForbidden, получили %v", err)
	}
	if _, err := service.CreateBanner(ctx, domain.RoleSudo, "fest", "file-1"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	user := domain.Profile{UserID: 1, DisplayName: "Pan"}
	if _, err := service.Summon(ctx, user, "fest", 1, CurrencyTickets); !errors.Is(err, ErrEmptyBanner) {
		t.Fatalf("ожидали ErrEmptyBanner, получили %v", err)
	}
	added, err := service.AddAll(ctx, domain.RoleSudo, "fest")
	if err != nil || added != 3 {
		t.Fatalf("ожидали 3 добавленных, получили %d, %v", added, err)
	}
	if added, _ := service.AddCharacter(ctx, domain.RoleSudo, "fest", "001"); added != 0 {
		t.Fatalf("повторное добавление не должно дублировать персонажа")
	}

	if _, err := service.Summon(ctx, user, "fest", 10, CurrencyCrystals); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("ожидали ErrInsufficientFunds, получили %v", err)
	}
	if _, err := store.Exchange(ctx, 1, domain.Balances{}, domain.Balances{Crystals: 1300}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	res, err := service.Summon(ctx, user, "fest", 10, CurrencyCrystals)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(res.Pulls) != 10 || res.Balances.Crystals != 100 {
		t.Fatalf("ожидали 10 персонажей и остаток 100, получили %d и %d", len(res.Pulls), res.Balances.Crystals)
	}
	for _, p := range res.Pulls {
		if p.Rarity > res.Rarest.Rarity {
			t.Fatalf("Rarest должен быть самым редким")
		}
	}
	owned, _ := store.ListOwned(ctx, 1)
	if len(owned) != 10 {
		t.Fatalf("ожидали 10 персонажей в коллекции, получили %d", len(owned))
	}
}

func TestAddRarity(t *testing.T) {
	service, _ := setup(t)
	ctx := context.Background()
	if _, err := service.CreateBanner(ctx, domain.RoleOwner, "rare", ""); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	added, err := service.AddRarity(ctx, domain.RoleOwner, "rare", domain.RarityRare)
	if err != nil || added != 1 {
		t.Fatalf("ожидали 1 добавленного, получили %d, %v", added, err)
	}
	if _, err := service.AddRarity(ctx, domain.RoleOwner, "rare", domain.Rarity(42)); !errors.Is(err, domain.ErrUnknownRarity) {
		t.Fatalf("ожидали ErrUnknownRarity, получили %v", err)
	}
}

func TestRarest(t *testing.T) {
	pulls := []domain.Character{
		{ID: "a", Rarity: domain.RarityRare},
		{ID: "b", Rarity: domain.RarityLimited},
		{ID: "c", Rarity: domain.RarityLimited},
	}
	if got := Rarest(pulls); got.ID != "b" {
		t.Fatalf("ожидали b, получили %s", got.ID)
	}
}
