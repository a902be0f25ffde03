package collection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-collector-bot/internal/adapters/memory"
	"tg-collector-bot/internal/domain"
)

var testNow = time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	for _, c := range []domain.Character{
		{ID: "001", Name: "Son Goku", Anime: "Dragon Ball", Rarity: domain.RarityCommon},
		{ID: "002", Name: "Monkey D Luffy", Anime: "One Piece", Rarity: domain.RarityRare},
		{ID: "003", Name: "Vegeta", Anime: "Dragon Ball", Rarity: domain.RaritySparking},
	} {
		require.NoError(t, store.CreateCharacter(ctx, c))
	}
	service := NewService(store, store, memory.NewCache(), zerolog.Nop())
	service.now = func() time.Time { return testNow }
	return service, store
}

func give(t *testing.T, store *memory.Store, userID int64, ids ...string) {
	t.Helper()
	ctx := context.Background()
	var chars []domain.Character
	for _, id := range ids {
		c, err := store.GetCharacter(ctx, id)
		require.NoError(t, err)
		chars = append(chars, c)
	}
	_, err := store.Grant(ctx, userID, domain.Balances{}, domain.Balances{}, chars, domain.SourceDrop)
	require.NoError(t, err)
}

func ownedIDs(t *testing.T, store *memory.Store, userID int64) []string {
	t.Helper()
	owned, err := store.ListOwned(context.Background(), userID)
	require.NoError(t, err)
	var ids []string
	for _, o := range owned {
		ids = append(ids, o.ID)
	}
	return ids
}

func TestClaimDailyOncePerDay(t *testing.T) {
	service, store := newService(t)
	user := domain.Profile{UserID: 1, DisplayName: "Bulma"}

	res, err := service.ClaimDaily(context.Background(), user)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Character.ID)
	assert.Len(t, ownedIDs(t, store, 1), 1)

	service.now = func() time.Time { return testNow.Add(12 * time.Hour) }
	_, err = service.ClaimDaily(context.Background(), user)
	require.ErrorIs(t, err, ErrCooldown)
	assert.Len(t, ownedIDs(t, store, 1), 1)
}

func TestSetFavoriteRequiresOwnership(t *testing.T) {
	service, store := newService(t)
	give(t, store, 1, "001")
	if _, err := service.SetFavorite(context.Background(), 1, "002"); !errors.Is(err, domain.ErrNotOwned) {
		t.Fatalf("ожидали ErrNotOwned, получили %v", err)
	}
	c, err := service.SetFavorite(context.Background(), 1, "001")
	require.NoError(t, err)
	assert.Equal(t, "Son Goku", c.Name)
	p, _ := store.GetProfile(context.Background(), 1)
	assert.Equal(t, "001", p.FavoriteCharacterID)
}

func TestGroupHarem(t *testing.T) {
	service, store := newService(t)
	give(t, store, 1, "003", "001", "002", "001")
	h, err := service.Harem(context.Background(), domain.Profile{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, h.Total)
	require.Len(t, h.Groups, 2)
	assert.Equal(t, "Dragon Ball", h.Groups[0].Anime)
	assert.Equal(t, []HaremEntry{
		{Character: mustCharacter(t, store, "001"), Count: 2},
		{Character: mustCharacter(t, store, "003"), Count: 1},
	}, h.Groups[0].Entries)
	assert.Equal(t, "One Piece", h.Groups[1].Anime)
}

func mustCharacter(t *testing.T, store *memory.Store, id string) domain.Character {
	t.Helper()
	c, err := store.GetCharacter(context.Background(), id)
	require.NoError(t, err)
	return c
}

func TestTradeConfirmedOnceByPartner(t *testing.T) {
	service, store := newService(t)
	ctx := context.Background()
	give(t, store, 1, "001")
	give(t, store, 2, "002")
	alice := domain.Profile{UserID: 1, DisplayName: "Alice"}
	bob := domain.Profile{UserID: 2, DisplayName: "Bob"}

	if _, err := service.ProposeTrade(ctx, alice, bob, "003", "002"); !errors.Is(err, domain.ErrNotOwned) {
		t.Fatalf("ожидали ErrNotOwned, получили %v", err)
	}
	offer, err := service.ProposeTrade(ctx, alice, bob, "001", "002")
	require.NoError(t, err)

	if _, err := service.Confirm(ctx, offer.ID, 1); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("предложивший не может подтвердить обмен, получили %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	confirmed := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Confirm(ctx, offer.ID, 2)
			if err == nil {
				mu.Lock()
				confirmed++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrOfferNotFound)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, []string{"002"}, ownedIDs(t, store, 1))
	assert.Equal(t, []string{"001"}, ownedIDs(t, store, 2))
}

func TestGiftConfirmedBySenderAndCancel(t *testing.T) {
	service, store := newService(t)
	ctx := context.Background()
	give(t, store, 1, "003")
	alice := domain.Profile{UserID: 1, DisplayName: "Alice"}
	bob := domain.Profile{UserID: 2, DisplayName: "Bob"}

	if _, err := service.ProposeGift(ctx, alice, alice, "003"); !errors.Is(err, ErrSelfOffer) {
		t.Fatalf("ожидали ErrSelfOffer, получили %v", err)
	}

	offer, err := service.ProposeGift(ctx, alice, bob, "003")
	require.NoError(t, err)
	if _, err := service.Cancel(ctx, offer.ID, 3); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("посторонний не может отменить, получили %v", err)
	}
	_, err = service.Cancel(ctx, offer.ID, 2)
	require.NoError(t, err)
	if _, err := service.Confirm(ctx, offer.ID, 1); !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("отменённое предложение не исполняется, получили %v", err)
	}

	offer, err = service.ProposeGift(ctx, alice, bob, "003")
	require.NoError(t, err)
	_, err = service.Confirm(ctx, offer.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, ownedIDs(t, store, 1))
	assert.Equal(t, []string{"003"}, ownedIDs(t, store, 2))
}
