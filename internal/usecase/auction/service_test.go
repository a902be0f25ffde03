package auction

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

type recordingAnnouncer struct {
	mu     sync.Mutex
	closed []domain.Auction
}

func (r *recordingAnnouncer) AuctionClosed(_ context.Context, a domain.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, a)
}

func setup(t *testing.T) (*Service, *memory.Store, *memory.Timers) {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.CreateCharacter(context.Background(), domain.Character{ID: "010", Name: "Gohan", Rarity: domain.RarityLimited}))
	timers := memory.NewTimers()
	service := NewService(store, store, store, store, timers, Config{Duration: 10 * time.Minute}, zerolog.Nop())
	return service, store, timers
}

func fund(t *testing.T, store *memory.Store, userID, crystals int64) domain.Profile {
	t.Helper()
	p, err := store.EnsureProfile(context.Background(), userID, "player")
	require.NoError(t, err)
	_, err = store.Exchange(context.Background(), userID, domain.Balances{}, domain.Balances{Crystals: crystals})
	require.NoError(t, err)
	return p
}

func TestStartRequiresOwner(t *testing.T) {
	service, _, _ := setup(t)
	if _, err := service.Start(context.Background(), domain.RoleSudo, "010", 1000, -1); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("ожидали ErrForbidden, получили %v", err)
	}
	if _, err := service.Start(context.Background(), domain.RoleOwner, "999", 1000, -1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound для неизвестного персонажа, получили %v", err)
	}
}

func TestPlaceBidRules(t *testing.T) {
	service, store, _ := setup(t)
	ctx := context.Background()
	a, err := service.Start(ctx, domain.RoleOwner, "010", 1000, -1)
	require.NoError(t, err)

	alice := fund(t, store, 1, 1200)
	bob := fund(t, store, 2, 100)

	if _, err := service.PlaceBid(ctx, a.ID, alice, 300); !errors.Is(err, ErrInvalidIncrement) {
		t.Fatalf("ожидали ErrInvalidIncrement, получили %v", err)
	}
	if _, err := service.PlaceBid(ctx, a.ID, bob, 200); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("ожидали ErrInsufficientFunds, получили %v", err)
	}
	updated, err := service.PlaceBid(ctx, a.ID, alice, 200)
	require.NoError(t, err)
	if updated.HighestBid != 1200 || updated.HighestBidder != 1 {
		t.Fatalf("ожидали ставку 1200 от игрока 1, получили %+v", updated)
	}
	if _, err := service.PlaceBid(ctx, a.ID, alice, 200); !errors.Is(err, ErrSelfOutbid) {
		t.Fatalf("лидер не может перебить сам себя, получили %v", err)
	}
}

func TestConcurrentBidsAreMonotonic(t *testing.T) {
	service, store, _ := setup(t)
	ctx := context.Background()
	a, err := service.Start(ctx, domain.RoleOwner, "010", 100, -1)
	require.NoError(t, err)

	const bidders = 20
	players := make([]domain.Profile, bidders)
	for i := range players {
		players[i] = fund(t, store, int64(i+1), 1_000_000)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for _, p := range players {
		wg.Add(1)
		go func(p domain.Profile) {
			defer wg.Done()
			_, err := service.PlaceBid(ctx, a.ID, p, 500)
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, ErrOutbid) || errors.Is(err, ErrSelfOutbid), "неожиданная ошибка %v", err)
		}(p)
	}
	wg.Wait()

	final, err := store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, accepted, 1)
	assert.Equal(t, int64(100+500*accepted), final.HighestBid)
}

func TestCloseSettlesOnceUnderRace(t *testing.T) {
	service, store, timers := setup(t)
	announcer := &recordingAnnouncer{}
	service.SetAnnouncer(announcer)
	ctx := context.Background()
	a, err := service.Start(ctx, domain.RoleOwner, "010", 1000, -1)
	require.NoError(t, err)
	winner := fund(t, store, 7, 5000)
	_, err = service.PlaceBid(ctx, a.ID, winner, 500)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	closes := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, closed, err := service.Close(ctx, a.ID)
			assert.NoError(t, err)
			if closed {
				mu.Lock()
				closes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	timers.Fire(timerKey(a.ID))

	assert.Equal(t, 1, closes)
	assert.Len(t, announcer.closed, 1)
	assert.Empty(t, timers.Pending())

	profile, err := store.GetProfile(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), profile.Balances.Crystals)
	owned, err := store.ListOwned(ctx, 7)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, domain.SourceAuction, owned[0].Source)
}

func TestCloseWithInsufficientFundsEndsUnsold(t *testing.T) {
	service, store, _ := setup(t)
	ctx := context.Background()
	a, err := service.Start(ctx, domain.RoleOwner, "010", 1000, -1)
	require.NoError(t, err)
	bidder := fund(t, store, 9, 1200)
	_, err = service.PlaceBid(ctx, a.ID, bidder, 200)
	require.NoError(t, err)
	_, err = store.Exchange(ctx, 9, domain.Balances{Crystals: 1000}, domain.Balances{})
	require.NoError(t, err)

	closed, ok, err := service.Close(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, ok)
	if closed.Settled {
		t.Fatal("аукцион без средств у победителя должен завершиться без продажи")
	}
	owned, _ := store.ListOwned(ctx, 9)
	if len(owned) != 0 {
		t.Fatal("персонаж не должен передаваться")
	}
}

func TestTimerClosesAndRestoreRearms(t *testing.T) {
	service, store, timers := setup(t)
	ctx := context.Background()
	a, err := service.Start(ctx, domain.RoleOwner, "010", 1000, -1)
	require.NoError(t, err)
	if _, ok := timers.Due(timerKey(a.ID)); !ok {
		t.Fatal("ожидали взведённый таймер")
	}

	restarted := memory.NewTimers()
	again := NewService(store, store, store, store, restarted, Config{}, zerolog.Nop())
	n, err := again.Restore(ctx)
	require.NoError(t, err)
	if n != 1 {
		t.Fatalf("ожидали восстановление одного аукциона, получили %d", n)
	}
	require.True(t, restarted.Fire(timerKey(a.ID)))

	final, err := store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	if final.Status != domain.AuctionEnded {
		t.Fatalf("таймер должен закрыть аукцион, статус %s", final.Status)
	}
	if _, closed, err := service.Close(ctx, a.ID); err != nil || closed {
		t.Fatalf("повторное закрытие должно быть no-op: %v %v", closed, err)
	}
}

func TestCloseExpiredSkipsRunningAuctions(t *testing.T) {
	service, store, _ := setup(t)
	ctx := context.Background()
	expired, err := service.Start(ctx, domain.RoleOwner, "010", 1000, -1)
	require.NoError(t, err)
	require.NoError(t, store.CreateCharacter(ctx, domain.Character{ID: "011", Name: "Piccolo", Rarity: domain.RarityRare}))

	base := time.Now().UTC()
	service.now = func() time.Time { return base.Add(5 * time.Minute) }
	running, err := service.Start(ctx, domain.RoleOwner, "011", 500, -1)
	require.NoError(t, err)

	service.now = func() time.Time { return base.Add(11 * time.Minute) }
	n, err := service.CloseExpired(ctx)
	require.NoError(t, err)
	if n != 1 {
		t.Fatalf("ожидали закрытие одного аукциона, закрыто %d", n)
	}
	first, err := store.GetAuction(ctx, expired.ID)
	require.NoError(t, err)
	second, err := store.GetAuction(ctx, running.ID)
	require.NoError(t, err)
	if first.Status != domain.AuctionEnded || second.Status != domain.AuctionOngoing {
		t.Fatalf("неверные статусы: %s %s", first.Status, second.Status)
	}

	n, err = service.CloseExpired(ctx)
	require.NoError(t, err)
	if n != 0 {
		t.Fatalf("повторный проход не должен ничего закрывать, закрыто %d", n)
	}
}
