package drops

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-collector-bot/internal/adapters/memory"
	"tg-collector-bot/internal/domain"
)

type fakeSettler struct {
	mu     sync.Mutex
	claims []domain.Claim
	err    error
}

func (f *fakeSettler) Settle(_ context.Context, claim domain.Claim) (domain.Reward, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = append(f.claims, claim)
	if f.err != nil {
		return domain.Reward{}, f.err
	}
	return domain.Reward{Tokens: 100, Diamonds: 1}, nil
}

func (f *fakeSettler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.claims)
}

func seedCatalog(t *testing.T, store *memory.Store, chars ...domain.Character) {
	t.Helper()
	for _, c := range chars {
		require.NoError(t, store.CreateCharacter(context.Background(), c))
	}
}

func newScheduler(store *memory.Store, frequency int) *Scheduler {
	selector := NewSelector(store, store, store, nil, frequency, zerolog.Nop())
	return NewScheduler(store, selector, SchedulerConfig{DefaultFrequency: frequency, MinAdminFrequency: 100}, zerolog.Nop())
}

func TestRecordMessageTriggersExactlyOneDrop(t *testing.T) {
	store := memory.NewStore()
	seedCatalog(t, store, domain.Character{ID: "001", Name: "Son Goku", Rarity: domain.RarityCommon})
	scheduler := newScheduler(store, 5)
	ctx := context.Background()

	drops := 0
	for i := 0; i < 5; i++ {
		_, dropped, err := scheduler.RecordMessage(ctx, -100, domain.MessageKindText)
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if dropped {
			drops++
		}
	}
	if drops != 1 {
		t.Fatalf("ожидали ровно один дроп, получили %d", drops)
	}
	state, err := store.GetDropState(ctx, -100)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if state.MessageCount != 0 {
		t.Fatalf("ожидали обнулённый счётчик, получили %d", state.MessageCount)
	}
	if state.ActiveDrop == nil || state.ActiveDrop.Character.ID != "001" {
		t.Fatalf("ожидали активный дроп персонажа 001")
	}
}

func TestRecordMessageIgnoresServiceMessages(t *testing.T) {
	store := memory.NewStore()
	scheduler := newScheduler(store, 1)
	_, dropped, err := scheduler.RecordMessage(context.Background(), -100, domain.MessageKindNone)
	if err != nil || dropped {
		t.Fatalf("служебное сообщение не должно учитываться: %v %v", dropped, err)
	}
	if _, err := store.GetDropState(context.Background(), -100); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("состояние чата не должно создаваться, получили %v", err)
	}
}

func TestRecordMessageConcurrentSingleDropPerCrossing(t *testing.T) {
	store := memory.NewStore()
	seedCatalog(t, store,
		domain.Character{ID: "001", Name: "Son Goku", Rarity: domain.RarityCommon},
		domain.Character{ID: "002", Name: "Vegeta", Rarity: domain.RarityRare},
	)
	const frequency = 10
	scheduler := newScheduler(store, frequency)

	var wg sync.WaitGroup
	var mu sync.Mutex
	drops := 0
	for i := 0; i < frequency*3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, dropped, err := scheduler.RecordMessage(context.Background(), -7, domain.MessageKindSticker)
			assert.NoError(t, err)
			if dropped {
				mu.Lock()
				drops++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, drops)
	state, err := store.GetDropState(context.Background(), -7)
	require.NoError(t, err)
	assert.Zero(t, state.MessageCount)
	assert.Zero(t, scheduler.locks.Len())
}

func TestRecordMessageWithEmptyCatalog(t *testing.T) {
	store := memory.NewStore()
	scheduler := newScheduler(store, 1)
	_, dropped, err := scheduler.RecordMessage(context.Background(), -1, domain.MessageKindText)
	if !errors.Is(err, ErrNoEligibleCharacters) {
		t.Fatalf("ожидали ErrNoEligibleCharacters, получили %v", err)
	}
	if dropped {
		t.Fatal("дроп не должен состояться")
	}
	state, err := store.GetDropState(context.Background(), -1)
	require.NoError(t, err)
	if state.ActiveDrop != nil {
		t.Fatal("активного дропа быть не должно")
	}
}

func TestSetFrequency(t *testing.T) {
	store := memory.NewStore()
	scheduler := newScheduler(store, 100)
	ctx := context.Background()

	if err := scheduler.SetFrequency(ctx, -1, 50, false); !errors.Is(err, ErrFrequencyTooLow) {
		t.Fatalf("ожидали ErrFrequencyTooLow, получили %v", err)
	}
	if err := scheduler.SetFrequency(ctx, -1, 50, true); err != nil {
		t.Fatalf("привилегированный пользователь может ставить любую частоту: %v", err)
	}
	freq, err := scheduler.Frequency(ctx, -1)
	require.NoError(t, err)
	if freq != 50 {
		t.Fatalf("ожидали 50, получили %d", freq)
	}
	freq, err = scheduler.Frequency(ctx, -2)
	require.NoError(t, err)
	if freq != 100 {
		t.Fatalf("для нового чата ожидали частоту по умолчанию, получили %d", freq)
	}
}

func TestSelectDropNoRepeatWithinRotation(t *testing.T) {
	store := memory.NewStore()
	var chars []domain.Character
	for i := 1; i <= 6; i++ {
		rarity := domain.RarityCommon
		if i%2 == 0 {
			rarity = domain.RarityRare
		}
		chars = append(chars, domain.Character{ID: fmt.Sprintf("%03d", i), Name: fmt.Sprintf("Hero %d", i), Rarity: rarity})
	}
	chars = append(chars,
		domain.Character{ID: "900", Name: "Zeno", Rarity: domain.RaritySupreme},
		domain.Character{ID: "901", Name: "Whis", Rarity: domain.RarityCelestial},
		domain.Character{ID: "902", Name: "Broly", Rarity: domain.RarityExtreme},
	)
	seedCatalog(t, store, chars...)
	selector := NewSelector(store, store, nil, nil, 100, zerolog.Nop())
	ctx := context.Background()

	for round := 0; round < 3; round++ {
		seen := make(map[string]bool)
		for i := 0; i < 7; i++ {
			drop, err := selector.SelectDrop(ctx, -5)
			require.NoError(t, err)
			require.False(t, seen[drop.Character.ID], "персонаж %s повторился в ротации %d", drop.Character.ID, round)
			require.False(t, drop.Character.Rarity.Restricted(), "выпал запрещённый тир")
			seen[drop.Character.ID] = true
		}
		require.Len(t, seen, 7)
		require.True(t, seen["902"], "Extreme должен попадать в ротацию")
	}
}

func TestSelectDropOnlyExtremeCatalog(t *testing.T) {
	store := memory.NewStore()
	seedCatalog(t, store, domain.Character{ID: "002", Name: "Broly", Rarity: domain.RarityExtreme})
	selector := NewSelector(store, store, nil, nil, 100, zerolog.Nop())

	drop, err := selector.SelectDrop(context.Background(), -6)
	require.NoError(t, err)
	require.Equal(t, "002", drop.Character.ID)
}

func TestSelectDropSkipsSoftDeleted(t *testing.T) {
	store := memory.NewStore()
	seedCatalog(t, store,
		domain.Character{ID: "001", Name: "Krillin", Rarity: domain.RarityCommon},
		domain.Character{ID: "002", Name: "Yamcha", Rarity: domain.RarityCommon},
	)
	ctx := context.Background()
	require.NoError(t, store.SoftDeleteCharacter(ctx, "002", testNow))
	selector := NewSelector(store, store, nil, nil, 100, zerolog.Nop())
	for i := 0; i < 5; i++ {
		drop, err := selector.SelectDrop(ctx, -3)
		require.NoError(t, err)
		require.Equal(t, "001", drop.Character.ID)
	}
}

func TestSubmitGuessOutcomes(t *testing.T) {
	store := memory.NewStore()
	seedCatalog(t, store, domain.Character{ID: "001", Name: "Son Goku", Rarity: domain.RarityCommon})
	settler := &fakeSettler{}
	arbiter := NewArbiter(store, store, store, settler, NewMatcher(MatchAnyToken), zerolog.Nop())
	ctx := context.Background()

	out, err := arbiter.SubmitGuess(ctx, -1, Guesser{UserID: 1}, "goku")
	require.NoError(t, err)
	if out.Status != ClaimNoActiveDrop {
		t.Fatalf("ожидали NoActiveDrop, получили %s", out.Status)
	}

	selector := NewSelector(store, store, nil, nil, 100, zerolog.Nop())
	drop, err := selector.SelectDrop(ctx, -1)
	require.NoError(t, err)

	out, err = arbiter.SubmitGuess(ctx, -1, Guesser{UserID: 1}, "vegeta")
	require.NoError(t, err)
	if out.Status != ClaimIncorrect {
		t.Fatalf("ожидали Incorrect, получили %s", out.Status)
	}
	out, err = arbiter.SubmitGuess(ctx, -1, Guesser{UserID: 1}, "Goku & Vegeta")
	require.NoError(t, err)
	if out.Status != ClaimIncorrect {
		t.Fatalf("догадка с & должна отклоняться, получили %s", out.Status)
	}

	out, err = arbiter.SubmitGuess(ctx, -1, Guesser{UserID: 1, DisplayName: "Bulma"}, "goku")
	require.NoError(t, err)
	if out.Status != ClaimWon || out.DropID != drop.ID || out.Reward.Tokens != 100 {
		t.Fatalf("ожидали победу с наградой, получили %+v", out)
	}

	out, err = arbiter.SubmitGuess(ctx, -1, Guesser{UserID: 2}, "son goku")
	require.NoError(t, err)
	if out.Status != ClaimAlreadyClaimed || out.ClaimedBy != 1 {
		t.Fatalf("ожидали AlreadyClaimed с победителем 1, получили %+v", out)
	}
	if settler.count() != 1 {
		t.Fatalf("расчёт должен вызываться ровно один раз, вызван %d", settler.count())
	}
}

func TestSubmitGuessConcurrentSingleWinner(t *testing.T) {
	store := memory.NewStore()
	seedCatalog(t, store, domain.Character{ID: "001", Name: "Son Goku", Rarity: domain.RarityCommon})
	settler := &fakeSettler{}
	arbiter := NewArbiter(store, store, store, settler, NewMatcher(MatchAnyToken), zerolog.Nop())
	selector := NewSelector(store, store, nil, nil, 100, zerolog.Nop())
	ctx := context.Background()
	_, err := selector.SelectDrop(ctx, -9)
	require.NoError(t, err)

	const players = 64
	outcomes := make([]ClaimStatus, players)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			out, err := arbiter.SubmitGuess(ctx, -9, Guesser{UserID: int64(i + 1)}, "Son Goku")
			assert.NoError(t, err)
			outcomes[i] = out.Status
		}(i)
	}
	close(start)
	wg.Wait()

	won := 0
	for _, status := range outcomes {
		switch status {
		case ClaimWon:
			won++
		case ClaimAlreadyClaimed:
		default:
			t.Fatalf("неожиданный исход %s", status)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, settler.count())
}

func TestSubmitGuessSettlementQueued(t *testing.T) {
	store := memory.NewStore()
	seedCatalog(t, store, domain.Character{ID: "001", Name: "Piccolo", Rarity: domain.RarityRare})
	settler := &fakeSettler{err: fmt.Errorf("%w: нет соединения", domain.ErrSettlementQueued)}
	arbiter := NewArbiter(store, store, nil, settler, NewMatcher(MatchTokenSet), zerolog.Nop())
	selector := NewSelector(store, store, nil, nil, 100, zerolog.Nop())
	ctx := context.Background()
	_, err := selector.SelectDrop(ctx, -4)
	require.NoError(t, err)

	out, err := arbiter.SubmitGuess(ctx, -4, Guesser{UserID: 3}, "piccolo")
	require.NoError(t, err)
	assert.Equal(t, ClaimWon, out.Status)
	assert.True(t, out.SettlementPending)

	settler.err = errors.New("очередь недоступна")
	_, err = selector.SelectDrop(ctx, -4)
	require.NoError(t, err)
	out, err = arbiter.SubmitGuess(ctx, -4, Guesser{UserID: 3}, "piccolo")
	require.Error(t, err)
	assert.Equal(t, ClaimWon, out.Status)
	assert.True(t, out.SettlementPending)
}
