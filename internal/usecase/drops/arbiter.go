package drops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/infra/metrics"
)

// ClaimStatus описывает итог попытки угадать персонажа.
type ClaimStatus string

const (
	ClaimNoActiveDrop   ClaimStatus = "no_active_drop"
	ClaimAlreadyClaimed ClaimStatus = "already_claimed"
	ClaimIncorrect      ClaimStatus = "incorrect"
	ClaimWon            ClaimStatus = "won"
)

// ClaimOutcome описывает результат SubmitGuess.
type ClaimOutcome struct {
	Status    ClaimStatus
	DropID    string
	Character domain.Character
	Reward    domain.Reward
	// ClaimedBy заполняется для AlreadyClaimed, если победитель известен.
	ClaimedBy int64
	// SettlementPending означает, что победа зафиксирована, а начисление ушло на сверку.
	SettlementPending bool
}

// Guesser описывает игрока, отправившего догадку.
type Guesser struct {
	UserID      int64
	DisplayName string
}

// Settler проводит расчёт по выигранному дропу.
type Settler interface {
	Settle(ctx context.Context, claim domain.Claim) (domain.Reward, error)
}

// Arbiter определяет первого угадавшего для активного дропа чата.
type Arbiter struct {
	states  domain.DropStateRepo
	profile domain.ProfileRepo
	events  domain.GameEventRepo
	settler Settler
	matcher Matcher
	now     func() time.Time
	log     zerolog.Logger
}

// NewArbiter создаёт арбитра.
func NewArbiter(states domain.DropStateRepo, profiles domain.ProfileRepo, events domain.GameEventRepo, settler Settler, matcher Matcher, log zerolog.Logger) *Arbiter {
	return &Arbiter{
		states:  states,
		profile: profiles,
		events:  events,
		settler: settler,
		matcher: matcher,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log,
	}
}

// SubmitGuess сравнивает догадку с активным дропом и фиксирует победу compare-and-set в хранилище.
func (a *Arbiter) SubmitGuess(ctx context.Context, chatID int64, user Guesser, guess string) (ClaimOutcome, error) {
	state, err := a.states.GetDropState(ctx, chatID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && state.ActiveDrop == nil) {
		metrics.IncGuess(string(ClaimNoActiveDrop))
		return ClaimOutcome{Status: ClaimNoActiveDrop}, nil
	}
	if err != nil {
		return ClaimOutcome{}, fmt.Errorf("получение состояния чата: %w", err)
	}

	drop := *state.ActiveDrop
	if state.Claimed() {
		metrics.IncGuess(string(ClaimAlreadyClaimed))
		return ClaimOutcome{Status: ClaimAlreadyClaimed, DropID: drop.ID, Character: drop.Character, ClaimedBy: state.ClaimedBy}, nil
	}

	guess = strings.TrimSpace(guess)
	if guess == "" || !a.matcher.Match(guess, drop.Character.Name) {
		metrics.IncGuess(string(ClaimIncorrect))
		return ClaimOutcome{Status: ClaimIncorrect, DropID: drop.ID}, nil
	}

	if a.profile != nil {
		if _, err := a.profile.EnsureProfile(ctx, user.UserID, user.DisplayName); err != nil {
			return ClaimOutcome{}, fmt.Errorf("создание профиля: %w", err)
		}
	}

	now := a.now()
	won, err := a.states.ClaimDrop(ctx, chatID, drop.ID, user.UserID, now)
	if err != nil {
		return ClaimOutcome{}, fmt.Errorf("фиксация победы: %w", err)
	}
	if !won {
		metrics.IncGuess(string(ClaimAlreadyClaimed))
		return ClaimOutcome{Status: ClaimAlreadyClaimed, DropID: drop.ID, Character: drop.Character}, nil
	}
	metrics.IncGuess(string(ClaimWon))
	a.record(ctx, chatID, user.UserID, drop, now)

	outcome := ClaimOutcome{Status: ClaimWon, DropID: drop.ID, Character: drop.Character}
	reward, err := a.settler.Settle(ctx, domain.Claim{
		DropID:    drop.ID,
		ChatID:    chatID,
		UserID:    user.UserID,
		Character: drop.Character,
		ClaimedAt: now,
	})
	if err != nil {
		outcome.SettlementPending = true
		if errors.Is(err, domain.ErrSettlementQueued) {
			return outcome, nil
		}
		return outcome, fmt.Errorf("расчёт награды: %w", err)
	}
	outcome.Reward = reward
	return outcome, nil
}

func (a *Arbiter) record(ctx context.Context, chatID, userID int64, drop domain.Drop, at time.Time) {
	if a.events == nil {
		return
	}
	event := domain.GameEvent{
		Event:  domain.GameEventDropClaimed,
		UserID: domain.Int64Ptr(userID),
		ChatID: domain.Int64Ptr(chatID),
		Metadata: map[string]any{
			"drop_id":      drop.ID,
			"character_id": drop.Character.ID,
			"latency_ms":   at.Sub(drop.ShownAt).Milliseconds(),
		},
		OccurredAt: at,
	}
	if err := a.events.RecordGameEvent(ctx, event); err != nil {
		a.log.Warn().Err(err).Int64("chat", chatID).Msg("drops: не удалось сохранить событие победы")
	}
}
