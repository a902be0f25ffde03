package drops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/infra/metrics"
)

// ErrNoEligibleCharacters возвращается, если в каталоге нет персонажей для дропа.
var ErrNoEligibleCharacters = errors.New("нет персонажей, доступных для дропа")

// Selector выбирает следующего персонажа для чата.
type Selector struct {
	characters       domain.CharacterRepo
	states           domain.DropStateRepo
	events           domain.GameEventRepo
	rnd              domain.Random
	defaultFrequency int
	now              func() time.Time
	log              zerolog.Logger
}

// NewSelector создаёт селектор.
func NewSelector(characters domain.CharacterRepo, states domain.DropStateRepo, events domain.GameEventRepo, rnd domain.Random, defaultFrequency int, log zerolog.Logger) *Selector {
	if rnd == nil {
		rnd = domain.DefaultRandom()
	}
	return &Selector{
		characters:       characters,
		states:           states,
		events:           events,
		rnd:              rnd,
		defaultFrequency: defaultFrequency,
		now:              func() time.Time { return time.Now().UTC() },
		log:              log,
	}
}

// SelectDrop выбирает персонажа и делает его активным дропом чата.
func (s *Selector) SelectDrop(ctx context.Context, chatID int64) (domain.Drop, error) {
	pool, err := s.characters.ListCharacters(ctx, domain.DroppableRarities())
	if err != nil {
		return domain.Drop{}, fmt.Errorf("загрузка каталога: %w", err)
	}
	if len(pool) == 0 {
		return domain.Drop{}, ErrNoEligibleCharacters
	}

	drop, err := s.states.ActivateDrop(ctx, chatID, s.defaultFrequency, func(shown []string) (domain.Drop, bool, error) {
		character, reset, err := s.pick(pool, shown)
		if err != nil {
			return domain.Drop{}, false, err
		}
		return domain.Drop{
			ID:        uuid.NewString(),
			ChatID:    chatID,
			Character: character,
			ShownAt:   s.now(),
		}, reset, nil
	})
	if err != nil {
		if errors.Is(err, ErrNoEligibleCharacters) {
			return domain.Drop{}, err
		}
		return domain.Drop{}, fmt.Errorf("активация дропа: %w", err)
	}

	metrics.IncDropSpawned()
	s.record(ctx, drop)
	return drop, nil
}

func (s *Selector) pick(pool []domain.Character, shown []string) (domain.Character, bool, error) {
	seen := make(map[string]struct{}, len(shown))
	for _, id := range shown {
		seen[id] = struct{}{}
	}
	eligible := make([]domain.Character, 0, len(pool))
	for _, c := range pool {
		if _, ok := seen[c.ID]; !ok {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) > 0 {
		if c, ok := domain.PickByRarity(s.rnd, eligible, domain.DropWeight); ok {
			return c, false, nil
		}
	}
	c, ok := domain.PickByRarity(s.rnd, pool, domain.DropWeight)
	if !ok {
		return domain.Character{}, false, ErrNoEligibleCharacters
	}
	return c, true, nil
}

func (s *Selector) record(ctx context.Context, drop domain.Drop) {
	if s.events == nil {
		return
	}
	event := domain.GameEvent{
		Event:  domain.GameEventDropSpawned,
		ChatID: domain.Int64Ptr(drop.ChatID),
		Metadata: map[string]any{
			"drop_id":      drop.ID,
			"character_id": drop.Character.ID,
			"rarity":       drop.Character.Rarity.String(),
		},
		OccurredAt: drop.ShownAt,
	}
	if err := s.events.RecordGameEvent(ctx, event); err != nil {
		s.log.Warn().Err(err).Int64("chat", drop.ChatID).Msg("drops: не удалось сохранить событие дропа")
	}
}
