package drops

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"tg-collector-bot/internal/domain"
)

// ErrFrequencyTooLow возвращается при попытке выставить слишком частые дропы.
var ErrFrequencyTooLow = errors.New("слишком маленькая частота дропов")

// SchedulerConfig задаёт пороги счётчика сообщений.
type SchedulerConfig struct {
	DefaultFrequency  int
	MinAdminFrequency int
}

// Scheduler считает сообщения чатов и запускает дропы по достижении порога.
type Scheduler struct {
	states   domain.DropStateRepo
	selector *Selector
	locks    *KeyedMutex
	cfg      SchedulerConfig
	log      zerolog.Logger
}

// NewScheduler создаёт планировщик дропов.
func NewScheduler(states domain.DropStateRepo, selector *Selector, cfg SchedulerConfig, log zerolog.Logger) *Scheduler {
	if cfg.DefaultFrequency <= 0 {
		cfg.DefaultFrequency = 100
	}
	if cfg.MinAdminFrequency <= 0 {
		cfg.MinAdminFrequency = 100
	}
	return &Scheduler{states: states, selector: selector, locks: NewKeyedMutex(), cfg: cfg, log: log}
}

// RecordMessage учитывает сообщение и возвращает дроп, если порог был достигнут этим сообщением.
func (s *Scheduler) RecordMessage(ctx context.Context, chatID int64, kind domain.MessageKind) (domain.Drop, bool, error) {
	if !kind.Countable() {
		return domain.Drop{}, false, nil
	}

	unlock := s.locks.Lock(chatID)
	defer unlock()

	counter, err := s.states.AdvanceCounter(ctx, chatID, s.cfg.DefaultFrequency)
	if err != nil {
		return domain.Drop{}, false, fmt.Errorf("увеличение счётчика: %w", err)
	}
	if !counter.Reached() {
		return domain.Drop{}, false, nil
	}

	// Обнуление по наблюдённому значению: порог пересекает ровно один вызов даже между процессами.
	won, err := s.states.ResetCounter(ctx, chatID, counter.Count)
	if err != nil {
		return domain.Drop{}, false, fmt.Errorf("сброс счётчика: %w", err)
	}
	if !won {
		return domain.Drop{}, false, nil
	}

	drop, err := s.selector.SelectDrop(ctx, chatID)
	if err != nil {
		return domain.Drop{}, false, fmt.Errorf("выбор дропа: %w", err)
	}
	s.log.Debug().Int64("chat", chatID).Str("drop", drop.ID).Str("character", drop.Character.ID).Msg("drops: новый дроп")
	return drop, true, nil
}

// SetFrequency меняет порог сообщений. Без привилегий порог не может быть ниже MinAdminFrequency.
func (s *Scheduler) SetFrequency(ctx context.Context, chatID int64, frequency int, privileged bool) error {
	min := s.cfg.MinAdminFrequency
	if privileged {
		min = 1
	}
	if frequency < min {
		return fmt.Errorf("%w: минимум %d", ErrFrequencyTooLow, min)
	}
	if err := s.states.SetFrequency(ctx, chatID, frequency, s.cfg.DefaultFrequency); err != nil {
		return fmt.Errorf("сохранение частоты: %w", err)
	}
	return nil
}

// Frequency возвращает текущий порог сообщений чата.
func (s *Scheduler) Frequency(ctx context.Context, chatID int64) (int, error) {
	state, err := s.states.GetDropState(ctx, chatID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.cfg.DefaultFrequency, nil
	}
	if err != nil {
		return 0, fmt.Errorf("получение состояния чата: %w", err)
	}
	return state.MessageFrequency, nil
}
