package settlement

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

const enqueueTimeout = 5 * time.Second

// Service начисляет награду за выигранный дроп ровно один раз.
type Service struct {
	repo   domain.SettlementRepo
	events domain.GameEventRepo
	queue  domain.SettlementQueue
	rnd    domain.Random
	now    func() time.Time
	log    zerolog.Logger
}

// NewService создаёт сервис расчётов. queue может быть nil, тогда сбой только логируется и отмечается событием.
func NewService(repo domain.SettlementRepo, events domain.GameEventRepo, queue domain.SettlementQueue, rnd domain.Random, log zerolog.Logger) *Service {
	if rnd == nil {
		rnd = domain.DefaultRandom()
	}
	return &Service{
		repo:   repo,
		events: events,
		queue:  queue,
		rnd:    rnd,
		now:    func() time.Time { return time.Now().UTC() },
		log:    log,
	}
}

// Settle вытягивает награду по редкости и проводит расчёт одной транзакцией.
// Если расчёт не прошёл, задача уходит на сверку и возвращается ошибка с domain.ErrSettlementQueued.
func (s *Service) Settle(ctx context.Context, claim domain.Claim) (domain.Reward, error) {
	reward := domain.RewardFor(claim.Character.Rarity).Roll(s.rnd)
	err := s.repo.ApplySettlement(ctx, domain.Settlement{Claim: claim, Reward: reward, SettledAt: s.now()})
	if err == nil {
		return reward, nil
	}
	if errors.Is(err, domain.ErrAlreadySettled) {
		return domain.Reward{}, err
	}
	return domain.Reward{}, s.escalate(claim, reward, err)
}

func (s *Service) escalate(claim domain.Claim, reward domain.Reward, cause error) error {
	metrics.IncSettlementFailure()
	s.log.Error().Err(cause).
		Str("alert", "settlement_reconciliation").
		Str("drop", claim.DropID).
		Int64("chat", claim.ChatID).
		Int64("user", claim.UserID).
		Str("character", claim.Character.ID).
		Int64("tokens", reward.Tokens).
		Int64("diamonds", reward.Diamonds).
		Msg("settlement: победа зафиксирована, но награда не начислена")

	// Контекст запроса мог быть отменён, поэтому эскалация идёт со своим таймаутом.
	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()

	s.record(ctx, domain.GameEventSettlementFailed, claim, map[string]any{"error": cause.Error()})

	if s.queue == nil {
		return fmt.Errorf("расчёт дропа %s: %w", claim.DropID, cause)
	}
	job := domain.SettlementJob{
		ID:         uuid.NewString(),
		Claim:      claim,
		Reward:     reward,
		Reason:     cause.Error(),
		EnqueuedAt: s.now(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.log.Error().Err(err).Str("alert", "settlement_reconciliation").Str("drop", claim.DropID).Msg("settlement: не удалось поставить задачу сверки")
		return errors.Join(fmt.Errorf("расчёт дропа %s: %w", claim.DropID, cause), fmt.Errorf("постановка в очередь: %w", err))
	}
	return fmt.Errorf("%w: %v", domain.ErrSettlementQueued, cause)
}

// Replay повторяет расчёт из задачи сверки. Уже проведённый расчёт считается успехом.
func (s *Service) Replay(ctx context.Context, job domain.SettlementJob) error {
	err := s.repo.ApplySettlement(ctx, domain.Settlement{Claim: job.Claim, Reward: job.Reward, SettledAt: s.now()})
	switch {
	case err == nil:
		metrics.IncSettlementReplay("applied")
		s.record(ctx, domain.GameEventSettlementReplayed, job.Claim, map[string]any{"job_id": job.ID})
		return nil
	case errors.Is(err, domain.ErrAlreadySettled):
		metrics.IncSettlementReplay("duplicate")
		return nil
	default:
		metrics.IncSettlementReplay("failed")
		return fmt.Errorf("повторный расчёт дропа %s: %w", job.Claim.DropID, err)
	}
}

func (s *Service) record(ctx context.Context, name string, claim domain.Claim, meta map[string]any) {
	if s.events == nil {
		return
	}
	meta["drop_id"] = claim.DropID
	meta["character_id"] = claim.Character.ID
	event := domain.GameEvent{
		Event:      name,
		UserID:     domain.Int64Ptr(claim.UserID),
		ChatID:     domain.Int64Ptr(claim.ChatID),
		Metadata:   meta,
		OccurredAt: s.now(),
	}
	if err := s.events.RecordGameEvent(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("drop", claim.DropID).Msg("settlement: не удалось сохранить событие")
	}
}
