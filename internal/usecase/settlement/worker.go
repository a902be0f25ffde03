package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tg-collector-bot/internal/domain"
)

const (
	maxReplayAttempts = 5
	retryPause        = time.Second
)

// Worker разбирает очередь сверки и повторяет отложенные расчёты.
type Worker struct {
	queue    domain.SettlementQueue
	statuses domain.SettlementJobStatusRepo
	service  *Service
	log      zerolog.Logger
	pause    time.Duration
}

// NewWorker создаёт обработчик очереди сверки.
func NewWorker(queue domain.SettlementQueue, statuses domain.SettlementJobStatusRepo, service *Service, log zerolog.Logger) *Worker {
	return &Worker{queue: queue, statuses: statuses, service: service, log: log, pause: retryPause}
}

// Run читает очередь до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("reconciler: ошибка чтения очереди")
			w.sleep(ctx)
			continue
		}
		if !w.Handle(ctx, job, ack) {
			w.sleep(ctx)
		}
	}
}

// Handle обрабатывает одну задачу. false означает, что задача возвращена в очередь.
func (w *Worker) Handle(ctx context.Context, job domain.SettlementJob, ack domain.SettlementAckFunc) bool {
	jobLog := w.log.With().
		Str("job_id", job.ID).
		Str("drop", job.Claim.DropID).
		Int64("user", job.Claim.UserID).
		Logger()

	if job.ID == "" {
		jobLog.Error().Msg("reconciler: задача без идентификатора, подтверждаем и пропускаем")
		w.ack(jobLog, ack, true)
		return true
	}

	done, attempt, err := w.statuses.EnsureSettlementJob(ctx, job.ID)
	if err != nil {
		jobLog.Error().Err(err).Msg("reconciler: не удалось зарегистрировать задачу")
		w.ack(jobLog, ack, false)
		return false
	}
	jobLog = jobLog.With().Int("attempt", attempt).Logger()
	if done {
		jobLog.Info().Msg("reconciler: задача уже выполнена, подтверждаем")
		w.ack(jobLog, ack, true)
		return true
	}

	if err := w.service.Replay(ctx, job); err != nil {
		if attempt < maxReplayAttempts {
			jobLog.Warn().Err(err).Msg("reconciler: повтор не удался, вернём задачу в очередь")
			w.ack(jobLog, ack, false)
			return false
		}
		jobLog.Error().Err(err).Str("alert", "settlement_reconciliation").Msg("reconciler: достигнут предел попыток, нужна ручная сверка")
	} else {
		jobLog.Info().Msg("reconciler: расчёт проведён")
	}

	if err := w.statuses.MarkSettlementJobDone(ctx, job.ID); err != nil {
		jobLog.Error().Err(err).Msg("reconciler: не удалось пометить задачу выполненной")
		w.ack(jobLog, ack, false)
		return false
	}
	w.ack(jobLog, ack, true)
	return true
}

func (w *Worker) ack(log zerolog.Logger, ack domain.SettlementAckFunc, success bool) {
	if ack == nil {
		return
	}
	if err := ack(success); err != nil {
		log.Error().Err(err).Bool("success", success).Msg("reconciler: не удалось подтвердить задачу")
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pause):
	}
}
