package domain

import (
	"context"
	"time"
)

// SettlementJob описывает задачу на повторный расчёт дропа, который не удалось провести сразу.
type SettlementJob struct {
	ID         string    `json:"job_id"`
	Claim      Claim     `json:"claim"`
	Reward     Reward    `json:"reward"`
	Reason     string    `json:"reason,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// SettlementAckFunc подтверждает обработку или запрашивает повторную доставку.
type SettlementAckFunc func(success bool) error

// SettlementQueue — очередь задач сверки расчётов.
type SettlementQueue interface {
	Enqueue(ctx context.Context, job SettlementJob) error
	Receive(ctx context.Context) (SettlementJob, SettlementAckFunc, error)
}

// SettlementJobStatusRepo отслеживает попытки обработки задач сверки.
type SettlementJobStatusRepo interface {
	// EnsureSettlementJob регистрирует попытку и возвращает признак завершения и номер попытки.
	EnsureSettlementJob(ctx context.Context, jobID string) (done bool, attempt int, err error)
	// MarkSettlementJobDone помечает задачу завершённой.
	MarkSettlementJobDone(ctx context.Context, jobID string) error
}
