package memory

import (
	"context"
	"sync"

	"tg-collector-bot/internal/domain"
)

// JobStatuses хранит статусы задач сверки в памяти.
type JobStatuses struct {
	mu       sync.Mutex
	attempts map[string]int
	done     map[string]bool
}

// NewJobStatuses создаёт хранилище статусов.
func NewJobStatuses() *JobStatuses {
	return &JobStatuses{attempts: make(map[string]int), done: make(map[string]bool)}
}

// EnsureSettlementJob реализует domain.SettlementJobStatusRepo.
func (j *JobStatuses) EnsureSettlementJob(ctx context.Context, jobID string) (bool, int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts[jobID]++
	return j.done[jobID], j.attempts[jobID], nil
}

// MarkSettlementJobDone реализует domain.SettlementJobStatusRepo.
func (j *JobStatuses) MarkSettlementJobDone(ctx context.Context, jobID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.done[jobID] = true
	return nil
}

var _ domain.SettlementJobStatusRepo = (*JobStatuses)(nil)
