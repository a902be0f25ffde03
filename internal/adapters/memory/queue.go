package memory

import (
	"context"

	"tg-collector-bot/internal/domain"
)

// Queue — очередь задач сверки в памяти процесса.
type Queue struct {
	jobs chan domain.SettlementJob
}

// NewQueue создаёт очередь заданной ёмкости.
func NewQueue(size int) *Queue {
	return &Queue{jobs: make(chan domain.SettlementJob, size)}
}

// Enqueue реализует domain.SettlementQueue.
func (q *Queue) Enqueue(ctx context.Context, job domain.SettlementJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive реализует domain.SettlementQueue. Неподтверждённая задача возвращается в конец очереди.
func (q *Queue) Receive(ctx context.Context) (domain.SettlementJob, domain.SettlementAckFunc, error) {
	select {
	case job := <-q.jobs:
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.Enqueue(context.Background(), job)
		}
		return job, ack, nil
	case <-ctx.Done():
		return domain.SettlementJob{}, nil, ctx.Err()
	}
}

// Len возвращает число ожидающих задач.
func (q *Queue) Len() int {
	return len(q.jobs)
}

var _ domain.SettlementQueue = (*Queue)(nil)
