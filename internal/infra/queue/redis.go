package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/infra/metrics"
)

// RedisSettlementQueue реализует очередь задач сверки на базе Redis lists.
type RedisSettlementQueue struct {
	client redis.UniversalClient
	key    string
}

// NewRedisSettlementQueue создаёт очередь по указанному ключу.
func NewRedisSettlementQueue(client redis.UniversalClient, key string) *RedisSettlementQueue {
	return &RedisSettlementQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisSettlementQueue) Enqueue(ctx context.Context, job domain.SettlementJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу. Отрицательное подтверждение возвращает задачу в очередь.
func (q *RedisSettlementQueue) Receive(ctx context.Context) (domain.SettlementJob, domain.SettlementAckFunc, error) {
	payload, err := q.pop(ctx)
	if err != nil {
		return domain.SettlementJob{}, nil, err
	}
	var job domain.SettlementJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return domain.SettlementJob{}, nil, fmt.Errorf("decode job: %w", err)
	}
	ack := func(success bool) error {
		if success {
			return nil
		}
		return q.client.LPush(context.WithoutCancel(ctx), q.key, payload).Err()
	}
	return job, ack, nil
}

func (q *RedisSettlementQueue) pop(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		if len(res) != 2 {
			return nil, errors.New("redis queue: unexpected response")
		}
		return []byte(res[1]), nil
	}
}

var _ domain.SettlementQueue = (*RedisSettlementQueue)(nil)
