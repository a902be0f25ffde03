package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/infra/metrics"
)

// RabbitSettlementQueue реализует очередь задач сверки поверх AMQP.
type RabbitSettlementQueue struct {
	conn  *amqp.Connection
	queue string

	mu         sync.Mutex
	publisher  *amqp.Channel
	consumer   *amqp.Channel
	deliveries <-chan amqp.Delivery
}

// NewRabbitSettlementQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitSettlementQueue(amqpURL, queue string) (*RabbitSettlementQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitSettlementQueue{conn: conn, queue: queue, publisher: ch}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitSettlementQueue) Enqueue(ctx context.Context, job domain.SettlementJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	start := time.Now()
	err = q.publisher.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    job.EnqueuedAt,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу. Отрицательное подтверждение возвращает её брокеру.
func (q *RabbitSettlementQueue) Receive(ctx context.Context) (domain.SettlementJob, domain.SettlementAckFunc, error) {
	deliveries, err := q.consume()
	if err != nil {
		return domain.SettlementJob{}, nil, err
	}
	select {
	case <-ctx.Done():
		return domain.SettlementJob{}, nil, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			return domain.SettlementJob{}, nil, errors.New("rabbitmq: delivery channel closed")
		}
		var job domain.SettlementJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			_ = d.Nack(false, false)
			return domain.SettlementJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return d.Ack(false)
			}
			return d.Nack(false, true)
		}
		return job, ack, nil
	}
}

func (q *RabbitSettlementQueue) consume() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}
	q.consumer = ch
	q.deliveries = deliveries
	return deliveries, nil
}

// Close закрывает соединение с брокером.
func (q *RabbitSettlementQueue) Close() error {
	q.mu.Lock()
	if q.consumer != nil {
		_ = q.consumer.Close()
	}
	q.mu.Unlock()
	return q.conn.Close()
}

var _ domain.SettlementQueue = (*RabbitSettlementQueue)(nil)
