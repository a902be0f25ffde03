package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-collector-bot/internal/adapters/memory"
	"tg-collector-bot/internal/domain"
)

type ackRecorder struct {
	calls []bool
}

func (a *ackRecorder) ack(success bool) error {
	a.calls = append(a.calls, success)
	return nil
}

func TestWorkerHandleReplaysOnce(t *testing.T) {
	store := memory.NewStore()
	statuses := memory.NewJobStatuses()
	worker := NewWorker(memory.NewQueue(1), statuses, NewService(store, store, nil, nil, zerolog.Nop()), zerolog.Nop())
	job := domain.SettlementJob{ID: "job-1", Claim: sampleClaim(domain.RarityRare), Reward: domain.Reward{Tokens: 300, Diamonds: 2}}

	rec := &ackRecorder{}
	for i := 0; i < 2; i++ {
		if !worker.Handle(context.Background(), job, rec.ack) {
			t.Fatalf("попытка %d: задача не должна возвращаться в очередь", i)
		}
	}
	if len(rec.calls) != 2 || !rec.calls[0] || !rec.calls[1] {
		t.Fatalf("ожидали два подтверждения, получили %v", rec.calls)
	}
	profile, err := store.GetProfile(context.Background(), 42)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if profile.Balances.Tokens != 300 {
		t.Fatalf("награда должна начисляться один раз, токенов %d", profile.Balances.Tokens)
	}
}

func TestWorkerHandleRetriesThenGivesUp(t *testing.T) {
	repo := &failingRepo{err: errors.New("соединение разорвано")}
	statuses := memory.NewJobStatuses()
	worker := NewWorker(memory.NewQueue(1), statuses, NewService(repo, nil, nil, nil, zerolog.Nop()), zerolog.Nop())
	job := domain.SettlementJob{ID: "job-2", Claim: sampleClaim(domain.RarityCommon)}

	rec := &ackRecorder{}
	for i := 1; i < maxReplayAttempts; i++ {
		if worker.Handle(context.Background(), job, rec.ack) {
			t.Fatalf("попытка %d: ожидали возврат в очередь", i)
		}
	}
	if !worker.Handle(context.Background(), job, rec.ack) {
		t.Fatal("после предела попыток задача должна подтверждаться")
	}
	if repo.calls != maxReplayAttempts {
		t.Fatalf("ожидали %d повторов, получили %d", maxReplayAttempts, repo.calls)
	}
	if last := rec.calls[len(rec.calls)-1]; !last {
		t.Fatal("последняя попытка должна подтверждать задачу")
	}
	done, _, _ := statuses.EnsureSettlementJob(context.Background(), "job-2")
	if !done {
		t.Fatal("задача должна быть помечена выполненной")
	}
}

func TestWorkerHandleSkipsJobWithoutID(t *testing.T) {
	worker := NewWorker(memory.NewQueue(1), memory.NewJobStatuses(), NewService(memory.NewStore(), nil, nil, nil, zerolog.Nop()), zerolog.Nop())
	rec := &ackRecorder{}
	if !worker.Handle(context.Background(), domain.SettlementJob{}, rec.ack) || len(rec.calls) != 1 || !rec.calls[0] {
		t.Fatalf("задачу без идентификатора нужно подтвердить, получили %v", rec.calls)
	}
}

func TestWorkerRunDrainsQueue(t *testing.T) {
	store := memory.NewStore()
	queue := memory.NewQueue(4)
	worker := NewWorker(queue, memory.NewJobStatuses(), NewService(store, store, nil, nil, zerolog.Nop()), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job := domain.SettlementJob{ID: "job-3", Claim: sampleClaim(domain.RarityCommon), Reward: domain.Reward{Tokens: 10}}
	if err := queue.Enqueue(ctx, job); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(stopped)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := store.Settlement("drop-1"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("задача из очереди не обработана")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run должен завершаться после отмены контекста")
	}
}
