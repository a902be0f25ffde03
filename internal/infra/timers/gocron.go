package timers

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-collector-bot/internal/domain"
)

// Scheduler реализует domain.Timers одноразовыми задачами gocron.
type Scheduler struct {
	sched gocron.Scheduler
	log   zerolog.Logger

	mu   sync.Mutex
	jobs map[string]uuid.UUID
}

// New создаёт и запускает планировщик в UTC.
func New(log zerolog.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	sched.Start()
	return &Scheduler{sched: sched, log: log, jobs: make(map[string]uuid.UUID)}, nil
}

// After регистрирует задачу на момент at. Повторная регистрация ключа заменяет задачу.
// Момент в прошлом означает немедленный запуск.
func (s *Scheduler) After(key string, at time.Time, fn func()) error {
	start := gocron.OneTimeJobStartImmediately()
	if at.After(time.Now()) {
		start = gocron.OneTimeJobStartDateTime(at)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)

	var id uuid.UUID
	job, err := s.sched.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(func() {
			if !s.claim(key, &id) {
				return
			}
			go func() { _ = s.sched.RemoveJob(id) }()
			fn()
		}),
		gocron.WithName(key),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", key, err)
	}
	id = job.ID()
	s.jobs[key] = id
	s.log.Debug().Str("key", key).Time("at", at).Msg("timers: задача запланирована")
	return nil
}

// claim снимает регистрацию перед запуском. Задача, заменённая или отменённая
// после старта gocron, не выполняется.
func (s *Scheduler) claim(key string, id *uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[key]
	if !ok || current != *id {
		return false
	}
	delete(s.jobs, key)
	return true
}

// Cancel отменяет задачу, если она ещё не запущена.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
}

func (s *Scheduler) removeLocked(key string) {
	id, ok := s.jobs[key]
	if !ok {
		return
	}
	delete(s.jobs, key)
	if err := s.sched.RemoveJob(id); err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("timers: задача уже снята")
	}
}

// Len возвращает число ожидающих задач.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Shutdown останавливает планировщик.
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

var _ domain.Timers = (*Scheduler)(nil)
