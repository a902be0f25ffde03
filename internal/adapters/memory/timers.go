package memory

import (
	"sort"
	"sync"
	"time"

	"tg-collector-bot/internal/domain"
)

// Timers хранит отложенные задачи и запускает их только по явному Fire.
type Timers struct {
	mu    sync.Mutex
	tasks map[string]timerTask
}

type timerTask struct {
	at time.Time
	fn func()
}

// NewTimers создаёт ручной планировщик.
func NewTimers() *Timers {
	return &Timers{tasks: make(map[string]timerTask)}
}

// After реализует domain.Timers. Повторная регистрация ключа заменяет задачу.
func (t *Timers) After(key string, at time.Time, fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks[key] = timerTask{at: at, fn: fn}
	return nil
}

// Cancel реализует domain.Timers.
func (t *Timers) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tasks, key)
}

// Fire выполняет задачу синхронно. false — задачи с таким ключом нет.
func (t *Timers) Fire(key string) bool {
	t.mu.Lock()
	task, ok := t.tasks[key]
	delete(t.tasks, key)
	t.mu.Unlock()
	if !ok {
		return false
	}
	task.fn()
	return true
}

// Pending возвращает отсортированные ключи ожидающих задач.
func (t *Timers) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.tasks))
	for k := range t.tasks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Due возвращает момент запуска задачи.
func (t *Timers) Due(key string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[key]
	return task.at, ok
}

var _ domain.Timers = (*Timers)(nil)
