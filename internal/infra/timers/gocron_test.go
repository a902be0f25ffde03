package timers

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestAfterFires(t *testing.T) {
	s := newScheduler(t)
	done := make(chan struct{})
	require.NoError(t, s.After("auction:1", time.Now().Add(50*time.Millisecond), func() { close(done) }))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("задача не выполнилась")
	}
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestPastDeadlineRunsImmediately(t *testing.T) {
	s := newScheduler(t)
	done := make(chan struct{})
	require.NoError(t, s.After("raid:1", time.Now().Add(-time.Hour), func() { close(done) }))
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("просроченная задача должна выполниться сразу")
	}
}

func TestCancelAndReplace(t *testing.T) {
	s := newScheduler(t)
	var calls atomic.Int32
	at := time.Now().Add(100 * time.Millisecond)

	require.NoError(t, s.After("auction:1", at, func() { calls.Add(100) }))
	s.Cancel("auction:1")

	require.NoError(t, s.After("auction:2", at, func() { calls.Add(100) }))
	require.NoError(t, s.After("auction:2", at, func() { calls.Add(1) }))

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "отменённые и заменённые задачи не должны выполняться")
}
