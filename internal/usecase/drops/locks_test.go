package drops

import (
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	locks := NewKeyedMutex()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(42)
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 100 {
		t.Fatalf("ожидали 100 инкрементов, получили %d", counter)
	}
	if locks.Len() != 0 {
		t.Fatalf("после освобождения ключи должны удаляться, осталось %d", locks.Len())
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	locks := NewKeyedMutex()
	unlock := locks.Lock(1)
	defer unlock()

	done := make(chan struct{})
	go func() {
		release := locks.Lock(2)
		release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("блокировка другого чата не должна ждать")
	}
}
