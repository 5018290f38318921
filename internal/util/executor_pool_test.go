package util

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutorPool_BasicExecution(t *testing.T) {
	var counter int64

	pool := NewExecutorPool(3, 10, func(item int) error {
		atomic.AddInt64(&counter, int64(item))
		return nil
	})

	for i := 1; i <= 5; i++ {
		pool.Submit(i)
	}

	if err := pool.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := int64(1 + 2 + 3 + 4 + 5)
	if atomic.LoadInt64(&counter) != expected {
		t.Errorf("Expected counter to be %d, got %d", expected, atomic.LoadInt64(&counter))
	}
}

func TestExecutorPool_ConcurrencyBound(t *testing.T) {
	var mu sync.Mutex
	var activeWorkers int64
	var maxActiveWorkers int64

	pool := NewExecutorPool(3, 10, func(item int) error {
		current := atomic.AddInt64(&activeWorkers, 1)

		mu.Lock()
		if current > maxActiveWorkers {
			maxActiveWorkers = current
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&activeWorkers, -1)
		return nil
	})

	for i := 1; i <= 10; i++ {
		pool.Submit(i)
	}
	pool.Close()

	if maxActiveWorkers > 3 {
		t.Errorf("Expected at most 3 concurrent workers, got %d", maxActiveWorkers)
	}
}

func TestExecutorPool_CollectsErrors(t *testing.T) {
	errOdd := errors.New("odd item")
	pool := NewExecutorPool(2, 4, func(item int) error {
		if item%2 == 1 {
			return errOdd
		}
		return nil
	})

	for i := 1; i <= 4; i++ {
		pool.Submit(i)
	}

	err := pool.Close()
	if !errors.Is(err, errOdd) {
		t.Fatalf("Expected joined error to contain errOdd, got %v", err)
	}
}

func TestExecutorPool_SubmitAfterClose(t *testing.T) {
	pool := NewExecutorPool(1, 1, func(item int) error { return nil })
	pool.Close()

	if pool.Submit(1) {
		t.Error("Expected Submit to be rejected after Close")
	}
	if err := pool.Close(); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}
}
