package utils

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WorkerPool runs jobs on a bounded number of goroutines. Every job start
// waits on the limiter, which may be shared with other pools or callers so
// that all of them together respect one request rate.
type WorkerPool struct {
	semaphore chan struct{}
	limiter   *rate.Limiter
	wg        sync.WaitGroup
}

// NewLimiter allows one event per interval. A non-positive interval disables
// limiting.
func NewLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// NewWorkerPool creates a WorkerPool with the given concurrency. A nil
// limiter means jobs start as soon as a worker is free.
func NewWorkerPool(maxWorkers int, limiter *rate.Limiter) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if limiter == nil {
		limiter = NewLimiter(0)
	}
	return &WorkerPool{
		semaphore: make(chan struct{}, maxWorkers),
		limiter:   limiter,
	}
}

// Submit enqueues a job for execution in the pool. The job is skipped when
// ctx is cancelled before its turn comes.
func (wp *WorkerPool) Submit(ctx context.Context, job func(ctx context.Context)) {
	wp.wg.Add(1)
	wp.semaphore <- struct{}{}

	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()

		if err := wp.limiter.Wait(ctx); err != nil {
			return
		}
		job(ctx)
	}()
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// IDSet is a thread-safe set for tracking seen record IDs.
type IDSet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewIDSet creates an empty IDSet.
func NewIDSet() *IDSet {
	return &IDSet{seen: make(map[string]struct{})}
}

// Add returns true if the ID was newly added, false if already present.
func (s *IDSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[id]; exists {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

// Contains returns true if the ID has already been seen.
func (s *IDSet) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.seen[id]
	return exists
}

// Size returns the number of unique IDs tracked.
func (s *IDSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
