package resilience

import (
	"context"
	"sync"
)

// Semaphore is a counting semaphore bounding concurrent operations.
type Semaphore struct {
	mu       sync.Mutex
	capacity int
	current  int
	waiters  []chan struct{}
}

// NewSemaphore creates a semaphore with the given capacity.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{capacity: capacity}
}

// TryAcquire attempts to take a permit without blocking.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < s.capacity {
		s.current++
		return true
	}
	return false
}

// Acquire takes a permit, blocking until one is available or the
// context ends.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if s.TryAcquire() {
		return nil
	}

	s.mu.Lock()
	waiter := make(chan struct{})
	s.waiters = append(s.waiters, waiter)
	s.mu.Unlock()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range s.waiters {
			if w == waiter {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		// The permit may have been handed over concurrently with the
		// context firing; give it back if so.
		select {
		case <-waiter:
			s.Release()
		default:
		}
		return ctx.Err()
	}
}

// Release frees a permit, waking the oldest waiter if any.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.waiters) > 0 {
		waiter := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(waiter) // permit transfers to the waiter
		return
	}
	if s.current > 0 {
		s.current--
	}
}

// Available returns the number of free permits.
func (s *Semaphore) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity - s.current
}
