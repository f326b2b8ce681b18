package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements an in-memory fixed-window store. Suitable for
// single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

type window struct {
	start time.Time
	size  time.Duration
	count int
}

func (w *window) expired(now time.Time) bool {
	return !now.Before(w.start.Add(w.size))
}

// NewMemoryStore creates a new in-memory rate limit store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCleanup(5 * time.Minute)
}

// NewMemoryStoreWithCleanup creates a new in-memory store with custom cleanup interval.
func NewMemoryStoreWithCleanup(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		windows:         make(map[string]*window),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Allow counts a request for key in its current window.
func (s *MemoryStore) Allow(_ context.Context, key string, limit int, size time.Duration) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || w.expired(now) {
		w = &window{start: now, size: size}
		s.windows[key] = w
	}
	d := Decision{Limit: limit, Reset: w.start.Add(w.size)}
	if w.count >= limit {
		return d, nil
	}
	w.count++
	d.Allowed = true
	d.Remaining = limit - w.count
	return d, nil
}

// Reset removes the window for key.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, key)
	return nil
}

// Len reports the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup drops expired windows.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, w := range s.windows {
		if w.expired(now) {
			delete(s.windows, key)
		}
	}
}
