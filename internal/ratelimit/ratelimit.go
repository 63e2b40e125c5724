// Package ratelimit provides admission control keyed by caller identity.
// Counters live in an injected Store so the limiter can be backed by
// in-memory windows (single instance) or Redis (distributed) without the
// orchestrator knowing the difference.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Amount    int
	Remaining int
	Reset     time.Time
}

// Store is a keyed counter with window semantics. Incr counts one admission
// attempt against key and reports the total for the current window together
// with the window's reset time. Each call mutates state exactly once.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
}

// Policy decides what a store failure means for the caller.
type Policy int

const (
	FailClosed Policy = iota // store error denies the request
	FailOpen                 // store error admits the request
)

// sharedKey is the deterministic fallback bucket for callers with no
// identity token. Absence of identity never bypasses the limit.
const sharedKey = "shared"

type Limiter struct {
	store  Store
	policy Policy
}

func New(store Store, policy Policy) *Limiter {
	return &Limiter{store: store, policy: policy}
}

// Check counts one admission attempt for key and returns the decision.
// Within any window no more than max admissions succeed for the same key.
func (l *Limiter) Check(ctx context.Context, key string, max int, window time.Duration) (Decision, error) {
	if key == "" {
		key = sharedKey
	}

	count, resetAt, err := l.store.Incr(ctx, key, window)
	if err != nil {
		if l.policy == FailOpen {
			return Decision{Allowed: true, Amount: max, Remaining: 0, Reset: time.Now().Add(window)}, err
		}
		return Decision{Allowed: false, Amount: max, Remaining: 0, Reset: time.Now().Add(window)}, err
	}

	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= max,
		Amount:    max,
		Remaining: remaining,
		Reset:     resetAt,
	}, nil
}

// MemoryStore implements Store with fixed windows per key. Suitable for
// single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (s *MemoryStore) Incr(ctx context.Context, key string, windowDur time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(windowDur)}
		s.windows[key] = w
	}

	w.count++
	return w.count, w.resetAt, nil
}
