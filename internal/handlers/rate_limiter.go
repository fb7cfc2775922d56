package handlers

import (
	"strings"
	"sync"
	"time"
)

// attemptLimiter caps failed-code guesses per uid within a fixed window.
type attemptLimiter interface {
	Allow(key string) bool
	Reset(key string)
}

type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]attemptWindow
}

type attemptWindow struct {
	count int
	reset time.Time
}

func newWindowLimiter(limit int, window time.Duration, clock func() time.Time) attemptLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]attemptWindow),
	}
}

// Allow counts one attempt and reports whether it is within the limit.
func (l *windowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = normaliseLimiterKey(key)
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || !now.Before(entry.reset) {
		l.store[key] = attemptWindow{count: 1, reset: now.Add(l.window)}
		l.pruneLocked(now)
		return true
	}
	if entry.count >= l.limit {
		return false
	}
	entry.count++
	l.store[key] = entry
	return true
}

// Reset forgets the attempts of key, used after a successful verification.
func (l *windowLimiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.store, normaliseLimiterKey(key))
	l.mu.Unlock()
}

func (l *windowLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.store {
		if !now.Before(entry.reset) {
			delete(l.store, key)
		}
	}
}

func normaliseLimiterKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "anonymous"
	}
	return key
}
