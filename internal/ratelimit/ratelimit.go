// Package ratelimit implements a per-key sliding window limiter.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	hits   map[string][]time.Time
}

// New allows limit requests per key within any window-long interval.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{limit: limit, window: window, now: time.Now, hits: make(map[string][]time.Time)}
}

func PerMinute(limit int) *Limiter { return New(limit, time.Minute) }

func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow records a request for key. When the window is full it returns false
// and how long until the oldest request leaves the window.
func (l *Limiter) Allow(key string) (time.Duration, bool) {
	if l.limit <= 0 {
		return 0, true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	hits := l.hits[key]
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]

	if len(hits) >= l.limit {
		l.hits[key] = hits
		return hits[0].Add(l.window).Sub(now), false
	}
	l.hits[key] = append(hits, now)
	return 0, true
}

// Reset forgets every key starting with prefix; an empty prefix clears all.
func (l *Limiter) Reset(prefix string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.hits {
		if strings.HasPrefix(k, prefix) {
			delete(l.hits, k)
		}
	}
}

// APIKey is the limiter key for a user's API traffic.
func APIKey(userID string) string { return userID + "-api" }
