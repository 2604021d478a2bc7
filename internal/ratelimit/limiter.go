// Package ratelimit is a process-local sliding-window limiter. Each replica
// keeps its own state; enforcement is advisory.
package ratelimit

import (
	"sync"
	"time"
)

type entry struct {
	at    time.Time
	count int
}

type Limiter struct {
	mu   sync.Mutex
	keys map[string][]entry
	now  func() time.Time
}

func New() *Limiter {
	return &Limiter{keys: map[string][]entry{}, now: time.Now}
}

// NewWithClock is New with an injectable clock.
func NewWithClock(now func() time.Time) *Limiter {
	l := New()
	l.now = now
	return l
}

// Allow records one hit for key if fewer than limit hits happened within
// window. Rejected calls are not recorded. remaining is 0 on rejection.
func (l *Limiter) Allow(key string, limit int, window time.Duration) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)
	kept := prune(l.keys[key], cutoff)

	used := 0
	for _, e := range kept {
		used += e.count
	}
	if used >= limit {
		l.store(key, kept)
		return false, 0
	}
	l.keys[key] = append(kept, entry{at: now, count: 1})
	return true, limit - used - 1
}

// Sweep drops entries older than maxAge and forgets idle keys.
func (l *Limiter) Sweep(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-maxAge)
	removed := 0
	for k, entries := range l.keys {
		kept := prune(entries, cutoff)
		if len(kept) == 0 {
			delete(l.keys, k)
			removed++
			continue
		}
		l.keys[k] = kept
	}
	return removed
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

func (l *Limiter) store(key string, entries []entry) {
	if len(entries) == 0 {
		delete(l.keys, key)
		return
	}
	l.keys[key] = entries
}

// prune drops entries at or before cutoff. Entries are in time order.
func prune(entries []entry, cutoff time.Time) []entry {
	i := 0
	for i < len(entries) && !entries[i].at.After(cutoff) {
		i++
	}
	if i == 0 {
		return entries
	}
	return append(entries[:0:0], entries[i:]...)
}
