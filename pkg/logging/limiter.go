// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package logging

import (
	"sync"
	"time"
)

const defaultSize = 4096

// Limiter throttles repeated log lines identified by a fingerprint.
type Limiter struct {
	size    int
	mutex   sync.Mutex
	entries map[string]time.Time
}

func NewLimiter(size int) *Limiter {
	if size <= 0 {
		size = defaultSize
	}
	return &Limiter{
		size:    size,
		entries: make(map[string]time.Time, min(size, 256)),
	}
}

// Allow reports whether the fingerprint may be logged at now and, if so,
// blocks it until now+interval. A non-positive interval never throttles.
func (l *Limiter) Allow(fingerprint string, now time.Time, interval time.Duration) bool {
	if interval <= 0 {
		return true
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if nextAllowed, ok := l.entries[fingerprint]; ok && now.Before(nextAllowed) {
		return false
	}
	l.entries[fingerprint] = now.Add(interval)

	if len(l.entries) > l.size {
		l.prune(now)
	}
	return true
}

func (l *Limiter) Len() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.entries)
}

// prune drops expired fingerprints, then the ones closest to expiry until
// the map fits. Must be called with the mutex held.
func (l *Limiter) prune(now time.Time) {
	for fp, nextAllowed := range l.entries {
		if !now.Before(nextAllowed) {
			delete(l.entries, fp)
		}
	}
	for len(l.entries) > l.size {
		var (
			oldestFP string
			oldest   time.Time
		)
		for fp, nextAllowed := range l.entries {
			if oldestFP == "" || nextAllowed.Before(oldest) {
				oldestFP, oldest = fp, nextAllowed
			}
		}
		delete(l.entries, oldestFP)
	}
}
