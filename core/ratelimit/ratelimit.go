// Package ratelimit is a sliding-window limiter with a minimum gap between attempts.
package ratelimit

import (
	"sync"
	"time"

	"github.com/iradukundapaci/communiserver-sub002/core"
)

// Profile fetch defaults.
const (
	ProfileMax    = 3
	ProfileWindow = 30 * time.Second
	ProfileMinGap = 2 * time.Second
)

// Limiter allows at most max attempts in any rolling window, spaced by at least minGap.
// It is safe for concurrent use.
type Limiter struct {
	max    int
	window time.Duration
	minGap time.Duration
	now    core.NowFunc

	mu       sync.Mutex
	attempts []time.Time // accepted attempts inside the window, oldest first
}

func New(max int, window, minGap time.Duration, now core.NowFunc) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{max: max, window: window, minGap: minGap, now: now}
}

// NewProfileLimiter returns the limiter guarding profile fetches: 3 per 30s, 2s apart.
func NewProfileLimiter(now core.NowFunc) *Limiter {
	return New(ProfileMax, ProfileWindow, ProfileMinGap, now)
}

// Allow records an attempt and reports whether it may proceed.
func (l *Limiter) Allow() bool {
	ok, _ := l.Reserve()
	return ok
}

// Reserve records an attempt if it is allowed, otherwise it returns how long to wait.
func (l *Limiter) Reserve() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	var wait time.Duration
	if n := len(l.attempts); n > 0 {
		if gap := l.attempts[n-1].Add(l.minGap).Sub(now); gap > 0 {
			wait = gap
		}
	}
	if len(l.attempts) >= l.max {
		if w := l.attempts[0].Add(l.window).Sub(now); w > wait {
			wait = w
		}
	}
	if wait > 0 {
		return false, wait
	}

	l.attempts = append(l.attempts, now)
	return true, 0
}

// Reset forgets every recorded attempt.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = l.attempts[:0]
}

func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.attempts) && !l.attempts[i].After(cutoff) {
		i++
	}
	l.attempts = append(l.attempts[:0], l.attempts[i:]...)
}
