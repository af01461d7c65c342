package auth

import (
	"sync"
	"time"
)

const (
	maxLoginAttempts = 10
	loginWindow      = 5 * time.Minute
)

type attempts struct {
	count    int
	lastSeen time.Time
}

// loginLimiter is a sliding-window counter of failed sign-in attempts
// per email.
type loginLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	seen   map[string]*attempts
	now    func() time.Time
}

func newLoginLimiter(window time.Duration, max int) *loginLimiter {
	return &loginLimiter{
		window: window,
		max:    max,
		seen:   make(map[string]*attempts),
		now:    time.Now,
	}
}

// allow records an attempt and reports whether it may proceed.
func (l *loginLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, a := range l.seen {
		if now.Sub(a.lastSeen) > l.window {
			delete(l.seen, k)
		}
	}

	a, ok := l.seen[key]
	if !ok {
		a = &attempts{}
		l.seen[key] = a
	}
	if now.Sub(a.lastSeen) > l.window {
		a.count = 0
	}
	if a.count >= l.max {
		return false
	}
	a.count++
	a.lastSeen = now
	return true
}

// reset clears the counter after a successful sign-in.
func (l *loginLimiter) reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, key)
}
