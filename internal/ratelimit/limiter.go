package ratelimit

import (
	"sync"
	"time"

	"github.com/teamgrid/realtime/internal/observability"
)

const DefaultWindow = 60 * time.Second

// DefaultQuotas mirrors how differently priced the gateway actions are:
// message sends are allowed far more often than room joins.
func DefaultQuotas() map[string]int {
	return map[string]int{
		"send_message":      60,
		"typing_start":      30,
		"join_conversation": 20,
	}
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter keeps one fixed-size window per (subject, action) pair. Windows
// are lazily created and fully independent of each other.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	quotas  map[string]int
	period  time.Duration
	now     func() time.Time
}

func New(quotas map[string]int) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		quotas:  quotas,
		period:  DefaultWindow,
		now:     time.Now,
	}
}

// WithClock swaps the time source. Tests use this to drive window rollover.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow consumes one unit of the (subject, action) quota. Actions with no
// configured quota are always allowed.
func (l *Limiter) Allow(subject, action string) bool {
	quota, limited := l.quotas[action]
	if !limited {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := subject + ":" + action
	now := l.now()

	w, ok := l.windows[key]
	if !ok {
		w = &window{resetAt: now.Add(l.period)}
		l.windows[key] = w
	}

	if now.After(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(l.period)
	}

	if w.count >= quota {
		observability.RateLimitRejectionsTotal.WithLabelValues(action).Inc()
		return false
	}

	w.count++
	return true
}

// Reset drops all windows for a subject, used when a connection goes away
// and its counters no longer matter.
func (l *Limiter) Reset(subject string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for action := range l.quotas {
		delete(l.windows, subject+":"+action)
	}
}
