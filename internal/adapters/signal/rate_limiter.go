package signal

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/Dial/internal/domain"
)

// IncomingRateLimiter bounds how often one caller may ring this client.
// Redeliveries of a call already counted are not counted again.
type IncomingRateLimiter struct {
	mu       sync.Mutex
	clock    clock.Clock
	history  map[domain.UserID][]attempt
	limit    int
	interval time.Duration
}

func NewIncomingRateLimiter(limit int, interval time.Duration, c clock.Clock) *IncomingRateLimiter {
	if c == nil {
		c = clock.New()
	}
	return &IncomingRateLimiter{
		clock:    c,
		history:  make(map[domain.UserID][]attempt),
		limit:    limit,
		interval: interval,
	}
}

type attempt struct {
	at   time.Time
	call domain.CallID
}

func (rl *IncomingRateLimiter) Allow(uid domain.UserID, call domain.CallID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[uid]
	fresh := make([]attempt, 0, len(attempts)+1)
	seen := false
	for _, a := range attempts {
		if a.at.After(windowStart) {
			fresh = append(fresh, a)
			seen = seen || a.call == call
		}
	}
	if seen {
		rl.history[uid] = fresh
		return true
	}

	if len(fresh) >= rl.limit {
		rl.history[uid] = fresh
		return false
	}

	rl.history[uid] = append(fresh, attempt{at: now, call: call})
	return true
}

// Forget drops the history kept for uid.
func (rl *IncomingRateLimiter) Forget(uid domain.UserID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, uid)
}

// Len reports how many callers currently have history.
func (rl *IncomingRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.history)
}
