package cache

import (
	"sync"
	"time"

	"github.com/go-chi/httprate"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
)

// Limiter is a sliding-window request counter for outbound calls to a
// rate-limited source. The previous window is weighted by how much of it
// still overlaps the sliding window.
type Limiter struct {
	mu      sync.Mutex
	counter httprate.LimitCounter
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	var counter httprate.LimitCounter = httprate.NewLocalLimitCounter(window)
	return &Limiter{counter: counter, limit: limit, window: window, now: time.Now}
}

// Allow records one request for key and reports whether it fits the window.
// Rejected requests are not counted.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	current := now.Truncate(l.window)
	previous := current.Add(-l.window)
	currCount, prevCount, err := l.counter.Get(key, current, previous)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("rate counter read failed")
		return true
	}
	elapsed := now.Sub(current)
	weight := float64(l.window-elapsed) / float64(l.window)
	rate := float64(prevCount)*weight + float64(currCount)
	if rate >= float64(l.limit) {
		return false
	}
	if err := l.counter.Increment(key, current); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("rate counter write failed")
	}
	return true
}

// Check is Allow returning a typed error for callers that surface it.
func (l *Limiter) Check(key string) error {
	if l.Allow(key) {
		return nil
	}
	return clierr.New(clierr.CodeRateLimited, "local rate limit reached for "+key+"; retry shortly")
}
