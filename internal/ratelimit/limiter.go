package ratelimit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"

	"wsd/internal/structures"
)

// IntervalSeconds is the span the hit limit is expressed against.
const IntervalSeconds = 60

const (
	Interval        = IntervalSeconds * time.Second
	DefaultLimit    = 10
	DefaultEntryTTL = 10 * time.Minute
)

// SlowDownMessage is what a throttled caller is told.
const SlowDownMessage = "You are making requests too quickly. Please wait before trying again."

var (
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrInvalidLimit = errors.New("invalid rate limit value")
)

// Entry is the throttle state kept for one identity.
type Entry struct {
	LastRequest time.Time
	HitCount    int
}

// Limiter throttles callers per identity. A caller may issue up to Limit()
// requests spaced closer than Interval/Limit(); the next one is denied until
// the caller stays quiet for a whole window.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*Entry
	limit   *atomic.Int64
	maxHits int
	ttl     time.Duration
	now     func() time.Time
}

func NewLimiter(conf *structures.Config) *Limiter {
	return New(conf.RateLimit.HitsPerInterval, conf.RateLimit.MaxHits, conf.RateLimit.EntryTTL)
}

func New(limit, maxHits int, ttl time.Duration) *Limiter {
	if maxHits <= 0 {
		maxHits = int(^uint32(0) >> 1)
	}
	if limit <= 0 || limit > maxHits {
		limit = DefaultLimit
	}
	if ttl <= 0 {
		ttl = DefaultEntryTTL
	}
	if ttl < Interval {
		ttl = Interval
	}
	return &Limiter{
		entries: make(map[string]*Entry),
		limit:   atomic.NewInt64(int64(limit)),
		maxHits: maxHits,
		ttl:     ttl,
		now:     time.Now,
	}
}

func key(identity string) string {
	return strings.ToLower(identity)
}

// Check records a request from identity and reports whether it may proceed.
func (l *Limiter) Check(identity string) bool {
	limit := l.limit.Load()
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key(identity)]
	if !ok {
		l.entries[key(identity)] = &Entry{LastRequest: now, HitCount: 1}
		return true
	}

	allowed := true
	if now.Sub(e.LastRequest) < Interval/time.Duration(limit) {
		e.HitCount++
		if int64(e.HitCount) > limit {
			allowed = false
		}
	} else {
		e.HitCount = 1
	}
	e.LastRequest = now
	return allowed
}

// Window is the spacing under which consecutive requests count as hits.
func (l *Limiter) Window() time.Duration {
	return Interval / time.Duration(l.limit.Load())
}

func (l *Limiter) Limit() int {
	return int(l.limit.Load())
}

func (l *Limiter) MaxHits() int {
	return l.maxHits
}

// SetLimit replaces the global hits-per-interval value.
func (l *Limiter) SetLimit(n int) error {
	if n < 1 || n > l.maxHits {
		return fmt.Errorf("%w: %d is outside 1..%d", ErrInvalidLimit, n, l.maxHits)
	}
	l.limit.Store(int64(n))
	return nil
}

// ParseLimit parses an admin supplied limit, rejecting anything that is not
// a plain positive decimal within 1..maxHits.
func ParseLimit(raw string, maxHits int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidLimit)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidLimit, raw)
	}
	if n < 1 || n > maxHits {
		return 0, fmt.Errorf("%w: %d is outside 1..%d", ErrInvalidLimit, n, maxHits)
	}
	return n, nil
}

// Get returns a copy of the entry held for identity.
func (l *Limiter) Get(identity string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key(identity)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep drops entries idle for longer than the entry TTL and returns how
// many were removed. An evicted identity starts over with a fresh entry,
// which is what it would get anyway once its window elapsed.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.ttl)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, e := range l.entries {
		if e.LastRequest.Before(cutoff) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}
