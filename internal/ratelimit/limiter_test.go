package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsd/internal/structures"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(limit int) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := New(limit, 1000, 0)
	l.now = clock.Now
	return l, clock
}

func TestCheck_FirstRequestAllowed(t *testing.T) {
	l, _ := newTestLimiter(10)
	assert.True(t, l.Check("alice"))

	e, ok := l.Get("alice")
	require.True(t, ok)
	assert.Equal(t, 1, e.HitCount)
}

func TestCheck_DeniesLimitPlusOne(t *testing.T) {
	l, clock := newTestLimiter(10)

	// first request creates the entry, the next ones land inside the 6s window
	for i := 0; i < 10; i++ {
		assert.True(t, l.Check("alice"), "request %d", i+1)
		clock.Advance(time.Second)
	}
	assert.False(t, l.Check("alice"))
}

func TestCheck_ResetAfterWindow(t *testing.T) {
	l, clock := newTestLimiter(10)
	for i := 0; i < 11; i++ {
		l.Check("alice")
	}
	assert.False(t, l.Check("alice"))

	clock.Advance(l.Window())
	assert.True(t, l.Check("alice"))

	e, _ := l.Get("alice")
	assert.Equal(t, 1, e.HitCount)
}

func TestCheck_LastRequestUpdatedOnDeny(t *testing.T) {
	l, clock := newTestLimiter(1)
	assert.True(t, l.Check("bob"))
	clock.Advance(time.Second)
	assert.False(t, l.Check("bob"))

	e, _ := l.Get("bob")
	assert.Equal(t, clock.Now(), e.LastRequest)
}

func TestCheck_IdentitiesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(2)
	for i := 0; i < 3; i++ {
		l.Check("alice")
	}
	assert.False(t, l.Check("alice"))
	assert.True(t, l.Check("bob"))
}

func TestCheck_IdentityIsCaseInsensitive(t *testing.T) {
	l, _ := newTestLimiter(1)
	assert.True(t, l.Check("Alice"))
	assert.False(t, l.Check("alice"))
	assert.Equal(t, 1, l.Len())
}

func TestWindow_ShrinksWithLimit(t *testing.T) {
	l, _ := newTestLimiter(10)
	assert.Equal(t, 6*time.Second, l.Window())

	require.NoError(t, l.SetLimit(60))
	assert.Equal(t, time.Second, l.Window())
}

func TestCheck_ShrunkWindowResetsSlowCallers(t *testing.T) {
	l, clock := newTestLimiter(60)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Check("carol"))
		clock.Advance(time.Second)
	}
}

func TestSetLimit_Validation(t *testing.T) {
	l, _ := newTestLimiter(10)

	assert.True(t, errors.Is(l.SetLimit(0), ErrInvalidLimit))
	assert.True(t, errors.Is(l.SetLimit(-3), ErrInvalidLimit))
	assert.True(t, errors.Is(l.SetLimit(1001), ErrInvalidLimit))
	assert.Equal(t, 10, l.Limit())

	require.NoError(t, l.SetLimit(25))
	assert.Equal(t, 25, l.Limit())
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"10", 10, false},
		{" 7 ", 7, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"12x", 0, true},
		{"", 0, true},
		{"5000", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseLimit(tt.raw, 1000)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLimit)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSweep_RemovesIdleEntries(t *testing.T) {
	l, clock := newTestLimiter(10)
	l.Check("old")
	clock.Advance(DefaultEntryTTL + time.Second)
	l.Check("fresh")

	assert.Equal(t, 1, l.Sweep())
	_, ok := l.Get("old")
	assert.False(t, ok)
	_, ok = l.Get("fresh")
	assert.True(t, ok)
}

func TestNew_ClampsTTLToInterval(t *testing.T) {
	l := New(10, 100, time.Second)
	assert.Equal(t, Interval, l.ttl)
}

func TestNewLimiter_FromConfig(t *testing.T) {
	conf := &structures.Config{
		RateLimit: structures.RateLimitConfig{HitsPerInterval: 4, MaxHits: 50, EntryTTL: time.Hour},
	}
	l := NewLimiter(conf)
	assert.Equal(t, 4, l.Limit())
	assert.Equal(t, 50, l.MaxHits())
	assert.Equal(t, time.Hour, l.ttl)
}

func TestCheck_ConcurrentSameIdentity(t *testing.T) {
	l, _ := newTestLimiter(5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("dave") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// the clock is frozen, so exactly the first five hits get through
	assert.Equal(t, 5, allowed)
}
