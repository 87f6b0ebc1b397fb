package scheduler

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsd/internal/ratelimit"
	"wsd/internal/registry"
	"wsd/internal/structures"
	"wsd/internal/testutil"
)

func testConfig(filePath string) *structures.Config {
	return &structures.Config{
		Persistence: structures.Persistence{
			FilePath:     filePath,
			SaveInterval: 50 * time.Millisecond,
		},
		RateLimit: structures.RateLimitConfig{
			HitsPerInterval: 10,
			MaxHits:         100,
			SweepInterval:   50 * time.Millisecond,
		},
	}
}

type countingSweeper struct {
	calls atomic.Int32
}

func (c *countingSweeper) Sweep() int {
	c.calls.Add(1)
	return 1
}

func newTestScheduler(t *testing.T, path string) (*Scheduler, *registry.Registry, *testutil.MockMetrics) {
	t.Helper()
	conf := testConfig(path)
	logger := &testutil.MockLogger{}
	reg := registry.NewRegistry(conf, testutil.NewMockJoiner(), logger)
	metrics := testutil.NewMockMetrics()
	s := NewScheduler(conf, logger, reg, ratelimit.New(10, 100, 0), metrics).(*Scheduler)
	return s, reg, metrics
}

func TestScheduler_Restore_FileNotExist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channel_table.db")
	s, reg, _ := newTestScheduler(t, path)

	require.NoError(t, s.Restore())
	assert.Equal(t, 0, reg.Len())
	_, err := os.Stat(path)
	assert.NoError(t, err, "missing registry file is created")
}

func TestScheduler_Restore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channel_table.db")
	s, reg, _ := newTestScheduler(t, path)
	_, err := reg.Join("#weather", "alice")
	require.NoError(t, err)
	_, err = reg.Join("&local", "bob")
	require.NoError(t, err)
	require.NoError(t, s.Persist())

	restored, reg2, _ := newTestScheduler(t, path)
	require.NoError(t, restored.Restore())
	assert.Equal(t, reg.Channels(), reg2.Channels())
}

func TestScheduler_Persist_ObservesDuration(t *testing.T) {
	s, _, metrics := newTestScheduler(t, filepath.Join(t.TempDir(), "channel_table.db"))

	require.NoError(t, s.Persist())
	assert.Equal(t, 1, metrics.Persists)
}

func TestScheduler_Persist_Error(t *testing.T) {
	s, _, metrics := newTestScheduler(t, filepath.Join(t.TempDir(), "missing", "dir", "channel_table.db"))

	err := s.Persist()
	assert.ErrorIs(t, err, registry.ErrPersistence)
	assert.Equal(t, 1, metrics.Persists)
	assert.True(t, s.logger.(*testutil.MockLogger).HasLog("error", "persisting channel registry"))
}

func TestScheduler_InitRunsJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channel_table.db")
	s, _, _ := newTestScheduler(t, path)
	sweeper := &countingSweeper{}
	s.sweeper = sweeper

	require.NoError(t, s.Init())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil && sweeper.calls.Load() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_StopWithoutInit(t *testing.T) {
	s, _, _ := newTestScheduler(t, filepath.Join(t.TempDir(), "channel_table.db"))
	assert.NotPanics(t, s.Stop)
}
