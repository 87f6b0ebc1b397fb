package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"wsd/internal/providers"
)

// MockLogger implements providers.Logger and records calls.
type MockLogger struct {
	mu   sync.Mutex
	Logs []LogEntry
}

type LogEntry struct {
	Level  string
	Type   providers.TypeEnum
	Format string
	Args   []interface{}
}

func (e LogEntry) Message() string {
	return fmt.Sprintf(e.Format, e.Args...)
}

func (m *MockLogger) record(level string, t providers.TypeEnum, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, LogEntry{Level: level, Type: t, Format: format, Args: args})
}

func (m *MockLogger) Errorf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("error", t, format, args...)
}
func (m *MockLogger) Warnf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("warn", t, format, args...)
}
func (m *MockLogger) Debugf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("debug", t, format, args...)
}
func (m *MockLogger) Infof(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("info", t, format, args...)
}
func (m *MockLogger) Fatalf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("fatal", t, format, args...)
}
func (m *MockLogger) Close() {}

// HasLog reports whether a message at level contains substr.
func (m *MockLogger) HasLog(level, substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Logs {
		if e.Level == level && strings.Contains(e.Message(), substr) {
			return true
		}
	}
	return false
}

// MockJoiner implements registry.Joiner.
type MockJoiner struct {
	mu     sync.Mutex
	Joined map[string]bool
	Calls  []string
	FailOn map[string]error
}

func NewMockJoiner() *MockJoiner {
	return &MockJoiner{Joined: make(map[string]bool), FailOn: make(map[string]error)}
}

func (m *MockJoiner) Join(channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, channel)
	if err := m.FailOn[channel]; err != nil {
		return err
	}
	m.Joined[strings.ToLower(channel)] = true
	return nil
}

func (m *MockJoiner) IsJoined(channel string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Joined[strings.ToLower(channel)]
}

func (m *MockJoiner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockCache implements providers.CacheProviderInterface.
type MockCache struct {
	mu   sync.Mutex
	Data map[string][]byte
}

func NewMockCache() *MockCache {
	return &MockCache{Data: make(map[string][]byte)}
}

func (m *MockCache) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.Data[key]
	return val, ok
}

func (m *MockCache) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = value
}

// MockFetcher implements upstream.Fetcher by routing on URL substrings.
type MockFetcher struct {
	mu     sync.Mutex
	Routes map[string]MockResponse
	Calls  []string
}

type MockResponse struct {
	Body  []byte
	Err   error
	Delay time.Duration
}

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{Routes: make(map[string]MockResponse)}
}

func (m *MockFetcher) On(substr string, body string, err error) *MockFetcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Routes[substr] = MockResponse{Body: []byte(body), Err: err}
	return m
}

func (m *MockFetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, rawURL)
	var resp MockResponse
	var found bool
	for substr, r := range m.Routes {
		if strings.Contains(rawURL, substr) {
			resp, found = r, true
			break
		}
	}
	m.mu.Unlock()

	if !found {
		return nil, fmt.Errorf("no mock response for %s", rawURL)
	}
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resp.Body, resp.Err
}

func (m *MockFetcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockIdentityStore implements identity.Store.
type MockIdentityStore struct {
	mu   sync.Mutex
	Data map[string]map[string]string
	Err  error
}

func NewMockIdentityStore() *MockIdentityStore {
	return &MockIdentityStore{Data: make(map[string]map[string]string)}
}

func (m *MockIdentityStore) Get(_ context.Context, identity, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", false, m.Err
	}
	v, ok := m.Data[strings.ToLower(identity)][key]
	return v, ok, nil
}

func (m *MockIdentityStore) Set(_ context.Context, identity, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	id := strings.ToLower(identity)
	if m.Data[id] == nil {
		m.Data[id] = make(map[string]string)
	}
	m.Data[id][key] = value
	return nil
}

func (m *MockIdentityStore) Delete(_ context.Context, identity, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.Data[strings.ToLower(identity)], key)
	return nil
}

// MockMetrics implements providers.MetricsProviderInterface and counts
// command outcomes.
type MockMetrics struct {
	mu          sync.Mutex
	Commands    map[string]int
	RateLimited int
	Persists    int
	Upstream    int
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{Commands: make(map[string]int)}
}

func (m *MockMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (m *MockMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (m *MockMetrics) IncCacheHits()                                    {}
func (m *MockMetrics) IncCacheMisses()                                  {}

func (m *MockMetrics) ObservePersistenceDuration(_ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Persists++
}

func (m *MockMetrics) IncCommand(command, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands[command+":"+outcome]++
}

func (m *MockMetrics) IncRateLimited() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RateLimited++
}

func (m *MockMetrics) ObserveUpstream(_ string, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Upstream++
}

func (m *MockMetrics) CommandCount(command, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Commands[command+":"+outcome]
}
