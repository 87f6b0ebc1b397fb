package providers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsd/internal/structures"
)

type fixedCounter int

func (c fixedCounter) Len() int { return int(c) }

func useFreshRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	prevReg, prevGath := prometheus.DefaultRegisterer, prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = prevReg
		prometheus.DefaultGatherer = prevGath
	})
	return reg
}

func TestNoopMetrics_WhenDisabled(t *testing.T) {
	conf := &structures.Config{
		Metrics: structures.MetricsConfig{Enabled: false},
	}
	m := NewMetricsProvider(conf, fixedCounter(0), fixedCounter(0))
	_, ok := m.(*noopMetrics)
	assert.True(t, ok, "should return noopMetrics when disabled")

	m.IncRequestsTotal("/weather", 200)
	m.ObserveRequestDuration("/weather", time.Millisecond)
	m.IncCacheHits()
	m.IncCacheMisses()
	m.ObservePersistenceDuration(time.Millisecond)
	m.IncCommand("weather", "ok")
	m.IncRateLimited()
	m.ObserveUpstream("geocoder", time.Millisecond, nil)
}

func TestMetricsProvider_WhenEnabled(t *testing.T) {
	useFreshRegistry(t)

	conf := &structures.Config{
		Metrics: structures.MetricsConfig{Enabled: true},
	}
	m := NewMetricsProvider(conf, fixedCounter(3), fixedCounter(7))
	_, ok := m.(*MetricsProvider)
	assert.True(t, ok, "should return MetricsProvider when enabled")
}

func TestMetricsProvider_ExposesCountersAndGauges(t *testing.T) {
	reg := useFreshRegistry(t)

	conf := &structures.Config{
		Metrics: structures.MetricsConfig{Enabled: true},
	}
	m := NewMetricsProvider(conf, fixedCounter(3), fixedCounter(7))

	m.IncRequestsTotal("/weather", 200)
	m.IncRequestsTotal("/weather", 429)
	m.ObserveRequestDuration("/weather", 5*time.Millisecond)
	m.IncCacheHits()
	m.IncCacheMisses()
	m.ObservePersistenceDuration(100 * time.Millisecond)
	m.IncCommand("weather", "ok")
	m.IncRateLimited()
	m.ObserveUpstream("geocoder", 20*time.Millisecond, nil)
	m.ObserveUpstream("weather", 20*time.Millisecond, errors.New("boom"))

	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, "wsd_channels_total 3")
	assert.Contains(t, body, "wsd_rate_entries 7")
	assert.Contains(t, body, "wsd_rate_limited_total 1")
	assert.Contains(t, body, `wsd_commands_total{command="weather",outcome="ok"} 1`)
	assert.Contains(t, body, `wsd_upstream_errors_total{provider="weather"} 1`)
	assert.Contains(t, body, `wsd_requests_total{endpoint="/weather",status="4xx"} 1`)
}

func TestHttpStatusBucket(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{429, "4xx"},
		{500, "5xx"},
		{502, "5xx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, httpStatusBucket(tt.code))
	}
}
