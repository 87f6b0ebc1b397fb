package providers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"wsd/internal/structures"
)

type MetricsProviderInterface interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncCacheHits()
	IncCacheMisses()
	ObservePersistenceDuration(duration time.Duration)
	IncCommand(command, outcome string)
	IncRateLimited()
	ObserveUpstream(provider string, duration time.Duration, err error)
}

// ChannelCounter reports how many channels the registry tracks.
type ChannelCounter interface {
	Len() int
}

// RateEntryCounter reports how many identities the limiter is tracking.
type RateEntryCounter interface {
	Len() int
}

// PresenceLister lists the channels the chat layer is currently in.
type PresenceLister interface {
	Joined() []string
}

type MetricsProvider struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	persistenceDuration prometheus.Histogram
	commandsTotal       *prometheus.CounterVec
	rateLimited         prometheus.Counter
	upstreamDuration    *prometheus.HistogramVec
	upstreamErrors      *prometheus.CounterVec
}

func (m *MetricsProvider) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *MetricsProvider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncCacheHits() {
	m.cacheHits.Inc()
}

func (m *MetricsProvider) IncCacheMisses() {
	m.cacheMisses.Inc()
}

func (m *MetricsProvider) ObservePersistenceDuration(duration time.Duration) {
	m.persistenceDuration.Observe(duration.Seconds())
}

func (m *MetricsProvider) IncCommand(command, outcome string) {
	m.commandsTotal.WithLabelValues(command, outcome).Inc()
}

func (m *MetricsProvider) IncRateLimited() {
	m.rateLimited.Inc()
}

func (m *MetricsProvider) ObserveUpstream(provider string, duration time.Duration, err error) {
	m.upstreamDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if err != nil {
		m.upstreamErrors.WithLabelValues(provider).Inc()
	}
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func NewMetricsProvider(conf *structures.Config, channels ChannelCounter, rates RateEntryCounter) MetricsProviderInterface {
	if !conf.Metrics.Enabled {
		return &noopMetrics{}
	}

	m := &MetricsProvider{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wsd_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wsd_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wsd_geocode_cache_hits_total",
			Help: "Total number of geocode cache hits",
		}),

		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wsd_geocode_cache_misses_total",
			Help: "Total number of geocode cache misses",
		}),

		persistenceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wsd_registry_persist_duration_seconds",
			Help:    "Duration of channel registry rewrites in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		commandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wsd_commands_total",
			Help: "Commands handled, by command and outcome",
		}, []string{"command", "outcome"}),

		rateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wsd_rate_limited_total",
			Help: "Requests denied by the per-identity rate limiter",
		}),

		upstreamDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wsd_upstream_duration_seconds",
			Help:    "Outbound provider call duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),

		upstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wsd_upstream_errors_total",
			Help: "Failed outbound provider calls",
		}, []string{"provider"}),
	}

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "wsd_channels_total",
		Help: "Channels tracked by the registry",
	}, func() float64 {
		return float64(channels.Len())
	})

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "wsd_rate_entries",
		Help: "Identities currently tracked by the rate limiter",
	}, func() float64 {
		return float64(rates.Len())
	})

	return m
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) IncRequestsTotal(_ string, _ int)                   {}
func (n *noopMetrics) ObserveRequestDuration(_ string, _ time.Duration)   {}
func (n *noopMetrics) IncCacheHits()                                      {}
func (n *noopMetrics) IncCacheMisses()                                    {}
func (n *noopMetrics) ObservePersistenceDuration(_ time.Duration)         {}
func (n *noopMetrics) IncCommand(_, _ string)                             {}
func (n *noopMetrics) IncRateLimited()                                    {}
func (n *noopMetrics) ObserveUpstream(_ string, _ time.Duration, _ error) {}
