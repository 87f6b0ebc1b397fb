package structures

import "time"

type Server struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required|uint|min:1"`
}

type Persistence struct {
	FilePath     string        `yaml:"filePath" validate:"required|unixPath"`
	SaveInterval time.Duration `yaml:"saveInterval" validate:"required|min:1"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic"`
	Mode  uint32 `yaml:"mode" validate:"required|uint"`
	Dir   string `yaml:"dir" validate:"required|unixPath"`
}

// RateLimitConfig seeds the per-identity throttle. HitsPerInterval can be
// changed at runtime through the admin command, the rest is fixed at startup.
type RateLimitConfig struct {
	HitsPerInterval int           `yaml:"hitsPerInterval" validate:"required|int|min:1"`
	MaxHits         int           `yaml:"maxHits" validate:"required|int|min:1"`
	EntryTTL        time.Duration `yaml:"entryTTL"`
	SweepInterval   time.Duration `yaml:"sweepInterval"`
}

// ProviderConfig describes one upstream HTTP API (geocoder or weather).
type ProviderConfig struct {
	URL        string        `yaml:"url" validate:"required|fullUrl"`
	Key        string        `yaml:"key"`
	Language   string        `yaml:"language"`
	Timeout    time.Duration `yaml:"timeout" validate:"required|min:1"`
	MaxRetries int           `yaml:"maxRetries" validate:"int|min:0"`
}

// UpstreamConfig is the budget shared by every outbound call.
type UpstreamConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

type WorkersConfig struct {
	MaxConcurrent int `yaml:"maxConcurrent" validate:"required|int|min:1"`
}

type DisplayConfig struct {
	ZoneName    string `yaml:"zoneName" validate:"required"`
	OffsetHours int    `yaml:"offsetHours" validate:"int|min:-12|max:14"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type IdentityConfig struct {
	Type  string      `yaml:"type" validate:"required|in:memory,redis"`
	Redis RedisConfig `yaml:"redis"`
}

// AccessConfig holds the privilege data the command surface checks.
// AdminToken unlocks privileged commands. GatewayToken must accompany any
// caller identity; requests without it are keyed by client address.
// ChannelACL lists the identities allowed to request a join per channel.
type AccessConfig struct {
	AdminToken   string              `yaml:"adminToken"`
	GatewayToken string              `yaml:"gatewayToken"`
	ChannelACL   map[string][]string `yaml:"channelACL"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	AppName     string
	Debug       bool
	Path        string
	WebServer   Server          `yaml:"webServer"`
	Persistence Persistence     `yaml:"persistence"`
	Logger      LoggerConfig    `yaml:"logger"`
	RateLimit   RateLimitConfig `yaml:"rateLimit"`
	Geocoder    ProviderConfig  `yaml:"geocoder"`
	Weather     ProviderConfig  `yaml:"weather"`
	Upstream    UpstreamConfig  `yaml:"upstream"`
	Workers     WorkersConfig   `yaml:"workers"`
	Display     DisplayConfig   `yaml:"display"`
	Identity    IdentityConfig  `yaml:"identity"`
	Access      AccessConfig    `yaml:"access"`
	Cache       CacheConfig     `yaml:"cache"`
	Metrics     MetricsConfig   `yaml:"metrics"`
}
