package config

import "time"

// Cache backend identifiers
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// ClientConfig represents the complete SDK configuration. A client keeps its own
// copy of the value, so later changes by the caller have no effect on it.
type ClientConfig struct {
	// APIKey authenticates every request as a bearer token.
	APIKey string `koanf:"apikey" json:"apikey" yaml:"apikey" validate:"required"`
	// BaseURL is prepended verbatim to every request path.
	BaseURL string `koanf:"baseurl" json:"baseurl" yaml:"baseurl" validate:"required,url"`
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout" validate:"gt=0"`
	// MaxRetries is the number of attempts made after the first one fails.
	MaxRetries int `koanf:"maxretries" json:"maxretries" yaml:"maxretries" validate:"gte=0"`
	// RetryBaseDelay is the backoff unit: attempt i waits RetryBaseDelay * 2^i.
	RetryBaseDelay time.Duration `koanf:"retrybasedelay" json:"retrybasedelay" yaml:"retrybasedelay" validate:"gte=0"`
	// CacheEnabled turns on result caching for Calculate.
	CacheEnabled bool `koanf:"cacheenabled" json:"cacheenabled" yaml:"cacheenabled"`
	// Debug emits a diagnostic event for every request, response and retry.
	Debug bool `koanf:"debug" json:"debug" yaml:"debug"`

	// ClientName and Version form the User-Agent header as "<ClientName>/<Version>".
	ClientName string `koanf:"clientname" json:"clientname" yaml:"clientname" validate:"required"`
	Version    string `koanf:"version" json:"version" yaml:"version" validate:"required"`

	Cache     CacheConfig     `koanf:"cache" json:"cache" yaml:"cache"`
	Log       LogConfig       `koanf:"log" json:"log" yaml:"log"`
	Rate      RateConfig      `koanf:"rate" json:"rate" yaml:"rate"`
	Telemetry TelemetryConfig `koanf:"telemetry" json:"telemetry" yaml:"telemetry"`
}

// CacheConfig selects and tunes the calculation cache backend.
type CacheConfig struct {
	Type  string        `koanf:"type" json:"type" yaml:"type" validate:"oneof=memory redis"`
	TTL   time.Duration `koanf:"ttl" json:"ttl" yaml:"ttl" validate:"gte=0"`
	Redis RedisConfig   `koanf:"redis" json:"redis" yaml:"redis"`
}

// RedisConfig holds connection settings for the shared Redis cache.
type RedisConfig struct {
	Host         string        `koanf:"host" json:"host" yaml:"host"`
	Port         int           `koanf:"port" json:"port" yaml:"port"`
	Password     string        `koanf:"password" json:"password" yaml:"password"` //nolint:gosec // loaded from env
	Database     int           `koanf:"database" json:"database" yaml:"database"`
	PoolSize     int           `koanf:"poolsize" json:"poolsize" yaml:"poolsize"`
	DialTimeout  time.Duration `koanf:"dialtimeout" json:"dialtimeout" yaml:"dialtimeout"`
	ReadTimeout  time.Duration `koanf:"readtimeout" json:"readtimeout" yaml:"readtimeout"`
	WriteTimeout time.Duration `koanf:"writetimeout" json:"writetimeout" yaml:"writetimeout"`
	KeyPrefix    string        `koanf:"keyprefix" json:"keyprefix" yaml:"keyprefix"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" validate:"oneof=debug info warn error disabled"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty"`
}

// RateConfig holds client-side rate limiting settings. A zero Limit disables it.
type RateConfig struct {
	Limit float64 `koanf:"limit" json:"limit" yaml:"limit" validate:"gte=0"`
	Burst int     `koanf:"burst" json:"burst" yaml:"burst" validate:"gte=0"`
}

// Telemetry protocols and the special endpoint that prints to the console.
const (
	ProtocolHTTP   = "http"
	ProtocolGRPC   = "grpc"
	EndpointStdout = "stdout"
)

// TelemetryConfig selects the OpenTelemetry exporters installed by the
// observability package. The client only reports to the global providers.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled" json:"enabled" yaml:"enabled"`
	ServiceName string `koanf:"servicename" json:"servicename" yaml:"servicename" validate:"required"`
	Environment string `koanf:"environment" json:"environment" yaml:"environment"`

	Trace   ExporterConfig `koanf:"trace" json:"trace" yaml:"trace"`
	Metrics ExporterConfig `koanf:"metrics" json:"metrics" yaml:"metrics"`
}

// ExporterConfig describes one signal exporter. An empty Endpoint disables it.
type ExporterConfig struct {
	// Endpoint is "stdout", host:port for grpc, or a host[:port] for http.
	Endpoint string            `koanf:"endpoint" json:"endpoint" yaml:"endpoint"`
	Protocol string            `koanf:"protocol" json:"protocol" yaml:"protocol" validate:"oneof=http grpc"`
	Insecure bool              `koanf:"insecure" json:"insecure" yaml:"insecure"`
	Headers  map[string]string `koanf:"headers" json:"headers" yaml:"headers"`
	// Interval is the metrics export period. Traces ignore it.
	Interval time.Duration `koanf:"interval" json:"interval" yaml:"interval" validate:"gte=0"`
}

// UserAgent returns the client identifier sent with every request.
func (c ClientConfig) UserAgent() string {
	return c.ClientName + "/" + c.Version
}

// LogLevel returns the effective log level; Debug forces "debug".
func (c ClientConfig) LogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.Log.Level
}
