// Package config loads and validates the SDK client configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables before they are mapped to keys,
// e.g. CALCULATOR_CACHE_TTL becomes cache.ttl.
const EnvPrefix = "CALCULATOR_"

// Default configuration values
const (
	DefaultBaseURL        = "https://api.yourcalculatorsite.com/v2"
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = time.Second
	DefaultCacheTTL       = time.Hour
	DefaultClientName     = "CalculatorSDK-Go"
	DefaultVersion        = "2.0.0"
	DefaultServiceName    = "calculator-sdk"
	DefaultMetricInterval = time.Minute
)

// Default returns a configuration with every default applied and the given API key.
func Default(apiKey string) ClientConfig {
	return ClientConfig{
		APIKey:         apiKey,
		BaseURL:        DefaultBaseURL,
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
		RetryBaseDelay: DefaultRetryBaseDelay,
		CacheEnabled:   true,
		Debug:          false,
		ClientName:     DefaultClientName,
		Version:        DefaultVersion,
		Cache: CacheConfig{
			Type: CacheMemory,
			TTL:  DefaultCacheTTL,
			Redis: RedisConfig{
				Port:         6379,
				PoolSize:     10,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
				KeyPrefix:    "calculator:",
			},
		},
		Log: LogConfig{Level: "warn"},
		Telemetry: TelemetryConfig{
			ServiceName: DefaultServiceName,
			Trace:       ExporterConfig{Protocol: ProtocolHTTP},
			Metrics:     ExporterConfig{Protocol: ProtocolHTTP, Interval: DefaultMetricInterval},
		},
	}
}

// Load loads configuration from multiple sources with priority:
// 1. Environment variables prefixed with CALCULATOR_ (highest priority)
// 2. The YAML file at path, when path is non-empty and the file exists
// 3. Default values (lowest priority)
func Load(path string) (*ClientConfig, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides is like Load but applies overrides last. Keys use the
// dotted koanf form, e.g. "cache.ttl".
func LoadWithOverrides(path string, overrides map[string]any) (*ClientConfig, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := k.Load(envProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	return unmarshal(k)
}

// LoadBytes is like Load but reads the YAML document from data instead of a file.
func LoadBytes(data []byte) (*ClientConfig, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	if err := k.Load(envProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return unmarshal(k)
}

func envProvider() *envprovider.Env {
	return envprovider.Provider(".", envprovider.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(k, v string) (string, any) {
			return envKey(k), v
		},
	})
}

// envKey converts CALCULATOR_CACHE_TTL to cache.ttl
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
}

func unmarshal(k *koanf.Koanf) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	d := Default("")
	defaults := map[string]any{
		"baseurl":        d.BaseURL,
		"timeout":        d.Timeout.String(),
		"maxretries":     d.MaxRetries,
		"retrybasedelay": d.RetryBaseDelay.String(),
		"cacheenabled":   d.CacheEnabled,
		"debug":          d.Debug,
		"clientname":     d.ClientName,
		"version":        d.Version,

		"cache.type":               d.Cache.Type,
		"cache.ttl":                d.Cache.TTL.String(),
		"cache.redis.port":         d.Cache.Redis.Port,
		"cache.redis.poolsize":     d.Cache.Redis.PoolSize,
		"cache.redis.dialtimeout":  d.Cache.Redis.DialTimeout.String(),
		"cache.redis.readtimeout":  d.Cache.Redis.ReadTimeout.String(),
		"cache.redis.writetimeout": d.Cache.Redis.WriteTimeout.String(),
		"cache.redis.keyprefix":    d.Cache.Redis.KeyPrefix,

		"log.level":  d.Log.Level,
		"log.pretty": d.Log.Pretty,

		"rate.limit": d.Rate.Limit,
		"rate.burst": d.Rate.Burst,

		"telemetry.servicename":      d.Telemetry.ServiceName,
		"telemetry.trace.protocol":   d.Telemetry.Trace.Protocol,
		"telemetry.metrics.protocol": d.Telemetry.Metrics.Protocol,
		"telemetry.metrics.interval": d.Telemetry.Metrics.Interval.String(),
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
