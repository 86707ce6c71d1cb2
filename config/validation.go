package config

import (
	"fmt"

	"github.com/calcsite/calculator-sdk-go/validation"
)

var validator = validation.New()

// Validate checks cfg for required fields and value ranges. Redis settings are
// only checked when the redis cache backend is selected.
func Validate(cfg *ClientConfig) error {
	if err := validator.Validate(cfg); err != nil {
		return err
	}

	if cfg.CacheEnabled && cfg.Cache.Type == CacheRedis {
		if err := validateRedis(&cfg.Cache.Redis); err != nil {
			return fmt.Errorf("cache config: %w", err)
		}
	}

	if cfg.Rate.Limit > 0 && cfg.Rate.Burst <= 0 {
		return fmt.Errorf("rate config: burst must be positive when limit is set")
	}

	return nil
}

func validateRedis(cfg *RedisConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("redis host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid redis port: %d (must be 1-65535)", cfg.Port)
	}
	if cfg.Database < 0 || cfg.Database > 15 {
		return fmt.Errorf("invalid redis database: %d (must be 0-15)", cfg.Database)
	}
	if cfg.PoolSize <= 0 {
		return fmt.Errorf("invalid redis pool size: %d (must be > 0)", cfg.PoolSize)
	}
	return nil
}
