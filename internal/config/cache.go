package config

import "time"

// CacheConfig defines settings for the Redis response cache in front of
// the table listing endpoints.  Caching is disabled when Enabled is false
// or no Redis client could be created.
type CacheConfig struct {
	Enabled      bool
	TTL          time.Duration
	Prefix       string // namespace for cache and generation keys
	MaxBodyBytes int    // larger responses are served but not cached
}

// LoadCacheConfig reads CACHE_* variables.
func LoadCacheConfig() CacheConfig {
	cfg := CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		TTL:          envDur("CACHE_TTL", 30*time.Second),
		Prefix:       envStr("CACHE_PREFIX", "cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return cfg
}
