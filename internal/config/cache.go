package config

import "time"

// CacheConfig controls the Redis read-through cache for seat layouts.
// Layouts change rarely (hall edits, price changes) so a short TTL is
// enough to keep hot showings off the catalog database.  When Enabled is
// false or no Redis client is available the SQL provider is used directly.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadCacheConfig reads CACHE_* variables, falling back to defaults.
func LoadCacheConfig() CacheConfig {
	c := CacheConfig{
		Enabled: envBool("CACHE_ENABLED", true),
		TTL:     envDur("CACHE_TTL", 30*time.Second),
		Prefix:  envStr("CACHE_PREFIX", "layout"),
	}
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	return c
}
