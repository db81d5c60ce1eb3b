package config

// RedisConfig contains Redis connection configuration for the optional
// cross-instance cache mirror. When URL is empty the service runs with the
// in-memory cache only.
type RedisConfig struct {
	// URL is the Redis connection URL.
	// Supports: redis://, rediss://, redis-sentinel://, redis-cluster://
	URL string `yaml:"url,omitempty"`

	// PoolSize is the maximum number of socket connections.
	// Default: 10
	PoolSize int `yaml:"pool_size,omitempty"`

	// MinIdleConns is the minimum number of idle connections to maintain.
	// Default: 0 (connections created on demand)
	MinIdleConns int `yaml:"min_idle_conns,omitempty"`

	// PoolTimeoutSeconds is the amount of time to wait for a connection from
	// the pool. Default: 4 seconds.
	PoolTimeoutSeconds int `yaml:"pool_timeout_seconds,omitempty"`

	// ConnMaxIdleTimeSeconds is the maximum amount of time a connection can
	// be idle before being closed. Default: 5 minutes.
	ConnMaxIdleTimeSeconds int `yaml:"conn_max_idle_time_seconds,omitempty"`

	// Namespace configures Redis key prefixes for all data types.
	// If not specified, defaults are used (market:cache, market:events).
	Namespace RedisNamespaceConfig `yaml:"namespace,omitempty"`
}

// RedisNamespaceConfig contains Redis key namespace/prefix configuration.
// Components use transport/redis.KeyBuilder to construct keys from this config.
type RedisNamespaceConfig struct {
	// BasePrefix is the root prefix for all Redis keys (default: "market")
	BasePrefix string `yaml:"base_prefix,omitempty"`

	// CachePrefix is the prefix for cached query snapshots (default: "cache")
	// Full key: {BasePrefix}:{CachePrefix}:{key}
	CachePrefix string `yaml:"cache_prefix,omitempty"`

	// EventsPrefix is the prefix for pub/sub channels (default: "events")
	// Full channel: {BasePrefix}:{EventsPrefix}:invalidation
	EventsPrefix string `yaml:"events_prefix,omitempty"`
}

// DefaultRedisNamespaceConfig returns the default namespace configuration.
func DefaultRedisNamespaceConfig() RedisNamespaceConfig {
	return RedisNamespaceConfig{
		BasePrefix:   "market",
		CachePrefix:  "cache",
		EventsPrefix: "events",
	}
}
