// Package redis wraps go-redis with namespace-aware key building and
// reconnection helpers for the optional cross-instance cache mirror.
package redis

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oscarprdev/nft-market-sync/config"
)

// Client wraps a Redis client with a KeyBuilder for namespace-aware key
// construction. This keeps key patterns out of the rest of the codebase.
type Client struct {
	redis.UniversalClient
	keyBuilder *KeyBuilder
}

// KB returns the KeyBuilder for constructing Redis keys with configured
// namespaces. Use this instead of hardcoding key patterns.
//
// Example:
//
//	key := client.KB().CacheKey("listings")
//	// Returns: "market:cache:listings" (based on config)
func (c *Client) KB() *KeyBuilder {
	return c.keyBuilder
}

// ClientConfig contains configuration for creating a Redis client.
type ClientConfig struct {
	// URL is the Redis connection URL.
	// Supports: redis://, rediss:// (TLS), redis-sentinel://, redis-cluster://
	URL string

	// MaxRetries is the maximum number of retries before giving up.
	// Default: 3
	MaxRetries int

	// PoolSize is the maximum number of socket connections.
	// Default: 10
	PoolSize int

	// MinIdleConns is the minimum number of idle connections.
	// Default: 0
	MinIdleConns int

	// PoolTimeoutSeconds is the amount of time to wait for a connection from
	// the pool (seconds). Default: go-redis default.
	PoolTimeoutSeconds int

	// ConnMaxIdleTimeSeconds is the maximum amount of time a connection can
	// be idle (seconds). Default: 5 minutes.
	ConnMaxIdleTimeSeconds int

	// Namespace configures Redis key prefixes.
	// If not provided, defaults are used (market:cache, market:events).
	Namespace config.RedisNamespaceConfig
}

// NewClient creates a new Redis client with KeyBuilder from the configuration.
// Supports standalone, sentinel, and cluster modes based on the URL scheme.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	var client redis.UniversalClient

	switch u.Scheme {
	case "redis", "rediss":
		opts, parseErr := redis.ParseURL(cfg.URL)
		if parseErr != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", parseErr)
		}
		opts.MaxRetries = maxRetries
		opts.PoolSize = poolSize
		opts.MinIdleConns = cfg.MinIdleConns

		if cfg.PoolTimeoutSeconds > 0 {
			opts.PoolTimeout = time.Duration(cfg.PoolTimeoutSeconds) * time.Second
		}
		if cfg.ConnMaxIdleTimeSeconds > 0 {
			opts.ConnMaxIdleTime = time.Duration(cfg.ConnMaxIdleTimeSeconds) * time.Second
		}

		client = redis.NewClient(opts)

	case "redis-sentinel":
		client, err = newSentinelClient(u, maxRetries, poolSize, cfg.MinIdleConns)
		if err != nil {
			return nil, err
		}

	case "redis-cluster":
		client, err = newClusterClient(u, maxRetries, poolSize, cfg.MinIdleConns)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported redis URL scheme: %s", u.Scheme)
	}

	// Test connection
	if err = client.Ping(ctx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	namespace := cfg.Namespace
	if namespace.BasePrefix == "" {
		namespace = config.DefaultRedisNamespaceConfig()
	}

	return &Client{
		UniversalClient: client,
		keyBuilder:      NewKeyBuilder(namespace),
	}, nil
}

// newSentinelClient creates a Redis Sentinel client.
// URL format: redis-sentinel://[:password@]host1:port1,host2:port2/master_name[?db=N]
func newSentinelClient(u *url.URL, maxRetries, poolSize, minIdleConns int) (redis.UniversalClient, error) {
	masterName := strings.TrimPrefix(u.Path, "/")
	if masterName == "" {
		return nil, fmt.Errorf("sentinel URL must include master name in path")
	}

	addrs := strings.Split(u.Host, ",")
	if len(addrs) == 0 {
		return nil, fmt.Errorf("sentinel URL must include at least one sentinel address")
	}

	password := ""
	if u.User != nil {
		password, _ = u.User.Password()
	}

	db := 0
	if dbStr := u.Query().Get("db"); dbStr != "" {
		var err error
		db, err = strconv.Atoi(dbStr)
		if err != nil {
			return nil, fmt.Errorf("invalid db number: %w", err)
		}
	}

	return redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:    masterName,
		SentinelAddrs: addrs,
		Password:      password,
		DB:            db,
		MaxRetries:    maxRetries,
		PoolSize:      poolSize,
		MinIdleConns:  minIdleConns,
	}), nil
}

// newClusterClient creates a Redis Cluster client.
// URL format: redis-cluster://[:password@]host1:port1,host2:port2
func newClusterClient(u *url.URL, maxRetries, poolSize, minIdleConns int) (redis.UniversalClient, error) {
	addrs := strings.Split(u.Host, ",")
	if len(addrs) == 0 {
		return nil, fmt.Errorf("cluster URL must include at least one node address")
	}

	password := ""
	if u.User != nil {
		password, _ = u.User.Password()
	}

	return redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:        addrs,
		Password:     password,
		MaxRetries:   maxRetries,
		PoolSize:     poolSize,
		MinIdleConns: minIdleConns,
	}), nil
}
