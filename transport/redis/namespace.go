package redis

import (
	"fmt"

	"github.com/oscarprdev/nft-market-sync/config"
)

// KeyBuilder provides methods to construct Redis keys with configured
// namespaces. Centralizing key construction keeps the cache mirror and the
// invalidation fan-out on the same patterns.
type KeyBuilder struct {
	cfg config.RedisNamespaceConfig
}

// NewKeyBuilder creates a new KeyBuilder with the given namespace configuration.
func NewKeyBuilder(cfg config.RedisNamespaceConfig) *KeyBuilder {
	if cfg.BasePrefix == "" {
		cfg = config.DefaultRedisNamespaceConfig()
	}
	return &KeyBuilder{cfg: cfg}
}

// CacheKey returns the mirror key for a query cache entry.
// Pattern: {base}:{cache}:{queryKey}
// Example: market:cache:listings
func (kb *KeyBuilder) CacheKey(queryKey string) string {
	return fmt.Sprintf("%s:%s:%s", kb.cfg.BasePrefix, kb.cfg.CachePrefix, queryKey)
}

// CacheVersionKey returns the key holding the mirror's version counter for a
// query cache entry. Pattern: {base}:{cache}:{queryKey}:version
func (kb *KeyBuilder) CacheVersionKey(queryKey string) string {
	return fmt.Sprintf("%s:%s:%s:version", kb.cfg.BasePrefix, kb.cfg.CachePrefix, queryKey)
}

// InvalidationChannel returns the pub/sub channel used to fan out
// invalidations across instances. Pattern: {base}:{events}:invalidation
func (kb *KeyBuilder) InvalidationChannel() string {
	return fmt.Sprintf("%s:%s:invalidation", kb.cfg.BasePrefix, kb.cfg.EventsPrefix)
}
