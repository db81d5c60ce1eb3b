package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oscarprdev/nft-market-sync/logging"
	"github.com/oscarprdev/nft-market-sync/observability"
	redistransport "github.com/oscarprdev/nft-market-sync/transport/redis"
)

// invalidationMessage is the wire format fanned out over the mirror's
// pub/sub channel. Origin identifies the publishing instance so it can
// ignore its own messages.
type invalidationMessage struct {
	Origin  string `json:"origin"`
	Key     string `json:"key"`
	Reason  string `json:"reason"`
	Version uint64 `json:"version"`
}

// Mirror replicates cache state through Redis so multiple instances stay
// coherent: values are written through as JSON with a TTL, and local
// invalidations are fanned out over pub/sub. The in-memory cache stays
// authoritative; every mirror failure degrades to single-instance
// behavior instead of failing the read path.
type Mirror[V any] struct {
	logger logging.Logger
	client *redistransport.Client
	cache  *Cache[V]
	ttl    time.Duration
	origin string

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewMirror attaches a Redis mirror to cache. Call Start to begin
// receiving remote invalidations.
func NewMirror[V any](logger logging.Logger, client *redistransport.Client, cache *Cache[V], ttl time.Duration) *Mirror[V] {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	m := &Mirror[V]{
		logger: logging.ForComponent(logger, logging.ComponentCacheMirror),
		client: client,
		cache:  cache,
		ttl:    ttl,
		origin: newOriginID(),
		done:   make(chan struct{}),
	}
	cache.OnInvalidate(m.publish)
	return m
}

func newOriginID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("origin-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Start subscribes to the invalidation channel and applies remote
// invalidations to the local cache until Close is called. Subscription
// drops are retried with backoff.
func (m *Mirror[V]) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	go logging.RecoverGoRoutine(m.logger, "mirror_listener", func(ctx context.Context) {
		defer close(m.done)
		for ctx.Err() == nil {
			err := redistransport.ReconnectionLoop(ctx, m.logger, logging.ComponentCacheMirror, m.listen)
			if err != nil && ctx.Err() == nil {
				m.logger.Warn().Err(err).Msg("mirror subscription dropped, resubscribing")
			}
		}
	})(ctx)

	m.logger.Info().
		Str(logging.FieldSource, m.origin).
		Msg("cache mirror started")
}

// Close stops the subscription. Pending publishes finish on their own.
func (m *Mirror[V]) Close() {
	m.closeOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
			<-m.done
		}
	})
}

// Store writes a value through to Redis. Out-of-memory responses are
// tolerated; any failure leaves the in-memory cache authoritative.
func (m *Mirror[V]) Store(ctx context.Context, key string, v V) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling mirror value for %s: %w", key, err)
	}

	redisKey := m.client.KB().CacheKey(key)
	if err := m.client.Set(ctx, redisKey, payload, m.ttl).Err(); err != nil {
		observability.RedisOperationsTotal.WithLabelValues("set", "failure").Inc()
		if redistransport.IsOOMError(err) {
			m.logger.Warn().
				Str(logging.FieldCacheKey, redisKey).
				Msg("redis out of memory, skipping mirror write")
			return nil
		}
		return fmt.Errorf("mirroring %s: %w", key, err)
	}

	observability.RedisOperationsTotal.WithLabelValues("set", "success").Inc()
	return nil
}

// Fetch reads a mirrored value. ok is false when the key is absent.
func (m *Mirror[V]) Fetch(ctx context.Context, key string) (V, bool, error) {
	var v V

	payload, err := m.client.Get(ctx, m.client.KB().CacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			observability.RedisOperationsTotal.WithLabelValues("get", "miss").Inc()
			return v, false, nil
		}
		observability.RedisOperationsTotal.WithLabelValues("get", "failure").Inc()
		return v, false, fmt.Errorf("fetching mirror of %s: %w", key, err)
	}

	if err := json.Unmarshal(payload, &v); err != nil {
		return v, false, fmt.Errorf("decoding mirror of %s: %w", key, err)
	}

	observability.RedisOperationsTotal.WithLabelValues("get", "success").Inc()
	return v, true, nil
}

// publish fans a local invalidation out over pub/sub. Runs detached so
// cache invalidation never blocks on Redis.
func (m *Mirror[V]) publish(key string, reason Reason, version uint64) {
	msg := invalidationMessage{
		Origin:  m.origin,
		Key:     key,
		Reason:  string(reason),
		Version: version,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		channel := m.client.KB().InvalidationChannel()
		if err := m.client.Publish(ctx, channel, payload).Err(); err != nil {
			observability.RedisOperationsTotal.WithLabelValues("publish", "failure").Inc()
			m.logger.Warn().
				Err(err).
				Str(logging.FieldQueryKey, key).
				Msg("failed to publish invalidation")
			return
		}
		observability.RedisOperationsTotal.WithLabelValues("publish", "success").Inc()
	}()
}

// listen consumes the invalidation channel until the context ends.
func (m *Mirror[V]) listen(ctx context.Context) error {
	pubsub := m.client.Subscribe(ctx, m.client.KB().InvalidationChannel())
	defer pubsub.Close()

	// Confirm the subscription before reporting the loop healthy.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to invalidation channel: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("invalidation channel closed")
			}
			m.apply(msg.Payload)
		}
	}
}

func (m *Mirror[V]) apply(payload string) {
	var msg invalidationMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		m.logger.Warn().Err(err).Msg("discarding malformed invalidation message")
		return
	}
	if msg.Origin == m.origin || msg.Key == "" {
		return
	}

	// Skip the hooks: echoing a remote invalidation back into pub/sub
	// would ping-pong between instances.
	m.cache.invalidate(msg.Key, Reason(msg.Reason), false)
	observability.RedisOperationsTotal.WithLabelValues("invalidation_recv", "success").Inc()
	m.logger.Debug().
		Str(logging.FieldQueryKey, msg.Key).
		Str(logging.FieldSource, msg.Origin).
		Msg("applied remote invalidation")
}
