// Package events turns on-chain ListingChanged logs into cache
// invalidation signals. The event payload is treated as opaque: logs are
// matched on topic only, so a contract upgrade that changes the payload
// cannot break invalidation.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/oscarprdev/nft-market-sync/gateway"
	"github.com/oscarprdev/nft-market-sync/logging"
	"github.com/oscarprdev/nft-market-sync/observability"
)

const (
	eventName = "ListingChanged"

	initialResubscribeDelay = 1 * time.Second
	maxResubscribeDelay     = 30 * time.Second
	resubscribeDelayFactor  = 2

	// defaultDedupSize bounds the tx-hash window used to coalesce the
	// multiple logs one transaction can emit.
	defaultDedupSize = 512
)

// Handler is invoked once per deduplicated listing change, with the
// query key it should invalidate.
type Handler func(key string)

// Subscription is one registered handler. Close unregisters it; firing
// stops immediately after Close returns.
type Subscription struct {
	bus  *Bus
	id   uint64
	once sync.Once
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
	})
}

type subEntry struct {
	key     string
	handler Handler
}

// Bus owns one chain log subscription at a time and fans deduplicated
// events out to its subscribers. Rebind moves the chain subscription to
// a new gateway handle, tearing the old one down first so at most one
// subscription is live.
type Bus struct {
	logger logging.Logger
	dedup  *lru.Cache[common.Hash, struct{}]

	mu     sync.Mutex
	subs   map[uint64]*subEntry
	nextID uint64
	closed bool

	streamCancel context.CancelFunc
	streamDone   chan struct{}
}

// New creates a Bus. It is inert until the first Rebind.
func New(logger logging.Logger) (*Bus, error) {
	dedup, err := lru.New[common.Hash, struct{}](defaultDedupSize)
	if err != nil {
		return nil, err
	}
	return &Bus{
		logger: logging.ForComponent(logger, logging.ComponentInvalidationBus),
		dedup:  dedup,
		subs:   make(map[uint64]*subEntry),
	}, nil
}

// Subscribe registers a handler fired with key on every deduplicated
// listing change.
func (b *Bus) Subscribe(key string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[id] = &subEntry{key: key, handler: handler}
	return &Subscription{bus: b, id: id}
}

// Rebind points the bus at a new gateway handle. The previous chain
// subscription is torn down completely before the new one is opened, so
// an event can never be double-delivered across a reconnect. Rebinding
// to nil just tears down.
func (b *Bus) Rebind(ctx context.Context, handle *gateway.Handle) {
	b.teardownStream()

	b.mu.Lock()
	if b.closed || handle == nil {
		b.mu.Unlock()
		return
	}
	streamCtx, cancel := context.WithCancel(ctx)
	b.streamCancel = cancel
	done := make(chan struct{})
	b.streamDone = done
	b.mu.Unlock()

	go logging.RecoverGoRoutine(b.logger, "chain_stream", func(ctx context.Context) {
		defer close(done)
		b.streamLoop(ctx, handle)
	})(streamCtx)

	b.logger.Info().
		Uint64(logging.FieldGeneration, handle.Generation()).
		Msg("invalidation bus bound to handle")
}

// Close tears down the chain subscription and drops all subscribers.
func (b *Bus) Close() {
	b.teardownStream()

	b.mu.Lock()
	b.closed = true
	b.subs = make(map[uint64]*subEntry)
	b.mu.Unlock()
}

func (b *Bus) teardownStream() {
	b.mu.Lock()
	cancel := b.streamCancel
	done := b.streamDone
	b.streamCancel = nil
	b.streamDone = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// streamLoop keeps exactly one log subscription alive for handle,
// resubscribing with exponential backoff after drops. It exits when the
// context ends or the handle is superseded.
func (b *Bus) streamLoop(ctx context.Context, handle *gateway.Handle) {
	delay := initialResubscribeDelay

	for ctx.Err() == nil {
		logs := make(chan gethtypes.Log, 16)
		sub, err := handle.SubscribeListingChanged(ctx, logs)
		if err != nil {
			observability.BusReconnectsTotal.WithLabelValues("failure").Inc()
			b.logger.Warn().
				Err(err).
				Dur(logging.FieldDuration, delay).
				Msg("log subscription failed, retrying")

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= resubscribeDelayFactor
			if delay > maxResubscribeDelay {
				delay = maxResubscribeDelay
			}
			continue
		}

		observability.BusReconnectsTotal.WithLabelValues("success").Inc()
		delay = initialResubscribeDelay

		if !b.consume(ctx, handle, sub, logs) {
			return
		}
	}
}

// consume drains one live subscription. Returns false when the loop
// should stop for good, true to resubscribe.
func (b *Bus) consume(ctx context.Context, handle *gateway.Handle, sub ethereum.Subscription, logs <-chan gethtypes.Log) bool {
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return false
		case err := <-sub.Err():
			if err != nil {
				b.logger.Warn().Err(err).Msg("log subscription dropped")
			}
			return true
		case log := <-logs:
			b.dispatch(handle, log)
		}
	}
}

// dispatch applies one raw log: topic filter, supersession check, tx
// dedup, then subscriber fan-out.
func (b *Bus) dispatch(handle *gateway.Handle, log gethtypes.Log) {
	if !gateway.TopicMatchesListingChanged(log.Topics) {
		return
	}

	if handle.Superseded() {
		// A rebind is in flight; the replacement stream owns delivery.
		observability.ChainEventsTotal.WithLabelValues(eventName, "superseded").Inc()
		b.logger.Debug().
			Str(logging.FieldTxHash, log.TxHash.Hex()).
			Msg("discarding event for superseded handle")
		return
	}

	if found, _ := b.dedup.ContainsOrAdd(log.TxHash, struct{}{}); found {
		observability.ChainEventsTotal.WithLabelValues(eventName, "coalesced").Inc()
		return
	}

	observability.ChainEventsTotal.WithLabelValues(eventName, "applied").Inc()
	b.logger.Debug().
		Str(logging.FieldTxHash, log.TxHash.Hex()).
		Uint64(logging.FieldBlockNumber, log.BlockNumber).
		Msg("listing change event")

	b.mu.Lock()
	entries := make([]*subEntry, 0, len(b.subs))
	for _, e := range b.subs {
		entries = append(entries, e)
	}
	b.mu.Unlock()

	for _, e := range entries {
		e.handler(e.key)
	}
}
