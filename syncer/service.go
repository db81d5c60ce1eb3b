package syncer

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oscarprdev/nft-market-sync/cache"
	"github.com/oscarprdev/nft-market-sync/events"
	"github.com/oscarprdev/nft-market-sync/gateway"
	"github.com/oscarprdev/nft-market-sync/logging"
	"github.com/oscarprdev/nft-market-sync/market"
	"github.com/oscarprdev/nft-market-sync/metadata"
	redistransport "github.com/oscarprdev/nft-market-sync/transport/redis"
)

// Snapshot is the full read-surface view of the listings entry: the data
// plus the cache bookkeeping the UI renders alongside it.
type Snapshot struct {
	Items     []ListingItem
	Status    cache.Status
	Stale     bool
	Version   uint64
	UpdatedAt time.Time
}

// RefreshListener observes listings invalidations, e.g. to push a
// refresh notice to connected clients. Listeners must not block.
type RefreshListener func(key string, reason cache.Reason, version uint64)

// Service wires the full pipeline: contract gateway, marketplace reader,
// metadata resolver, query cache (with optional Redis mirror), and the
// chain invalidation bus. Composition roots construct it once and serve
// reads through Listings/Inspect.
type Service struct {
	logger   logging.Logger
	cfg      *Config
	wallet   *gateway.KeystoreWallet
	gw       *gateway.Gateway
	resolver *metadata.Resolver
	orch     *Orchestrator
	cache    *cache.Cache[[]ListingItem]
	bus      *events.Bus

	redis  *redistransport.Client
	mirror *cache.Mirror[[]ListingItem]

	mu     sync.Mutex
	handle *gateway.Handle

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New constructs the service from config. The wallet and Redis mirror
// are optional; everything else is required.
func New(ctx context.Context, logger logging.Logger, cfg *Config) (*Service, error) {
	s := &Service{
		logger: logger,
		cfg:    cfg,
	}

	if cfg.Wallet.KeystoreFile != "" {
		wallet, err := gateway.NewKeystoreWallet(logger, cfg.Wallet)
		if err != nil {
			return nil, fmt.Errorf("failed to create keystore wallet: %w", err)
		}
		s.wallet = wallet
	}

	var walletProvider gateway.WalletProvider
	if s.wallet != nil {
		walletProvider = s.wallet
	}
	gw, err := gateway.Dial(ctx, logger, cfg.Chain, walletProvider)
	if err != nil {
		s.closePartial()
		return nil, fmt.Errorf("failed to dial chain node: %w", err)
	}
	s.gw = gw
	s.handle = gw.ReadHandle()

	resolver, err := metadata.NewResolver(logger, metadata.Config{
		GatewayHost:  cfg.IPFSGateway.Host,
		FetchTimeout: time.Duration(cfg.IPFSGateway.FetchTimeoutSeconds) * time.Second,
		Workers:      cfg.IPFSGateway.Workers,
		MemoSize:     cfg.IPFSGateway.MemoSize,
	})
	if err != nil {
		s.closePartial()
		return nil, fmt.Errorf("failed to create metadata resolver: %w", err)
	}
	s.resolver = resolver

	reader := market.NewReader(logger, s.gw.ReadHandle())
	s.orch = NewOrchestrator(logger, reader, resolver)

	s.cache = cache.New[[]ListingItem](logger, cache.Config{
		TTL:           time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		SweepInterval: time.Duration(cfg.Cache.SweepIntervalSeconds) * time.Second,
	})

	if cfg.Redis.URL != "" {
		client, err := redistransport.NewClient(ctx, redistransport.ClientConfig{
			URL:                    cfg.Redis.URL,
			PoolSize:               cfg.Redis.PoolSize,
			MinIdleConns:           cfg.Redis.MinIdleConns,
			PoolTimeoutSeconds:     cfg.Redis.PoolTimeoutSeconds,
			ConnMaxIdleTimeSeconds: cfg.Redis.ConnMaxIdleTimeSeconds,
			Namespace:              cfg.Redis.Namespace,
		})
		if err != nil {
			s.closePartial()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		s.redis = client
		s.mirror = cache.NewMirror(logger, client, s.cache,
			time.Duration(cfg.Cache.MirrorTTLSeconds)*time.Second)
	}

	bus, err := events.New(logger)
	if err != nil {
		s.closePartial()
		return nil, fmt.Errorf("failed to create invalidation bus: %w", err)
	}
	s.bus = bus
	bus.Subscribe(ListingsQueryKey, func(key string) {
		s.cache.Invalidate(key, cache.ReasonEvent)
	})

	return s, nil
}

// Start begins background work: the Redis mirror listener, the chain
// event subscription, and the wallet hot-reload watcher.
func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.mirror != nil {
		s.mirror.Start(runCtx)
	}

	if s.cfg.Chain.WSEndpoint != "" {
		s.bus.Rebind(runCtx, s.currentHandle())
	} else {
		s.logger.Warn().Msg("no websocket endpoint configured, chain events disabled, cache refreshes on TTL only")
	}

	if s.wallet != nil && s.cfg.Wallet.HotReloadEnabled {
		go logging.RecoverGoRoutine(s.logger, "wallet_watcher", s.watchWallet)(runCtx)
	}

	s.logger.Info().
		Str(logging.FieldContract, s.cfg.Chain.ContractAddress).
		Msg("marketplace sync service started")
	return nil
}

// Close tears everything down in reverse construction order.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.bus != nil {
			s.bus.Close()
		}
		if s.mirror != nil {
			s.mirror.Close()
		}
		s.closePartial()
	})
}

func (s *Service) closePartial() {
	if s.cache != nil {
		s.cache.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.resolver != nil {
		s.resolver.Close()
	}
	if s.wallet != nil {
		_ = s.wallet.Close()
	}
}

// Listings returns the cached listings snapshot, loading it on a cold
// or invalidated entry. A stale snapshot is returned immediately while
// a refresh runs in the background.
func (s *Service) Listings(ctx context.Context) ([]ListingItem, bool, error) {
	return s.cache.Get(ctx, ListingsQueryKey, s.loadListings)
}

// Inspect returns the listings snapshot with its cache bookkeeping,
// without triggering a load.
func (s *Service) Inspect() Snapshot {
	info := s.cache.Inspect(ListingsQueryKey)
	items, _, _ := s.cache.Peek(ListingsQueryKey)
	return Snapshot{
		Items:     items,
		Status:    info.Status,
		Stale:     info.Stale,
		Version:   info.Version,
		UpdatedAt: info.UpdatedAt,
	}
}

// Invalidate marks the listings snapshot stale by hand, e.g. after a
// local write the chain event for which has not arrived yet.
func (s *Service) Invalidate() {
	s.cache.Invalidate(ListingsQueryKey, cache.ReasonManual)
}

// OnRefresh registers a listener fired on every listings invalidation.
func (s *Service) OnRefresh(listener RefreshListener) {
	s.cache.OnInvalidate(func(key string, reason cache.Reason, version uint64) {
		listener(key, reason, version)
	})
}

// Connect establishes a wallet session and rebinds the event stream to
// the new write-capable handle. Returns the session accounts.
func (s *Service) Connect(ctx context.Context) ([]common.Address, error) {
	handle, err := s.gw.Connect(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()

	if s.cfg.Chain.WSEndpoint != "" {
		s.bus.Rebind(ctx, handle)
	}
	return s.gw.CurrentAccounts(), nil
}

// Disconnect closes the wallet session. Reads continue on a read-only
// handle.
func (s *Service) Disconnect(ctx context.Context) {
	s.gw.Disconnect()

	handle := s.gw.ReadHandle()
	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()

	if s.cfg.Chain.WSEndpoint != "" {
		s.bus.Rebind(ctx, handle)
	}
}

// Accounts returns the current session accounts, empty when no wallet
// session is active.
func (s *Service) Accounts() []common.Address {
	return s.gw.CurrentAccounts()
}

// Mint submits a mint transaction for uri at the given ether-denominated
// price (e.g. "0.5") and invalidates the listings snapshot optimistically.
func (s *Service) Mint(ctx context.Context, uri, price string) (common.Hash, error) {
	priceWei, err := market.ParseEther(price)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid price %q: %w", price, err)
	}

	hash, err := s.mintWei(ctx, uri, priceWei)
	if err != nil {
		return common.Hash{}, err
	}

	// The chain event will invalidate again; manual invalidation just
	// closes the gap until it lands.
	s.cache.Invalidate(ListingsQueryKey, cache.ReasonManual)
	return hash, nil
}

func (s *Service) mintWei(ctx context.Context, uri string, priceWei *big.Int) (common.Hash, error) {
	handle := s.currentHandle()
	return handle.Mint(ctx, uri, priceWei)
}

// Ready reports whether the chain node answers a listings call. Used as
// the observability server's readiness probe.
func (s *Service) Ready(ctx context.Context) error {
	_, err := s.currentHandle().GetListings(ctx)
	return err
}

func (s *Service) currentHandle() *gateway.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// loadListings is the cache load function. Fresh snapshots are written
// through to the mirror; when the chain is unreachable and no local data
// exists the last mirrored snapshot is served instead.
func (s *Service) loadListings(ctx context.Context) ([]ListingItem, error) {
	items, err := s.orch.LoadListings(ctx)
	if err != nil {
		if s.mirror != nil {
			if mirrored, ok, ferr := s.mirror.Fetch(ctx, ListingsQueryKey); ferr == nil && ok {
				s.logger.Warn().Err(err).
					Int(logging.FieldCount, len(mirrored)).
					Msg("chain load failed, serving mirrored snapshot")
				return mirrored, nil
			}
		}
		return nil, err
	}

	if s.mirror != nil {
		if serr := s.mirror.Store(ctx, ListingsQueryKey, items); serr != nil {
			s.logger.Warn().Err(serr).Msg("failed to mirror listings snapshot")
		}
	}
	return items, nil
}

// watchWallet reacts to keystore file changes: the session is
// re-established against the new key material and the event stream is
// rebound to the replacement handle.
func (s *Service) watchWallet(ctx context.Context) {
	changes := s.wallet.WatchForChanges(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
		}

		if len(s.gw.CurrentAccounts()) == 0 {
			// No active session, nothing to re-establish.
			continue
		}

		handle, err := s.gw.Reconnect(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("wallet changed but session re-establishment failed")
			continue
		}

		s.mu.Lock()
		s.handle = handle
		s.mu.Unlock()

		if s.cfg.Chain.WSEndpoint != "" {
			s.bus.Rebind(ctx, handle)
		}
		s.cache.Invalidate(ListingsQueryKey, cache.ReasonManual)
		s.logger.Info().
			Uint64(logging.FieldGeneration, handle.Generation()).
			Msg("session re-established after wallet change")
	}
}
