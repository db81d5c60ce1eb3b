// Package gateway owns the contract connection: a read path that works
// without any wallet, and a wallet-backed session for write operations.
// Sessions are handed out as generation-stamped handles; reconnecting
// replaces the handle wholesale so dependents can detect supersession.
package gateway

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/oscarprdev/nft-market-sync/config"
	"github.com/oscarprdev/nft-market-sync/logging"
	"github.com/oscarprdev/nft-market-sync/market"
	"github.com/oscarprdev/nft-market-sync/observability"
)

// Backend is the subset of the Ethereum RPC the gateway's contract
// binding needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractCaller
	bind.ContractTransactor
	bind.ContractFilterer
}

// LogSubscriber opens streaming log subscriptions. Satisfied by an
// ethclient connected over WebSocket.
type LogSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- gethtypes.Log) (ethereum.Subscription, error)
}

// AccountsCallback observes wallet session changes. An empty slice means
// disconnected.
type AccountsCallback func(accounts []common.Address)

// Gateway mediates all contract access. The zero generation belongs to
// the initial read-only handle; every Connect, Disconnect, and Reconnect
// bumps it.
type Gateway struct {
	logger   logging.Logger
	cfg      config.ChainConfig
	backend  Backend
	ws       LogSubscriber
	wallet   WalletProvider
	contract *bind.BoundContract
	address  common.Address
	chainID  *big.Int

	mu         sync.Mutex
	generation uint64
	connected  bool
	account    common.Address
	callbacks  []AccountsCallback
}

// Dial connects to the configured chain endpoints and builds a Gateway.
// wallet may be nil for a read-only service.
func Dial(ctx context.Context, logger logging.Logger, cfg config.ChainConfig, wallet WalletProvider) (*Gateway, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("dialing rpc endpoint %s: %w", cfg.RPCEndpoint, err)
	}

	var ws LogSubscriber
	if cfg.WSEndpoint != "" {
		wsClient, err := ethclient.DialContext(ctx, cfg.WSEndpoint)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("dialing ws endpoint %s: %w", cfg.WSEndpoint, err)
		}
		ws = wsClient
	}

	return New(logger, cfg, client, ws, wallet)
}

// New builds a Gateway over an existing backend. Used directly by tests
// and by Dial.
func New(logger logging.Logger, cfg config.ChainConfig, backend Backend, ws LogSubscriber, wallet WalletProvider) (*Gateway, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	contractABI, err := marketplaceABI()
	if err != nil {
		return nil, fmt.Errorf("parsing marketplace ABI: %w", err)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	return &Gateway{
		logger:   logging.ForComponent(logger, logging.ComponentGateway),
		cfg:      cfg,
		backend:  backend,
		ws:       ws,
		wallet:   wallet,
		contract: bind.NewBoundContract(address, contractABI, backend, backend, backend),
		address:  address,
		chainID:  big.NewInt(cfg.ChainID),
	}, nil
}

// ContractAddress returns the bound marketplace address.
func (g *Gateway) ContractAddress() common.Address {
	return g.address
}

// ReadHandle returns a handle for read operations. It never requires a
// wallet; anonymous browsing uses this path.
func (g *Gateway) ReadHandle() *Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handleLocked()
}

// Connect unlocks the wallet and opens a write-capable session. The
// returned handle supersedes all previously issued handles.
func (g *Gateway) Connect(ctx context.Context) (*Handle, error) {
	if g.wallet == nil {
		return nil, fmt.Errorf("%w: gateway has no wallet provider", ErrWalletUnavailable)
	}

	accounts, err := g.wallet.RequestAccounts(ctx)
	if err != nil {
		observability.ErrorsTotal.WithLabelValues(logging.ComponentGateway, "connect").Inc()
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: wallet returned no accounts", ErrWalletUnavailable)
	}

	g.mu.Lock()
	g.generation++
	g.connected = true
	g.account = accounts[0]
	h := g.handleLocked()
	g.mu.Unlock()

	g.logger.Info().
		Str(logging.FieldAccount, accounts[0].Hex()).
		Uint64(logging.FieldGeneration, h.generation).
		Msg("wallet session connected")

	g.notifyAccountsChanged(accounts)
	return h, nil
}

// Disconnect ends the wallet session. Read handles keep working.
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	wasConnected := g.connected
	g.generation++
	g.connected = false
	g.account = common.Address{}
	gen := g.generation
	g.mu.Unlock()

	if !wasConnected {
		return
	}

	g.logger.Info().
		Uint64(logging.FieldGeneration, gen).
		Msg("wallet session disconnected")
	g.notifyAccountsChanged(nil)
}

// Reconnect tears down the current session and establishes a fresh one.
// Handles from before the call report Superseded afterwards, whether or
// not the new connect succeeds.
func (g *Gateway) Reconnect(ctx context.Context) (*Handle, error) {
	g.Disconnect()
	return g.Connect(ctx)
}

// CurrentAccounts returns the session account, empty when disconnected.
func (g *Gateway) CurrentAccounts() []common.Address {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil
	}
	return []common.Address{g.account}
}

// OnAccountsChanged registers a callback fired on connect, disconnect,
// and reconnect. Callbacks run synchronously; keep them short.
func (g *Gateway) OnAccountsChanged(cb AccountsCallback) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callbacks = append(g.callbacks, cb)
}

// Generation returns the current handle generation.
func (g *Gateway) Generation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generation
}

func (g *Gateway) handleLocked() *Handle {
	h := &Handle{
		gw:         g,
		generation: g.generation,
	}
	if g.connected {
		h.account = g.account
		h.canWrite = true
	}
	return h
}

func (g *Gateway) notifyAccountsChanged(accounts []common.Address) {
	g.mu.Lock()
	callbacks := g.callbacks
	g.mu.Unlock()
	for _, cb := range callbacks {
		cb(accounts)
	}
}

// callListings performs the view call and flattens the ABI structs into
// positional tuples for the decoding layer.
func (g *Gateway) callListings(ctx context.Context) ([]market.RawListingTuple, error) {
	if g.cfg.CallTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(g.cfg.CallTimeoutSeconds)*time.Second)
		defer cancel()
	}

	start := time.Now()
	var out []any
	err := g.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getListings")
	status := "success"
	if err != nil {
		status = "failure"
	}
	observability.ContractCallDurationSeconds.WithLabelValues("getListings", status).
		Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, fmt.Errorf("calling getListings: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}

	tuples, err := flattenListingStructs(out[0])
	if err != nil {
		return nil, err
	}

	g.logger.Debug().
		Int(logging.FieldCount, len(tuples)).
		Msg("fetched listing tuples")
	return tuples, nil
}

// flattenListingStructs converts the ABI-decoded []struct return value
// into positional tuples, preserving contract order. Field order in the
// generated structs follows the ABI component order, which is exactly
// the positional layout the decoder validates.
func flattenListingStructs(decoded any) ([]market.RawListingTuple, error) {
	v := reflect.ValueOf(decoded)
	if v.Kind() != reflect.Slice {
		return nil, fmt.Errorf("unexpected getListings return type %T", decoded)
	}

	tuples := make([]market.RawListingTuple, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		elem := v.Index(i)
		if elem.Kind() != reflect.Struct {
			return nil, fmt.Errorf("unexpected listing element type %s", elem.Type())
		}
		tuple := make(market.RawListingTuple, 0, elem.NumField())
		for f := 0; f < elem.NumField(); f++ {
			tuple = append(tuple, elem.Field(f).Interface())
		}
		tuples = append(tuples, tuple)
	}
	return tuples, nil
}

// mint submits the mint transaction through the wallet signer.
func (g *Gateway) mint(ctx context.Context, uri string, priceWei *big.Int) (common.Hash, error) {
	g.mu.Lock()
	connected := g.connected
	g.mu.Unlock()
	if !connected || g.wallet == nil {
		return common.Hash{}, ErrNotConnected
	}

	opts, err := g.wallet.Signer(g.chainID)
	if err != nil {
		return common.Hash{}, err
	}
	opts.Context = ctx

	start := time.Now()
	tx, err := g.contract.Transact(opts, "mint", uri, priceWei)
	status := "success"
	if err != nil {
		status = "failure"
	}
	observability.ContractCallDurationSeconds.WithLabelValues("mint", status).
		Observe(time.Since(start).Seconds())

	if err != nil {
		return common.Hash{}, fmt.Errorf("submitting mint: %w", err)
	}

	g.logger.Info().
		Str(logging.FieldTxHash, tx.Hash().Hex()).
		Str(logging.FieldURI, uri).
		Msg("mint transaction submitted")
	return tx.Hash(), nil
}

// subscribeListingChanged opens a topic-filtered log subscription for the
// contract's ListingChanged event.
func (g *Gateway) subscribeListingChanged(ctx context.Context, ch chan<- gethtypes.Log) (ethereum.Subscription, error) {
	if g.ws == nil {
		return nil, fmt.Errorf("no websocket endpoint configured")
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{g.address},
		Topics:    [][]common.Hash{{ListingChangedTopic}},
	}
	return g.ws.SubscribeFilterLogs(ctx, query, ch)
}
