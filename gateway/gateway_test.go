package gateway

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/oscarprdev/nft-market-sync/config"
)

const testContractAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

// listingOut mirrors the ABI tuple layout for packing fake call results.
type listingOut struct {
	TokenId   *big.Int
	Creator   common.Address
	Owner     common.Address
	Uri       string
	Price     *big.Int
	IsListed  bool
	Timestamp *big.Int
}

// fakeBackend is a local mock of the chain RPC surface the bound
// contract uses. Call results are pre-packed ABI bytes.
type fakeBackend struct {
	mu         sync.Mutex
	callResult []byte
	callErr    error
	sentTxs    []*gethtypes.Transaction
}

func (b *fakeBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (b *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.callErr != nil {
		return nil, b.callErr
	}
	return b.callResult, nil
}

func (b *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	return &gethtypes.Header{Number: big.NewInt(100)}, nil
}

func (b *fakeBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x01}, nil
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sentTxs = append(b.sentTxs, tx)
	return nil
}

func (b *fakeBackend) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]gethtypes.Log, error) {
	return nil, nil
}

func (b *fakeBackend) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- gethtypes.Log) (ethereum.Subscription, error) {
	return nil, errors.New("not implemented")
}

// packListings ABI-encodes a getListings return value.
func packListings(t *testing.T, listings []listingOut) []byte {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(MarketplaceABI))
	require.NoError(t, err)
	packed, err := parsed.Methods["getListings"].Outputs.Pack(listings)
	require.NoError(t, err)
	return packed
}

// fakeWallet is a local mock WalletProvider.
type fakeWallet struct {
	mu       sync.Mutex
	key      *bind.TransactOpts
	account  common.Address
	unlocked bool
	err      error
}

func newFakeWallet(t *testing.T) *fakeWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(1337))
	require.NoError(t, err)
	return &fakeWallet{key: opts, account: opts.From}
}

func (w *fakeWallet) RequestAccounts(context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	w.unlocked = true
	return []common.Address{w.account}, nil
}

func (w *fakeWallet) Accounts() []common.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.unlocked {
		return nil
	}
	return []common.Address{w.account}
}

func (w *fakeWallet) Signer(chainID *big.Int) (*bind.TransactOpts, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.unlocked {
		return nil, ErrNotConnected
	}
	opts := *w.key
	return &opts, nil
}

func (w *fakeWallet) WatchForChanges(context.Context) <-chan struct{} {
	return make(chan struct{})
}

func (w *fakeWallet) Close() error { return nil }

func newTestGateway(t *testing.T, backend *fakeBackend, wallet WalletProvider) *Gateway {
	t.Helper()
	g, err := New(zerolog.Nop(), config.ChainConfig{
		ContractAddress: testContractAddr,
		ChainID:         1337,
	}, backend, nil, wallet)
	require.NoError(t, err)
	return g
}

func TestNew_InvalidContractAddress(t *testing.T) {
	_, err := New(zerolog.Nop(), config.ChainConfig{ContractAddress: "not-an-address"}, &fakeBackend{}, nil, nil)
	require.Error(t, err)
}

func TestReadHandle_GetListings(t *testing.T) {
	backend := &fakeBackend{}
	backend.callResult = packListings(t, []listingOut{
		{
			TokenId:   big.NewInt(1),
			Creator:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Owner:     common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Uri:       "ipfs://bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
			Price:     big.NewInt(500000000000000000),
			IsListed:  true,
			Timestamp: big.NewInt(1700000000),
		},
		{
			TokenId:   big.NewInt(2),
			Creator:   common.HexToAddress("0x3333333333333333333333333333333333333333"),
			Owner:     common.HexToAddress("0x3333333333333333333333333333333333333333"),
			Uri:       "https://example.com/2.json",
			Price:     big.NewInt(1000000000000000000),
			IsListed:  false,
			Timestamp: big.NewInt(1700000100),
		},
	})

	g := newTestGateway(t, backend, nil)
	h := g.ReadHandle()

	tuples, err := h.GetListings(context.Background())
	require.NoError(t, err)
	require.Len(t, tuples, 2)

	// Tuples preserve contract order and positional layout.
	require.Len(t, tuples[0], 7)
	require.Equal(t, big.NewInt(1), tuples[0][0])
	require.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), tuples[0][1])
	require.Equal(t, "ipfs://bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi", tuples[0][3])
	require.Equal(t, big.NewInt(500000000000000000), tuples[0][4])
	require.Equal(t, true, tuples[0][5])
	require.Equal(t, big.NewInt(2), tuples[1][0])
	require.Equal(t, false, tuples[1][5])
}

func TestReadHandle_GetListingsEmpty(t *testing.T) {
	backend := &fakeBackend{}
	backend.callResult = packListings(t, []listingOut{})

	g := newTestGateway(t, backend, nil)

	tuples, err := g.ReadHandle().GetListings(context.Background())
	require.NoError(t, err)
	require.Empty(t, tuples)
}

func TestReadHandle_CallError(t *testing.T) {
	backend := &fakeBackend{callErr: errors.New("connection refused")}
	g := newTestGateway(t, backend, nil)

	_, err := g.ReadHandle().GetListings(context.Background())
	require.Error(t, err)
}

func TestReadHandle_WorksWithoutWallet(t *testing.T) {
	backend := &fakeBackend{}
	backend.callResult = packListings(t, []listingOut{})

	g := newTestGateway(t, backend, nil)
	h := g.ReadHandle()

	_, canWrite := h.Account()
	require.False(t, canWrite)

	_, err := h.GetListings(context.Background())
	require.NoError(t, err)
}

func TestConnect_NoWalletProvider(t *testing.T) {
	g := newTestGateway(t, &fakeBackend{}, nil)

	_, err := g.Connect(context.Background())
	require.ErrorIs(t, err, ErrWalletUnavailable)
}

func TestConnect_WalletErrorsPropagate(t *testing.T) {
	wallet := newFakeWallet(t)
	wallet.err = ErrUserRejected
	g := newTestGateway(t, &fakeBackend{}, wallet)

	_, err := g.Connect(context.Background())
	require.ErrorIs(t, err, ErrUserRejected)
	require.Empty(t, g.CurrentAccounts())
}

func TestConnect_IssuesWriteHandle(t *testing.T) {
	wallet := newFakeWallet(t)
	g := newTestGateway(t, &fakeBackend{}, wallet)

	h, err := g.Connect(context.Background())
	require.NoError(t, err)

	account, canWrite := h.Account()
	require.True(t, canWrite)
	require.Equal(t, wallet.account, account)
	require.Equal(t, []common.Address{wallet.account}, g.CurrentAccounts())
}

func TestReconnect_SupersedesOldHandle(t *testing.T) {
	wallet := newFakeWallet(t)
	g := newTestGateway(t, &fakeBackend{}, wallet)

	h1, err := g.Connect(context.Background())
	require.NoError(t, err)
	require.False(t, h1.Superseded())

	h2, err := g.Reconnect(context.Background())
	require.NoError(t, err)

	require.True(t, h1.Superseded())
	require.False(t, h2.Superseded())
	require.Greater(t, h2.Generation(), h1.Generation())
}

func TestDisconnect(t *testing.T) {
	wallet := newFakeWallet(t)
	g := newTestGateway(t, &fakeBackend{}, wallet)

	h, err := g.Connect(context.Background())
	require.NoError(t, err)

	g.Disconnect()
	require.True(t, h.Superseded())
	require.Empty(t, g.CurrentAccounts())

	// Reads survive disconnection.
	backend := &fakeBackend{}
	backend.callResult = packListings(t, []listingOut{})
	g2 := newTestGateway(t, backend, wallet)
	_, err = g2.ReadHandle().GetListings(context.Background())
	require.NoError(t, err)
}

func TestOnAccountsChanged(t *testing.T) {
	wallet := newFakeWallet(t)
	g := newTestGateway(t, &fakeBackend{}, wallet)

	var mu sync.Mutex
	var notifications [][]common.Address
	g.OnAccountsChanged(func(accounts []common.Address) {
		mu.Lock()
		defer mu.Unlock()
		notifications = append(notifications, accounts)
	})

	_, err := g.Connect(context.Background())
	require.NoError(t, err)
	g.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notifications, 2)
	require.Equal(t, []common.Address{wallet.account}, notifications[0])
	require.Empty(t, notifications[1])
}

func TestMint_NotConnected(t *testing.T) {
	g := newTestGateway(t, &fakeBackend{}, newFakeWallet(t))

	_, err := g.ReadHandle().Mint(context.Background(), "ipfs://x", big.NewInt(1))
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestMint_SubmitsTransaction(t *testing.T) {
	backend := &fakeBackend{}
	wallet := newFakeWallet(t)
	g := newTestGateway(t, backend, wallet)

	h, err := g.Connect(context.Background())
	require.NoError(t, err)

	txHash, err := h.Mint(context.Background(), "ipfs://bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi", big.NewInt(500000000000000000))
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, txHash)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.sentTxs, 1)
	require.Equal(t, common.HexToAddress(testContractAddr), *backend.sentTxs[0].To())
}

func TestMint_StaleHandleStillConnected(t *testing.T) {
	// A superseded handle keeps its write capability flag, but session
	// state lives on the gateway: after Disconnect the mint fails.
	wallet := newFakeWallet(t)
	g := newTestGateway(t, &fakeBackend{}, wallet)

	h, err := g.Connect(context.Background())
	require.NoError(t, err)
	g.Disconnect()

	_, err = h.Mint(context.Background(), "ipfs://x", big.NewInt(1))
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestListingChangedTopic(t *testing.T) {
	require.Equal(t, crypto.Keccak256Hash([]byte("ListingChanged(uint256)")), ListingChangedTopic)
	require.True(t, TopicMatchesListingChanged([]common.Hash{ListingChangedTopic, {}}))
	require.False(t, TopicMatchesListingChanged(nil))
	require.False(t, TopicMatchesListingChanged([]common.Hash{crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))}))
}
