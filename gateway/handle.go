package gateway

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/oscarprdev/nft-market-sync/market"
)

// Handle is a generation-stamped view of the gateway. Handles are
// immutable; session changes issue a new handle rather than mutating
// outstanding ones, and stale handles report Superseded.
type Handle struct {
	gw         *Gateway
	generation uint64
	account    common.Address
	canWrite   bool
}

var _ market.ContractCaller = (*Handle)(nil)

// Generation returns the generation this handle was issued at.
func (h *Handle) Generation() uint64 {
	return h.generation
}

// Superseded reports whether the gateway has moved past this handle's
// generation. Reads still work on a superseded handle; event bindings
// must not.
func (h *Handle) Superseded() bool {
	return h.gw.Generation() != h.generation
}

// Account returns the session account. ok is false for read-only handles.
func (h *Handle) Account() (common.Address, bool) {
	return h.account, h.canWrite
}

// GetListings fetches the full listing set as raw positional tuples.
// Works on any handle, connected or not.
func (h *Handle) GetListings(ctx context.Context) ([]market.RawListingTuple, error) {
	return h.gw.callListings(ctx)
}

// Mint submits a mint transaction for a metadata URI at the given price.
// Fails ErrNotConnected on a read-only handle.
func (h *Handle) Mint(ctx context.Context, uri string, priceWei *big.Int) (common.Hash, error) {
	if !h.canWrite {
		return common.Hash{}, ErrNotConnected
	}
	return h.gw.mint(ctx, uri, priceWei)
}

// SubscribeListingChanged opens the chain subscription the invalidation
// bus consumes. The returned subscription must be unsubscribed before a
// replacement is opened against a newer handle.
func (h *Handle) SubscribeListingChanged(ctx context.Context, ch chan<- gethtypes.Log) (ethereum.Subscription, error) {
	return h.gw.subscribeListingChanged(ctx, ch)
}
