package market

import (
	"context"
	"fmt"

	"github.com/oscarprdev/nft-market-sync/logging"
)

// ContractCaller fetches raw listing tuples from the marketplace contract.
// Implemented by the contract gateway's read handle.
type ContractCaller interface {
	GetListings(ctx context.Context) ([]RawListingTuple, error)
}

// Reader fetches and decodes the full listing set from the marketplace
// contract. Read operations never require a connected wallet.
type Reader struct {
	logger logging.Logger
	caller ContractCaller
}

var _ ListingSource = (*Reader)(nil)

// ListingSource yields decoded marketplace listings. The second return
// value counts tuples skipped as malformed.
type ListingSource interface {
	FetchListings(ctx context.Context) ([]Listing, int, error)
}

// NewReader creates a Reader backed by the given contract caller.
func NewReader(logger logging.Logger, caller ContractCaller) *Reader {
	return &Reader{
		logger: logging.ForComponent(logger, logging.ComponentReader),
		caller: caller,
	}
}

// FetchListings calls the contract and decodes the returned tuples.
// Malformed tuples are skipped and counted; a transport or contract
// error fails the whole fetch.
func (r *Reader) FetchListings(ctx context.Context) ([]Listing, int, error) {
	raws, err := r.caller.GetListings(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching listings: %w", err)
	}

	listings, skipped := DecodeListings(r.logger, raws)
	return listings, skipped, nil
}
