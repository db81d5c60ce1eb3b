//go:build test

package testutil

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oscarprdev/nft-market-sync/market"
)

// ListingBuilder provides a fluent API for building deterministic test
// listings. The same seed always produces the same listing, keeping
// tests reproducible.
//
// Usage:
//
//	listing := testutil.NewListingBuilder(42).
//	    WithPriceWei(big.NewInt(500000000000000000)).
//	    Unlisted().
//	    Build()
type ListingBuilder struct {
	seed int

	tokenID   *big.Int
	creator   *common.Address
	owner     *common.Address
	uri       *string
	priceWei  *big.Int
	isListed  *bool
	timestamp *big.Int
}

// NewListingBuilder creates a builder whose defaults derive from seed.
func NewListingBuilder(seed int) *ListingBuilder {
	return &ListingBuilder{seed: seed}
}

// WithTokenID overrides the token ID.
func (b *ListingBuilder) WithTokenID(id int64) *ListingBuilder {
	b.tokenID = big.NewInt(id)
	return b
}

// WithCreator overrides the creator address.
func (b *ListingBuilder) WithCreator(addr common.Address) *ListingBuilder {
	b.creator = &addr
	return b
}

// WithOwner overrides the owner address.
func (b *ListingBuilder) WithOwner(addr common.Address) *ListingBuilder {
	b.owner = &addr
	return b
}

// WithURI overrides the metadata URI.
func (b *ListingBuilder) WithURI(uri string) *ListingBuilder {
	b.uri = &uri
	return b
}

// WithPriceWei overrides the listing price in wei.
func (b *ListingBuilder) WithPriceWei(wei *big.Int) *ListingBuilder {
	b.priceWei = wei
	return b
}

// Unlisted marks the listing as not currently for sale.
func (b *ListingBuilder) Unlisted() *ListingBuilder {
	f := false
	b.isListed = &f
	return b
}

// WithTimestamp overrides the listing timestamp (unix seconds).
func (b *ListingBuilder) WithTimestamp(ts int64) *ListingBuilder {
	b.timestamp = big.NewInt(ts)
	return b
}

// Build creates a market.Listing with configured or seed-derived values.
func (b *ListingBuilder) Build() market.Listing {
	listing := market.Listing{
		TokenID:   big.NewInt(int64(b.seed)),
		Creator:   seedAddress(b.seed, 0xC0),
		Owner:     seedAddress(b.seed, 0x0E),
		URI:       fmt.Sprintf("https://metadata.test/%d.json", b.seed),
		PriceWei:  new(big.Int).Mul(big.NewInt(int64(b.seed%10+1)), big.NewInt(100000000000000000)),
		IsListed:  true,
		Timestamp: big.NewInt(1700000000 + int64(b.seed)),
	}

	if b.tokenID != nil {
		listing.TokenID = b.tokenID
	}
	if b.creator != nil {
		listing.Creator = *b.creator
	}
	if b.owner != nil {
		listing.Owner = *b.owner
	}
	if b.uri != nil {
		listing.URI = *b.uri
	}
	if b.priceWei != nil {
		listing.PriceWei = b.priceWei
	}
	if b.isListed != nil {
		listing.IsListed = *b.isListed
	}
	if b.timestamp != nil {
		listing.Timestamp = b.timestamp
	}
	return listing
}

// BuildTuple creates the raw positional tuple form of the listing, as the
// contract returns it.
func (b *ListingBuilder) BuildTuple() market.RawListingTuple {
	l := b.Build()
	return market.RawListingTuple{
		l.TokenID, l.Creator, l.Owner, l.URI, l.PriceWei, l.IsListed, l.Timestamp,
	}
}

// seedAddress derives a deterministic address from a seed and a marker
// byte so creator and owner differ for the same seed.
func seedAddress(seed int, marker byte) common.Address {
	var addr common.Address
	addr[0] = marker
	for i := 1; i < len(addr); i++ {
		addr[i] = byte((seed*31 + i*7) % 251)
	}
	return addr
}
