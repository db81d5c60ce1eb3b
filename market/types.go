// Package market defines the marketplace listing model and the decoding
// layer that turns raw contract return tuples into typed listings.
package market

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrMalformedListing reports a contract tuple that does not match the
// expected listing shape. Decoding a batch skips malformed tuples rather
// than failing the whole batch.
var ErrMalformedListing = errors.New("malformed listing tuple")

// RawListingTuple is one positional listing tuple as returned by the
// marketplace contract, before type validation. The contract returns
// listings as 7-element tuples in a fixed positional order.
type RawListingTuple []any

// Listing is a single marketplace listing. Prices are kept as exact
// integer wei; PriceDisplay derives the human-readable ether string.
type Listing struct {
	TokenID   *big.Int       `json:"tokenId"`
	Creator   common.Address `json:"creator"`
	Owner     common.Address `json:"owner"`
	URI       string         `json:"uri"`
	PriceWei  *big.Int       `json:"priceWei"`
	IsListed  bool           `json:"isListed"`
	Timestamp *big.Int       `json:"timestamp"`
}

// PriceDisplay returns the listing price in ether as a decimal string,
// with trailing zeros trimmed down to one fractional digit ("1.0", "0.5").
func (l Listing) PriceDisplay() string {
	return FormatEther(l.PriceWei)
}
