package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oscarprdev/nft-market-sync/logging"
	"github.com/oscarprdev/nft-market-sync/observability"
)

// listingTupleArity is the number of positional fields in a contract
// listing tuple: tokenId, creator, owner, uri, price, isListed, timestamp.
const listingTupleArity = 7

// DecodeListing validates a raw positional tuple and converts it into a
// Listing. Any arity or positional type mismatch returns ErrMalformedListing
// with the offending position in the message.
func DecodeListing(raw RawListingTuple) (Listing, error) {
	if len(raw) != listingTupleArity {
		return Listing{}, fmt.Errorf("%w: expected %d fields, got %d",
			ErrMalformedListing, listingTupleArity, len(raw))
	}

	tokenID, err := bigIntAt(raw, 0, "tokenId")
	if err != nil {
		return Listing{}, err
	}
	creator, err := addressAt(raw, 1, "creator")
	if err != nil {
		return Listing{}, err
	}
	owner, err := addressAt(raw, 2, "owner")
	if err != nil {
		return Listing{}, err
	}
	uri, ok := raw[3].(string)
	if !ok {
		return Listing{}, positionErr(3, "uri", "string", raw[3])
	}
	price, err := bigIntAt(raw, 4, "price")
	if err != nil {
		return Listing{}, err
	}
	isListed, ok := raw[5].(bool)
	if !ok {
		return Listing{}, positionErr(5, "isListed", "bool", raw[5])
	}
	timestamp, err := bigIntAt(raw, 6, "timestamp")
	if err != nil {
		return Listing{}, err
	}

	return Listing{
		TokenID:   tokenID,
		Creator:   creator,
		Owner:     owner,
		URI:       uri,
		PriceWei:  price,
		IsListed:  isListed,
		Timestamp: timestamp,
	}, nil
}

// DecodeListings decodes a batch of raw tuples. Malformed tuples are
// skipped and counted instead of failing the batch, so one bad entry
// cannot hide every healthy listing.
func DecodeListings(logger logging.Logger, raws []RawListingTuple) ([]Listing, int) {
	listings := make([]Listing, 0, len(raws))
	skipped := 0

	for i, raw := range raws {
		listing, err := DecodeListing(raw)
		if err != nil {
			skipped++
			observability.ListingsDecodedTotal.WithLabelValues("skipped").Inc()
			logger.Warn().
				Err(err).
				Int("index", i).
				Msg("skipping malformed listing tuple")
			continue
		}
		observability.ListingsDecodedTotal.WithLabelValues("decoded").Inc()
		listings = append(listings, listing)
	}

	if skipped > 0 {
		logger.Info().
			Int(logging.FieldCount, len(listings)).
			Int(logging.FieldSkipped, skipped).
			Msg("decoded listings batch with malformed entries")
	} else if e := logger.Debug(); e.Enabled() {
		e.Int(logging.FieldCount, len(listings)).Msg("decoded listings batch")
	}

	return listings, skipped
}

func bigIntAt(raw RawListingTuple, pos int, name string) (*big.Int, error) {
	v, ok := raw[pos].(*big.Int)
	if !ok || v == nil {
		return nil, positionErr(pos, name, "*big.Int", raw[pos])
	}
	return v, nil
}

func addressAt(raw RawListingTuple, pos int, name string) (common.Address, error) {
	v, ok := raw[pos].(common.Address)
	if !ok {
		return common.Address{}, positionErr(pos, name, "common.Address", raw[pos])
	}
	return v, nil
}

func positionErr(pos int, name, want string, got any) error {
	return fmt.Errorf("%w: position %d (%s): expected %s, got %T",
		ErrMalformedListing, pos, name, want, got)
}
