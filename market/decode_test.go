package market

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func validTuple() RawListingTuple {
	return RawListingTuple{
		big.NewInt(1),
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		"ipfs://bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
		big.NewInt(500000000000000000),
		true,
		big.NewInt(1700000000),
	}
}

func TestDecodeListing(t *testing.T) {
	listing, err := DecodeListing(validTuple())
	require.NoError(t, err)

	require.Equal(t, big.NewInt(1), listing.TokenID)
	require.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), listing.Creator)
	require.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222"), listing.Owner)
	require.Equal(t, "ipfs://bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi", listing.URI)
	require.Equal(t, big.NewInt(500000000000000000), listing.PriceWei)
	require.True(t, listing.IsListed)
	require.Equal(t, big.NewInt(1700000000), listing.Timestamp)
}

func TestDecodeListing_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(RawListingTuple) RawListingTuple
	}{
		{
			name: "too few fields",
			mutate: func(raw RawListingTuple) RawListingTuple {
				return raw[:6]
			},
		},
		{
			name: "too many fields",
			mutate: func(raw RawListingTuple) RawListingTuple {
				return append(raw, "extra")
			},
		},
		{
			name: "tokenId wrong type",
			mutate: func(raw RawListingTuple) RawListingTuple {
				raw[0] = "1"
				return raw
			},
		},
		{
			name: "tokenId nil",
			mutate: func(raw RawListingTuple) RawListingTuple {
				raw[0] = (*big.Int)(nil)
				return raw
			},
		},
		{
			name: "creator wrong type",
			mutate: func(raw RawListingTuple) RawListingTuple {
				raw[1] = "0x1111111111111111111111111111111111111111"
				return raw
			},
		},
		{
			name: "uri wrong type",
			mutate: func(raw RawListingTuple) RawListingTuple {
				raw[3] = 42
				return raw
			},
		},
		{
			name: "price wrong type",
			mutate: func(raw RawListingTuple) RawListingTuple {
				raw[4] = uint64(100)
				return raw
			},
		},
		{
			name: "isListed wrong type",
			mutate: func(raw RawListingTuple) RawListingTuple {
				raw[5] = "true"
				return raw
			},
		},
		{
			name: "timestamp wrong type",
			mutate: func(raw RawListingTuple) RawListingTuple {
				raw[6] = int64(1700000000)
				return raw
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeListing(tt.mutate(validTuple()))
			require.ErrorIs(t, err, ErrMalformedListing)
		})
	}
}

func TestDecodeListings_SkipsMalformed(t *testing.T) {
	bad := validTuple()
	bad[4] = "not a price"

	raws := []RawListingTuple{validTuple(), bad, validTuple()}

	listings, skipped := DecodeListings(zerolog.Nop(), raws)
	require.Len(t, listings, 2)
	require.Equal(t, 1, skipped)
}

func TestDecodeListings_AllMalformed(t *testing.T) {
	bad := validTuple()
	bad = bad[:3]

	listings, skipped := DecodeListings(zerolog.Nop(), []RawListingTuple{bad, bad})
	require.Empty(t, listings)
	require.Equal(t, 2, skipped)
}

type stubCaller struct {
	raws []RawListingTuple
	err  error
}

func (s *stubCaller) GetListings(context.Context) ([]RawListingTuple, error) {
	return s.raws, s.err
}

func TestReader_FetchListings(t *testing.T) {
	bad := validTuple()
	bad[0] = nil

	reader := NewReader(zerolog.Nop(), &stubCaller{
		raws: []RawListingTuple{validTuple(), bad},
	})

	listings, skipped, err := reader.FetchListings(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Equal(t, 1, skipped)
}

func TestReader_FetchListings_CallError(t *testing.T) {
	callErr := errors.New("rpc unavailable")
	reader := NewReader(zerolog.Nop(), &stubCaller{err: callErr})

	_, _, err := reader.FetchListings(context.Background())
	require.ErrorIs(t, err, callErr)
}
