package gateway

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// MarketplaceABI is the marketplace contract surface this service uses:
// the full-listing view call, the mint entrypoint, and the change event.
const MarketplaceABI = `[
  {
    "inputs": [],
    "name": "getListings",
    "outputs": [
      {
        "components": [
          {"internalType": "uint256", "name": "tokenId", "type": "uint256"},
          {"internalType": "address", "name": "creator", "type": "address"},
          {"internalType": "address", "name": "owner", "type": "address"},
          {"internalType": "string", "name": "uri", "type": "string"},
          {"internalType": "uint256", "name": "price", "type": "uint256"},
          {"internalType": "bool", "name": "isListed", "type": "bool"},
          {"internalType": "uint256", "name": "timestamp", "type": "uint256"}
        ],
        "internalType": "struct Marketplace.Listing[]",
        "name": "",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "string", "name": "uri", "type": "string"},
      {"internalType": "uint256", "name": "price", "type": "uint256"}
    ],
    "name": "mint",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "tokenId", "type": "uint256"}
    ],
    "name": "ListingChanged",
    "type": "event"
  }
]`

// ListingChangedTopic is topic0 of the ListingChanged event. The bus
// matches logs on this topic only and never decodes the payload.
var ListingChangedTopic = gethcrypto.Keccak256Hash([]byte("ListingChanged(uint256)"))

var (
	parsedABIOnce sync.Once
	parsedABI     abi.ABI
	parsedABIErr  error
)

// marketplaceABI parses MarketplaceABI once. The constant is valid JSON,
// so the error only surfaces if the constant itself is edited badly.
func marketplaceABI() (abi.ABI, error) {
	parsedABIOnce.Do(func() {
		parsedABI, parsedABIErr = abi.JSON(strings.NewReader(MarketplaceABI))
	})
	return parsedABI, parsedABIErr
}

// TopicMatchesListingChanged reports whether a log's topic0 is the
// ListingChanged signature.
func TopicMatchesListingChanged(topics []common.Hash) bool {
	return len(topics) > 0 && topics[0] == ListingChangedTopic
}
