// Package config contains configuration structs shared across the marketplace
// synchronization service.
package config

// ChainConfig contains EVM node connection and contract configuration.
// Shared between the gateway, the invalidation bus, and the CLI commands.
type ChainConfig struct {
	// RPCEndpoint is the HTTP(S) JSON-RPC endpoint used for contract calls
	// and transaction submission.
	// Example: "http://127.0.0.1:8545"
	RPCEndpoint string `yaml:"rpc_endpoint"`

	// WSEndpoint is the WebSocket JSON-RPC endpoint used for event log
	// subscriptions. Optional: when empty, event-driven invalidation is
	// disabled and the cache relies on its TTL sweep for freshness.
	// Example: "ws://127.0.0.1:8545"
	WSEndpoint string `yaml:"ws_endpoint,omitempty"`

	// ContractAddress is the hex address of the marketplace contract.
	ContractAddress string `yaml:"contract_address"`

	// ChainID is the EVM chain ID used for transaction signing.
	// Required for mint (write) operations.
	ChainID int64 `yaml:"chain_id,omitempty"`

	// CallTimeoutSeconds is the timeout for contract calls in seconds.
	// Default: 10
	CallTimeoutSeconds int `yaml:"call_timeout_seconds,omitempty"`
}

// WalletConfig contains the key source used for signer-bound (write) handles.
// Read-only operation requires none of these fields.
type WalletConfig struct {
	// KeystoreFile is the path to a go-ethereum keystore JSON file.
	KeystoreFile string `yaml:"keystore_file,omitempty"`

	// PassphraseFile is the path to a file containing the keystore passphrase.
	PassphraseFile string `yaml:"passphrase_file,omitempty"`

	// HotReloadEnabled re-reads the keystore file when it changes on disk.
	// Default: false
	HotReloadEnabled bool `yaml:"hot_reload_enabled,omitempty"`
}

// IPFSGatewayConfig contains the content-addressed storage gateway configuration.
type IPFSGatewayConfig struct {
	// Host is the gateway host that resolves content-addressed URIs.
	// A URI of the form scheme://<cid> is rewritten to
	// https://<host>/<scheme>/<cid> before fetching.
	// Example: "gateway.pinata.cloud"
	Host string `yaml:"host"`

	// FetchTimeoutSeconds is the per-document fetch timeout in seconds.
	// Default: 10
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds,omitempty"`

	// Workers is the fixed size of the metadata fetch worker pool.
	// The pool bounds outbound request pressure independently of batch size.
	// Default: 8
	Workers int `yaml:"workers,omitempty"`

	// MemoSize is the number of resolved metadata documents memoized in the
	// LRU. Content-addressed documents are immutable, so memoization is safe.
	// Default: 1024
	MemoSize int `yaml:"memo_size,omitempty"`
}
