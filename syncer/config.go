package syncer

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/oscarprdev/nft-market-sync/config"
	"github.com/oscarprdev/nft-market-sync/logging"
)

// CacheConfig tunes the query cache.
type CacheConfig struct {
	// TTLSeconds is how long a fresh snapshot stays fresh without an
	// on-chain event. Default: 60
	TTLSeconds int `yaml:"ttl_seconds,omitempty"`

	// SweepIntervalSeconds is how often the TTL sweeper runs.
	// Default: TTL / 4
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds,omitempty"`

	// MirrorTTLSeconds is the TTL on mirrored Redis snapshots.
	// Default: 300
	MirrorTTLSeconds int `yaml:"mirror_ttl_seconds,omitempty"`
}

// APIConfig configures the HTTP read surface.
type APIConfig struct {
	// ListenAddr is the HTTP listen address. Default: ":8080"
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

// Config is the configuration for the marketplace sync service.
type Config struct {
	// Chain is the EVM node and contract configuration.
	Chain config.ChainConfig `yaml:"chain"`

	// Wallet is the optional key source for write (mint) operations.
	Wallet config.WalletConfig `yaml:"wallet,omitempty"`

	// IPFSGateway is the metadata content gateway configuration.
	IPFSGateway config.IPFSGatewayConfig `yaml:"ipfs_gateway"`

	// Redis configures the optional cross-instance cache mirror.
	Redis config.RedisConfig `yaml:"redis,omitempty"`

	// Cache tunes the query cache.
	Cache CacheConfig `yaml:"cache,omitempty"`

	// API configures the HTTP server.
	API APIConfig `yaml:"api,omitempty"`

	// Metrics configuration.
	Metrics config.MetricsConfig `yaml:"metrics,omitempty"`

	// PProf configuration.
	PProf config.PprofConfig `yaml:"pprof,omitempty"`

	// Logging configuration.
	Logging logging.Config `yaml:"logging,omitempty"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Chain.RPCEndpoint == "" {
		return fmt.Errorf("chain.rpc_endpoint is required")
	}
	if _, err := url.Parse(c.Chain.RPCEndpoint); err != nil {
		return fmt.Errorf("invalid chain.rpc_endpoint: %w", err)
	}
	if c.Chain.ContractAddress == "" {
		return fmt.Errorf("chain.contract_address is required")
	}
	if c.IPFSGateway.Host == "" {
		return fmt.Errorf("ipfs_gateway.host is required")
	}
	if c.Redis.URL != "" {
		if _, err := url.Parse(c.Redis.URL); err != nil {
			return fmt.Errorf("invalid redis.url: %w", err)
		}
	}
	if c.Wallet.KeystoreFile == "" && c.Wallet.PassphraseFile != "" {
		return fmt.Errorf("wallet.passphrase_file set without wallet.keystore_file")
	}
	if c.Cache.TTLSeconds < 0 || c.Cache.SweepIntervalSeconds < 0 || c.Cache.MirrorTTLSeconds < 0 {
		return fmt.Errorf("cache durations must be >= 0 (0 = use default)")
	}
	return nil
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Chain: config.ChainConfig{
			RPCEndpoint:        "http://127.0.0.1:8545",
			CallTimeoutSeconds: 10,
		},
		IPFSGateway: config.IPFSGatewayConfig{
			Host:                "gateway.pinata.cloud",
			FetchTimeoutSeconds: 10,
			Workers:             8,
			MemoSize:            1024,
		},
		Cache: CacheConfig{
			TTLSeconds:       60,
			MirrorTTLSeconds: 300,
		},
		API: APIConfig{
			ListenAddr: ":8080",
		},
		Metrics: config.MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Logging: logging.Config{
			Level:           "info",
			Format:          "json",
			Async:           true,
			AsyncBufferSize: 100000,
		},
	}
}

// LoadConfig loads a service configuration from a YAML file, applying
// defaults for anything the file leaves out.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
