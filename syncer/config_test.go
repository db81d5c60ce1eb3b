package syncer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
chain:
  rpc_endpoint: "http://localhost:8545"
  contract_address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "gateway.pinata.cloud", cfg.IPFSGateway.Host)
	require.Equal(t, 60, cfg.Cache.TTLSeconds)
	require.Equal(t, 300, cfg.Cache.MirrorTTLSeconds)
	require.Equal(t, ":8080", cfg.API.ListenAddr)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
chain:
  rpc_endpoint: "http://node:8545"
  ws_endpoint: "ws://node:8546"
  contract_address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
  chain_id: 31337
ipfs_gateway:
  host: "ipfs.io"
  workers: 4
cache:
  ttl_seconds: 10
api:
  listen_addr: ":9999"
logging:
  level: debug
  format: text
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "ws://node:8546", cfg.Chain.WSEndpoint)
	require.Equal(t, int64(31337), cfg.Chain.ChainID)
	require.Equal(t, "ipfs.io", cfg.IPFSGateway.Host)
	require.Equal(t, 4, cfg.IPFSGateway.Workers)
	require.Equal(t, 10, cfg.Cache.TTLSeconds)
	require.Equal(t, ":9999", cfg.API.ListenAddr)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "chain: [not a mapping")
	_, err := LoadConfig(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to parse config file")
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Chain.ContractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default",
			mutate: func(*Config) {},
		},
		{
			name:    "missing rpc endpoint",
			mutate:  func(c *Config) { c.Chain.RPCEndpoint = "" },
			wantErr: "chain.rpc_endpoint is required",
		},
		{
			name:    "missing contract address",
			mutate:  func(c *Config) { c.Chain.ContractAddress = "" },
			wantErr: "chain.contract_address is required",
		},
		{
			name:    "missing gateway host",
			mutate:  func(c *Config) { c.IPFSGateway.Host = "" },
			wantErr: "ipfs_gateway.host is required",
		},
		{
			name:    "passphrase without keystore",
			mutate:  func(c *Config) { c.Wallet.PassphraseFile = "/tmp/pass" },
			wantErr: "wallet.passphrase_file set without wallet.keystore_file",
		},
		{
			name:    "negative cache ttl",
			mutate:  func(c *Config) { c.Cache.TTLSeconds = -1 },
			wantErr: "cache durations must be >= 0",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
