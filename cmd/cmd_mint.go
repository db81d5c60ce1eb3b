package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oscarprdev/nft-market-sync/gateway"
	"github.com/oscarprdev/nft-market-sync/logging"
	"github.com/oscarprdev/nft-market-sync/market"
	"github.com/oscarprdev/nft-market-sync/syncer"
)

const (
	flagMintURI   = "uri"
	flagMintPrice = "price"
)

// MintCmd returns the command that mints a new listing.
func MintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a new marketplace listing",
		Long: `Mint a new token on the marketplace contract and list it at the
given price. Requires a wallet keystore in the config
(wallet.keystore_file and wallet.passphrase_file).

The price is an ether-denominated decimal string, e.g. "0.5".

Example:
  nft-market-sync mint --config config.yaml --uri ipfs://bafy... --price 0.5
`,
		RunE: runMint,
	}

	cmd.Flags().String(flagConfig, "", "Path to config YAML file (required)")
	cmd.Flags().String(flagMintURI, "", "Token metadata URI (required)")
	cmd.Flags().String(flagMintPrice, "", "Listing price in ether (required)")
	_ = cmd.MarkFlagRequired(flagConfig)
	_ = cmd.MarkFlagRequired(flagMintURI)
	_ = cmd.MarkFlagRequired(flagMintPrice)

	return cmd
}

func runMint(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString(flagConfig)
	uri, _ := cmd.Flags().GetString(flagMintURI)
	price, _ := cmd.Flags().GetString(flagMintPrice)

	cfg, err := syncer.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Wallet.KeystoreFile == "" {
		return fmt.Errorf("mint requires wallet.keystore_file in config")
	}

	priceWei, err := market.ParseEther(price)
	if err != nil {
		return err
	}

	logger := logging.NewLoggerFromConfig(cfg.Logging)
	ctx := cmd.Context()

	wallet, err := gateway.NewKeystoreWallet(logger, cfg.Wallet)
	if err != nil {
		return fmt.Errorf("failed to open keystore wallet: %w", err)
	}
	defer func() { _ = wallet.Close() }()

	gw, err := gateway.Dial(ctx, logger, cfg.Chain, wallet)
	if err != nil {
		return fmt.Errorf("failed to dial chain node: %w", err)
	}

	handle, err := gw.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to establish wallet session: %w", err)
	}

	hash, err := handle.Mint(ctx, uri, priceWei)
	if err != nil {
		return fmt.Errorf("mint failed: %w", err)
	}

	cmd.Printf("mint submitted: tx=%s uri=%s price=%s\n", hash.Hex(), uri, price)
	return nil
}
