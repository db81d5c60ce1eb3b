package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/oscarprdev/nft-market-sync/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nft-market-sync",
		Short: "NFT marketplace synchronization service",
		Long: `Synchronization service for an on-chain NFT marketplace.

The service keeps a cached snapshot of the marketplace contract's
listings merged with their IPFS metadata and serves it over HTTP:

- Event-driven cache invalidation via ListingChanged chain events
- Stale-while-revalidate reads with single-flight loads
- Optional Redis mirror for warm starts and cross-instance coherence
- Mint submission through a local keystore wallet`,
	}

	rootCmd.AddCommand(cmd.ServeCmd())
	rootCmd.AddCommand(cmd.ListingsCmd())
	rootCmd.AddCommand(cmd.MintCmd())
	rootCmd.AddCommand(cmd.VersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
