package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oscarprdev/nft-market-sync/gateway"
	"github.com/oscarprdev/nft-market-sync/logging"
	"github.com/oscarprdev/nft-market-sync/market"
	"github.com/oscarprdev/nft-market-sync/metadata"
	"github.com/oscarprdev/nft-market-sync/syncer"
)

// ListingsCmd returns a one-shot command: fetch the marketplace
// listings, resolve metadata, and print the merged snapshot as JSON.
func ListingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "Fetch and print the marketplace listings snapshot",
		Long: `Fetch the current listings from the marketplace contract, resolve
each listing's metadata document through the IPFS gateway, and print
the merged snapshot as JSON. No cache, no server, one round trip.

Example:
  nft-market-sync listings --config /path/to/config.yaml
`,
		RunE: runListings,
	}

	cmd.Flags().String(flagConfig, "", "Path to config YAML file (required)")
	_ = cmd.MarkFlagRequired(flagConfig)

	return cmd
}

func runListings(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString(flagConfig)
	cfg, err := syncer.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := logging.NewLoggerFromConfig(cfg.Logging)
	ctx := cmd.Context()

	gw, err := gateway.Dial(ctx, logger, cfg.Chain, nil)
	if err != nil {
		return fmt.Errorf("failed to dial chain node: %w", err)
	}

	resolver, err := metadata.NewResolver(logger, metadata.Config{
		GatewayHost:  cfg.IPFSGateway.Host,
		FetchTimeout: time.Duration(cfg.IPFSGateway.FetchTimeoutSeconds) * time.Second,
		Workers:      cfg.IPFSGateway.Workers,
		MemoSize:     cfg.IPFSGateway.MemoSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create metadata resolver: %w", err)
	}
	defer resolver.Close()

	reader := market.NewReader(logger, gw.ReadHandle())
	orch := syncer.NewOrchestrator(logger, reader, resolver)

	items, err := orch.LoadListings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load listings: %w", err)
	}

	out, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}
