package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/oscarprdev/nft-market-sync/api"
	"github.com/oscarprdev/nft-market-sync/logging"
	"github.com/oscarprdev/nft-market-sync/observability"
	"github.com/oscarprdev/nft-market-sync/syncer"
)

const flagConfig = "config"

// ServeCmd returns the command that runs the sync service.
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the marketplace sync service",
		Long: `Run the marketplace synchronization service.

The service keeps an in-memory snapshot of the marketplace contract's
listings merged with their IPFS metadata, refreshed on ListingChanged
chain events, and serves it over HTTP with stale-while-revalidate
semantics. A websocket channel pushes refresh notices to clients.

Optional features by config:
- Wallet keystore for mint submission (wallet.keystore_file)
- Redis snapshot mirror and cross-instance invalidation (redis.url)
- Prometheus metrics and pprof (metrics, pprof)

Example:
  nft-market-sync serve --config /path/to/config.yaml
`,
		RunE: runServe,
	}

	cmd.Flags().String(flagConfig, "", "Path to config YAML file (required)")
	_ = cmd.MarkFlagRequired(flagConfig)

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("serve panic: %v", r)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath, _ := cmd.Flags().GetString(flagConfig)
	cfg, err := syncer.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := logging.NewLoggerFromConfig(cfg.Logging)
	observability.SetProcessInfo(Version)

	start := time.Now()

	svc, err := syncer.New(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if cfg.Metrics.Enabled || cfg.PProf.Enabled {
		obsServer := observability.NewServer(logger, observability.ServerConfig{
			MetricsEnabled: cfg.Metrics.Enabled,
			MetricsAddr:    cfg.Metrics.Addr,
			PprofEnabled:   cfg.PProf.Enabled,
			PprofAddr:      cfg.PProf.Addr,
		})
		obsServer.SetReadinessCheck(func(ctx context.Context) error {
			readyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return svc.Ready(readyCtx)
		})
		// The observability server shuts itself down when ctx is cancelled.
		if err := obsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}

	apiServer := api.NewServer(logger, api.ServerConfig{
		ListenAddr: cfg.API.ListenAddr,
	}, svc)

	logger.Info().
		Dur(logging.FieldDuration, time.Since(start)).
		Msg("marketplace sync service ready")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiServer.Start(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info().Msg("marketplace sync service stopped")
	return nil
}
