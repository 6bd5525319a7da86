package main

import (
	"context"
	"net/http"
	"time"

	"github.com/devblac/bridge-relay/internal/health"
	"github.com/devblac/bridge-relay/internal/metrics"
	"github.com/devblac/bridge-relay/internal/relay"
	"github.com/spf13/cobra"
)

var (
	flagOnce    bool
	flagDryRun  bool
	flagHealth  string
	flagMetrics string
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Run one poll cycle per direction and exit")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Scan, translate and guard, but never submit")
	runCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	runCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Relay bridge events in both directions",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		ctx := cmd.Context()

		var mtr *metrics.Metrics
		if flagMetrics != "" {
			mtr = metrics.Init()
			log.Info("metrics enabled", "addr", flagMetrics)
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				srv := &http.Server{Addr: flagMetrics, Handler: mux, ReadHeaderTimeout: 3 * time.Second}
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server error", "error", err)
				}
			}()
		}

		rt, err := startRelay(ctx, log, mtr, flagDryRun)
		if err != nil {
			return err
		}
		defer rt.store.Close()
		cfg, store, clients, loops := rt.cfg, rt.store, rt.clients, rt.loops

		if flagHealth != "" {
			chains := map[string]health.HeightReader{}
			for name, c := range clients {
				chains[name] = c
			}
			healthSrv := health.Serve(flagHealth, health.Checker{
				DBPing:  store.Ping,
				RPCPing: health.NewChainChecker(chains).Ping,
				States:  loopStates(loops),
			})
			log.Info("health check enabled", "addr", flagHealth)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(shutdownCtx, healthSrv)
			}()
		}

		for name, s := range rt.signers {
			log.Info("signer loaded", "chain", name, "address", s.Address().Hex())
		}
		log.Info("relay started",
			"store", cfg.Global.Store,
			"lookback", cfg.Global.Lookback,
			"poll_interval", cfg.Global.PollEvery(),
			"dry_run", flagDryRun,
		)
		return relay.NewRunner(log, loops...).Run(ctx, cfg.Global.PollEvery(), flagOnce)
	},
}

func loopStates(loops []*relay.Loop) func() map[string]string {
	return func() map[string]string {
		out := make(map[string]string, len(loops))
		for _, l := range loops {
			out[l.Direction()] = l.State().String()
		}
		return out
	}
}
