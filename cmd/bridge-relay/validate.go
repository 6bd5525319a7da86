package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/devblac/bridge-relay/internal/config"
	"github.com/devblac/bridge-relay/internal/storage"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
)

const defaultRPCTimeout = 8 * time.Second

var flagOffline bool

func init() {
	validateCmd.Flags().BoolVar(&flagOffline, "offline", false, "Skip RPC and store connectivity checks")
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config, ABIs and credentials, then ping RPC endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d)\n", cfg.Version)

		p, err := checkConfig(cfg)
		if err != nil {
			return fmt.Errorf("startup check: %w", err)
		}
		fmt.Fprintln(out, "abis OK")

		signers, err := resolveSigners(p)
		if err != nil {
			return fmt.Errorf("startup check: %w", err)
		}
		for _, name := range []string{config.Source, config.Destination} {
			fmt.Fprintf(out, "- signer %s: %s\n", name, signers[name].Address().Hex())
		}

		if flagOffline {
			fmt.Fprintln(out, "validate: success (offline)")
			return nil
		}

		failures := 0
		store, err := storage.Open(cfg.Global)
		if err != nil {
			failures++
			fmt.Fprintf(out, "- store %s: ERROR %v\n", cfg.Global.Store, err)
		} else {
			if err := store.Ping(cmd.Context()); err != nil {
				failures++
				fmt.Fprintf(out, "- store %s: ERROR %v\n", cfg.Global.Store, err)
			} else {
				fmt.Fprintf(out, "- store %s: OK\n", cfg.Global.Store)
			}
			_ = store.Close()
		}

		for _, name := range []string{config.Source, config.Destination} {
			ch := cfg.Chains[name]
			chainID, err := pingEVM(cmd.Context(), ch.RPCURL)
			if err != nil {
				failures++
				fmt.Fprintf(out, "- chain %s: ERROR %v\n", name, err)
				continue
			}
			if ch.ChainID != 0 && chainID.Uint64() != ch.ChainID {
				failures++
				fmt.Fprintf(out, "- chain %s: ERROR chainId %s, configured %d\n", name, chainID, ch.ChainID)
				continue
			}
			fmt.Fprintf(out, "- chain %s: chainId %s OK\n", name, chainID)
		}

		if failures > 0 {
			return fmt.Errorf("validate: %d check(s) failed", failures)
		}

		fmt.Fprintln(out, "validate: success")
		return nil
	},
}

// pingEVM asks the node behind url for its chain id.
func pingEVM(ctx context.Context, url string) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	defer client.Close()

	id, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	return id, nil
}
