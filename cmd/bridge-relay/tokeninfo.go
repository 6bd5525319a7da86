package main

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/devblac/bridge-relay/internal/blob"
	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/config"
	"github.com/devblac/bridge-relay/internal/nft"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var tokenInfoCmd = &cobra.Command{
	Use:   "token-info <id>",
	Short: "Show owner, image and traits of a token in the configured registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, ok := new(big.Int).SetString(args[0], 10)
		if !ok {
			return fmt.Errorf("invalid token id %q", args[0])
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Registry == nil {
			return errors.New("config has no registry section")
		}

		iface, err := chain.LoadABI(cfg.Registry.ABIPath)
		if err != nil {
			return err
		}
		for _, m := range []string{"ownerOf", "tokenURI"} {
			if err := chain.RequireMethod(iface, m); err != nil {
				return fmt.Errorf("registry: %w", err)
			}
		}
		ep, err := chain.NewEndpoint(chain.EndpointOpts{
			Name:     "registry",
			RPCURL:   cfg.Registry.RPCURL,
			Contract: common.HexToAddress(cfg.Registry.Contract),
			ABI:      iface,
		})
		if err != nil {
			return err
		}
		client, err := chain.Dial(cmd.Context(), ep, clientOptions(cfg.Global, newLogger())...)
		if err != nil {
			return err
		}

		info, err := nft.Lookup(cmd.Context(), client, blob.New(cfg.IPFS), id)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), info)
	},
}
