package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/config"
	"github.com/devblac/bridge-relay/internal/credential"
	"github.com/devblac/bridge-relay/internal/merkle"
	"github.com/devblac/bridge-relay/internal/submit"
	"github.com/devblac/bridge-relay/internal/translate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var (
	flagClaimIndex  int
	flagClaimChecks int
	flagClaimDryRun bool
)

func init() {
	claimCmd.Flags().IntVar(&flagClaimIndex, "index", -1, "Leaf to claim; -1 picks a random unclaimed leaf")
	claimCmd.Flags().IntVar(&flagClaimChecks, "max-checks", 64, "Leaves to check when picking at random")
	claimCmd.Flags().BoolVar(&flagClaimDryRun, "dry-run", false, "Print the proof without submitting")
}

// ownerCaller reads the claim contract.
type ownerCaller interface {
	Call(ctx context.Context, method string, args ...any) ([]any, error)
}

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim a prime leaf of the Merkle claim contract with a membership proof",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Claim == nil {
			return errors.New("config has no claim section")
		}
		ch := cfg.Chains[cfg.Claim.Chain]

		iface, err := chain.LoadABI(cfg.Claim.ABIPath)
		if err != nil {
			return err
		}
		for _, m := range []string{"getOwnerByPrime", "submit"} {
			if err := chain.RequireMethod(iface, m); err != nil {
				return fmt.Errorf("claim: %w", err)
			}
		}
		ep, err := chain.NewEndpoint(chain.EndpointOpts{
			Name:       cfg.Claim.Chain,
			ChainID:    ch.ChainID,
			RPCURL:     ch.RPCURL,
			Contract:   common.HexToAddress(cfg.Claim.Contract),
			ABI:        iface,
			Credential: ch.Credential,
		})
		if err != nil {
			return err
		}
		signer, err := credential.Resolve(ep.CredentialRef())
		if err != nil {
			return err
		}
		client, err := chain.Dial(ctx, ep, clientOptions(cfg.Global, log)...)
		if err != nil {
			return err
		}

		leaves := merkle.PrimeLeaves(cfg.Claim.Leaves)
		tree, err := merkle.Build(leaves)
		if err != nil {
			return err
		}
		index := flagClaimIndex
		if index < 0 {
			index, err = selectUnclaimed(ctx, client, leaves, rand.Perm(len(leaves)), flagClaimChecks)
			if err != nil {
				return err
			}
		}
		proof, err := tree.Proof(index)
		if err != nil {
			return err
		}
		leaf := leaves[index]
		fmt.Fprintf(out, "root:  %s\nleaf:  %d (prime %s)\nproof: %d nodes\n", tree.Root().Hex(), index, leaf.Big(), len(proof))

		challenge := randomChallenge(32)
		sig, err := signer.SignMessage([]byte(challenge))
		if err != nil {
			return err
		}
		ok, err := credential.VerifyMessage(signer.Address(), []byte(challenge), sig)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("challenge signature does not verify")
		}
		fmt.Fprintf(out, "signed challenge %s as %s: %s\n", challenge, signer.Address().Hex(), hexutil.Encode(sig))

		if flagClaimDryRun {
			for _, p := range proof {
				fmt.Fprintln(out, p.Hex())
			}
			return nil
		}

		ceiling, err := cfg.Global.GasCeiling()
		if err != nil {
			return err
		}
		sub := submit.New(submit.Options{
			GasPriceCeiling:     ceiling,
			GasLimitBufferPct:   cfg.Global.GasLimitBufferPct,
			ConfirmationTimeout: cfg.Global.ConfirmationWait(),
		}, log)
		res, err := sub.Submit(ctx, client, translate.Action{
			Target: ep.Name(),
			Method: "submit",
			Args:   []any{toBytes32(proof), [32]byte(leaf)},
		}, signer)
		if err != nil {
			return fmt.Errorf("claim %d: %s: %w", index, res.Outcome, err)
		}
		fmt.Fprintf(out, "claim tx %s: %s\n", res.TxHash.Hex(), res.Outcome)
		if res.Outcome != chain.OutcomeConfirmedSuccess {
			return fmt.Errorf("claim %d not confirmed", index)
		}
		return nil
	},
}

// selectUnclaimed checks leaves in order and returns the first whose prime has
// no owner.
func selectUnclaimed(ctx context.Context, c ownerCaller, leaves []common.Hash, order []int, limit int) (int, error) {
	if limit <= 0 || limit > len(order) {
		limit = len(order)
	}
	for _, idx := range order[:limit] {
		out, err := c.Call(ctx, "getOwnerByPrime", leaves[idx].Big())
		if err != nil {
			return 0, fmt.Errorf("getOwnerByPrime %s: %w", leaves[idx].Big(), err)
		}
		if len(out) != 1 {
			return 0, fmt.Errorf("getOwnerByPrime returned %d values", len(out))
		}
		owner, ok := out[0].(common.Address)
		if !ok {
			return 0, fmt.Errorf("getOwnerByPrime returned %T", out[0])
		}
		if owner == (common.Address{}) {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("no unclaimed leaf among %d checked", limit)
}

func toBytes32(hs []common.Hash) [][32]byte {
	out := make([][32]byte, len(hs))
	for i, h := range hs {
		out[i] = h
	}
	return out
}

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randomChallenge(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(letters[rand.IntN(len(letters))])
	}
	return b.String()
}
