package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/translate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Client is the part of chain.Client needed to build, send and track a transaction.
type Client interface {
	Name() string
	Contract() common.Address
	Pack(method string, args ...any) ([]byte, error)
	EstimateGas(ctx context.Context, from common.Address, method string, args ...any) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Submit(ctx context.Context, tx *types.Transaction) (common.Hash, error)
	WaitForOutcome(ctx context.Context, hash common.Hash, timeout time.Duration) (chain.Result, error)
}

// Signer signs transactions for one account.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Options configures a Submitter.
type Options struct {
	// GasPriceCeiling caps the suggested gas price; nil or zero disables the cap.
	GasPriceCeiling *big.Int
	// GasLimitBufferPct is added on top of the estimate.
	GasLimitBufferPct uint64
	// ConfirmationTimeout bounds the wait for a receipt.
	ConfirmationTimeout time.Duration
}

// Submitter turns actions into signed legacy transactions. It never resubmits
// with a bumped nonce or gas price.
type Submitter struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options, log *slog.Logger) *Submitter {
	if log == nil {
		log = slog.Default()
	}
	if opts.ConfirmationTimeout <= 0 {
		opts.ConfirmationTimeout = 120 * time.Second
	}
	return &Submitter{opts: opts, log: log.With("component", "submitter")}
}

// GasPrice returns min(suggested, ceiling) when a ceiling is set.
func GasPrice(suggested, ceiling *big.Int) *big.Int {
	if ceiling == nil || ceiling.Sign() <= 0 || suggested.Cmp(ceiling) <= 0 {
		return new(big.Int).Set(suggested)
	}
	return new(big.Int).Set(ceiling)
}

// Submit estimates, prices, signs and sends the action on client, then waits
// for its outcome. Failures before the node accepts the transaction return
// OutcomeRejectedBeforeSend together with the classified error. A send that
// fails on connectivity returns OutcomeTimedOut with the signed hash.
func (s *Submitter) Submit(ctx context.Context, client Client, action translate.Action, signer Signer) (chain.Result, error) {
	rejected := chain.Result{Outcome: chain.OutcomeRejectedBeforeSend}
	from := signer.Address()

	data, err := client.Pack(action.Method, action.Args...)
	if err != nil {
		return rejected, err
	}
	gas, err := client.EstimateGas(ctx, from, action.Method, action.Args...)
	if err != nil {
		return rejected, err
	}
	if s.opts.GasLimitBufferPct > 0 {
		gas += gas * s.opts.GasLimitBufferPct / 100
	}
	suggested, err := client.GasPrice(ctx)
	if err != nil {
		return rejected, err
	}
	price := GasPrice(suggested, s.opts.GasPriceCeiling)
	nonce, err := client.PendingNonce(ctx, from)
	if err != nil {
		return rejected, err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return rejected, err
	}

	to := client.Contract()
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gas,
		GasPrice: price,
		Data:     data,
	})
	signed, err := signer.SignTx(tx, chainID)
	if err != nil {
		return rejected, fmt.Errorf("sign tx: %w", err)
	}

	hash, err := client.Submit(ctx, signed)
	if err != nil {
		if errors.Is(err, chain.ErrConnectivity) {
			// The signed bytes may already be in the mempool.
			return chain.Result{TxHash: signed.Hash(), Outcome: chain.OutcomeTimedOut},
				fmt.Errorf("send %s may have been broadcast: %w", signed.Hash().Hex(), err)
		}
		rejected.TxHash = signed.Hash()
		return rejected, err
	}
	s.log.Info("submitted transaction",
		"chain", client.Name(),
		"action", action.Method,
		"relay_tx", hash.Hex(),
		"nonce", nonce,
		"gas", gas,
		"gas_price", price.String(),
	)

	res, err := client.WaitForOutcome(ctx, hash, s.opts.ConfirmationTimeout)
	if err != nil {
		return res, err
	}
	s.log.Info("transaction outcome", "chain", client.Name(), "relay_tx", hash.Hex(), "outcome", string(res.Outcome), "block", res.BlockNumber)
	return res, nil
}
