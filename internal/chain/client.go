package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Backend captures the subset of ethclient used by Client.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

const (
	defaultCallTimeout  = 15 * time.Second
	defaultPollInterval = 2 * time.Second
)

// Client binds one Endpoint to an RPC backend.
type Client struct {
	endpoint     *Endpoint
	backend      Backend
	callTimeout  time.Duration
	pollInterval time.Duration
	readRetry    RetryPolicy
	submitRetry  RetryPolicy
	log          *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithCallTimeout bounds every individual RPC call.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithReceiptPollInterval sets how often WaitForOutcome polls for a receipt.
func WithReceiptPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithRetry sets the read and submit retry policies.
func WithRetry(read, submit RetryPolicy) Option {
	return func(c *Client) {
		c.readRetry = read
		c.submitRetry = submit
	}
}

// WithLogger attaches a logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient wraps backend for endpoint.
func NewClient(endpoint *Endpoint, backend Backend, opts ...Option) *Client {
	c := &Client{
		endpoint:     endpoint,
		backend:      backend,
		callTimeout:  defaultCallTimeout,
		pollInterval: defaultPollInterval,
		readRetry:    NoRetry,
		submitRetry:  NoRetry,
		log:          slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With("chain", endpoint.Name())
	return c
}

// Dial connects to the endpoint's RPC URL.
func Dial(ctx context.Context, endpoint *Endpoint, opts ...Option) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, endpoint.RPCURL())
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", endpoint.Name(), err)
	}
	return NewClient(endpoint, ec, opts...), nil
}

func (c *Client) Name() string             { return c.endpoint.Name() }
func (c *Client) Endpoint() *Endpoint      { return c.endpoint }
func (c *Client) Contract() common.Address { return c.endpoint.Contract() }

// CurrentHeight returns the latest block number.
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.readRetry.Do(ctx, func() error {
		callCtx, cancel := c.bound(ctx)
		defer cancel()
		h, err := c.backend.BlockNumber(callCtx)
		if err != nil {
			return classify(ErrConnectivity, fmt.Errorf("block number: %w", err))
		}
		height = h
		return nil
	})
	return height, err
}

// ReadEvents returns the decoded events of kind emitted by the bridge contract
// in [from, to], ordered by height then log index.
func (c *Client) ReadEvents(ctx context.Context, kind Kind, from, to uint64) ([]Event, error) {
	name, ok := c.endpoint.EventName(kind)
	if !ok {
		return nil, fmt.Errorf("chain %s does not emit %s events", c.Name(), kind)
	}
	ev := c.endpoint.ABI().Events[name]

	var logs []types.Log
	err := c.readRetry.Do(ctx, func() error {
		callCtx, cancel := c.bound(ctx)
		defer cancel()
		out, err := c.backend.FilterLogs(callCtx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{c.endpoint.Contract()},
			Topics:    [][]common.Hash{{ev.ID}},
		})
		if err != nil {
			return classify(ErrConnectivity, fmt.Errorf("filter logs [%d,%d]: %w", from, to, err))
		}
		logs = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		fields, err := decodeLog(ev, lg)
		if err != nil {
			c.log.Warn("skipping undecodable log", "kind", kind, "tx", lg.TxHash.Hex(), "log_index", lg.Index, "error", err)
			continue
		}
		events = append(events, Event{
			Chain:    c.Name(),
			Kind:     kind,
			Height:   lg.BlockNumber,
			TxHash:   lg.TxHash,
			LogIndex: lg.Index,
			Fields:   fields,
		})
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Height != events[j].Height {
			return events[i].Height < events[j].Height
		}
		return events[i].LogIndex < events[j].LogIndex
	})
	return events, nil
}

// Call executes a read-only contract method and returns its decoded outputs.
func (c *Client) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	to := c.endpoint.Contract()
	var out []any
	err = c.readRetry.Do(ctx, func() error {
		callCtx, cancel := c.bound(ctx)
		defer cancel()
		raw, err := c.backend.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
		if err != nil {
			return classify(ErrContractCall, fmt.Errorf("call %s: %w", method, err))
		}
		vals, err := c.endpoint.ABI().Unpack(method, raw)
		if err != nil {
			return fmt.Errorf("%w: unpack %s: %w", ErrContractCall, method, err)
		}
		out = vals
		return nil
	})
	return out, err
}

// EstimateGas estimates the gas needed for from to invoke method.
func (c *Client) EstimateGas(ctx context.Context, from common.Address, method string, args ...any) (uint64, error) {
	data, err := c.Pack(method, args...)
	if err != nil {
		return 0, err
	}
	to := c.endpoint.Contract()
	var gas uint64
	err = c.readRetry.Do(ctx, func() error {
		callCtx, cancel := c.bound(ctx)
		defer cancel()
		g, err := c.backend.EstimateGas(callCtx, ethereum.CallMsg{From: from, To: &to, Data: data})
		if err != nil {
			return classify(ErrGasEstimation, fmt.Errorf("estimate %s: %w", method, err))
		}
		gas = g
		return nil
	})
	return gas, err
}

// GasPrice returns the node's suggested legacy gas price.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.readRetry.Do(ctx, func() error {
		callCtx, cancel := c.bound(ctx)
		defer cancel()
		p, err := c.backend.SuggestGasPrice(callCtx)
		if err != nil {
			return classify(ErrConnectivity, fmt.Errorf("suggest gas price: %w", err))
		}
		price = p
		return nil
	})
	return price, err
}

// PendingNonce returns the next nonce for account, counting pool transactions.
func (c *Client) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.readRetry.Do(ctx, func() error {
		callCtx, cancel := c.bound(ctx)
		defer cancel()
		n, err := c.backend.PendingNonceAt(callCtx, account)
		if err != nil {
			return classify(ErrConnectivity, fmt.Errorf("pending nonce: %w", err))
		}
		nonce = n
		return nil
	})
	return nonce, err
}

// ChainID prefers the configured id and falls back to eth_chainId.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if id := c.endpoint.ChainID(); id != nil {
		return id, nil
	}
	var id *big.Int
	err := c.readRetry.Do(ctx, func() error {
		callCtx, cancel := c.bound(ctx)
		defer cancel()
		v, err := c.backend.ChainID(callCtx)
		if err != nil {
			return classify(ErrConnectivity, fmt.Errorf("chain id: %w", err))
		}
		id = v
		return nil
	})
	return id, err
}

// Pack ABI-encodes a method call against the endpoint's interface.
func (c *Client) Pack(method string, args ...any) ([]byte, error) {
	data, err := c.endpoint.ABI().Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

// Submit broadcasts a signed transaction. Re-sending identical bytes after a
// connectivity failure is safe; a node reporting the tx as known counts as sent.
func (c *Client) Submit(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	attempt := 0
	err := c.submitRetry.Do(ctx, func() error {
		attempt++
		callCtx, cancel := c.bound(ctx)
		defer cancel()
		err := c.backend.SendTransaction(callCtx, tx)
		if err != nil && attempt > 1 && isAlreadyKnown(err) {
			return nil
		}
		if err != nil {
			return classify(ErrRejected, fmt.Errorf("send %s: %w", tx.Hash().Hex(), err))
		}
		return nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

// WaitForOutcome polls for the receipt of hash for at most timeout. It never
// blocks past the bound: an unmined transaction yields OutcomeTimedOut.
func (c *Client) WaitForOutcome(ctx context.Context, hash common.Hash, timeout time.Duration) (Result, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		callCtx, callCancel := c.bound(waitCtx)
		receipt, err := c.backend.TransactionReceipt(callCtx, hash)
		callCancel()
		switch {
		case err == nil && receipt != nil:
			res := Result{TxHash: hash, GasUsed: receipt.GasUsed, Outcome: OutcomeConfirmedFailure}
			if receipt.BlockNumber != nil {
				res.BlockNumber = receipt.BlockNumber.Uint64()
			}
			if receipt.Status == types.ReceiptStatusSuccessful {
				res.Outcome = OutcomeConfirmedSuccess
			}
			return res, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			c.log.Debug("receipt poll failed", "relay_tx", hash.Hex(), "error", err)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return Result{TxHash: hash, Outcome: OutcomeTimedOut}, ctx.Err()
			}
			return Result{TxHash: hash, Outcome: OutcomeTimedOut}, nil
		case <-ticker.C:
		}
	}
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.callTimeout)
}

// classify maps err onto the taxonomy. Errors returned by the node as JSON-RPC
// error objects belong to the operation's domain; everything else is treated
// as a connectivity failure.
func classify(domain, err error) error {
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if domain != ErrConnectivity && (errors.As(err, &rpcErr) || isRevert(err)) {
		return fmt.Errorf("%w: %w", domain, err)
	}
	return fmt.Errorf("%w: %w", ErrConnectivity, err)
}

func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func isAlreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

func decodeLog(ev abi.Event, lg types.Log) ([]Field, error) {
	if len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
		return nil, fmt.Errorf("topic mismatch for %s", ev.Name)
	}
	values := map[string]any{}
	var indexed, plain abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		} else {
			plain = append(plain, in)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, lg.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	if err := plain.UnpackIntoMap(values, lg.Data); err != nil {
		return nil, fmt.Errorf("unpack data: %w", err)
	}
	fields := make([]Field, 0, len(ev.Inputs))
	for _, in := range ev.Inputs {
		fields = append(fields, Field{Name: in.Name, Value: values[in.Name]})
	}
	return fields, nil
}
