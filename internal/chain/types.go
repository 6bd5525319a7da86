package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Kind names the bridge event a scanner filters for.
type Kind string

const (
	KindLock Kind = "Lock"
	KindBurn Kind = "Burn"
)

// Error taxonomy shared by every chain operation. Callers classify with errors.Is.
var (
	ErrConnectivity  = errors.New("rpc connectivity")
	ErrContractCall  = errors.New("contract call reverted")
	ErrGasEstimation = errors.New("gas estimation failed")
	ErrRejected      = errors.New("transaction rejected")
)

// Endpoint describes one ledger. It is immutable once built.
type Endpoint struct {
	name       string
	chainID    *big.Int
	rpcURL     string
	contract   common.Address
	iface      *abi.ABI
	credential string
	events     map[Kind]string
}

// EndpointOpts carries the values NewEndpoint copies into an Endpoint.
type EndpointOpts struct {
	Name       string
	ChainID    uint64
	RPCURL     string
	Contract   common.Address
	ABI        *abi.ABI
	Credential string
	// Events maps each kind scanned on this ledger to its ABI event name.
	Events map[Kind]string
}

// NewEndpoint validates opts and freezes them.
func NewEndpoint(opts EndpointOpts) (*Endpoint, error) {
	if opts.Name == "" {
		return nil, errors.New("endpoint name required")
	}
	if opts.ABI == nil {
		return nil, fmt.Errorf("endpoint %s: abi required", opts.Name)
	}
	events := make(map[Kind]string, len(opts.Events))
	for k, name := range opts.Events {
		if err := RequireEvent(opts.ABI, name); err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", opts.Name, err)
		}
		events[k] = name
	}
	var id *big.Int
	if opts.ChainID != 0 {
		id = new(big.Int).SetUint64(opts.ChainID)
	}
	return &Endpoint{
		name:       opts.Name,
		chainID:    id,
		rpcURL:     opts.RPCURL,
		contract:   opts.Contract,
		iface:      opts.ABI,
		credential: opts.Credential,
		events:     events,
	}, nil
}

func (e *Endpoint) Name() string             { return e.name }
func (e *Endpoint) RPCURL() string           { return e.rpcURL }
func (e *Endpoint) Contract() common.Address { return e.contract }
func (e *Endpoint) ABI() *abi.ABI            { return e.iface }
func (e *Endpoint) CredentialRef() string    { return e.credential }

// ChainID returns the configured chain id, or nil when it must be queried.
func (e *Endpoint) ChainID() *big.Int {
	if e.chainID == nil {
		return nil
	}
	return new(big.Int).Set(e.chainID)
}

// EventName resolves the ABI event for kind.
func (e *Endpoint) EventName(kind Kind) (string, bool) {
	name, ok := e.events[kind]
	return name, ok
}

// Field is one decoded event argument, kept in ABI order.
type Field struct {
	Name  string
	Value any
}

// Event is a decoded bridge log. Produced by ReadEvents and never mutated.
type Event struct {
	Chain    string
	Kind     Kind
	Height   uint64
	TxHash   common.Hash
	LogIndex uint
	Fields   []Field
}

// Get returns the named field value.
func (e Event) Get(name string) (any, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Args exposes the fields as a map for predicate evaluation.
func (e Event) Args() map[string]any {
	out := make(map[string]any, len(e.Fields))
	for _, f := range e.Fields {
		out[f.Name] = f.Value
	}
	return out
}

// FieldString renders the fields as name=value pairs in ABI order. Integers
// print in base 10, addresses checksummed, hashes and bytes as 0x hex.
func (e Event) FieldString() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Name+"="+formatValue(f.Value))
	}
	return strings.Join(parts, " ")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return "<nil>"
		}
		return x.String()
	case common.Address:
		return x.Hex()
	case common.Hash:
		return x.Hex()
	case [32]byte:
		return hexutil.Encode(x[:])
	case []byte:
		return hexutil.Encode(x)
	default:
		return fmt.Sprint(v)
	}
}

// Key identifies the event in the processed ledger.
func (e Event) Key() EventKey {
	return EventKey{Chain: e.Chain, TxHash: e.TxHash.Hex(), LogIndex: e.LogIndex}
}

// EventKey is the (chain, transaction, log index) identity of a source event.
type EventKey struct {
	Chain    string
	TxHash   string
	LogIndex uint
}

func (k EventKey) String() string {
	return fmt.Sprintf("%s:%s:%d", k.Chain, k.TxHash, k.LogIndex)
}

// Outcome classifies a submission.
type Outcome string

const (
	OutcomeConfirmedSuccess   Outcome = "confirmed_success"
	OutcomeConfirmedFailure   Outcome = "confirmed_failure"
	OutcomeTimedOut           Outcome = "timed_out"
	OutcomeRejectedBeforeSend Outcome = "rejected_before_send"
)

// Result is the observable end state of one submitted transaction.
type Result struct {
	TxHash      common.Hash
	Outcome     Outcome
	BlockNumber uint64
	GasUsed     uint64
}
