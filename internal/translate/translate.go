package translate

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownEventKind is returned for events outside the mapping table.
var ErrUnknownEventKind = errors.New("unknown event kind")

// Action is the call derived from one source event.
type Action struct {
	Target string
	Method string
	Args   []any
	Event  chain.Event
}

// Describe renders the call for logs, e.g. mint(0x..,0x..,500).
func (a Action) Describe() string {
	parts := make([]string, len(a.Args))
	for i, v := range a.Args {
		switch x := v.(type) {
		case common.Address:
			parts[i] = x.Hex()
		case *big.Int:
			parts[i] = x.String()
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return a.Method + "(" + strings.Join(parts, ",") + ")"
}

// Route says where events of one kind are relayed.
type Route struct {
	Target string
	Method string
}

// Translator maps events to actions. It holds no mutable state.
type Translator struct {
	routes map[chain.Kind]Route
}

// New builds a translator. lockRoute handles Lock events, burnRoute Burn events.
func New(lockRoute, burnRoute Route) *Translator {
	return &Translator{routes: map[chain.Kind]Route{
		chain.KindLock: lockRoute,
		chain.KindBurn: burnRoute,
	}}
}

// Translate derives the action for ev. The result depends only on ev.
func (t *Translator) Translate(ev chain.Event) (Action, error) {
	route, ok := t.routes[ev.Kind]
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownEventKind, ev.Kind)
	}
	var (
		args []any
		err  error
	)
	switch ev.Kind {
	case chain.KindLock:
		args, err = lockArgs(ev)
	case chain.KindBurn:
		args, err = burnArgs(ev)
	default:
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownEventKind, ev.Kind)
	}
	if err != nil {
		return Action{}, fmt.Errorf("translate %s event %s: %w", ev.Kind, ev.Key(), err)
	}
	return Action{Target: route.Target, Method: route.Method, Args: args, Event: ev}, nil
}

// Lock(token, recipient, amount) -> mint(token, recipient, amount)
func lockArgs(ev chain.Event) ([]any, error) {
	token, err := address(ev, "token")
	if err != nil {
		return nil, err
	}
	recipient, err := address(ev, "recipient")
	if err != nil {
		return nil, err
	}
	amt, err := amount(ev, "amount")
	if err != nil {
		return nil, err
	}
	return []any{token, recipient, amt}, nil
}

// Burn(wrappedToken, underlyingToken, from, to, amount) -> release(underlyingToken, to, amount)
func burnArgs(ev chain.Event) ([]any, error) {
	underlying, err := address(ev, "underlyingToken")
	if err != nil {
		return nil, err
	}
	to, err := address(ev, "to")
	if err != nil {
		return nil, err
	}
	amt, err := amount(ev, "amount")
	if err != nil {
		return nil, err
	}
	return []any{underlying, to, amt}, nil
}

func lookup(ev chain.Event, name string) (any, error) {
	if v, ok := ev.Get(name); ok {
		return v, nil
	}
	if v, ok := ev.Get(snake(name)); ok {
		return v, nil
	}
	if v, ok := ev.Get("_" + name); ok {
		return v, nil
	}
	return nil, fmt.Errorf("missing field %q", name)
}

func address(ev chain.Event, name string) (common.Address, error) {
	v, err := lookup(ev, name)
	if err != nil {
		return common.Address{}, err
	}
	switch x := v.(type) {
	case common.Address:
		return x, nil
	case string:
		if common.IsHexAddress(x) {
			return common.HexToAddress(x), nil
		}
	}
	return common.Address{}, fmt.Errorf("field %q is not an address: %v", name, v)
}

func amount(ev chain.Event, name string) (*big.Int, error) {
	v, err := lookup(ev, name)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			break
		}
		return new(big.Int).Set(x), nil
	case uint64:
		return new(big.Int).SetUint64(x), nil
	}
	return nil, fmt.Errorf("field %q is not an integer: %v", name, v)
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
