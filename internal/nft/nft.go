// Package nft reads ownership and metadata of a token held in an ERC-721
// registry.
package nft

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Caller runs read-only contract calls; chain.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, args ...any) ([]any, error)
}

// Fetcher loads a JSON metadata document; blob.Client satisfies it.
type Fetcher interface {
	FetchURL(ctx context.Context, url string) (map[string]any, error)
}

// Attribute is one metadata trait.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

// Info describes one token.
type Info struct {
	ID         *big.Int       `json:"id"`
	Owner      common.Address `json:"owner"`
	TokenURI   string         `json:"token_uri"`
	Image      string         `json:"image"`
	Attributes []Attribute    `json:"attributes"`
}

// Trait returns the value of the named trait.
func (i Info) Trait(name string) (any, bool) {
	for _, a := range i.Attributes {
		if a.TraitType == name {
			return a.Value, true
		}
	}
	return nil, false
}

// Lookup resolves owner, metadata URI and metadata for token id.
func Lookup(ctx context.Context, caller Caller, fetcher Fetcher, id *big.Int) (Info, error) {
	if id == nil || id.Sign() < 0 {
		return Info{}, errors.New("token id must be non-negative")
	}
	info := Info{ID: new(big.Int).Set(id)}

	out, err := caller.Call(ctx, "ownerOf", id)
	if err != nil {
		return Info{}, fmt.Errorf("ownerOf %s: %w", id, err)
	}
	owner, ok := single[common.Address](out)
	if !ok {
		return Info{}, fmt.Errorf("ownerOf %s: unexpected output %v", id, out)
	}
	info.Owner = owner

	out, err = caller.Call(ctx, "tokenURI", id)
	if err != nil {
		return Info{}, fmt.Errorf("tokenURI %s: %w", id, err)
	}
	if info.TokenURI, ok = single[string](out); !ok {
		return Info{}, fmt.Errorf("tokenURI %s: unexpected output %v", id, out)
	}
	if info.TokenURI == "" {
		return info, nil
	}

	meta, err := fetcher.FetchURL(ctx, info.TokenURI)
	if err != nil {
		return Info{}, fmt.Errorf("metadata %s: %w", id, err)
	}
	info.Image, _ = meta["image"].(string)
	if attrs, ok := meta["attributes"].([]any); ok {
		for _, raw := range attrs {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name, _ := m["trait_type"].(string)
			info.Attributes = append(info.Attributes, Attribute{TraitType: name, Value: m["value"]})
		}
	}
	return info, nil
}

func single[T any](out []any) (T, bool) {
	var zero T
	if len(out) != 1 {
		return zero, false
	}
	v, ok := out[0].(T)
	return v, ok
}
