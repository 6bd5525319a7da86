package nft

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/ethereum/go-ethereum/common"
)

type fakeRegistry struct {
	owners map[int64]common.Address
	uris   map[int64]string
}

func (f *fakeRegistry) Call(_ context.Context, method string, args ...any) ([]any, error) {
	id := args[0].(*big.Int).Int64()
	switch method {
	case "ownerOf":
		owner, ok := f.owners[id]
		if !ok {
			return nil, chain.ErrContractCall
		}
		return []any{owner}, nil
	case "tokenURI":
		return []any{f.uris[id]}, nil
	}
	return nil, errors.New("unexpected method " + method)
}

type fakeFetcher struct {
	docs map[string]map[string]any
	urls []string
}

func (f *fakeFetcher) FetchURL(_ context.Context, url string) (map[string]any, error) {
	f.urls = append(f.urls, url)
	doc, ok := f.docs[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return doc, nil
}

func TestLookup(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	reg := &fakeRegistry{
		owners: map[int64]common.Address{1: owner, 2: owner},
		uris:   map[int64]string{1: "ipfs://QmMeta/1"},
	}
	fetch := &fakeFetcher{docs: map[string]map[string]any{
		"ipfs://QmMeta/1": {
			"image": "ipfs://QmImage",
			"attributes": []any{
				map[string]any{"trait_type": "Eyes", "value": "Bored"},
				map[string]any{"trait_type": "Fur", "value": "Gold"},
				"garbage",
			},
		},
	}}

	info, err := Lookup(context.Background(), reg, fetch, big.NewInt(1))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if info.Owner != owner || info.Image != "ipfs://QmImage" || len(info.Attributes) != 2 {
		t.Fatalf("info = %+v", info)
	}
	if eyes, ok := info.Trait("Eyes"); !ok || eyes != "Bored" {
		t.Fatalf("eyes = %v", eyes)
	}
	if _, ok := info.Trait("Hat"); ok {
		t.Fatalf("unexpected trait")
	}

	// No token URI: owner only, no metadata fetch.
	info, err = Lookup(context.Background(), reg, fetch, big.NewInt(2))
	if err != nil || info.Image != "" || len(fetch.urls) != 1 {
		t.Fatalf("info=%+v err=%v fetches=%d", info, err, len(fetch.urls))
	}
}

func TestLookupErrors(t *testing.T) {
	reg := &fakeRegistry{owners: map[int64]common.Address{3: {}}, uris: map[int64]string{3: "https://meta/3"}}
	fetch := &fakeFetcher{}

	if _, err := Lookup(context.Background(), reg, fetch, big.NewInt(9)); !errors.Is(err, chain.ErrContractCall) {
		t.Fatalf("expected contract call error, got %v", err)
	}
	if _, err := Lookup(context.Background(), reg, fetch, big.NewInt(3)); err == nil {
		t.Fatalf("expected metadata error")
	}
	if _, err := Lookup(context.Background(), reg, fetch, big.NewInt(-1)); err == nil {
		t.Fatalf("expected error for negative id")
	}
}
