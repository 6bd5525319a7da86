package health

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type heightFunc func(ctx context.Context) (uint64, error)

func (f heightFunc) CurrentHeight(ctx context.Context) (uint64, error) { return f(ctx) }

func TestChainCheckerPing(t *testing.T) {
	up := heightFunc(func(context.Context) (uint64, error) { return 10, nil })
	down := heightFunc(func(context.Context) (uint64, error) { return 0, errors.New("dial tcp: refused") })

	if err := NewChainChecker(map[string]HeightReader{"source": up, "destination": up}).Ping(context.Background()); err != nil {
		t.Fatalf("healthy chains: %v", err)
	}

	err := NewChainChecker(map[string]HeightReader{"source": up, "destination": down}).Ping(context.Background())
	if err == nil || !strings.Contains(err.Error(), "chain destination") {
		t.Fatalf("expected destination failure, got %v", err)
	}

	if err := NewChainChecker(nil).Ping(context.Background()); err != nil {
		t.Fatalf("empty checker: %v", err)
	}
}
