package health

import (
	"context"
	"fmt"
	"sort"
)

// HeightReader is satisfied by chain.Client.
type HeightReader interface {
	CurrentHeight(ctx context.Context) (uint64, error)
}

// ChainChecker pings every ledger the relay talks to.
type ChainChecker struct {
	chains map[string]HeightReader
}

// NewChainChecker creates a checker over the named chain clients.
func NewChainChecker(chains map[string]HeightReader) *ChainChecker {
	return &ChainChecker{chains: chains}
}

// Ping asks each chain for its head. It reports the first failing chain in
// name order so the result is stable.
func (c *ChainChecker) Ping(ctx context.Context) error {
	names := make([]string, 0, len(c.chains))
	for name := range c.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := c.chains[name].CurrentHeight(ctx); err != nil {
			return fmt.Errorf("chain %s: %w", name, err)
		}
	}
	return nil
}
