package relay

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestCompilePredicates_BigIntComparisons(t *testing.T) {
	huge, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	cases := []struct {
		expr string
		val  any
		want bool
	}{
		{"amount > 0", big.NewInt(500), true},
		{"amount > 0", big.NewInt(0), false},
		{"amount >= 500", big.NewInt(500), true},
		{"amount < 1e3", big.NewInt(999), true},
		{"amount <= ether(1)", new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil), true},
		{"amount < ether(1)", new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil), false},
		{"amount > gwei(30)", big.NewInt(30_000_000_001), true},
		{"amount == 1_000 * 1e6", big.NewInt(1_000_000_000), true},
		{"amount != 5", uint64(5), false},
		{"amount > 1e76", huge, true},
		{"amount > 0.5", big.NewInt(1), true},
	}
	for _, tc := range cases {
		preds, err := CompilePredicates([]string{tc.expr})
		if err != nil {
			t.Fatalf("compile %q: %v", tc.expr, err)
		}
		got, err := preds[0](map[string]any{"amount": tc.val})
		if err != nil {
			t.Fatalf("eval %q: %v", tc.expr, err)
		}
		if got != tc.want {
			t.Errorf("%q with %v = %v, want %v", tc.expr, tc.val, got, tc.want)
		}
	}
}

func TestCompilePredicates_AddressMatching(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000aB")
	preds, err := CompilePredicates([]string{
		"token in 0x00000000000000000000000000000000000000ab, 0x01",
		"token == 0x00000000000000000000000000000000000000AB",
		"recipient contains dead",
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	args := map[string]any{
		"token":     token,
		"recipient": common.HexToAddress("0x000000000000000000000000000000000000dEaD"),
	}
	ok, err := allPredicates(preds, args)
	if err != nil || !ok {
		t.Fatalf("expected all predicates to pass, ok=%v err=%v", ok, err)
	}
}

func TestCompilePredicates_MissingFieldFails(t *testing.T) {
	preds, err := CompilePredicates([]string{"fee > 1"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if ok, _ := preds[0](map[string]any{"amount": big.NewInt(2)}); ok {
		t.Fatalf("missing field must not match")
	}
}

func TestCompilePredicates_Invalid(t *testing.T) {
	for _, expr := range []string{"amount", "amount > abc", " in a,b", "> 5"} {
		if _, err := CompilePredicates([]string{expr}); err == nil {
			t.Errorf("expected error for %q", expr)
		}
	}
}

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(2, 1) // capacity=2, 1 token/sec
	now := time.Now()

	if !tb.Allow(now) || !tb.Allow(now) {
		t.Fatalf("expected initial tokens available")
	}
	if tb.Allow(now) {
		t.Fatalf("expected third to be rate-limited")
	}
	if d := tb.Delay(); d <= 0 || d > time.Second {
		t.Fatalf("unexpected delay %s", d)
	}

	now = now.Add(1500 * time.Millisecond)
	if !tb.Allow(now) {
		t.Fatalf("expected token after refill")
	}
}
