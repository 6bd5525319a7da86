package pow

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
)

var (
	genesis = make([]byte, 32)
	txs     = []string{"alice pays bob 5", "bob pays carol 2"}
)

func TestTrailingZeroBits(t *testing.T) {
	cases := []struct {
		in   []byte
		want int
	}{
		{[]byte{0x01}, 0},
		{[]byte{0x80, 0x00}, 15},
		{[]byte{0xff, 0x10}, 4},
		{[]byte{0x00, 0x00}, 16},
	}
	for _, tc := range cases {
		if got := TrailingZeroBits(tc.in); got != tc.want {
			t.Errorf("TrailingZeroBits(%x) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestMineFindsSmallestNonce(t *testing.T) {
	nonce, err := Mine(context.Background(), 12, genesis, txs)
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	if got := hex.EncodeToString(nonce); got != "0000000000000a8c" {
		t.Fatalf("nonce = %s", got)
	}
	if !Verify(12, genesis, txs, nonce) {
		t.Fatalf("mined nonce does not verify")
	}
	if Verify(12, genesis, []string{"tampered"}, nonce) {
		t.Fatalf("nonce verified for different transactions")
	}
	if Verify(12, genesis, txs, nonce[:4]) {
		t.Fatalf("short nonce must not verify")
	}
}

func TestMineZeroDifficulty(t *testing.T) {
	nonce, err := Mine(context.Background(), 0, nil, nil)
	if err != nil || len(nonce) != NonceSize {
		t.Fatalf("nonce=%x err=%v", nonce, err)
	}
}

func TestMineValidatesAndCancels(t *testing.T) {
	if _, err := Mine(context.Background(), 257, genesis, txs); err == nil {
		t.Fatalf("expected range error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Mine(ctx, 200, genesis, txs); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
