// Package pow searches block nonces whose sha256 digest ends in a number of
// zero bits.
package pow

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"math"
	"math/bits"
	"strings"
)

// NonceSize is the length of an encoded nonce.
const NonceSize = 8

// ErrExhausted is returned when no 8-byte nonce satisfies the difficulty.
var ErrExhausted = errors.New("nonce space exhausted")

// TrailingZeroBits counts the zero bits at the least significant end of digest
// read as a big-endian integer.
func TrailingZeroBits(digest []byte) int {
	n := 0
	for i := len(digest) - 1; i >= 0; i-- {
		if digest[i] != 0 {
			return n + bits.TrailingZeros8(digest[i])
		}
		n += 8
	}
	return n
}

// Mine finds the smallest nonce such that sha256(prev || lines || nonce) has
// at least k trailing zero bits. Lines are concatenated without separators.
func Mine(ctx context.Context, k int, prev []byte, lines []string) ([]byte, error) {
	if k < 0 || k > sha256.Size*8 {
		return nil, fmt.Errorf("difficulty %d out of range [0,256]", k)
	}
	h := sha256.New()
	prefix := blockPrefix(prev, lines)
	var (
		nonce  [NonceSize]byte
		digest [sha256.Size]byte
	)
	for n := uint64(0); ; n++ {
		if n&0xfff == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		binary.BigEndian.PutUint64(nonce[:], n)
		if TrailingZeroBits(sum(h, prefix, nonce[:], digest[:0])) >= k {
			return append([]byte(nil), nonce[:]...), nil
		}
		if n == math.MaxUint64 {
			return nil, ErrExhausted
		}
	}
}

// Verify reports whether nonce meets difficulty k for the block.
func Verify(k int, prev []byte, lines []string, nonce []byte) bool {
	if len(nonce) != NonceSize {
		return false
	}
	digest := sum(sha256.New(), blockPrefix(prev, lines), nonce, nil)
	return TrailingZeroBits(digest) >= k
}

func blockPrefix(prev []byte, lines []string) []byte {
	return append(append([]byte(nil), prev...), strings.Join(lines, "")...)
}

func sum(h hash.Hash, prefix, nonce, buf []byte) []byte {
	h.Reset()
	h.Write(prefix)
	h.Write(nonce)
	return h.Sum(buf)
}
