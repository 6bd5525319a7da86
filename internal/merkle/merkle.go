// Package merkle builds keccak256 Merkle trees compatible with OpenZeppelin's
// MerkleProof: each parent hashes its children in sorted order.
package merkle

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Tree holds every level; Levels[0] are the leaves and the last level is the root.
type Tree struct {
	Levels [][]common.Hash
}

// PrimeLeaves returns the first n primes encoded as big-endian bytes32 leaves.
func PrimeLeaves(n int) []common.Hash {
	out := make([]common.Hash, 0, n)
	for p := 2; len(out) < n; p++ {
		if isPrime(p) {
			out = append(out, common.BigToHash(big.NewInt(int64(p))))
		}
	}
	return out
}

func isPrime(n int) bool {
	if n <= 3 {
		return n > 1
	}
	if n%2 == 0 || n%3 == 0 {
		return false
	}
	for i := 5; i*i <= n; i += 6 {
		if n%i == 0 || n%(i+2) == 0 {
			return false
		}
	}
	return true
}

// HashPair is keccak256(min(a,b) || max(a,b)).
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

// Build constructs the tree. A level with an odd number of nodes pairs its
// last node with itself.
func Build(leaves []common.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, errors.New("merkle: no leaves")
	}
	level := append([]common.Hash(nil), leaves...)
	t := &Tree{Levels: [][]common.Hash{level}}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, HashPair(level[i], right))
		}
		t.Levels = append(t.Levels, next)
		level = next
	}
	return t, nil
}

func (t *Tree) Root() common.Hash { return t.Levels[len(t.Levels)-1][0] }
func (t *Tree) Leaves() int       { return len(t.Levels[0]) }

// Proof returns the sibling path of leaf i, bottom up.
func (t *Tree) Proof(i int) ([]common.Hash, error) {
	if i < 0 || i >= t.Leaves() {
		return nil, fmt.Errorf("merkle: leaf %d out of range [0,%d)", i, t.Leaves())
	}
	proof := make([]common.Hash, 0, len(t.Levels)-1)
	for _, level := range t.Levels[:len(t.Levels)-1] {
		sibling := i ^ 1
		if sibling >= len(level) {
			sibling = i
		}
		proof = append(proof, level[sibling])
		i /= 2
	}
	return proof, nil
}

// Verify folds proof over leaf and compares with root.
func Verify(root, leaf common.Hash, proof []common.Hash) bool {
	h := leaf
	for _, p := range proof {
		h = HashPair(h, p)
	}
	return h == root
}
