package merkle

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestPrimeLeaves(t *testing.T) {
	leaves := PrimeLeaves(10)
	want := []int64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29}
	if len(leaves) != len(want) {
		t.Fatalf("len = %d", len(leaves))
	}
	for i, w := range want {
		if leaves[i].Big().Int64() != w {
			t.Fatalf("leaf %d = %s, want %d", i, leaves[i].Big(), w)
		}
	}
	if got := PrimeLeaves(8192)[8191].Big(); got.Cmp(big.NewInt(84017)) != 0 {
		t.Fatalf("8192nd prime = %s", got)
	}
}

func TestHashPairIsOrderIndependent(t *testing.T) {
	a, b := common.HexToHash("0x01"), common.HexToHash("0x02")
	if HashPair(a, b) != HashPair(b, a) {
		t.Fatalf("pair hash depends on order")
	}
	if HashPair(a, b) != crypto.Keccak256Hash(a[:], b[:]) {
		t.Fatalf("pair hash must hash the smaller value first")
	}
}

func TestBuildSmallTree(t *testing.T) {
	leaves := PrimeLeaves(3)
	tree, err := Build(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ab := HashPair(leaves[0], leaves[1])
	cc := HashPair(leaves[2], leaves[2])
	if tree.Root() != HashPair(ab, cc) {
		t.Fatalf("unexpected root for odd level duplication")
	}
	if len(tree.Levels) != 3 {
		t.Fatalf("levels = %d", len(tree.Levels))
	}
}

func TestProofsVerify(t *testing.T) {
	for _, n := range []int{1, 2, 5, 8, 13, 100} {
		leaves := PrimeLeaves(n)
		tree, err := Build(leaves)
		if err != nil {
			t.Fatalf("build %d: %v", n, err)
		}
		for i := range leaves {
			proof, err := tree.Proof(i)
			if err != nil {
				t.Fatalf("proof %d/%d: %v", i, n, err)
			}
			if !Verify(tree.Root(), leaves[i], proof) {
				t.Fatalf("proof for leaf %d of %d does not verify", i, n)
			}
		}
	}
}

func TestProofRejectsTampering(t *testing.T) {
	leaves := PrimeLeaves(8)
	tree, _ := Build(leaves)
	proof, _ := tree.Proof(3)
	if Verify(tree.Root(), leaves[4], proof) {
		t.Fatalf("proof verified for the wrong leaf")
	}
	proof[0] = common.HexToHash("0xdead")
	if Verify(tree.Root(), leaves[3], proof) {
		t.Fatalf("tampered proof verified")
	}
	if _, err := tree.Proof(8); err == nil {
		t.Fatalf("expected out of range error")
	}
	if _, err := Build(nil); err == nil {
		t.Fatalf("expected error for empty leaves")
	}
}
