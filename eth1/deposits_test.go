package eth1

import (
	"testing"

	"github.com/geanlabs/beacon/consensus"
	"github.com/geanlabs/beacon/ssz"
	"github.com/geanlabs/beacon/types"
)

func TestDepositTree_ProofsVerify(t *testing.T) {
	const depth = 32
	tree := NewDepositTree(depth)

	var leaves []types.Root
	for i := 0; i < 5; i++ {
		leaf := ssz.Hash([]byte{byte(i)})
		leaves = append(leaves, leaf)
		tree.Insert(leaf)
	}

	root := tree.Root()
	for i := uint64(0); i < 5; i++ {
		proof, err := tree.Proof(i)
		if err != nil {
			t.Fatalf("proof %d: %v", i, err)
		}
		if !consensus.IsValidMerkleBranch(leaves[i], proof[:], depth+1, i, root) {
			t.Fatalf("proof for leaf %d does not verify", i)
		}
	}
}

func TestDepositTree_RootChangesWithCount(t *testing.T) {
	tree := NewDepositTree(8)
	r0 := tree.Root()
	tree.Insert(ssz.Hash([]byte("leaf")))
	r1 := tree.Root()
	if r0 == r1 {
		t.Fatal("inserting a leaf must change the root")
	}
	if tree.Count() != 1 {
		t.Fatalf("count %d, want 1", tree.Count())
	}
}

func TestDepositTree_ProofBeyondSizeFails(t *testing.T) {
	tree := NewDepositTree(8)
	tree.Insert(ssz.Hash([]byte("only")))
	if _, err := tree.Proof(1); err == nil {
		t.Fatal("proof past the tree size should fail")
	}
}

func TestDepositTree_StaleProofAgainstNewRoot(t *testing.T) {
	const depth = 16
	tree := NewDepositTree(depth)
	leaf := ssz.Hash([]byte("first"))
	tree.Insert(leaf)
	proof, err := tree.Proof(0)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	oldRoot := tree.Root()

	// Growing the tree invalidates the old proof against the new root.
	tree.Insert(ssz.Hash([]byte("second")))
	if consensus.IsValidMerkleBranch(leaf, proof[:], depth+1, 0, tree.Root()) {
		t.Fatal("stale proof should not verify against the grown tree")
	}
	if !consensus.IsValidMerkleBranch(leaf, proof[:], depth+1, 0, oldRoot) {
		t.Fatal("proof should still verify against its own root")
	}
}
