// Package eth1 is the deposit-contract collaborator boundary: an opaque
// source of chronologically ordered deposits with Merkle proofs, plus the
// in-memory deposit tree used by genesis tooling and tests.
package eth1

import (
	"fmt"

	"github.com/geanlabs/beacon/ssz"
	"github.com/geanlabs/beacon/types"
)

// DepositSource yields deposits in contract order. The log follower that
// implements it against a real chain lives outside the core.
type DepositSource interface {
	// DepositsUpTo returns deposits with contract index in [from, to).
	DepositsUpTo(from, to uint64) ([]types.Deposit, error)
	// DepositRoot returns the tree root after count deposits.
	DepositRoot(count uint64) (types.Root, error)
}

// DepositTree is the deposit contract's incremental Merkle tree: leaves are
// deposit-data roots, the published root mixes in the leaf count one level
// above the tree.
type DepositTree struct {
	depth  uint64
	leaves []types.Root
}

// NewDepositTree creates a tree of the contract's depth.
func NewDepositTree(depth uint64) *DepositTree {
	return &DepositTree{depth: depth}
}

// Insert appends a deposit-data root as the next leaf.
func (t *DepositTree) Insert(leaf types.Root) {
	t.leaves = append(t.leaves, leaf)
}

// Count returns the number of deposits inserted.
func (t *DepositTree) Count() uint64 { return uint64(len(t.leaves)) }

// Root returns the contract's deposit root: the padded tree root with the
// count chunk mixed in.
func (t *DepositTree) Root() types.Root {
	node := t.subtreeRoot(0, t.depth)
	return hashPair(node, countChunk(uint64(len(t.leaves))))
}

// Proof returns the Merkle branch for the leaf at index, with the count
// chunk as its final element, matching the depth+1 verification the state
// transition runs.
func (t *DepositTree) Proof(index uint64) ([types.DepositProofLength]types.Root, error) {
	var proof [types.DepositProofLength]types.Root
	if index >= uint64(len(t.leaves)) {
		return proof, fmt.Errorf("deposit index %d beyond tree size %d", index, len(t.leaves))
	}
	for level := uint64(0); level < t.depth; level++ {
		sibling := (index >> level) ^ 1
		proof[level] = t.subtreeRoot(sibling<<level, level)
	}
	proof[t.depth] = countChunk(uint64(len(t.leaves)))
	return proof, nil
}

// subtreeRoot hashes the subtree of the given height starting at leaf
// offset start, padding absent leaves with zero hashes.
func (t *DepositTree) subtreeRoot(start, height uint64) types.Root {
	if start >= uint64(len(t.leaves)) {
		return ssz.ZeroHash(int(height))
	}
	if height == 0 {
		return t.leaves[start]
	}
	half := uint64(1) << (height - 1)
	left := t.subtreeRoot(start, height-1)
	right := t.subtreeRoot(start+half, height-1)
	return hashPair(left, right)
}

func hashPair(a, b types.Root) types.Root {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return ssz.Hash(buf[:])
}

func countChunk(count uint64) types.Root {
	return ssz.ChunkUint64(count)
}
