package forkchoice

import (
	"testing"

	"github.com/geanlabs/beacon/types"
)

func root(b byte) types.Root {
	var r types.Root
	r[0] = b
	return r
}

func TestGetHead_TieBreaksToSmallestRoot(t *testing.T) {
	justified := root(0xf0)
	blocks := map[types.Root]Node{}
	blocks[justified] = Node{Slot: 0}
	b1 := root(0x01)
	b2 := root(0x02)
	blocks[b1] = Node{Slot: 1, ParentRoot: justified}
	blocks[b2] = Node{Slot: 1, ParentRoot: justified}

	head, err := GetHead(blocks, justified, nil, nil)
	if err != nil {
		t.Fatalf("get head: %v", err)
	}
	if head != b1 {
		t.Fatalf("zero-vote tie should pick the lexicographically smaller root, got %x", head)
	}
}

func TestGetHead_FollowsVoteWeight(t *testing.T) {
	justified := root(0xf0)
	b1, b2 := root(0x01), root(0x02)
	b2child := root(0x03)

	blocks := map[types.Root]Node{
		justified: {Slot: 0},
		b1:        {Slot: 1, ParentRoot: justified},
		b2:        {Slot: 1, ParentRoot: justified},
		b2child:   {Slot: 2, ParentRoot: b2},
	}
	votes := map[types.ValidatorIndex]Vote{
		0: {Root: b2child, Epoch: 1},
	}
	balances := map[types.ValidatorIndex]types.Gwei{0: 32}

	head, err := GetHead(blocks, justified, votes, balances)
	if err != nil {
		t.Fatalf("get head: %v", err)
	}
	if head != b2child {
		t.Fatalf("vote for the b2 branch should win, got %x", head)
	}
}

func TestGetHead_WeightOutweighsTieBreak(t *testing.T) {
	justified := root(0xf0)
	b1, b2 := root(0x01), root(0x02)
	blocks := map[types.Root]Node{
		justified: {Slot: 0},
		b1:        {Slot: 1, ParentRoot: justified},
		b2:        {Slot: 1, ParentRoot: justified},
	}
	// Two small votes on b1, one big vote on b2.
	votes := map[types.ValidatorIndex]Vote{
		0: {Root: b1}, 1: {Root: b1}, 2: {Root: b2},
	}
	balances := map[types.ValidatorIndex]types.Gwei{0: 1, 1: 1, 2: 31}

	head, err := GetHead(blocks, justified, votes, balances)
	if err != nil {
		t.Fatalf("get head: %v", err)
	}
	if head != b2 {
		t.Fatalf("balance-weighted vote should win over the tie break, got %x", head)
	}
}

func TestGetHead_IgnoresBlocksAtJustifiedSlot(t *testing.T) {
	justified := root(0xf0)
	stale := root(0x01) // same slot as justified: not a candidate
	child := root(0x02)
	blocks := map[types.Root]Node{
		justified: {Slot: 5},
		stale:     {Slot: 5, ParentRoot: justified},
		child:     {Slot: 6, ParentRoot: justified},
	}
	head, err := GetHead(blocks, justified, nil, nil)
	if err != nil {
		t.Fatalf("get head: %v", err)
	}
	if head != child {
		t.Fatalf("blocks at the justified slot must be skipped, got %x", head)
	}
}

func TestGetHead_Deterministic(t *testing.T) {
	justified := root(0xf0)
	blocks := map[types.Root]Node{justified: {Slot: 0}}
	for i := byte(1); i <= 8; i++ {
		blocks[root(i)] = Node{Slot: types.Slot(i), ParentRoot: root(i - 1)}
	}
	blocks[root(1)] = Node{Slot: 1, ParentRoot: justified}

	votes := map[types.ValidatorIndex]Vote{
		0: {Root: root(8)}, 1: {Root: root(4)},
	}
	balances := map[types.ValidatorIndex]types.Gwei{0: 1, 1: 1}

	first, err := GetHead(blocks, justified, votes, balances)
	if err != nil {
		t.Fatalf("get head: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := GetHead(blocks, justified, votes, balances)
		if err != nil {
			t.Fatalf("get head: %v", err)
		}
		if again != first {
			t.Fatal("identical inputs produced different heads")
		}
	}
	if first != root(8) {
		t.Fatalf("deepest voted chain should win, got %x", first)
	}
}

func TestGetHead_UnknownJustified(t *testing.T) {
	if _, err := GetHead(map[types.Root]Node{}, root(0x01), nil, nil); err == nil {
		t.Fatal("missing justified block should fail")
	}
}

func TestStore_LatestVoteWins(t *testing.T) {
	anchor := root(0xa0)
	store := NewStore(anchor, 0, types.Checkpoint{Root: anchor})
	b1, b2 := root(0x01), root(0x02)
	store.AddBlock(b1, 1, anchor)
	store.AddBlock(b2, 1, anchor)
	store.SetBalances(map[types.ValidatorIndex]types.Gwei{0: 32})

	store.ProcessAttestation(0, b2, 2)
	// An older vote must not displace the newer one.
	store.ProcessAttestation(0, b1, 1)

	head, err := store.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head != b2 {
		t.Fatalf("latest vote should hold, got %x", head)
	}
}

func TestGetAncestor(t *testing.T) {
	a, b, c := root(0x0a), root(0x0b), root(0x0c)
	blocks := map[types.Root]Node{
		a: {Slot: 1},
		b: {Slot: 2, ParentRoot: a},
		c: {Slot: 5, ParentRoot: b},
	}
	got, err := GetAncestor(blocks, c, 2)
	if err != nil {
		t.Fatalf("ancestor: %v", err)
	}
	if got != b {
		t.Fatalf("ancestor at slot 2 should be b, got %x", got)
	}
	got, _ = GetAncestor(blocks, c, 1)
	if got != a {
		t.Fatalf("ancestor at slot 1 should be a, got %x", got)
	}
}
