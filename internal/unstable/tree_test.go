package unstable

import (
	"testing"

	"github.com/btcstate/chainstate/internal/utxo"
	"github.com/btcstate/chainstate/pkg/btc"
)

func mkBlock(prev btc.Hash, nonce uint32) *btc.Block {
	return &btc.Block{
		Header: btc.Header{
			Version:  1,
			PrevHash: prev,
			Bits:     0x1d00ffff,
			Nonce:    nonce,
		},
	}
}

func TestPushRejectsUnknownPrev(t *testing.T) {
	u := utxo.New(btc.Mainnet)
	tree := New(u, 2, btc.Hash{})
	orphan := mkBlock(btc.Hash{0x99}, 1)
	if err := tree.Push(orphan); err != ErrUnknownPrev {
		t.Fatalf("err = %v, want ErrUnknownPrev", err)
	}
}

func TestPushRejectsDuplicate(t *testing.T) {
	u := utxo.New(btc.Mainnet)
	tree := New(u, 2, btc.Hash{})
	b := mkBlock(btc.Hash{}, 1)
	if err := tree.Push(b); err != nil {
		t.Fatal(err)
	}
	if err := tree.Push(b); err != ErrBlockAlreadySeen {
		t.Fatalf("err = %v, want ErrBlockAlreadySeen", err)
	}
}

func TestPopStableSingleChainRequiresDepth(t *testing.T) {
	u := utxo.New(btc.Mainnet)
	tree := New(u, 2, btc.Hash{})

	b1 := mkBlock(btc.Hash{}, 1)
	if err := tree.Push(b1); err != nil {
		t.Fatal(err)
	}
	if got := tree.PopStable(); got != nil {
		t.Fatal("expected no stable block yet (depth 1 < k=2)")
	}

	b2 := mkBlock(b1.Hash(), 2)
	if err := tree.Push(b2); err != nil {
		t.Fatal(err)
	}
	got := tree.PopStable()
	if got == nil {
		t.Fatal("expected b1 to become stable (depth 2 >= k=2)")
	}
	if got.Hash() != b1.Hash() {
		t.Fatalf("stable block = %x, want %x", got.Hash(), b1.Hash())
	}
}

func TestPopStablePrefersLongerFork(t *testing.T) {
	u := utxo.New(btc.Mainnet)
	tree := New(u, 2, btc.Hash{})

	forkA := mkBlock(btc.Hash{}, 1)
	forkB := mkBlock(btc.Hash{}, 2)
	if err := tree.Push(forkA); err != nil {
		t.Fatal(err)
	}
	if err := tree.Push(forkB); err != nil {
		t.Fatal(err)
	}

	// Extend fork A twice so it is 2 blocks ahead of B.
	a2 := mkBlock(forkA.Hash(), 3)
	a3 := mkBlock(a2.Hash(), 4)
	if err := tree.Push(a2); err != nil {
		t.Fatal(err)
	}
	if err := tree.Push(a3); err != nil {
		t.Fatal(err)
	}

	got := tree.PopStable()
	if got == nil {
		t.Fatal("expected fork A's root to become stable")
	}
	if got.Hash() != forkA.Hash() {
		t.Fatalf("stable block = %x, want forkA %x", got.Hash(), forkA.Hash())
	}
	// forkB's subtree must have been pruned.
	if len(tree.nodes) != 2 {
		t.Fatalf("remaining nodes = %d, want 2 (a2, a3)", len(tree.nodes))
	}
}

func TestPopStableNoneWhenForksTooClose(t *testing.T) {
	u := utxo.New(btc.Mainnet)
	tree := New(u, 2, btc.Hash{})

	forkA := mkBlock(btc.Hash{}, 1)
	forkB := mkBlock(btc.Hash{}, 2)
	if err := tree.Push(forkA); err != nil {
		t.Fatal(err)
	}
	if err := tree.Push(forkB); err != nil {
		t.Fatal(err)
	}
	if got := tree.PopStable(); got != nil {
		t.Fatal("expected no stable block: forks are tied, no lead")
	}
}

func TestTipHashesAndMainChainHeight(t *testing.T) {
	u := utxo.New(btc.Mainnet)
	tree := New(u, 100, btc.Hash{})

	b1 := mkBlock(btc.Hash{}, 1)
	b2a := mkBlock(b1.Hash(), 2)
	b2b := mkBlock(b1.Hash(), 3)
	for _, b := range []*btc.Block{b1, b2a, b2b} {
		if err := tree.Push(b); err != nil {
			t.Fatal(err)
		}
	}

	tips := tree.TipHashes()
	if len(tips) != 2 {
		t.Fatalf("tips = %d, want 2", len(tips))
	}
	if tree.MainChainHeight() != 1 {
		t.Fatalf("main_chain_height = %d, want 1", tree.MainChainHeight())
	}
}

func TestTipHash(t *testing.T) {
	u := utxo.New(btc.Mainnet)
	tree := New(u, 100, btc.Hash{})

	if got := tree.TipHash(); got != (btc.Hash{}) {
		t.Fatalf("empty tree tip = %x, want anchor hash", got)
	}

	b1 := mkBlock(btc.Hash{}, 1)
	forkA := mkBlock(b1.Hash(), 2)
	forkB := mkBlock(b1.Hash(), 3)
	a2 := mkBlock(forkA.Hash(), 4)
	for _, b := range []*btc.Block{b1, forkA, forkB, a2} {
		if err := tree.Push(b); err != nil {
			t.Fatal(err)
		}
	}

	if got, want := tree.TipHash(), a2.Hash(); got != want {
		t.Fatalf("tip = %x, want %x (longer fork)", got, want)
	}
}

func TestBestChainOrderAndChoice(t *testing.T) {
	u := utxo.New(btc.Mainnet)
	tree := New(u, 100, btc.Hash{})

	b1 := mkBlock(btc.Hash{}, 1)
	forkA := mkBlock(b1.Hash(), 2)
	forkB := mkBlock(b1.Hash(), 3)
	a2 := mkBlock(forkA.Hash(), 4)
	for _, b := range []*btc.Block{b1, forkA, forkB, a2} {
		if err := tree.Push(b); err != nil {
			t.Fatal(err)
		}
	}

	chain := tree.BestChain()
	if len(chain) != 3 {
		t.Fatalf("len(chain) = %d, want 3", len(chain))
	}
	want := []btc.Hash{b1.Hash(), forkA.Hash(), a2.Hash()}
	for i, b := range chain {
		if b.Hash() != want[i] {
			t.Fatalf("chain[%d] = %x, want %x", i, b.Hash(), want[i])
		}
	}
}

func TestSetStabilityThresholdDoesNotPromote(t *testing.T) {
	u := utxo.New(btc.Mainnet)
	tree := New(u, 100, btc.Hash{})
	b1 := mkBlock(btc.Hash{}, 1)
	if err := tree.Push(b1); err != nil {
		t.Fatal(err)
	}
	tree.SetStabilityThreshold(0)
	// set_stability_threshold must not itself trigger promotion; a
	// subsequent PopStable call is what applies the new threshold.
	if len(tree.nodes) != 1 {
		t.Fatal("node unexpectedly removed by SetStabilityThreshold")
	}
	got := tree.PopStable()
	if got == nil {
		t.Fatal("expected promotion on next PopStable with k=0")
	}
}
