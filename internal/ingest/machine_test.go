package ingest

import (
	"testing"

	"github.com/btcstate/chainstate/internal/blocksource"
	"github.com/btcstate/chainstate/internal/unstable"
	"github.com/btcstate/chainstate/internal/utxo"
	"github.com/btcstate/chainstate/pkg/btc"
)

func p2pkh(b byte) []byte {
	s := make([]byte, 25)
	s[0], s[1], s[2] = 0x76, 0xa9, 0x14
	for i := 3; i < 23; i++ {
		s[i] = b
	}
	s[23], s[24] = 0x88, 0xac
	return s
}

func coinbaseBlock(prev btc.Hash, nonce uint32, script []byte) *btc.Block {
	tx := &btc.Transaction{
		Version: 1,
		Inputs:  []btc.TxIn{{PrevOut: btc.OutPoint{Vout: 0xffffffff}, Sequence: 0xffffffff}},
		Outputs: []btc.TxOut{{Value: 5000000000, Script: script}},
	}
	return &btc.Block{
		Header:       btc.Header{Version: 1, PrevHash: prev, Bits: 0x1d00ffff, Nonce: nonce},
		Transactions: []*btc.Transaction{tx},
	}
}

func TestMachineIdleToIngestingWithNoBlocks(t *testing.T) {
	u := utxo.New(btc.Mainnet)
	tree := unstable.New(u, 0, btc.Hash{})
	src := blocksource.NewMemorySource()
	m := New(btc.Mainnet, src, tree, u)

	if err := m.Step(func() bool { return true }); err != nil {
		t.Fatal(err)
	}
	if m.State() != Ingesting {
		t.Fatalf("state = %v, want Ingesting", m.State())
	}
	if err := m.Step(func() bool { return true }); err != nil {
		t.Fatal(err)
	}
	if m.State() != Idle {
		t.Fatalf("state = %v, want Idle (no stable block yet)", m.State())
	}
}

func TestMachineStabilizesGenesis(t *testing.T) {
	u := utxo.New(btc.Mainnet)
	tree := unstable.New(u, 0, btc.Hash{})
	src := blocksource.NewMemorySource()

	genesis := coinbaseBlock(btc.Hash{}, 1, p2pkh(0xAA))
	src.AddBlock(btc.Hash{}, genesis.Bytes())

	m := New(btc.Mainnet, src, tree, u)

	// Idle -> Fetching/Ingesting: pulls genesis into the tree.
	if err := m.Step(func() bool { return true }); err != nil {
		t.Fatal(err)
	}
	if m.State() != Ingesting {
		t.Fatalf("state = %v, want Ingesting", m.State())
	}

	// Ingesting -> Stabilizing: k=0 means depth 0 already stable.
	if err := m.Step(func() bool { return true }); err != nil {
		t.Fatal(err)
	}
	if m.State() != Stabilizing {
		t.Fatalf("state = %v, want Stabilizing", m.State())
	}

	// Stabilizing -> Idle: apply_block runs to completion, re-triggering
	// the Idle->Fetching poll cycle for the next block.
	if err := m.Step(func() bool { return true }); err != nil {
		t.Fatal(err)
	}
	if m.State() != Idle {
		t.Fatalf("state = %v, want Idle", m.State())
	}
	if u.NextHeight() != 1 {
		t.Fatalf("next_height = %d, want 1", u.NextHeight())
	}

	addr, _ := btc.AddressForScript(btc.Mainnet, p2pkh(0xAA))
	if got := u.BalanceOf(addr); got != 5000000000 {
		t.Fatalf("balance = %d, want 5000000000", got)
	}
}

func TestMachineSnapshotRestoreRoundTrip(t *testing.T) {
	u := utxo.New(btc.Mainnet)
	tree := unstable.New(u, 0, btc.Hash{})
	src := blocksource.NewMemorySource()
	m := New(btc.Mainnet, src, tree, u)
	m.processed[btc.Hash{0x01}] = struct{}{}

	snap := m.Snapshot()

	restored := New(btc.Mainnet, src, tree, u)
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.State() != Idle {
		t.Fatalf("state = %v, want Idle", restored.State())
	}
	if _, ok := restored.processed[btc.Hash{0x01}]; !ok {
		t.Fatal("processed hash lost across snapshot/restore")
	}
}
