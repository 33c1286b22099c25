package engine

import (
	"testing"

	"github.com/btcstate/chainstate/config"
	"github.com/btcstate/chainstate/internal/blocksource"
	"github.com/btcstate/chainstate/internal/codec"
	"github.com/btcstate/chainstate/internal/pagestore"
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

func coinbaseBlockValue(prev btc.Hash, nonce uint32, script []byte, value uint64) *btc.Block {
	tx := &btc.Transaction{
		Version: 1,
		Inputs:  []btc.TxIn{{PrevOut: btc.OutPoint{Vout: 0xffffffff}, Sequence: 0xffffffff}},
		Outputs: []btc.TxOut{{Value: value, Script: script}},
	}
	return &btc.Block{
		Header:       btc.Header{Version: 1, PrevHash: prev, Bits: 0x1d00ffff, Nonce: nonce},
		Transactions: []*btc.Transaction{tx},
	}
}

func testConfig() *config.Config {
	cfg := config.Default(config.Mainnet)
	cfg.StabilityThreshold = 0
	cfg.AdminToken = "supersecret"
	return cfg
}

// runUntilIngesting steps the engine enough times to pull the genesis
// block (Idle->Ingesting), stabilize it (Ingesting->Stabilizing),
// fully apply it (Stabilizing->Idle), and re-poll the source once
// more (Idle->Ingesting), mirroring
// internal/ingest/machine_test.go's Step sequence.
func runUntilIngesting(t *testing.T, s *State) {
	t.Helper()
	for i := 0; i < 4; i++ {
		if err := s.Activate(func() bool { return true }); err != nil {
			t.Fatalf("activate: %v", err)
		}
	}
}

func TestGetBalanceAfterStabilizedCoinbase(t *testing.T) {
	cfg := testConfig()
	src := blocksource.NewMemorySource()
	genesis := coinbaseBlock(btc.Hash{}, 1, p2pkh(0xAA))
	src.AddBlock(btc.Hash{}, genesis.Bytes())

	s, err := New(cfg, pagestore.NewMemory(), src, btc.Hash{})
	if err != nil {
		t.Fatal(err)
	}
	runUntilIngesting(t, s)

	addr, _ := btc.AddressForScript(btc.Mainnet, p2pkh(0xAA))
	bal, err := s.GetBalance(addr, 0)
	if err != nil {
		t.Fatal(err)
	}
	if bal != 5000000000 {
		t.Fatalf("balance = %d, want 5000000000", bal)
	}
}

func TestGetBalanceRejectsMalformedAddress(t *testing.T) {
	cfg := testConfig()
	src := blocksource.NewMemorySource()
	s, err := New(cfg, pagestore.NewMemory(), src, btc.Hash{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetBalance(btc.Address(""), 0); err == nil {
		t.Fatal("want error for empty address")
	}
}

func TestSetConfigRequiresAdminToken(t *testing.T) {
	cfg := testConfig()
	src := blocksource.NewMemorySource()
	s, err := New(cfg, pagestore.NewMemory(), src, btc.Hash{})
	if err != nil {
		t.Fatal(err)
	}

	disable := config.FlagDisabled
	if err := s.SetConfig("wrong-token", SetConfigRequest{Syncing: &disable}); err != ErrUnauthorized {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if err := s.SetConfig(cfg.AdminToken, SetConfigRequest{Syncing: &disable}); err != nil {
		t.Fatal(err)
	}
	if s.cfg.Syncing != config.FlagDisabled {
		t.Fatalf("syncing = %v, want disabled", s.cfg.Syncing)
	}
}

func TestSetConfigUpdatesStabilityThreshold(t *testing.T) {
	cfg := testConfig()
	src := blocksource.NewMemorySource()
	s, err := New(cfg, pagestore.NewMemory(), src, btc.Hash{})
	if err != nil {
		t.Fatal(err)
	}
	k := uint32(6)
	if err := s.SetConfig(cfg.AdminToken, SetConfigRequest{StabilityThreshold: &k}); err != nil {
		t.Fatal(err)
	}
	if s.cfg.StabilityThreshold != 6 {
		t.Fatalf("threshold = %d, want 6", s.cfg.StabilityThreshold)
	}
}

func TestGetCurrentFeePercentilesEmptyBeforeAnyBlocks(t *testing.T) {
	cfg := testConfig()
	src := blocksource.NewMemorySource()
	s, err := New(cfg, pagestore.NewMemory(), src, btc.Hash{})
	if err != nil {
		t.Fatal(err)
	}
	if got := s.GetCurrentFeePercentiles(); got != nil {
		t.Fatalf("percentiles = %v, want nil", got)
	}
}

func TestPreUpgradePostUpgradeRoundTrip(t *testing.T) {
	cfg := testConfig()
	src := blocksource.NewMemorySource()
	genesis := coinbaseBlock(btc.Hash{}, 1, p2pkh(0xAA))
	src.AddBlock(btc.Hash{}, genesis.Bytes())

	store := pagestore.NewMemory()
	s, err := New(cfg, store, src, btc.Hash{})
	if err != nil {
		t.Fatal(err)
	}
	runUntilIngesting(t, s)

	if err := s.PreUpgrade(); err != nil {
		t.Fatal(err)
	}
	if err := s.PostUpgrade(); err != nil {
		t.Fatal(err)
	}

	addr, _ := btc.AddressForScript(btc.Mainnet, p2pkh(0xAA))
	bal, err := s.GetBalance(addr, 0)
	if err != nil {
		t.Fatal(err)
	}
	if bal != 5000000000 {
		t.Fatalf("balance after restore = %d, want 5000000000", bal)
	}
}

// runOneMoreBlock pushes a second block onto src (chained to the tip
// already held by s) and drives the engine until it is fully
// stabilized and applied.
func runOneMoreBlock(t *testing.T, s *State, src *blocksource.MemorySource, block *btc.Block, tip btc.Hash) {
	t.Helper()
	src.AddBlock(tip, block.Bytes())
	for i := 0; i < 4; i++ {
		if err := s.Activate(func() bool { return true }); err != nil {
			t.Fatalf("activate: %v", err)
		}
	}
}

func TestGetUTXOsPaginationAnchoredToTip(t *testing.T) {
	cfg := testConfig()
	src := blocksource.NewMemorySource()
	script := p2pkh(0xCC)
	genesis := coinbaseBlockValue(btc.Hash{}, 1, script, 1000)
	src.AddBlock(btc.Hash{}, genesis.Bytes())

	s, err := New(cfg, pagestore.NewMemory(), src, btc.Hash{})
	if err != nil {
		t.Fatal(err)
	}
	runUntilIngesting(t, s)

	second := coinbaseBlockValue(genesis.Hash(), 2, script, 2000)
	runOneMoreBlock(t, s, src, second, genesis.Hash())

	addr, _ := btc.AddressForScript(btc.Mainnet, script)

	page1, next1, err := s.GetUTXOs(addr, UTXOFilter{Limit: 1})
	if err != nil {
		t.Fatalf("page1: %v", err)
	}
	if len(page1) != 1 || next1 == nil {
		t.Fatalf("page1 = %+v, next = %v; want 1 entry and a continuation cursor", page1, next1)
	}
	if page1[0].Height != 1 {
		t.Fatalf("page1 height = %d, want 1 (newest first)", page1[0].Height)
	}

	page2, next2, err := s.GetUTXOs(addr, UTXOFilter{Limit: 1, Cursor: next1})
	if err != nil {
		t.Fatalf("page2: %v", err)
	}
	if len(page2) != 1 || next2 != nil {
		t.Fatalf("page2 = %+v, next = %v; want 1 entry and no further page", page2, next2)
	}
	if page2[0].Height != 0 {
		t.Fatalf("page2 height = %d, want 0", page2[0].Height)
	}

	tipHash, height, txid, vout, err := codec.DecodePage(next1)
	if err != nil {
		t.Fatalf("decode cursor: %v", err)
	}
	tipHash[0] ^= 0xFF
	stale := codec.EncodePage(tipHash, height, txid, vout)
	if _, _, err := s.GetUTXOs(addr, UTXOFilter{Limit: 1, Cursor: stale}); err == nil {
		t.Fatal("expected error for cursor anchored to a stale tip")
	}
}
