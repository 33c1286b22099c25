package utxo

import (
	"testing"

	"github.com/btcstate/chainstate/pkg/btc"
)

func testTxid(b byte) btc.Txid {
	var h btc.Txid
	for i := range h {
		h[i] = b
	}
	return h
}

func p2pkhScript(hash160 byte) []byte {
	s := make([]byte, 25)
	s[0] = 0x76
	s[1] = 0xa9
	s[2] = 0x14
	for i := 3; i < 23; i++ {
		s[i] = hash160
	}
	s[23] = 0x88
	s[24] = 0xac
	return s
}

func TestInsertAndRemoveUTXO(t *testing.T) {
	s := New(btc.Mainnet)
	op := btc.OutPoint{Txid: testTxid(1), Vout: 0}
	out := btc.TxOut{Value: 5000000000, Script: p2pkhScript(0xAA)}

	if err := s.InsertUTXO(op, out, 0); err != nil {
		t.Fatalf("insert: %v", err)
	}

	addr, ok := btc.AddressForScript(btc.Mainnet, out.Script)
	if !ok {
		t.Fatal("expected address")
	}
	if got := s.BalanceOf(addr); got != out.Value {
		t.Fatalf("balance = %d, want %d", got, out.Value)
	}

	gotOut, gotHeight, err := s.RemoveUTXO(op)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if gotOut.Value != out.Value || gotHeight != 0 {
		t.Fatalf("removed entry mismatch: %+v height=%d", gotOut, gotHeight)
	}
	if got := s.BalanceOf(addr); got != 0 {
		t.Fatalf("balance after removal = %d, want 0", got)
	}
}

func TestInsertDuplicateFails(t *testing.T) {
	s := New(btc.Mainnet)
	op := btc.OutPoint{Txid: testTxid(2), Vout: 0}
	out := btc.TxOut{Value: 1000, Script: p2pkhScript(0xBB)}
	if err := s.InsertUTXO(op, out, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertUTXO(op, out, 0); err == nil {
		t.Fatal("expected duplicate insertion error")
	}
}

func TestRemoveUnknownFails(t *testing.T) {
	s := New(btc.Mainnet)
	op := btc.OutPoint{Txid: testTxid(3), Vout: 0}
	if _, _, err := s.RemoveUTXO(op); err == nil {
		t.Fatal("expected unknown outpoint error")
	}
}

func TestTierRouting(t *testing.T) {
	s := New(btc.Mainnet)
	small := btc.TxOut{Value: 1, Script: make([]byte, 25)}
	medium := btc.TxOut{Value: 1, Script: make([]byte, 201)}
	large := btc.TxOut{Value: 1, Script: make([]byte, 202)}

	opS := btc.OutPoint{Txid: testTxid(10), Vout: 0}
	opM := btc.OutPoint{Txid: testTxid(11), Vout: 0}
	opL := btc.OutPoint{Txid: testTxid(12), Vout: 0}

	if err := s.InsertUTXO(opS, small, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertUTXO(opM, medium, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertUTXO(opL, large, 0); err != nil {
		t.Fatal(err)
	}

	if s.small.Len() != 1 || s.medium.Len() != 1 || len(s.large) != 1 {
		t.Fatalf("tier counts: small=%d medium=%d large=%d", s.small.Len(), s.medium.Len(), len(s.large))
	}
}

func TestUTXOsOfOrderingAndPagination(t *testing.T) {
	s := New(btc.Mainnet)
	script := p2pkhScript(0xCC)
	addr, _ := btc.AddressForScript(btc.Mainnet, script)

	const n = 10
	for h := uint32(1); h <= n; h++ {
		op := btc.OutPoint{Txid: testTxid(byte(h)), Vout: 0}
		if err := s.InsertUTXO(op, btc.TxOut{Value: uint64(h), Script: script}, h); err != nil {
			t.Fatalf("insert height %d: %v", h, err)
		}
	}

	var all []Entry
	var cursor []byte
	for {
		page, next, err := s.UTXOsOf(addr, cursor, 3)
		if err != nil {
			t.Fatalf("utxos_of: %v", err)
		}
		all = append(all, page...)
		if next == nil {
			break
		}
		cursor = next
	}

	if len(all) != n {
		t.Fatalf("got %d entries, want %d", len(all), n)
	}
	for i := 1; i < len(all); i++ {
		if all[i].Height >= all[i-1].Height {
			t.Fatalf("not strictly descending at %d: %d >= %d", i, all[i].Height, all[i-1].Height)
		}
	}
	if all[0].Height != n {
		t.Fatalf("first entry height = %d, want %d", all[0].Height, n)
	}
}

func TestApplyBlockCoinbaseOnly(t *testing.T) {
	s := New(btc.Mainnet)
	coinbase := &btc.Transaction{
		Version: 1,
		Inputs:  []btc.TxIn{{PrevOut: btc.OutPoint{Vout: 0xffffffff}, Sequence: 0xffffffff}},
		Outputs: []btc.TxOut{{Value: 5000000000, Script: p2pkhScript(0xDD)}},
	}
	block := &btc.Block{Transactions: []*btc.Transaction{coinbase}}

	cursor, err := s.ApplyBlock(block, 0, nil, func() bool { return true })
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cursor != nil {
		t.Fatalf("expected Done, got cursor %+v", cursor)
	}
	if s.NextHeight() != 1 {
		t.Fatalf("next_height = %d, want 1", s.NextHeight())
	}

	addr, _ := btc.AddressForScript(btc.Mainnet, coinbase.Outputs[0].Script)
	if got := s.BalanceOf(addr); got != 5000000000 {
		t.Fatalf("balance = %d, want 5000000000", got)
	}
}

func TestApplyBlockResumable(t *testing.T) {
	full := New(btc.Mainnet)
	paused := New(btc.Mainnet)

	coinbase := &btc.Transaction{
		Version: 1,
		Inputs:  []btc.TxIn{{PrevOut: btc.OutPoint{Vout: 0xffffffff}, Sequence: 0xffffffff}},
		Outputs: []btc.TxOut{
			{Value: 1, Script: p2pkhScript(0x01)},
			{Value: 2, Script: p2pkhScript(0x02)},
			{Value: 3, Script: p2pkhScript(0x03)},
		},
	}
	block := &btc.Block{Transactions: []*btc.Transaction{coinbase}}

	if _, err := full.ApplyBlock(block, 0, nil, func() bool { return true }); err != nil {
		t.Fatalf("full apply: %v", err)
	}

	// Slice equivalence: pause after every
	// single sub-step and resume, final state must match.
	remaining := 1
	allow := func() bool {
		if remaining > 0 {
			remaining--
			return true
		}
		return false
	}

	var cursor *Cursor
	var err error
	for {
		remaining = 1
		cursor, err = paused.ApplyBlock(block, 0, cursor, allow)
		if err != nil {
			t.Fatalf("paused apply: %v", err)
		}
		if cursor == nil {
			break
		}
	}

	if paused.NextHeight() != full.NextHeight() {
		t.Fatalf("next_height mismatch: %d vs %d", paused.NextHeight(), full.NextHeight())
	}
	for _, s := range coinbase.Outputs {
		addr, _ := btc.AddressForScript(btc.Mainnet, s.Script)
		if got, want := paused.BalanceOf(addr), full.BalanceOf(addr); got != want {
			t.Fatalf("balance mismatch for %s: %d vs %d", addr, got, want)
		}
	}
}

func TestApplyBlockDuplicateCoinbaseOverwritesAddressIndex(t *testing.T) {
	s := New(btc.Mainnet)
	coinbase := &btc.Transaction{
		Version: 1,
		Inputs:  []btc.TxIn{{PrevOut: btc.OutPoint{Vout: 0xffffffff}, Sequence: 0xffffffff}},
		Outputs: []btc.TxOut{{Value: 5000000000, Script: p2pkhScript(0xAB)}},
	}
	addr, _ := btc.AddressForScript(btc.Mainnet, coinbase.Outputs[0].Script)

	first := &btc.Block{Transactions: []*btc.Transaction{coinbase}}
	if _, err := s.ApplyBlock(first, 0, nil, func() bool { return true }); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if got := s.BalanceOf(addr); got != 5000000000 {
		t.Fatalf("balance after first = %d, want 5000000000", got)
	}

	// Same coinbase transaction (identical txid, pre-BIP-34 style) lands
	// again at a later height; the later insertion must overwrite, not
	// add to, the address's balance and outpoint index.
	second := &btc.Block{Transactions: []*btc.Transaction{coinbase}}
	if _, err := s.ApplyBlock(second, 1, nil, func() bool { return true }); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	if got := s.BalanceOf(addr); got != 5000000000 {
		t.Fatalf("balance after duplicate overwrite = %d, want 5000000000 (got double-counted)", got)
	}

	entries, _, err := s.UTXOsOf(addr, nil, 10)
	if err != nil {
		t.Fatalf("UTXOsOf: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1 (stale address_to_outpoints entry survived)", len(entries))
	}
	if entries[0].Height != 1 {
		t.Fatalf("entry height = %d, want 1 (overwrite should win)", entries[0].Height)
	}
}

func TestApplyBlockSpendOwnCoinbase(t *testing.T) {
	s := New(btc.Mainnet)
	coinbase := &btc.Transaction{
		Version: 1,
		Inputs:  []btc.TxIn{{PrevOut: btc.OutPoint{Vout: 0xffffffff}, Sequence: 0xffffffff}},
		Outputs: []btc.TxOut{{Value: 5000000000, Script: p2pkhScript(0xEE)}},
	}
	genesis := &btc.Block{Transactions: []*btc.Transaction{coinbase}}
	if _, err := s.ApplyBlock(genesis, 0, nil, func() bool { return true }); err != nil {
		t.Fatalf("genesis apply: %v", err)
	}

	addrB := p2pkhScript(0xFF)
	spend := &btc.Transaction{
		Version: 1,
		Inputs:  []btc.TxIn{{PrevOut: btc.OutPoint{Txid: coinbase.Txid(), Vout: 0}}},
		Outputs: []btc.TxOut{{Value: 4900000000, Script: addrB}},
	}
	next := &btc.Block{Transactions: []*btc.Transaction{spend}}
	if _, err := s.ApplyBlock(next, 1, nil, func() bool { return true }); err != nil {
		t.Fatalf("spend apply: %v", err)
	}

	coinbaseAddr, _ := btc.AddressForScript(btc.Mainnet, coinbase.Outputs[0].Script)
	if got := s.BalanceOf(coinbaseAddr); got != 0 {
		t.Fatalf("coinbase address balance = %d, want 0", got)
	}
	bAddr, _ := btc.AddressForScript(btc.Mainnet, addrB)
	if got := s.BalanceOf(bAddr); got != 4900000000 {
		t.Fatalf("B balance = %d, want 4900000000", got)
	}
}
