package blocksource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/btcstate/chainstate/pkg/btc"
)

func writeTestBlock(t *testing.T, dir, name string, prev btc.Hash) {
	t.Helper()
	blk := &btc.Block{Header: btc.Header{Version: 1, PrevHash: prev, Bits: 0x1d00ffff, Nonce: 1}}
	if err := os.WriteFile(filepath.Join(dir, name), blk.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestFileSourceServesSuccessorOfAnchor(t *testing.T) {
	dir := t.TempDir()
	writeTestBlock(t, dir, "0000.blk", btc.Hash{})

	src, err := NewFileSource(dir)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := src.Fetch(Request{Initial: &InitialRequest{Anchor: btc.Hash{}}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Complete == nil || len(resp.Complete.Blocks) != 1 {
		t.Fatalf("resp = %+v, want one block", resp)
	}
}

func TestFileSourceEmptyWhenNoSuccessor(t *testing.T) {
	dir := t.TempDir()
	src, err := NewFileSource(dir)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := src.Fetch(Request{Initial: &InitialRequest{Anchor: btc.Hash{0x01}}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Complete == nil || len(resp.Complete.Blocks) != 0 {
		t.Fatalf("resp = %+v, want no blocks", resp)
	}
}
