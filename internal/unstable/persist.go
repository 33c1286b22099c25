package unstable

import (
	"encoding/binary"
	"math/big"

	"github.com/pkg/errors"

	"github.com/btcstate/chainstate/pkg/btc"
)

// ErrCorruptSnapshot is returned by Restore when the snapshot bytes
// are structurally invalid.
var ErrCorruptSnapshot = errors.New("unstable: corrupt snapshot")

// Snapshot serializes the tree's anchor and every held node for
// pre_upgrade: anchor hash, anchor height, anchor work, k, then node
// count and, per node, its block bytes (prev_hash and height are
// recomputed from the block and forest shape on Restore).
func (t *Tree) Snapshot() []byte {
	buf := append([]byte(nil), t.anchorHash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.anchorHeight))
	work := t.anchorWork.Bytes()
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(work)))
	buf = append(buf, work...)
	buf = binary.LittleEndian.AppendUint32(buf, t.k)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.nodes)))
	for _, n := range t.nodes {
		blockBytes := n.block.Bytes()
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(blockBytes)))
		buf = append(buf, blockBytes...)
	}
	return buf
}

// Restore rebuilds the tree from a Snapshot taken at pre_upgrade:
// nodes are re-linked by replaying Push for every stored block in an
// order that always resolves a known parent.
func Restore(buf []byte) (*Tree, error) {
	if len(buf) < 32+8+4 {
		return nil, ErrCorruptSnapshot
	}
	t := &Tree{
		nodes:    make(map[btc.Hash]*node),
		children: make(map[btc.Hash][]btc.Hash),
	}
	copy(t.anchorHash[:], buf[:32])
	buf = buf[32:]

	t.anchorHeight = int64(binary.LittleEndian.Uint64(buf))
	buf = buf[8:]

	workLen := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	if uint32(len(buf)) < workLen {
		return nil, ErrCorruptSnapshot
	}
	t.anchorWork = new(big.Int).SetBytes(buf[:workLen])
	buf = buf[workLen:]

	if len(buf) < 4 {
		return nil, ErrCorruptSnapshot
	}
	t.k = binary.LittleEndian.Uint32(buf)
	buf = buf[4:]

	if len(buf) < 4 {
		return nil, ErrCorruptSnapshot
	}
	count := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]

	var pending []*btc.Block
	for i := uint32(0); i < count; i++ {
		if len(buf) < 4 {
			return nil, ErrCorruptSnapshot
		}
		blockLen := binary.LittleEndian.Uint32(buf)
		buf = buf[4:]
		if uint32(len(buf)) < blockLen {
			return nil, ErrCorruptSnapshot
		}
		blk, err := btc.DecodeBlock(buf[:blockLen])
		if err != nil {
			return nil, errors.Wrap(ErrCorruptSnapshot, err.Error())
		}
		buf = buf[blockLen:]
		pending = append(pending, blk)
	}

	// A block's parent may appear later in the snapshot than the
	// block itself (map iteration order is unspecified), so keep
	// retrying the remaining set until a full pass links nothing new.
	for len(pending) > 0 {
		progressed := false
		var remaining []*btc.Block
		for _, blk := range pending {
			if err := t.Push(blk); err == nil {
				progressed = true
				continue
			}
			remaining = append(remaining, blk)
		}
		if !progressed {
			return nil, errors.Wrap(ErrCorruptSnapshot, "orphaned block in snapshot")
		}
		pending = remaining
	}

	return t, nil
}
