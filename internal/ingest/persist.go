package ingest

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/btcstate/chainstate/internal/utxo"
	"github.com/btcstate/chainstate/pkg/btc"
)

// ErrCorruptSnapshot is returned by Restore when the snapshot bytes
// are structurally invalid.
var ErrCorruptSnapshot = errors.New("ingest: corrupt snapshot")

// Snapshot serializes the machine's phase and in-progress cursor for
// pre_upgrade: state byte, processed-hash set, and, when Stabilizing,
// the pending block plus its height and cursor.
func (m *Machine) Snapshot() []byte {
	buf := []byte{byte(m.state)}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.processed)))
	for h := range m.processed {
		buf = append(buf, h[:]...)
	}

	if m.state != Stabilizing {
		return buf
	}

	blockBytes := m.pendingBlock.Bytes()
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(blockBytes)))
	buf = append(buf, blockBytes...)
	buf = binary.LittleEndian.AppendUint32(buf, m.pendingHeight)

	if m.pendingCursor == nil {
		buf = append(buf, 0)
		return buf
	}
	buf = append(buf, 1)
	buf = append(buf, m.pendingCursor.BlockHash[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.pendingCursor.TxIndex))
	buf = append(buf, byte(m.pendingCursor.Phase))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.pendingCursor.StepIndex))
	return buf
}

// Restore rebuilds phase and cursor state from a Snapshot taken at
// pre_upgrade, for use on post_upgrade. The tree and utxo set must already have been restored
// independently; Restore only reinstates this machine's own
// bookkeeping.
func (m *Machine) Restore(buf []byte) error {
	if len(buf) < 1 {
		return ErrCorruptSnapshot
	}
	m.state = State(buf[0])
	buf = buf[1:]

	if len(buf) < 4 {
		return ErrCorruptSnapshot
	}
	n := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	m.processed = make(map[btc.Hash]struct{}, n)
	for i := uint32(0); i < n; i++ {
		if len(buf) < 32 {
			return ErrCorruptSnapshot
		}
		var h btc.Hash
		copy(h[:], buf[:32])
		buf = buf[32:]
		m.processed[h] = struct{}{}
	}

	if m.state != Stabilizing {
		m.pendingBlock = nil
		m.pendingCursor = nil
		return nil
	}

	if len(buf) < 4 {
		return ErrCorruptSnapshot
	}
	blockLen := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	if uint32(len(buf)) < blockLen {
		return ErrCorruptSnapshot
	}
	blk, err := btc.DecodeBlock(buf[:blockLen])
	if err != nil {
		return errors.Wrap(ErrCorruptSnapshot, err.Error())
	}
	buf = buf[blockLen:]
	m.pendingBlock = blk

	if len(buf) < 5 {
		return ErrCorruptSnapshot
	}
	m.pendingHeight = binary.LittleEndian.Uint32(buf)
	buf = buf[4:]

	hasCursor := buf[0]
	buf = buf[1:]
	if hasCursor == 0 {
		m.pendingCursor = nil
		return nil
	}

	if len(buf) < 32+4+1+4 {
		return ErrCorruptSnapshot
	}
	var cursor utxo.Cursor
	copy(cursor.BlockHash[:], buf[:32])
	buf = buf[32:]
	cursor.TxIndex = int(binary.LittleEndian.Uint32(buf))
	buf = buf[4:]
	cursor.Phase = utxo.Phase(buf[0])
	buf = buf[1:]
	cursor.StepIndex = int(binary.LittleEndian.Uint32(buf))
	m.pendingCursor = &cursor
	return nil
}
