package utxo

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/btcstate/chainstate/internal/pagestore"
	"github.com/btcstate/chainstate/pkg/btc"
)

// Flush serializes the set's four ordered maps plus the large tier and
// next_height to store starting at offset, in the same
// length-prefixed style as ordmap.Map.Flush, so the whole region can
// be read back by Load without external bookkeeping. Returns the
// offset immediately past the written region.
func (s *Set) Flush(store pagestore.Store, offset uint64) (uint64, error) {
	off, err := s.small.Flush(store, offset)
	if err != nil {
		return 0, errors.Wrap(err, "utxo: flush small tier")
	}
	off, err = s.medium.Flush(store, off)
	if err != nil {
		return 0, errors.Wrap(err, "utxo: flush medium tier")
	}
	off, err = s.flushLarge(store, off)
	if err != nil {
		return 0, errors.Wrap(err, "utxo: flush large tier")
	}
	off, err = s.addrToOutpoints.Flush(store, off)
	if err != nil {
		return 0, errors.Wrap(err, "utxo: flush address index")
	}
	off, err = s.balances.Flush(store, off)
	if err != nil {
		return 0, errors.Wrap(err, "utxo: flush balances")
	}

	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, s.nextHeight)
	if err := growToFit(store, off, len(buf)); err != nil {
		return 0, err
	}
	if err := store.WriteAt(off, buf); err != nil {
		return 0, errors.Wrap(err, "utxo: flush next_height")
	}
	return off + uint64(len(buf)), nil
}

// Load replaces the set's contents by reading the region previously
// written by Flush, starting at offset. The set's network is left
// unchanged (it is process configuration, not persisted state).
func (s *Set) Load(store pagestore.Store, offset uint64) (uint64, error) {
	off, err := s.small.Load(store, offset)
	if err != nil {
		return 0, errors.Wrap(err, "utxo: load small tier")
	}
	off, err = s.medium.Load(store, off)
	if err != nil {
		return 0, errors.Wrap(err, "utxo: load medium tier")
	}
	off, err = s.loadLarge(store, off)
	if err != nil {
		return 0, errors.Wrap(err, "utxo: load large tier")
	}
	off, err = s.addrToOutpoints.Load(store, off)
	if err != nil {
		return 0, errors.Wrap(err, "utxo: load address index")
	}
	off, err = s.balances.Load(store, off)
	if err != nil {
		return 0, errors.Wrap(err, "utxo: load balances")
	}

	buf := make([]byte, 4)
	if err := store.ReadAt(off, buf); err != nil {
		return 0, errors.Wrap(err, "utxo: load next_height")
	}
	s.nextHeight = binary.LittleEndian.Uint32(buf)
	return off + uint64(len(buf)), nil
}

func (s *Set) flushLarge(store pagestore.Store, offset uint64) (uint64, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(len(s.large)))

	var body []byte
	head := make([]byte, 4)
	for op, e := range s.large {
		body = append(body, op.Txid[:]...)
		binary.LittleEndian.PutUint32(head, op.Vout)
		body = append(body, head...)
		var valBuf [8]byte
		binary.LittleEndian.PutUint64(valBuf[:], e.Value)
		body = append(body, valBuf[:]...)
		binary.LittleEndian.PutUint32(head, e.Height)
		body = append(body, head...)
		binary.LittleEndian.PutUint32(head, uint32(len(e.Script)))
		body = append(body, head...)
		body = append(body, e.Script...)
	}
	buf = append(buf, body...)

	if err := growToFit(store, offset, len(buf)); err != nil {
		return 0, err
	}
	if err := store.WriteAt(offset, buf); err != nil {
		return 0, err
	}
	return offset + uint64(len(buf)), nil
}

func (s *Set) loadLarge(store pagestore.Store, offset uint64) (uint64, error) {
	head := make([]byte, 8)
	if err := store.ReadAt(offset, head); err != nil {
		return 0, err
	}
	count := binary.LittleEndian.Uint64(head)
	off := offset + 8

	s.large = make(map[btc.OutPoint]largeEntry, count)
	var txid btc.Txid
	u32 := make([]byte, 4)
	u64 := make([]byte, 8)
	for i := uint64(0); i < count; i++ {
		if err := store.ReadAt(off, txid[:]); err != nil {
			return 0, err
		}
		off += uint64(len(txid))

		if err := store.ReadAt(off, u32); err != nil {
			return 0, err
		}
		vout := binary.LittleEndian.Uint32(u32)
		off += 4

		if err := store.ReadAt(off, u64); err != nil {
			return 0, err
		}
		value := binary.LittleEndian.Uint64(u64)
		off += 8

		if err := store.ReadAt(off, u32); err != nil {
			return 0, err
		}
		height := binary.LittleEndian.Uint32(u32)
		off += 4

		if err := store.ReadAt(off, u32); err != nil {
			return 0, err
		}
		slen := binary.LittleEndian.Uint32(u32)
		off += 4

		script := make([]byte, slen)
		if err := store.ReadAt(off, script); err != nil {
			return 0, err
		}
		off += uint64(slen)

		s.large[btc.OutPoint{Txid: txid, Vout: vout}] = largeEntry{Value: value, Script: script, Height: height}
	}
	return off, nil
}

func growToFit(store pagestore.Store, offset uint64, length int) error {
	need := offset + uint64(length)
	have := store.Size() * pagestore.PageSize
	if need <= have {
		return nil
	}
	extraBytes := need - have
	extraPages := extraBytes / pagestore.PageSize
	if extraBytes%pagestore.PageSize != 0 {
		extraPages++
	}
	_, err := store.Grow(extraPages)
	return err
}
