// Package ordmap implements a sorted byte-key map with range-by-prefix
// iteration, backed in memory by a github.com/google/btree generic
// B-tree and durable across restarts by flushing its sorted entry
// stream into an internal/pagestore region.
package ordmap

import (
	"bytes"
	"encoding/binary"

	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/btcstate/chainstate/internal/pagestore"
)

// ErrKeyTooLarge is returned by Insert when a key exceeds MaxKeySize.
var ErrKeyTooLarge = errors.New("ordmap: key exceeds maximum size")

// btreeDegree is the branching factor of the in-memory B-tree. It has
// no durability implication — only the flushed entry stream is
// persisted, not the tree's node shape.
const btreeDegree = 32

type entry struct {
	key   []byte
	value []byte
}

func less(a, b entry) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Map is a sorted map from byte-string keys to byte-string values.
// Keys within one instance share a declared maximum size.
type Map struct {
	maxKeySize int
	tree       *btree.BTreeG[entry]
}

// NewMap creates an empty map whose keys must not exceed maxKeySize
// bytes.
func NewMap(maxKeySize int) *Map {
	return &Map{
		maxKeySize: maxKeySize,
		tree:       btree.NewG(btreeDegree, less),
	}
}

// Insert stores v under k, replacing any existing entry. Returns the
// previous value and whether one existed.
func (m *Map) Insert(k, v []byte) ([]byte, bool, error) {
	if len(k) > m.maxKeySize {
		return nil, false, ErrKeyTooLarge
	}
	kc := append([]byte(nil), k...)
	vc := append([]byte(nil), v...)
	old, existed := m.tree.ReplaceOrInsert(entry{key: kc, value: vc})
	if existed {
		return old.value, true, nil
	}
	return nil, false, nil
}

// Get returns the value stored under k, if any.
func (m *Map) Get(k []byte) ([]byte, bool) {
	e, ok := m.tree.Get(entry{key: k})
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Remove deletes the entry for k, returning its prior value.
func (m *Map) Remove(k []byte) ([]byte, bool) {
	e, ok := m.tree.Delete(entry{key: k})
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Len returns the number of entries.
func (m *Map) Len() uint64 {
	return uint64(m.tree.Len())
}

// KV is a single key-value pair yielded by Range.
type KV struct {
	Key   []byte
	Value []byte
}

// Range returns every entry whose key starts with prefix, in
// ascending key order.
func (m *Map) Range(prefix []byte) []KV {
	var out []KV
	m.tree.AscendGreaterOrEqual(entry{key: prefix}, func(e entry) bool {
		if !bytes.HasPrefix(e.key, prefix) {
			return false
		}
		out = append(out, KV{Key: e.key, Value: e.value})
		return true
	})
	return out
}

// RangeFunc calls fn for every entry whose key starts with prefix, in
// ascending order, stopping early if fn returns false.
func (m *Map) RangeFunc(prefix []byte, fn func(k, v []byte) bool) {
	m.tree.AscendGreaterOrEqual(entry{key: prefix}, func(e entry) bool {
		if !bytes.HasPrefix(e.key, prefix) {
			return false
		}
		return fn(e.key, e.value)
	})
}

// Flush serializes the map's sorted entries to store starting at byte
// offset, growing the store as needed. Layout: count(u64 LE) then,
// per entry, keylen(u32 LE) ‖ key ‖ vallen(u32 LE) ‖ value. Returns
// the offset immediately past the written region.
func (m *Map) Flush(store pagestore.Store, offset uint64) (uint64, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, m.Len())

	var body []byte
	m.tree.Ascend(func(e entry) bool {
		head := make([]byte, 4)
		binary.LittleEndian.PutUint32(head, uint32(len(e.key)))
		body = append(body, head...)
		body = append(body, e.key...)
		binary.LittleEndian.PutUint32(head, uint32(len(e.value)))
		body = append(body, head...)
		body = append(body, e.value...)
		return true
	})
	buf = append(buf, body...)

	if err := growToFit(store, offset, len(buf)); err != nil {
		return 0, err
	}
	if err := store.WriteAt(offset, buf); err != nil {
		return 0, errors.Wrap(err, "ordmap: flush")
	}
	return offset + uint64(len(buf)), nil
}

// Load replaces the map's contents by reading the region previously
// written by Flush, starting at byte offset. Returns the offset
// immediately past the region read.
func (m *Map) Load(store pagestore.Store, offset uint64) (uint64, error) {
	head := make([]byte, 8)
	if err := store.ReadAt(offset, head); err != nil {
		return 0, errors.Wrap(err, "ordmap: load count")
	}
	count := binary.LittleEndian.Uint64(head)
	off := offset + 8

	m.tree = btree.NewG(btreeDegree, less)
	lenBuf := make([]byte, 4)
	for i := uint64(0); i < count; i++ {
		if err := store.ReadAt(off, lenBuf); err != nil {
			return 0, errors.Wrap(err, "ordmap: load key len")
		}
		klen := binary.LittleEndian.Uint32(lenBuf)
		off += 4
		key := make([]byte, klen)
		if err := store.ReadAt(off, key); err != nil {
			return 0, errors.Wrap(err, "ordmap: load key")
		}
		off += uint64(klen)

		if err := store.ReadAt(off, lenBuf); err != nil {
			return 0, errors.Wrap(err, "ordmap: load value len")
		}
		vlen := binary.LittleEndian.Uint32(lenBuf)
		off += 4
		val := make([]byte, vlen)
		if err := store.ReadAt(off, val); err != nil {
			return 0, errors.Wrap(err, "ordmap: load value")
		}
		off += uint64(vlen)

		m.tree.ReplaceOrInsert(entry{key: key, value: val})
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
