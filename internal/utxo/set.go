// Package utxo implements the UTXO set: three ordered maps
// partitioning outpoints by script length, plus an address→outpoints
// index and an address→balance index, all maintained under
// insert_utxo/remove_utxo/apply_block.
package utxo

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/btcstate/chainstate/internal/codec"
	"github.com/btcstate/chainstate/internal/ordmap"
	"github.com/btcstate/chainstate/pkg/btc"
)

// outpointKeySize is the fixed key size used by the small and medium
// tier maps.
const outpointKeySize = codec.OutPointSize

// addrHeightOutpointMaxKeySize bounds the address_to_outpoints key:
// 1 (length prefix) + 255 (address) + 4 (height) + 36 (outpoint).
const addrHeightOutpointMaxKeySize = 1 + 255 + codec.HeightKeySize + codec.OutPointSize

// balanceMaxKeySize bounds the balances key: 1 (length prefix) + 255
// (address).
const balanceMaxKeySize = 1 + 255

// largeEntry is the in-memory representation of a large-tier UTXO.
type largeEntry struct {
	Value  uint64
	Script []byte
	Height uint32
}

// Entry is a resolved UTXO as returned by UTXOsOf.
type Entry struct {
	OutPoint btc.OutPoint
	Value    uint64
	Script   []byte
	Height   uint32
}

// Set is the UTXO Set: three tier maps, an address→outpoints index,
// an address→balance index, and next_height.
type Set struct {
	network btc.Network

	small  *ordmap.Map
	medium *ordmap.Map
	large  map[btc.OutPoint]largeEntry

	addrToOutpoints *ordmap.Map
	balances        *ordmap.Map

	nextHeight uint32
}

// New creates an empty UTXO set for the given network (used to derive
// addresses from scripts).
func New(network btc.Network) *Set {
	return &Set{
		network:         network,
		small:           ordmap.NewMap(outpointKeySize),
		medium:          ordmap.NewMap(outpointKeySize),
		large:           make(map[btc.OutPoint]largeEntry),
		addrToOutpoints: ordmap.NewMap(addrHeightOutpointMaxKeySize),
		balances:        ordmap.NewMap(balanceMaxKeySize),
	}
}

// NextHeight returns the height at which the next block will land.
func (s *Set) NextHeight() uint32 {
	return s.nextHeight
}

// Len returns the total number of UTXOs held across all three tiers.
func (s *Set) Len() uint64 {
	return s.small.Len() + s.medium.Len() + uint64(len(s.large))
}

// AddressOutpointsLen returns the size of the address→outpoints
// index, for metrics reporting.
func (s *Set) AddressOutpointsLen() uint64 {
	return s.addrToOutpoints.Len()
}

// InsertUTXO inserts a new output at the given outpoint and height.
// Fails if the outpoint already exists in its routed tier.
func (s *Set) InsertUTXO(op btc.OutPoint, out btc.TxOut, height uint32) error {
	tier := TierForScript(out.Script)
	key := codec.EncodeOutPoint(op.Txid, op.Vout)
	value := codec.EncodeOutputAtHeight(height, out.Value, out.Script)

	switch tier {
	case TierSmall:
		if _, existed := s.small.Get(key); existed {
			return errors.Wrapf(ErrDuplicateOutpoint, "%s", op)
		}
		s.small.Insert(key, value)
	case TierMedium:
		if _, existed := s.medium.Get(key); existed {
			return errors.Wrapf(ErrDuplicateOutpoint, "%s", op)
		}
		s.medium.Insert(key, value)
	default:
		if _, existed := s.large[op]; existed {
			return errors.Wrapf(ErrDuplicateOutpoint, "%s", op)
		}
		s.large[op] = largeEntry{Value: out.Value, Script: out.Script, Height: height}
	}

	addr, ok := btc.AddressForScript(s.network, out.Script)
	if !ok {
		return nil
	}
	if err := s.indexAddress(string(addr), height, op, out.Value); err != nil {
		// Roll back the tier insertion so insert_utxo is atomic: either
		// the whole step lands or none of it does.
		s.removeFromTier(tier, op)
		return err
	}
	return nil
}

func (s *Set) indexAddress(addr string, height uint32, op btc.OutPoint, value uint64) error {
	akey, err := codec.EncodeAddressHeightOutPoint(addr, height, op.Txid, op.Vout)
	if err != nil {
		return errors.Wrap(ErrAddressTooLong, err.Error())
	}
	if _, _, err := s.addrToOutpoints.Insert(akey, nil); err != nil {
		return err
	}

	bkey, err := codec.EncodeAddressKey(addr)
	if err != nil {
		return errors.Wrap(ErrAddressTooLong, err.Error())
	}
	cur := s.balanceOfKey(bkey)
	next := cur + value
	if next < cur {
		return errors.Wrapf(ErrBalanceOverflow, "address %s", addr)
	}
	if _, _, err := s.balances.Insert(bkey, encodeBalance(next)); err != nil {
		return err
	}
	return nil
}

// RemoveUTXO removes the output at op, returning its value/script/
// height. Fails if the outpoint is absent from all three tiers.
func (s *Set) RemoveUTXO(op btc.OutPoint) (btc.TxOut, uint32, error) {
	key := codec.EncodeOutPoint(op.Txid, op.Vout)

	if raw, ok := s.small.Remove(key); ok {
		return s.finishRemove(op, raw)
	}
	if raw, ok := s.medium.Remove(key); ok {
		return s.finishRemove(op, raw)
	}
	if e, ok := s.large[op]; ok {
		delete(s.large, op)
		return s.finishRemoveLarge(op, e)
	}
	return btc.TxOut{}, 0, errors.Wrapf(ErrUnknownOutpoint, "%s", op)
}

func (s *Set) finishRemove(op btc.OutPoint, raw []byte) (btc.TxOut, uint32, error) {
	height, value, script, err := codec.DecodeOutputAtHeight(raw)
	if err != nil {
		return btc.TxOut{}, 0, err
	}
	out := btc.TxOut{Value: value, Script: script}
	if err := s.unindexAddress(height, op, out); err != nil {
		return btc.TxOut{}, 0, err
	}
	return out, height, nil
}

func (s *Set) finishRemoveLarge(op btc.OutPoint, e largeEntry) (btc.TxOut, uint32, error) {
	out := btc.TxOut{Value: e.Value, Script: e.Script}
	if err := s.unindexAddress(e.Height, op, out); err != nil {
		return btc.TxOut{}, 0, err
	}
	return out, e.Height, nil
}

func (s *Set) unindexAddress(height uint32, op btc.OutPoint, out btc.TxOut) error {
	addr, ok := btc.AddressForScript(s.network, out.Script)
	if !ok {
		return nil
	}
	akey, err := codec.EncodeAddressHeightOutPoint(string(addr), height, op.Txid, op.Vout)
	if err != nil {
		return errors.Wrap(ErrAddressTooLong, err.Error())
	}
	s.addrToOutpoints.Remove(akey)

	bkey, err := codec.EncodeAddressKey(string(addr))
	if err != nil {
		return errors.Wrap(ErrAddressTooLong, err.Error())
	}
	cur := s.balanceOfKey(bkey)
	if out.Value > cur {
		return errors.Wrapf(ErrBalanceUnderflow, "address %s", addr)
	}
	next := cur - out.Value
	if next == 0 {
		s.balances.Remove(bkey)
	} else {
		s.balances.Insert(bkey, encodeBalance(next))
	}
	return nil
}

func (s *Set) removeFromTier(tier Tier, op btc.OutPoint) {
	key := codec.EncodeOutPoint(op.Txid, op.Vout)
	switch tier {
	case TierSmall:
		s.small.Remove(key)
	case TierMedium:
		s.medium.Remove(key)
	default:
		delete(s.large, op)
	}
}

// BalanceOf returns the confirmed balance of addr, 0 if absent.
func (s *Set) BalanceOf(addr btc.Address) uint64 {
	bkey, err := codec.EncodeAddressKey(string(addr))
	if err != nil {
		return 0
	}
	return s.balanceOfKey(bkey)
}

func (s *Set) balanceOfKey(bkey []byte) uint64 {
	v, ok := s.balances.Get(bkey)
	if !ok {
		return 0
	}
	return binary.LittleEndian.Uint64(v)
}

func encodeBalance(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

// UTXOsOf range-scans the address_to_outpoints index with prefix
// encode(addr), resolving each outpoint back through the tier maps,
// chunked by a caller-supplied count budget. cursor is the composite
// address/height/outpoint key of the last entry returned by a prior
// call (nil for the first call); the returned next cursor is nil once
// exhausted. Because height is descendingly encoded, results arrive
// newest-first; ordering within a height is by outpoint.
func (s *Set) UTXOsOf(addr btc.Address, cursor []byte, limit int) ([]Entry, []byte, error) {
	prefix, err := codec.EncodeAddressKey(string(addr))
	if err != nil {
		return nil, nil, errors.Wrap(ErrAddressTooLong, err.Error())
	}

	all := s.addrToOutpoints.Range(prefix)
	start := 0
	if cursor != nil {
		for i, kv := range all {
			if string(kv.Key) == string(cursor) {
				start = i + 1
				break
			}
		}
	}

	var out []Entry
	var next []byte
	for i := start; i < len(all); i++ {
		if len(out) >= limit {
			next = all[i-1].Key
			break
		}
		_, height, txid, vout, err := codec.DecodeAddressHeightOutPoint(all[i].Key)
		if err != nil {
			return nil, nil, err
		}
		op := btc.OutPoint{Txid: txid, Vout: vout}
		entry, found := s.resolve(op)
		if !found {
			continue
		}
		entry.Height = height
		out = append(out, entry)
	}
	return out, next, nil
}

// Resolve looks up the current output at op across all three tiers,
// without regard to address. Used by query callers that need a spent
// input's pre-removal value (e.g. fee-rate sampling).
func (s *Set) Resolve(op btc.OutPoint) (Entry, bool) {
	return s.resolve(op)
}

func (s *Set) resolve(op btc.OutPoint) (Entry, bool) {
	key := codec.EncodeOutPoint(op.Txid, op.Vout)
	if raw, ok := s.small.Get(key); ok {
		_, value, script, err := codec.DecodeOutputAtHeight(raw)
		if err != nil {
			return Entry{}, false
		}
		return Entry{OutPoint: op, Value: value, Script: script}, true
	}
	if raw, ok := s.medium.Get(key); ok {
		_, value, script, err := codec.DecodeOutputAtHeight(raw)
		if err != nil {
			return Entry{}, false
		}
		return Entry{OutPoint: op, Value: value, Script: script}, true
	}
	if e, ok := s.large[op]; ok {
		return Entry{OutPoint: op, Value: e.Value, Script: e.Script}, true
	}
	return Entry{}, false
}
