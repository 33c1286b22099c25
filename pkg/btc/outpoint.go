package btc

import "fmt"

// OutPoint references a specific output of a transaction: O = (T,
// vout). Ordering is lexicographic on its 36-byte wire encoding
// (internal/codec.EncodeOutPoint).
type OutPoint struct {
	Txid Txid
	Vout uint32
}

// String returns "txid:vout".
func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.Txid, o.Vout)
}

// IsCoinbase reports whether this outpoint is the null outpoint used
// by coinbase inputs (all-zero txid, vout = 0xffffffff).
func (o OutPoint) IsCoinbase() bool {
	return o.Txid.IsZero() && o.Vout == 0xffffffff
}
