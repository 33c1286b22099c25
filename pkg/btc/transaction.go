package btc

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// TxIn is a transaction input.
type TxIn struct {
	PrevOut   OutPoint
	ScriptSig []byte
	Sequence  uint32
}

// TxOut is a transaction output: a value in satoshis and an opaque
// locking script.
type TxOut struct {
	Value  uint64
	Script []byte
}

// Transaction is a Bitcoin transaction. Its txid is lazily computed
// and cached in a non-thread-safe field — acceptable because the host
// driving this engine is single-threaded.
type Transaction struct {
	Version  int32
	Inputs   []TxIn
	Outputs  []TxOut
	LockTime uint32

	txidCache *Txid
}

// IsCoinbase reports whether this is a coinbase transaction: exactly
// one input spending the null outpoint.
func (t *Transaction) IsCoinbase() bool {
	return len(t.Inputs) == 1 && t.Inputs[0].PrevOut.IsCoinbase()
}

// Txid returns the transaction's id, computing and caching it on
// first use.
func (t *Transaction) Txid() Txid {
	if t.txidCache != nil {
		return *t.txidCache
	}
	id := DoubleSHA256(t.Bytes())
	t.txidCache = &id
	return id
}

// Bytes returns the legacy (non-segwit) wire encoding of the
// transaction: version(4) ‖ varint(txin count) ‖ inputs ‖
// varint(txout count) ‖ outputs ‖ locktime(4).
func (t *Transaction) Bytes() []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, uint32(t.Version))
	buf = putVarInt(buf, uint64(len(t.Inputs)))
	for _, in := range t.Inputs {
		buf = append(buf, in.PrevOut.Txid[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.PrevOut.Vout)
		buf = putVarInt(buf, uint64(len(in.ScriptSig)))
		buf = append(buf, in.ScriptSig...)
		buf = binary.LittleEndian.AppendUint32(buf, in.Sequence)
	}
	buf = putVarInt(buf, uint64(len(t.Outputs)))
	for _, out := range t.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
		buf = putVarInt(buf, uint64(len(out.Script)))
		buf = append(buf, out.Script...)
	}
	buf = binary.LittleEndian.AppendUint32(buf, t.LockTime)
	return buf
}

// TotalOutputValue sums the value of every output, failing on
// overflow past the maximum satoshi supply representable in a uint64.
func (t *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range t.Outputs {
		next := total + out.Value
		if next < total {
			return 0, errors.New("btc: total output value overflow")
		}
		total = next
	}
	return total, nil
}

// DecodeTransaction parses a legacy-encoded transaction from the
// start of b, returning the transaction and the number of bytes
// consumed.
func DecodeTransaction(b []byte) (*Transaction, int, error) {
	if len(b) < 4 {
		return nil, 0, ErrTruncated
	}
	tx := &Transaction{Version: int32(binary.LittleEndian.Uint32(b[0:4]))}
	off := 4

	inCount, n, err := readVarInt(b[off:])
	if err != nil {
		return nil, 0, errors.Wrap(err, "btc: decode input count")
	}
	off += n

	tx.Inputs = make([]TxIn, inCount)
	for i := range tx.Inputs {
		if len(b) < off+36 {
			return nil, 0, ErrTruncated
		}
		var txid Txid
		copy(txid[:], b[off:off+32])
		vout := binary.LittleEndian.Uint32(b[off+32 : off+36])
		off += 36

		scriptLen, n, err := readVarInt(b[off:])
		if err != nil {
			return nil, 0, errors.Wrap(err, "btc: decode scriptSig length")
		}
		off += n
		if len(b) < off+int(scriptLen)+4 {
			return nil, 0, ErrTruncated
		}
		script := append([]byte(nil), b[off:off+int(scriptLen)]...)
		off += int(scriptLen)
		seq := binary.LittleEndian.Uint32(b[off : off+4])
		off += 4

		tx.Inputs[i] = TxIn{PrevOut: OutPoint{Txid: txid, Vout: vout}, ScriptSig: script, Sequence: seq}
	}

	outCount, n, err := readVarInt(b[off:])
	if err != nil {
		return nil, 0, errors.Wrap(err, "btc: decode output count")
	}
	off += n

	tx.Outputs = make([]TxOut, outCount)
	for i := range tx.Outputs {
		if len(b) < off+8 {
			return nil, 0, ErrTruncated
		}
		value := binary.LittleEndian.Uint64(b[off : off+8])
		off += 8
		scriptLen, n, err := readVarInt(b[off:])
		if err != nil {
			return nil, 0, errors.Wrap(err, "btc: decode script length")
		}
		off += n
		if len(b) < off+int(scriptLen) {
			return nil, 0, ErrTruncated
		}
		script := append([]byte(nil), b[off:off+int(scriptLen)]...)
		off += int(scriptLen)
		tx.Outputs[i] = TxOut{Value: value, Script: script}
	}

	if len(b) < off+4 {
		return nil, 0, ErrTruncated
	}
	tx.LockTime = binary.LittleEndian.Uint32(b[off : off+4])
	off += 4

	return tx, off, nil
}
