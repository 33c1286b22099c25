package btc

import "github.com/pkg/errors"

// Block is a Bitcoin consensus block: a header and the transactions
// it commits to.
type Block struct {
	Header       Header
	Transactions []*Transaction
}

// Hash returns the block's hash: double-SHA-256 of the header.
func (b *Block) Hash() Hash {
	return b.Header.Hash()
}

// Bytes returns the standard Bitcoin consensus encoding of the block:
// header(80) ‖ varint(tx count) ‖ transactions.
func (b *Block) Bytes() []byte {
	buf := append([]byte(nil), b.Header.Bytes()...)
	buf = putVarInt(buf, uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		buf = append(buf, tx.Bytes()...)
	}
	return buf
}

// DecodeBlock parses a block from its standard wire encoding.
func DecodeBlock(b []byte) (*Block, error) {
	if len(b) < HeaderWireSize {
		return nil, ErrTruncated
	}
	header, err := DecodeHeader(b[:HeaderWireSize])
	if err != nil {
		return nil, err
	}
	off := HeaderWireSize

	count, n, err := readVarInt(b[off:])
	if err != nil {
		return nil, errors.Wrap(err, "btc: decode tx count")
	}
	off += n

	txs := make([]*Transaction, count)
	for i := range txs {
		tx, consumed, err := DecodeTransaction(b[off:])
		if err != nil {
			return nil, errors.Wrapf(err, "btc: decode tx %d", i)
		}
		txs[i] = tx
		off += consumed
	}

	return &Block{Header: *header, Transactions: txs}, nil
}
