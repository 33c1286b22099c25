package btc

import "encoding/binary"

// Header is the 80-byte Bitcoin block header. B.Hash() is the
// double-SHA-256 of this structure's wire encoding.
type Header struct {
	Version    int32
	PrevHash   Hash
	MerkleRoot Hash
	Timestamp  uint32
	Bits       uint32
	Nonce      uint32
}

// HeaderWireSize is the fixed wire-encoded size of a block header.
const HeaderWireSize = 80

// Hash computes the block hash: double-SHA-256 of the header's wire
// encoding.
func (h *Header) Hash() Hash {
	return DoubleSHA256(h.Bytes())
}

// Bytes returns the canonical 80-byte wire encoding: version(4) ‖
// prev_hash(32) ‖ merkle_root(32) ‖ timestamp(4) ‖ bits(4) ‖ nonce(4).
func (h *Header) Bytes() []byte {
	buf := make([]byte, 0, HeaderWireSize)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(h.Version))
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint32(buf, h.Bits)
	buf = binary.LittleEndian.AppendUint32(buf, h.Nonce)
	return buf
}

// DecodeHeader parses an 80-byte wire-encoded header.
func DecodeHeader(b []byte) (*Header, error) {
	if len(b) != HeaderWireSize {
		return nil, ErrTruncated
	}
	h := &Header{
		Version: int32(binary.LittleEndian.Uint32(b[0:4])),
	}
	copy(h.PrevHash[:], b[4:36])
	copy(h.MerkleRoot[:], b[36:68])
	h.Timestamp = binary.LittleEndian.Uint32(b[68:72])
	h.Bits = binary.LittleEndian.Uint32(b[72:76])
	h.Nonce = binary.LittleEndian.Uint32(b[76:80])
	return h, nil
}
