// Package codec implements the fixed-layout key/value encodings that
// give the ordered maps their iteration semantics — notably the
// descending-height trick via bitwise complement.
//
// Layouts are grounded byte-for-byte on the Storable trait
// implementations of the original Rust source (OutPoint, (TxOut,
// Height), Height-as-key, AddressUtxo, Page).
package codec

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrDecode is wrapped by every decode failure; decoders never panic
// on malformed input.
var ErrDecode = errors.New("codec: malformed input")

// OutPointSize is the fixed encoded length of an OutPoint: txid(32) ‖
// vout_le(4).
const OutPointSize = 36

// HeightKeySize is the fixed encoded length of a height used as a map
// key.
const HeightKeySize = 4

// PageSize is the fixed encoded length of a pagination cursor.
const PageSize = 32 + HeightKeySize + OutPointSize

// EncodeOutPoint writes txid ‖ vout_le into a new 36-byte slice.
func EncodeOutPoint(txid [32]byte, vout uint32) []byte {
	buf := make([]byte, OutPointSize)
	copy(buf[:32], txid[:])
	binary.LittleEndian.PutUint32(buf[32:], vout)
	return buf
}

// DecodeOutPoint parses a 36-byte outpoint encoding.
func DecodeOutPoint(b []byte) (txid [32]byte, vout uint32, err error) {
	if len(b) != OutPointSize {
		return txid, 0, errors.Wrapf(ErrDecode, "outpoint: want %d bytes, got %d", OutPointSize, len(b))
	}
	copy(txid[:], b[:32])
	vout = binary.LittleEndian.Uint32(b[32:])
	return txid, vout, nil
}

// EncodeOutputAtHeight writes height_le(4) ‖ value_le(8) ‖ script.
func EncodeOutputAtHeight(height uint32, value uint64, script []byte) []byte {
	buf := make([]byte, 12+len(script))
	binary.LittleEndian.PutUint32(buf[:4], height)
	binary.LittleEndian.PutUint64(buf[4:12], value)
	copy(buf[12:], script)
	return buf
}

// DecodeOutputAtHeight splits off the 12-byte header and returns the
// remaining bytes as the script.
func DecodeOutputAtHeight(b []byte) (height uint32, value uint64, script []byte, err error) {
	if len(b) < 12 {
		return 0, 0, nil, errors.Wrapf(ErrDecode, "output@height: need at least 12 bytes, got %d", len(b))
	}
	height = binary.LittleEndian.Uint32(b[:4])
	value = binary.LittleEndian.Uint64(b[4:12])
	script = append([]byte(nil), b[12:]...)
	return height, value, script, nil
}

// EncodeHeightKey encodes a height for use as a map key: be32(h) XOR
// 0xFFFFFFFF, so that larger heights sort earlier (descending
// iteration under ascending byte-lex order).
func EncodeHeightKey(h uint32) []byte {
	buf := make([]byte, HeightKeySize)
	binary.BigEndian.PutUint32(buf, h^0xFFFFFFFF)
	return buf
}

// DecodeHeightKey inverts EncodeHeightKey.
func DecodeHeightKey(b []byte) (uint32, error) {
	if len(b) != HeightKeySize {
		return 0, errors.Wrapf(ErrDecode, "height key: want %d bytes, got %d", HeightKeySize, len(b))
	}
	return binary.BigEndian.Uint32(b) ^ 0xFFFFFFFF, nil
}

// EncodeAddressKey encodes an address as a self-delimiting prefix:
// len_u8 ‖ utf8(addr). The address must be at most 255 bytes.
func EncodeAddressKey(addr string) ([]byte, error) {
	if len(addr) > 255 {
		return nil, errors.Errorf("codec: address length %d exceeds 255", len(addr))
	}
	buf := make([]byte, 1+len(addr))
	buf[0] = byte(len(addr))
	copy(buf[1:], addr)
	return buf, nil
}

// DecodeAddressKey reads a self-delimiting address prefix from the
// start of b, returning the address and the number of bytes consumed.
func DecodeAddressKey(b []byte) (addr string, consumed int, err error) {
	if len(b) < 1 {
		return "", 0, errors.Wrap(ErrDecode, "address key: empty input")
	}
	n := int(b[0])
	if len(b) < 1+n {
		return "", 0, errors.Wrapf(ErrDecode, "address key: declared length %d exceeds remaining %d", n, len(b)-1)
	}
	return string(b[1 : 1+n]), 1 + n, nil
}

// EncodeAddressHeightOutPoint encodes the address_to_outpoints key:
// encode(addr) ‖ encode(height) ‖ encode(outpoint).
func EncodeAddressHeightOutPoint(addr string, height uint32, txid [32]byte, vout uint32) ([]byte, error) {
	addrKey, err := EncodeAddressKey(addr)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(addrKey)+HeightKeySize+OutPointSize)
	buf = append(buf, addrKey...)
	buf = append(buf, EncodeHeightKey(height)...)
	buf = append(buf, EncodeOutPoint(txid, vout)...)
	return buf, nil
}

// DecodeAddressHeightOutPoint inverts EncodeAddressHeightOutPoint.
func DecodeAddressHeightOutPoint(b []byte) (addr string, height uint32, txid [32]byte, vout uint32, err error) {
	addr, n, err := DecodeAddressKey(b)
	if err != nil {
		return "", 0, txid, 0, err
	}
	rest := b[n:]
	if len(rest) != HeightKeySize+OutPointSize {
		return "", 0, txid, 0, errors.Wrapf(ErrDecode, "address/height/outpoint: want %d trailing bytes, got %d", HeightKeySize+OutPointSize, len(rest))
	}
	height, err = DecodeHeightKey(rest[:HeightKeySize])
	if err != nil {
		return "", 0, txid, 0, err
	}
	txid, vout, err = DecodeOutPoint(rest[HeightKeySize:])
	if err != nil {
		return "", 0, txid, 0, err
	}
	return addr, height, txid, vout, nil
}

// EncodePage encodes a utxos_of pagination cursor: tip_hash(32) ‖
// encode(height) ‖ encode(outpoint), 72 bytes total.
func EncodePage(tipHash [32]byte, height uint32, txid [32]byte, vout uint32) []byte {
	buf := make([]byte, 0, PageSize)
	buf = append(buf, tipHash[:]...)
	buf = append(buf, EncodeHeightKey(height)...)
	buf = append(buf, EncodeOutPoint(txid, vout)...)
	return buf
}

// DecodePage inverts EncodePage.
func DecodePage(b []byte) (tipHash [32]byte, height uint32, txid [32]byte, vout uint32, err error) {
	if len(b) != PageSize {
		return tipHash, 0, txid, 0, errors.Wrapf(ErrDecode, "page: want %d bytes, got %d", PageSize, len(b))
	}
	copy(tipHash[:], b[:32])
	height, err = DecodeHeightKey(b[32 : 32+HeightKeySize])
	if err != nil {
		return tipHash, 0, txid, 0, err
	}
	txid, vout, err = DecodeOutPoint(b[32+HeightKeySize:])
	if err != nil {
		return tipHash, 0, txid, 0, err
	}
	return tipHash, height, txid, vout, nil
}
