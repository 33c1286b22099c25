package btc

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrTruncated is returned when a wire-format read runs out of bytes.
var ErrTruncated = errors.New("btc: truncated input")

// putVarInt appends a Bitcoin CompactSize-encoded integer to buf.
func putVarInt(buf []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(buf, byte(n))
	case n <= 0xffff:
		buf = append(buf, 0xfd)
		return binary.LittleEndian.AppendUint16(buf, uint16(n))
	case n <= 0xffffffff:
		buf = append(buf, 0xfe)
		return binary.LittleEndian.AppendUint32(buf, uint32(n))
	default:
		buf = append(buf, 0xff)
		return binary.LittleEndian.AppendUint64(buf, n)
	}
}

// readVarInt decodes a Bitcoin CompactSize integer from the start of
// b, returning the value and the number of bytes consumed.
func readVarInt(b []byte) (uint64, int, error) {
	if len(b) < 1 {
		return 0, 0, ErrTruncated
	}
	switch b[0] {
	case 0xfd:
		if len(b) < 3 {
			return 0, 0, ErrTruncated
		}
		return uint64(binary.LittleEndian.Uint16(b[1:3])), 3, nil
	case 0xfe:
		if len(b) < 5 {
			return 0, 0, ErrTruncated
		}
		return uint64(binary.LittleEndian.Uint32(b[1:5])), 5, nil
	case 0xff:
		if len(b) < 9 {
			return 0, 0, ErrTruncated
		}
		return binary.LittleEndian.Uint64(b[1:9]), 9, nil
	default:
		return uint64(b[0]), 1, nil
	}
}
