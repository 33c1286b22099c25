// Package bech32 implements BIP-173 bech32 and BIP-350 bech32m
// encoding, used to derive segwit addresses (P2WPKH/P2WSH/P2TR),
// including the bech32m checksum constant required for segwit version
// 1 and above (P2TR).
package bech32

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// checksum constants distinguishing bech32 (segwit v0) from bech32m
// (segwit v1+), per BIP-350.
const (
	bech32Const  = 1
	bech32mConst = 0x2bc830a3
)

var charsetRev [128]int8

func init() {
	for i := range charsetRev {
		charsetRev[i] = -1
	}
	for i, c := range charset {
		charsetRev[c] = int8(i)
	}
}

// Encode encodes hrp and 8-bit data into a bech32 (or, if m is true,
// bech32m) string.
func Encode(hrp string, data []byte, m bool) (string, error) {
	conv, err := convertBits(data, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("bech32: convert bits: %w", err)
	}
	return encodeGroups(hrp, conv, m)
}

// encodeGroups encodes hrp and already-5-bit-grouped data.
func encodeGroups(hrp string, groups []byte, m bool) (string, error) {
	if len(hrp) == 0 {
		return "", fmt.Errorf("bech32: empty HRP")
	}
	for _, c := range hrp {
		if c < 33 || c > 126 {
			return "", fmt.Errorf("bech32: invalid HRP character %q", c)
		}
	}

	constant := uint32(bech32Const)
	if m {
		constant = bech32mConst
	}
	chk := createChecksum(hrp, groups, constant)

	var sb strings.Builder
	sb.Grow(len(hrp) + 1 + len(groups) + 6)
	sb.WriteString(hrp)
	sb.WriteByte('1')
	for _, b := range groups {
		sb.WriteByte(charset[b])
	}
	for _, b := range chk {
		sb.WriteByte(charset[b])
	}
	return sb.String(), nil
}

// Decode decodes a bech32/bech32m string, returning the HRP, the
// 8-bit data, and whether the checksum was bech32m.
func Decode(s string) (hrp string, data []byte, isM bool, err error) {
	hrp, groups, isM, err := decodeGroups(s)
	if err != nil {
		return "", nil, false, err
	}
	data8, err := convertBits(groups, 5, 8, false)
	if err != nil {
		return "", nil, false, fmt.Errorf("bech32: convert bits: %w", err)
	}
	return hrp, data8, isM, nil
}

// decodeGroups decodes a bech32/bech32m string, returning the HRP and
// the raw 5-bit groups (checksum stripped, not yet repacked to bytes).
func decodeGroups(s string) (hrp string, groups []byte, isM bool, err error) {
	if len(s) == 0 {
		return "", nil, false, fmt.Errorf("bech32: empty string")
	}

	hasUpper, hasLower := false, false
	for _, c := range s {
		if c >= 'A' && c <= 'Z' {
			hasUpper = true
		}
		if c >= 'a' && c <= 'z' {
			hasLower = true
		}
	}
	if hasUpper && hasLower {
		return "", nil, false, fmt.Errorf("bech32: mixed case")
	}
	s = strings.ToLower(s)

	sepIdx := strings.LastIndex(s, "1")
	if sepIdx < 1 {
		return "", nil, false, fmt.Errorf("bech32: missing separator")
	}
	if sepIdx+7 > len(s) {
		return "", nil, false, fmt.Errorf("bech32: too short")
	}

	hrp = s[:sepIdx]
	dataStr := s[sepIdx+1:]

	data5 := make([]byte, len(dataStr))
	for i, c := range dataStr {
		if c > 127 {
			return "", nil, false, fmt.Errorf("bech32: invalid character %q", c)
		}
		val := charsetRev[c]
		if val < 0 {
			return "", nil, false, fmt.Errorf("bech32: invalid character %q", c)
		}
		data5[i] = byte(val)
	}

	mod := polymod(append(hrpExpand(hrp), data5...))
	switch mod {
	case bech32Const:
		isM = false
	case bech32mConst:
		isM = true
	default:
		return "", nil, false, fmt.Errorf("bech32: invalid checksum")
	}
	return hrp, data5[:len(data5)-6], isM, nil
}

func polymod(values []byte) uint32 {
	gen := [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func hrpExpand(hrp string) []byte {
	ret := make([]byte, 0, len(hrp)*2+1)
	for _, c := range hrp {
		ret = append(ret, byte(c>>5))
	}
	ret = append(ret, 0)
	for _, c := range hrp {
		ret = append(ret, byte(c&31))
	}
	return ret
}

func createChecksum(hrp string, data []byte, constant uint32) []byte {
	values := append(hrpExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	mod := polymod(values) ^ constant
	ret := make([]byte, 6)
	for i := 0; i < 6; i++ {
		ret[i] = byte((mod >> uint(5*(5-i))) & 31)
	}
	return ret
}

// convertBits converts between bit groups (e.g. 8-bit bytes and 5-bit
// bech32 groups).
func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	acc := uint32(0)
	bits := uint(0)
	maxv := uint32((1 << toBits) - 1)
	var ret []byte

	for _, b := range data {
		if uint32(b)>>fromBits != 0 {
			return nil, fmt.Errorf("invalid data byte: %d", b)
		}
		acc = acc<<fromBits | uint32(b)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			ret = append(ret, byte((acc>>bits)&maxv))
		}
	}

	if pad {
		if bits > 0 {
			ret = append(ret, byte((acc<<(toBits-bits))&maxv))
		}
	} else {
		if bits >= fromBits {
			return nil, fmt.Errorf("non-zero padding")
		}
		if (acc<<(toBits-bits))&maxv != 0 {
			return nil, fmt.Errorf("non-zero padding")
		}
	}

	return ret, nil
}

// EncodeSegwit encodes a segwit witness version and program into a
// bech32 (version 0) or bech32m (version 1+) address, per BIP-173/350.
// The witness version is carried as its own 5-bit group ahead of the
// program's 5-bit groups — it is not byte-packed with the program.
func EncodeSegwit(hrp string, version byte, program []byte) (string, error) {
	if version > 16 {
		return "", errors.Errorf("bech32: invalid witness version %d", version)
	}
	if len(program) < 2 || len(program) > 40 {
		return "", errors.Errorf("bech32: invalid witness program length %d", len(program))
	}
	progGroups, err := convertBits(program, 8, 5, true)
	if err != nil {
		return "", errors.Wrap(err, "bech32: convert witness program")
	}
	groups := append([]byte{version}, progGroups...)
	return encodeGroups(hrp, groups, version != 0)
}

// DecodeSegwit decodes a segwit bech32/bech32m address, returning the
// witness version and program.
func DecodeSegwit(s string) (hrp string, version byte, program []byte, err error) {
	hrp, groups, isM, err := decodeGroups(s)
	if err != nil {
		return "", 0, nil, err
	}
	if len(groups) < 1 {
		return "", 0, nil, errors.New("bech32: empty witness data")
	}
	version = groups[0]
	if (version == 0) == isM {
		return "", 0, nil, errors.New("bech32: checksum/version mismatch")
	}
	converted, err := convertBits(groups[1:], 5, 8, false)
	if err != nil {
		return "", 0, nil, err
	}
	return hrp, version, converted, nil
}
