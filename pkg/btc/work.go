package btc

import "math/big"

// maxTarget is the difficulty-1 target (Bitcoin mainnet genesis bits
// 0x1d00ffff), used as the numerator when converting a block's target
// into comparable work.
var maxTarget = expandCompact(0x1d00ffff)

// expandCompact decodes a compact "bits" field into its full target,
// following Bitcoin's nBits encoding: the low 3 bytes are a mantissa,
// the high byte an exponent giving the mantissa's base-256 shift.
func expandCompact(bits uint32) *big.Int {
	exponent := bits >> 24
	mantissa := big.NewInt(int64(bits & 0x007fffff))
	if exponent <= 3 {
		return mantissa.Rsh(mantissa, uint(8*(3-exponent)))
	}
	return mantissa.Lsh(mantissa, uint(8*(exponent-3)))
}

// Work returns this header's proof-of-work contribution: roughly
// 2^256 / (target+1), normalized against the difficulty-1 target so
// cumulative work sums are comparable integers rather than requiring
// full 256-bit division per header. Used to break fork-choice ties
// between chains of equal length.
func (h *Header) Work() *big.Int {
	target := expandCompact(h.Bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}
	work := new(big.Int).Div(maxTarget, target)
	if work.Sign() <= 0 {
		return big.NewInt(1)
	}
	return work
}
