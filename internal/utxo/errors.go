package utxo

import "github.com/pkg/errors"

// ErrDuplicateOutpoint is returned by InsertUTXO when the outpoint
// already exists in its routed tier — a caller invariant violation.
var ErrDuplicateOutpoint = errors.New("utxo: duplicate outpoint insertion")

// ErrUnknownOutpoint is returned by RemoveUTXO when the outpoint is
// absent from all three tiers — a caller invariant violation.
var ErrUnknownOutpoint = errors.New("utxo: unknown outpoint")

// ErrBalanceOverflow is returned by InsertUTXO when crediting an
// address's balance would exceed 2^64-1.
var ErrBalanceOverflow = errors.New("utxo: balance overflow")

// ErrBalanceUnderflow is returned by RemoveUTXO when debiting an
// address's balance would go negative — indicates the tier maps and
// balance index have diverged.
var ErrBalanceUnderflow = errors.New("utxo: balance underflow")

// ErrAddressTooLong is returned when a derived address exceeds the
// 255-byte length-prefix encoding limit.
var ErrAddressTooLong = errors.New("utxo: address exceeds 255 bytes")

// ErrOutOfOrderHeight is returned by ApplyBlock when invoked with a
// height other than next_height.
var ErrOutOfOrderHeight = errors.New("utxo: apply_block height is not next_height")
