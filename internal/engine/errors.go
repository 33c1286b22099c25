// Package engine wires the paged store, the UTXO set, the unstable
// tree, and the ingestion state machine into a single owner, plus the
// admin/query surface and pre_upgrade/post_upgrade persistence.
package engine

import "github.com/pkg/errors"

// Kind identifies one of the engine's error categories.
type Kind uint8

const (
	// MalformedRequest: bad address, oversized stability threshold,
	// bad pagination cursor. Rejected; read-only state untouched.
	MalformedRequest Kind = iota
	// UnknownBlock: push prev-hash not in tree. Handled entirely
	// inside internal/ingest; exposed here only for completeness.
	UnknownBlock
	// DuplicateBlock: discarded silently (idempotent).
	DuplicateBlock
	// DecodeError: malformed block bytes from source. Discarded;
	// fetch retried.
	DecodeError
	// CapacityExhausted: paged store grow failed. Propagated; the
	// ingestion loop halts Ingesting and surfaces the condition to
	// the host.
	CapacityExhausted
	// InvariantViolation: e.g. remove of unknown outpoint, balance
	// underflow, address length > 255. Fatal; aborts the activation.
	InvariantViolation
)

func (k Kind) String() string {
	switch k {
	case MalformedRequest:
		return "malformed_request"
	case UnknownBlock:
		return "unknown_block"
	case DuplicateBlock:
		return "duplicate_block"
	case DecodeError:
		return "decode_error"
	case CapacityExhausted:
		return "capacity_exhausted"
	case InvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// Error is a typed engine error carrying the violated kind and, for
// InvariantViolation, which invariant was broken.
type Error struct {
	Kind      Kind
	Invariant string // set only for InvariantViolation
	cause     error
}

func (e *Error) Error() string {
	if e.Invariant != "" {
		return e.Kind.String() + ": " + e.Invariant + ": " + e.cause.Error()
	}
	return e.Kind.String() + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

func invariantError(invariant string, cause error) *Error {
	return &Error{Kind: InvariantViolation, Invariant: invariant, cause: cause}
}

// ErrUnauthorized is returned by SetConfig when the caller token does
// not match the configured admin token.
var ErrUnauthorized = errors.New("engine: unauthorized set_config caller")
