package blocksource

import "github.com/pkg/errors"

// ErrAssemblyMismatch is returned when a FollowUp response arrives out
// of sequence, or the final concatenation would be incomplete; the
// caller must discard the assembly and retry with a fresh Initial
// request.
var ErrAssemblyMismatch = errors.New("blocksource: follow-up assembly mismatch")

// Assembler reassembles a Partial response plus its FollowUp chunks,
// in order, into one block's wire bytes.
type Assembler struct {
	buf       []byte
	remaining uint8
	active    bool
}

// Begin starts a new assembly from a PartialResponse.
func (a *Assembler) Begin(p *PartialResponse) {
	a.buf = append([]byte(nil), p.PartialBlock...)
	a.remaining = p.RemainingFollowUps
	a.active = true
}

// Active reports whether an assembly is in progress.
func (a *Assembler) Active() bool {
	return a.active
}

// RemainingFollowUps reports how many FollowUp chunks are still
// outstanding.
func (a *Assembler) RemainingFollowUps() uint8 {
	return a.remaining
}

// Append feeds one FollowUp chunk into the assembly, in the order the
// source sent remaining_follow_ups. Returns the fully-assembled block
// bytes once the last chunk lands, or nil while more are expected.
func (a *Assembler) Append(f *FollowUpResponse) ([]byte, error) {
	if !a.active {
		return nil, ErrAssemblyMismatch
	}
	if a.remaining == 0 {
		a.Reset()
		return nil, ErrAssemblyMismatch
	}
	a.buf = append(a.buf, f.Bytes...)
	a.remaining--
	if a.remaining == 0 {
		out := a.buf
		a.Reset()
		return out, nil
	}
	return nil, nil
}

// Reset discards any in-progress assembly.
func (a *Assembler) Reset() {
	a.buf = nil
	a.remaining = 0
	a.active = false
}
