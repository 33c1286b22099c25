// Package ingest implements the block ingestion state machine:
// Idle/Fetching/Ingesting/Stabilizing, wiring the unstable block tree
// to the UTXO set via resumable block application, and driving the
// block source protocol.
package ingest

import (
	"github.com/pkg/errors"

	"github.com/btcstate/chainstate/internal/blocksource"
	"github.com/btcstate/chainstate/internal/unstable"
	"github.com/btcstate/chainstate/internal/utxo"
	"github.com/btcstate/chainstate/pkg/btc"
)

// State is one of the four ingestion phases.
type State uint8

const (
	Idle State = iota
	Fetching
	Ingesting
	Stabilizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Ingesting:
		return "ingesting"
	case Stabilizing:
		return "stabilizing"
	default:
		return "unknown"
	}
}

// Machine drives the state machine. Only one block is stabilized at a
// time; the in-progress cursor survives across Step calls and, via
// Snapshot/Restore, across process restarts.
type Machine struct {
	state   State
	network btc.Network
	source  blocksource.Source
	tree    *unstable.Tree
	utxos   *utxo.Set

	processed map[btc.Hash]struct{}

	pendingBlock  *btc.Block
	pendingHeight uint32
	pendingCursor *utxo.Cursor

	feeObserver func(*btc.Block, *utxo.Set)
}

// SetFeeObserver registers a callback invoked once per block, at the
// moment it is popped stable and before apply_block removes any of
// its spent inputs — the only point at which both the block and the
// pre-spend value of every input it consumes are simultaneously
// available. Used by internal/engine to sample fee-percentile data,
// a query the core itself has no use for.
func (m *Machine) SetFeeObserver(fn func(*btc.Block, *utxo.Set)) {
	m.feeObserver = fn
}

// New creates a machine in the Idle state.
func New(network btc.Network, source blocksource.Source, tree *unstable.Tree, utxos *utxo.Set) *Machine {
	return &Machine{
		state:     Idle,
		network:   network,
		source:    source,
		tree:      tree,
		utxos:     utxos,
		processed: make(map[btc.Hash]struct{}),
	}
}

// State returns the current phase.
func (m *Machine) State() State {
	return m.state
}

// Step advances the state machine by one bounded unit of work.
// instructionsRemaining is forwarded to utxo.Set.ApplyBlock while
// Stabilizing; it is ignored in every other phase.
func (m *Machine) Step(instructionsRemaining func() bool) error {
	switch m.state {
	case Idle:
		return m.enterFetching()
	case Fetching:
		// Source.Fetch is synchronous in this implementation, so
		// enterFetching never actually leaves the machine parked here;
		// a host with a genuinely asynchronous transport would poll a
		// pending-response flag instead of looping back to Idle.
		m.state = Idle
		return nil
	case Ingesting:
		return m.tryStabilize()
	case Stabilizing:
		return m.continueStabilizing(instructionsRemaining)
	default:
		return errors.Errorf("ingest: unknown state %d", m.state)
	}
}

// enterFetching issues GetSuccessors(Initial{...}) and pushes every
// returned block into the unstable tree.
func (m *Machine) enterFetching() error {
	anchor := m.tree.AnchorHash()

	req := blocksource.Request{Initial: &blocksource.InitialRequest{
		Network:              m.network,
		Anchor:               anchor,
		ProcessedBlockHashes: m.processedHashes(),
	}}

	resp, err := m.source.Fetch(req)
	if err != nil {
		return errors.Wrap(err, "ingest: fetch")
	}

	switch {
	case resp.Complete != nil:
		m.ingestBlocks(resp.Complete.Blocks)
	case resp.Partial != nil:
		if err := m.assemblePartial(resp.Partial); err != nil {
			return err
		}
	case resp.FollowUp != nil:
		// A bare FollowUp with no prior Begin is a protocol error from
		// the source's side; discard and retry next activation.
		return nil
	}

	m.state = Ingesting
	return nil
}

func (m *Machine) assemblePartial(p *blocksource.PartialResponse) error {
	var asm blocksource.Assembler
	asm.Begin(p)
	for asm.Active() {
		resp, err := m.source.Fetch(blocksource.Request{FollowUp: &blocksource.FollowUpRequest{
			Page: p.RemainingFollowUps - asm.RemainingFollowUps(),
		}})
		if err != nil {
			return errors.Wrap(err, "ingest: follow-up fetch")
		}
		if resp.FollowUp == nil {
			asm.Reset()
			return errors.Wrap(blocksource.ErrAssemblyMismatch, "ingest: expected follow-up response")
		}
		full, err := asm.Append(resp.FollowUp)
		if err != nil {
			return err
		}
		if full != nil {
			m.ingestBlocks([][]byte{full})
		}
	}
	return nil
}

// ingestBlocks decodes and pushes each block, queuing unknown-prev
// hashes as processed so the source stops resending them.
func (m *Machine) ingestBlocks(raw [][]byte) {
	for _, b := range raw {
		blk, err := btc.DecodeBlock(b)
		if err != nil {
			// DecodeError: discarded, fetch retried on next activation.
			continue
		}
		if err := m.tree.Push(blk); err != nil {
			if errors.Is(err, unstable.ErrUnknownPrev) {
				m.processed[blk.Hash()] = struct{}{}
			}
			// DuplicateBlock is discarded silently.
		}
	}
}

func (m *Machine) processedHashes() []btc.Hash {
	out := make([]btc.Hash, 0, len(m.processed))
	for h := range m.processed {
		out = append(out, h)
	}
	return out
}

// tryStabilize pops the unique stable child, if any, and begins
// applying it.
func (m *Machine) tryStabilize() error {
	blk := m.tree.PopStable()
	if blk == nil {
		m.state = Idle
		return nil
	}
	if m.feeObserver != nil {
		m.feeObserver(blk, m.utxos)
	}
	m.pendingBlock = blk
	m.pendingHeight = m.utxos.NextHeight()
	m.pendingCursor = nil
	m.state = Stabilizing
	return nil
}

// continueStabilizing runs one slice of apply_block, transitioning
// back to Idle once it reports Done.
func (m *Machine) continueStabilizing(instructionsRemaining func() bool) error {
	cursor, err := m.utxos.ApplyBlock(m.pendingBlock, m.pendingHeight, m.pendingCursor, instructionsRemaining)
	if err != nil {
		return errors.Wrap(err, "ingest: apply_block")
	}
	if cursor != nil {
		m.pendingCursor = cursor
		return nil
	}
	m.pendingBlock = nil
	m.pendingCursor = nil
	m.state = Idle
	return nil
}
