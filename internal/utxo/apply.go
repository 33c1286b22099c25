package utxo

import (
	"github.com/pkg/errors"

	"github.com/btcstate/chainstate/pkg/btc"
)

// Phase identifies which half of a transaction's application a
// resumed Cursor is paused within.
type Phase uint8

const (
	PhaseInputs Phase = iota
	PhaseOutputs
)

// Cursor is the resumable progress marker for ApplyBlock: where
// application of the current block paused.
type Cursor struct {
	BlockHash btc.Hash
	TxIndex   int
	Phase     Phase
	StepIndex int // input index (PhaseInputs) or output index (PhaseOutputs)
}

// ApplyBlock applies block B at height H to the set: for each
// transaction, remove every non-coinbase
// input's spent output then insert every output, in strict
// inputs-before-outputs order; afterward next_height = H + 1.
//
// instructionsRemaining is polled before each atomic sub-step (one
// insert_utxo or remove_utxo); when it returns false, ApplyBlock
// returns a non-nil Cursor that resume must be passed back on the
// next call. A nil Cursor with a nil error means the block is fully
// applied.
//
// resume, if non-nil, must be the Cursor previously returned for this
// same block; ApplyBlock is resumable exactly once per pause, not
// reentrant across different blocks.
func (s *Set) ApplyBlock(block *btc.Block, height uint32, resume *Cursor, instructionsRemaining func() bool) (*Cursor, error) {
	if resume == nil && height != s.nextHeight {
		return nil, errors.Wrapf(ErrOutOfOrderHeight, "apply_block(%d) but next_height=%d", height, s.nextHeight)
	}

	startTx, startPhase, startStep := 0, PhaseInputs, 0
	if resume != nil {
		startTx, startPhase, startStep = resume.TxIndex, resume.Phase, resume.StepIndex
	}

	for txIdx := startTx; txIdx < len(block.Transactions); txIdx++ {
		tx := block.Transactions[txIdx]
		coinbase := tx.IsCoinbase()

		phase := PhaseInputs
		inputStart, outputStart := 0, 0
		if txIdx == startTx {
			phase = startPhase
			inputStart, outputStart = startStep, startStep
		}

		if phase == PhaseInputs {
			for i := inputStart; i < len(tx.Inputs); i++ {
				if !instructionsRemaining() {
					return &Cursor{BlockHash: block.Hash(), TxIndex: txIdx, Phase: PhaseInputs, StepIndex: i}, nil
				}
				if coinbase {
					continue
				}
				if _, _, err := s.RemoveUTXO(tx.Inputs[i].PrevOut); err != nil {
					return nil, err
				}
			}
			outputStart = 0
		}

		for i := outputStart; i < len(tx.Outputs); i++ {
			if !instructionsRemaining() {
				return &Cursor{BlockHash: block.Hash(), TxIndex: txIdx, Phase: PhaseOutputs, StepIndex: i}, nil
			}
			op := btc.OutPoint{Txid: tx.Txid(), Vout: uint32(i)}
			if err := s.InsertUTXO(op, tx.Outputs[i], height); err != nil {
				// Duplicate coinbase txids across historical blocks
				// (pre-BIP-34) are handled by letting the later
				// insertion overwrite. RemoveUTXO fully unindexes the
				// old entry (balance, address_to_outpoints) before the
				// fresh insert re-credits it, so the overwrite doesn't
				// double-count.
				if coinbase && errors.Is(err, ErrDuplicateOutpoint) {
					if _, _, err := s.RemoveUTXO(op); err != nil {
						return nil, err
					}
					if err := s.InsertUTXO(op, tx.Outputs[i], height); err != nil {
						return nil, err
					}
					continue
				}
				return nil, err
			}
		}
	}

	s.nextHeight = height + 1
	return nil, nil
}
