package engine

import (
	"sort"

	"github.com/btcstate/chainstate/internal/utxo"
	"github.com/btcstate/chainstate/pkg/btc"
)

// feeWindowBlocks bounds how many recently stabilized blocks
// contribute fee-rate samples to get_current_fee_percentiles.
const feeWindowBlocks = 100

// feeTracker samples fee-per-byte rates from stabilized blocks to back
// get_current_fee_percentiles.
//
// Sampling happens via internal/ingest.Machine.SetFeeObserver, fired
// the instant a block is popped stable and before apply_block removes
// any of the inputs it spends — the only moment both a transaction's
// fee and its byte size are cheaply reconstructable from the UTXO set
// alone.
type feeTracker struct {
	perBlock [][]uint64
}

func newFeeTracker() *feeTracker {
	return &feeTracker{}
}

// observe computes one fee-rate (satoshis per byte) sample per
// non-coinbase transaction in block and appends them as a new window
// entry, evicting the oldest once feeWindowBlocks is exceeded.
func (f *feeTracker) observe(block *btc.Block, utxos *utxo.Set) {
	var rates []uint64
	for _, tx := range block.Transactions {
		if tx.IsCoinbase() {
			continue
		}
		var inputTotal uint64
		resolved := true
		for _, in := range tx.Inputs {
			e, ok := utxos.Resolve(in.PrevOut)
			if !ok {
				resolved = false
				break
			}
			inputTotal += e.Value
		}
		if !resolved {
			continue
		}
		outputTotal, err := tx.TotalOutputValue()
		if err != nil || outputTotal > inputTotal {
			continue
		}
		size := len(tx.Bytes())
		if size == 0 {
			continue
		}
		rates = append(rates, (inputTotal-outputTotal)/uint64(size))
	}

	f.perBlock = append(f.perBlock, rates)
	if len(f.perBlock) > feeWindowBlocks {
		f.perBlock = f.perBlock[1:]
	}
}

// percentiles returns the 0th through 100th percentile (inclusive, in
// 1% steps, 101 values) of every fee-rate sample in the window, nil
// when no transactions have been observed yet.
func (f *feeTracker) percentiles() []uint64 {
	var all []uint64
	for _, rates := range f.perBlock {
		all = append(all, rates...)
	}
	if len(all) == 0 {
		return nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	out := make([]uint64, 0, 101)
	for p := 0; p <= 100; p++ {
		idx := p * (len(all) - 1) / 100
		out = append(out, all[idx])
	}
	return out
}
