package engine

import (
	"sort"

	"github.com/btcstate/chainstate/internal/utxo"
	"github.com/btcstate/chainstate/pkg/btc"
)

// confirmedChain returns the prefix of the unstable tree's best chain
// that has accumulated at least minConfirmations confirmations: the
// last minConfirmations blocks of the best chain are excluded, since
// get_balance/get_utxos read the stable set after mentally rolling
// forward only those unstable blocks with depth >= minConfirmations.
func (e *State) confirmedChain(minConfirmations uint32) []*btc.Block {
	chain := e.tree.BestChain()
	if uint32(len(chain)) <= minConfirmations {
		return nil
	}
	return chain[:uint32(len(chain))-minConfirmations]
}

// overlayBalance returns the balance delta addr would see from
// rolling forward chain on top of the stable UTXO set, without
// mutating it: outputs chain pays to addr are credited; inputs chain
// spends that belong to addr (whether already stable or paid within
// chain itself) are debited.
func overlayBalance(utxos *utxo.Set, network btc.Network, addr btc.Address, chain []*btc.Block) int64 {
	added := make(map[btc.OutPoint]btc.TxOut)
	var delta int64

	for _, block := range chain {
		for _, tx := range block.Transactions {
			if !tx.IsCoinbase() {
				for _, in := range tx.Inputs {
					if out, ok := added[in.PrevOut]; ok {
						delete(added, in.PrevOut)
						delta -= int64(out.Value)
						continue
					}
					if e, ok := utxos.Resolve(in.PrevOut); ok {
						if a, ok := btc.AddressForScript(network, e.Script); ok && a == addr {
							delta -= int64(e.Value)
						}
					}
				}
			}
			for i, out := range tx.Outputs {
				a, ok := btc.AddressForScript(network, out.Script)
				if !ok || a != addr {
					continue
				}
				op := btc.OutPoint{Txid: tx.Txid(), Vout: uint32(i)}
				added[op] = out
				delta += int64(out.Value)
			}
		}
	}
	return delta
}

// overlayUTXOs returns the entries chain adds for addr at the heights
// they would land at (anchor-relative heights are not tracked by
// unstable.Tree nodes directly, so heights are derived from the
// stable set's next_height plus the block's position in chain) and
// the set of outpoints chain spends, so a caller can merge this with
// the stable utxo.Set.UTXOsOf result.
func overlayUTXOs(network btc.Network, baseHeight uint32, addr btc.Address, chain []*btc.Block) (added []utxo.Entry, removed map[btc.OutPoint]struct{}) {
	removed = make(map[btc.OutPoint]struct{})
	addedByOutpoint := make(map[btc.OutPoint]utxo.Entry)

	for i, block := range chain {
		height := baseHeight + uint32(i)
		for _, tx := range block.Transactions {
			if !tx.IsCoinbase() {
				for _, in := range tx.Inputs {
					if _, ok := addedByOutpoint[in.PrevOut]; ok {
						delete(addedByOutpoint, in.PrevOut)
						continue
					}
					removed[in.PrevOut] = struct{}{}
				}
			}
			for vout, out := range tx.Outputs {
				a, ok := btc.AddressForScript(network, out.Script)
				if !ok || a != addr {
					continue
				}
				op := btc.OutPoint{Txid: tx.Txid(), Vout: uint32(vout)}
				addedByOutpoint[op] = utxo.Entry{OutPoint: op, Value: out.Value, Script: out.Script, Height: height}
			}
		}
	}

	for _, e := range addedByOutpoint {
		added = append(added, e)
	}
	sort.Slice(added, func(i, j int) bool {
		if added[i].Height != added[j].Height {
			return added[i].Height > added[j].Height
		}
		return outpointLess(added[i].OutPoint, added[j].OutPoint)
	})
	return added, removed
}

func outpointLess(a, b btc.OutPoint) bool {
	if a.Txid != b.Txid {
		for i := range a.Txid {
			if a.Txid[i] != b.Txid[i] {
				return a.Txid[i] < b.Txid[i]
			}
		}
	}
	return a.Vout < b.Vout
}
