// Package unstable implements the Unstable Blocks tree: the
// in-memory forest rooted at the last stable block, the
// stability-threshold rule, and the fork-choice procedure that selects
// which child of the anchor, if any, has become stable.
//
// Candidate chains stay unstable — and therefore uncommitted to the
// UTXO set — until they clear the stability threshold, so forks are
// tracked as an explicit in-memory tree rather than a single persisted
// chain plus undo log.
package unstable

import (
	"math/big"

	"github.com/btcstate/chainstate/internal/utxo"
	"github.com/btcstate/chainstate/pkg/btc"
)

// node is one block held in the unstable tree. height and work are
// absolute (counted from genesis, not relative to the anchor) so
// comparisons across subtrees need no rebasing.
type node struct {
	hash     btc.Hash
	prevHash btc.Hash
	height   int64
	work     *big.Int
	block    *btc.Block
}

// Tree is the forest of not-yet-stable blocks rooted at anchor.
// anchorHeight is the height of the anchor block itself; -1 denotes
// the virtual parent of genesis when no block has been applied yet.
type Tree struct {
	anchorHash   btc.Hash
	anchorHeight int64
	anchorWork   *big.Int
	k            uint32

	nodes    map[btc.Hash]*node
	children map[btc.Hash][]btc.Hash
}

// New constructs an empty tree rooted at anchor, the last block
// already committed to utxos (or the virtual pre-genesis parent if no
// block has been applied yet).
func New(utxos *utxo.Set, k uint32, anchorHash btc.Hash) *Tree {
	anchorHeight := int64(utxos.NextHeight()) - 1
	return &Tree{
		anchorHash:   anchorHash,
		anchorHeight: anchorHeight,
		anchorWork:   big.NewInt(0),
		k:            k,
		nodes:        make(map[btc.Hash]*node),
		children:     make(map[btc.Hash][]btc.Hash),
	}
}

// Push links block to the node whose hash equals block's prev_hash.
func (t *Tree) Push(block *btc.Block) error {
	hash := block.Hash()
	if _, seen := t.nodes[hash]; seen {
		return ErrBlockAlreadySeen
	}

	prev := block.Header.PrevHash
	var parentHeight int64
	var parentWork *big.Int
	switch {
	case prev == t.anchorHash:
		parentHeight, parentWork = t.anchorHeight, t.anchorWork
	default:
		p, ok := t.nodes[prev]
		if !ok {
			return ErrUnknownPrev
		}
		parentHeight, parentWork = p.height, p.work
	}

	n := &node{
		hash:     hash,
		prevHash: prev,
		height:   parentHeight + 1,
		work:     new(big.Int).Add(parentWork, block.Header.Work()),
		block:    block,
	}
	t.nodes[hash] = n
	t.children[prev] = append(t.children[prev], hash)
	return nil
}

// AnchorHash returns the hash of the current anchor block.
func (t *Tree) AnchorHash() btc.Hash {
	return t.anchorHash
}

// TipHash returns the hash of the current best chain's tip, or the
// anchor hash if no unstable block has been pushed yet. Used to
// anchor pagination cursors so a stale cursor (issued against a tip
// that has since been superseded by a reorg or a new stabilization)
// can be detected rather than silently misread.
func (t *Tree) TipHash() btc.Hash {
	children := t.children[t.anchorHash]
	if len(children) == 0 {
		return t.anchorHash
	}
	best := t.bestDescendant(children[0])
	for _, c := range children[1:] {
		if cand := t.bestDescendant(c); chainBetter(cand, best) {
			best = cand
		}
	}
	return best.hash
}

// TipHashes returns the hash of every leaf.
func (t *Tree) TipHashes() []btc.Hash {
	var tips []btc.Hash
	for hash := range t.nodes {
		if len(t.children[hash]) == 0 {
			tips = append(tips, hash)
		}
	}
	return tips
}

// MainChainHeight returns the anchor height plus the depth of the
// longest chain.
func (t *Tree) MainChainHeight() uint32 {
	children := t.children[t.anchorHash]
	if len(children) == 0 {
		return heightOrZero(t.anchorHeight)
	}
	best := t.bestDescendant(children[0])
	for _, c := range children[1:] {
		cand := t.bestDescendant(c)
		if chainBetter(cand, best) {
			best = cand
		}
	}
	return heightOrZero(best.height)
}

func heightOrZero(h int64) uint32 {
	if h < 0 {
		return 0
	}
	return uint32(h)
}

// SetStabilityThreshold updates k without itself triggering promotion.
func (t *Tree) SetStabilityThreshold(k uint32) {
	t.k = k
}

// chainMetric is the fork-choice comparison key for a candidate best
// descendant chain: longer wins; ties broken by cumulative work; ties
// broken by the lexicographically smaller block hash.
type chainMetric struct {
	height int64
	work   *big.Int
	hash   btc.Hash
}

// chainBetter reports whether a is the preferred chain over b.
func chainBetter(a, b chainMetric) bool {
	if a.height != b.height {
		return a.height > b.height
	}
	cmp := a.work.Cmp(b.work)
	if cmp != 0 {
		return cmp > 0
	}
	return lessHash(a.hash, b.hash)
}

func lessHash(a, b btc.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// bestDescendant returns the metric of the best chain running from
// hash down to one of its leaves, inclusive of hash itself.
func (t *Tree) bestDescendant(hash btc.Hash) chainMetric {
	n := t.nodes[hash]
	kids := t.children[hash]
	if len(kids) == 0 {
		return chainMetric{height: n.height, work: n.work, hash: n.hash}
	}
	best := t.bestDescendant(kids[0])
	for _, k := range kids[1:] {
		cand := t.bestDescendant(k)
		if chainBetter(cand, best) {
			best = cand
		}
	}
	return best
}

// BestChain returns the blocks of the best chain from the anchor
// (exclusive) to its tip (inclusive), in ascending height order. Used
// by query callers that need to roll forward unstable blocks down to
// a caller-chosen confirmation depth.
func (t *Tree) BestChain() []*btc.Block {
	children := t.children[t.anchorHash]
	if len(children) == 0 {
		return nil
	}
	best := t.bestDescendant(children[0])
	for _, c := range children[1:] {
		if cand := t.bestDescendant(c); chainBetter(cand, best) {
			best = cand
		}
	}

	var chain []*btc.Block
	hash := best.hash
	for hash != t.anchorHash {
		n := t.nodes[hash]
		chain = append(chain, n.block)
		hash = n.prevHash
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// PopStable removes and returns the unique stable child of anchor, if
// any, rewiring anchor to it and pruning every sibling subtree.
func (t *Tree) PopStable() *btc.Block {
	kids := t.children[t.anchorHash]
	if len(kids) == 0 {
		return nil
	}

	type candidate struct {
		hash   btc.Hash
		metric chainMetric
	}
	cands := make([]candidate, len(kids))
	for i, h := range kids {
		cands[i] = candidate{hash: h, metric: t.bestDescendant(h)}
	}

	bestIdx := 0
	for i := 1; i < len(cands); i++ {
		if chainBetter(cands[i].metric, cands[bestIdx].metric) {
			bestIdx = i
		}
	}
	best := cands[bestIdx]

	var leadHeight int64
	if len(cands) == 1 {
		leadHeight = best.metric.height - t.anchorHeight
	} else {
		secondIdx := -1
		for i, c := range cands {
			if i == bestIdx {
				continue
			}
			if secondIdx == -1 || chainBetter(c.metric, cands[secondIdx].metric) {
				secondIdx = i
			}
		}
		leadHeight = best.metric.height - cands[secondIdx].metric.height
	}

	if leadHeight < int64(t.k) {
		return nil
	}

	newAnchor := t.nodes[best.hash]
	for _, h := range kids {
		if h != best.hash {
			t.pruneSubtree(h)
		}
	}
	delete(t.nodes, best.hash)
	delete(t.children, t.anchorHash)

	t.anchorHash = newAnchor.hash
	t.anchorHeight = newAnchor.height
	t.anchorWork = newAnchor.work
	return newAnchor.block
}

// pruneSubtree removes hash and every descendant from the tree.
func (t *Tree) pruneSubtree(hash btc.Hash) {
	for _, child := range t.children[hash] {
		t.pruneSubtree(child)
	}
	delete(t.children, hash)
	delete(t.nodes, hash)
}
