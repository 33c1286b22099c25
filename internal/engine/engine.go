package engine

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/btcstate/chainstate/config"
	"github.com/btcstate/chainstate/internal/blocksource"
	"github.com/btcstate/chainstate/internal/chainlog"
	"github.com/btcstate/chainstate/internal/codec"
	"github.com/btcstate/chainstate/internal/ingest"
	"github.com/btcstate/chainstate/internal/pagestore"
	"github.com/btcstate/chainstate/internal/unstable"
	"github.com/btcstate/chainstate/internal/utxo"
	"github.com/btcstate/chainstate/pkg/btc"
)

// persistence layout: fixed offsets within the page store reserved
// for each component's Flush/Snapshot blob on pre_upgrade.
const (
	utxoOffset     = 0
	unstableOffset = 1 << 30 // 1 GiB in; the utxo set is flushed below this
)

// State owns the paged store, UTXO set, unstable tree, and ingestion
// machine, plus the admin/query surface and upgrade persistence. It
// is the single entry point a host (RPC server, CLI) talks to.
type State struct {
	mu sync.Mutex

	cfg     *config.Config
	store   pagestore.Store
	network btc.Network
	source  blocksource.Source

	utxos *utxo.Set
	tree  *unstable.Tree
	mach  *ingest.Machine
	fees  *feeTracker

	log zerolog.Logger
}

// New wires an empty UTXO set, an unstable tree anchored at
// genesisHash, and an ingestion machine driving source into the tree.
// Callers resuming from a prior upgrade should call PostUpgrade
// afterward instead of relying on this empty state.
func New(cfg *config.Config, store pagestore.Store, source blocksource.Source, genesisHash btc.Hash) (*State, error) {
	network := cfg.Network.BTCNetwork()
	utxos := utxo.New(network)
	tree := unstable.New(utxos, cfg.StabilityThreshold, genesisHash)
	mach := ingest.New(network, source, tree, utxos)
	fees := newFeeTracker()
	mach.SetFeeObserver(fees.observe)

	return &State{
		cfg:     cfg,
		store:   store,
		network: network,
		source:  source,
		utxos:   utxos,
		tree:    tree,
		mach:    mach,
		fees:    fees,
		log:     chainlog.Engine,
	}, nil
}

// Activate runs one bounded unit of ingestion work, gated on
// cfg.Syncing. instructionsRemaining is forwarded unchanged to the
// ingestion machine's Step.
func (s *State) Activate(instructionsRemaining func() bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Syncing == config.FlagDisabled {
		return nil
	}
	if err := s.mach.Step(instructionsRemaining); err != nil {
		s.log.Error().Err(err).Msg("activation step failed")
		for _, inv := range []error{utxo.ErrUnknownOutpoint, utxo.ErrBalanceUnderflow, utxo.ErrAddressTooLong, utxo.ErrDuplicateOutpoint, utxo.ErrBalanceOverflow} {
			if errors.Is(err, inv) {
				return invariantError(inv.Error(), err)
			}
		}
		return newError(CapacityExhausted, err)
	}
	return nil
}

// GetBalance returns addr's balance after rolling forward every
// unstable block with at least minConfirmations confirmations on top
// of the stable UTXO set.
func (s *State) GetBalance(addr btc.Address, minConfirmations uint32) (uint64, error) {
	if !addr.IsValid() {
		return 0, newError(MalformedRequest, errors.New("invalid address"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := int64(s.utxos.BalanceOf(addr))
	chain := s.confirmedChain(minConfirmations)
	delta := overlayBalance(s.utxos, s.network, addr, chain)

	total := base + delta
	if total < 0 {
		return 0, invariantError("balance underflow in overlay", errors.Errorf("address %s", addr))
	}
	return uint64(total), nil
}

// UTXOFilter selects how GetUTXOs paginates and how deep into the
// unstable tree it rolls forward.
type UTXOFilter struct {
	MinConfirmations uint32
	Cursor           []byte
	Limit            int
}

// GetUTXOs returns addr's UTXOs newest-first, merging the stable
// set's paginated range with an overlay of
// unstable blocks at least MinConfirmations deep. Pagination
// (Cursor/Limit) only walks the stable tier; unstable overlay entries
// are always returned in full on cursor-less (first-page) calls,
// matching the host's single-shot confirmations use case.
//
// A non-nil cursor is anchored to the unstable tree's tip hash at the
// time the page was issued: a cursor issued against a tip that has
// since been superseded (reorg, or a new block stabilizing) is
// rejected rather than silently resumed against a different chain.
func (s *State) GetUTXOs(addr btc.Address, filter UTXOFilter) ([]utxo.Entry, []byte, error) {
	if !addr.IsValid() {
		return nil, nil, newError(MalformedRequest, errors.New("invalid address"))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tipHash := s.tree.TipHash()

	var internalCursor []byte
	if filter.Cursor != nil {
		cursorTip, height, txid, vout, err := codec.DecodePage(filter.Cursor)
		if err != nil {
			return nil, nil, newError(MalformedRequest, err)
		}
		if cursorTip != tipHash {
			return nil, nil, newError(MalformedRequest, errors.New("page cursor was issued against a tip that no longer exists; restart pagination"))
		}
		internalCursor, err = codec.EncodeAddressHeightOutPoint(string(addr), height, txid, vout)
		if err != nil {
			return nil, nil, newError(MalformedRequest, err)
		}
	}

	stable, nextKey, err := s.utxos.UTXOsOf(addr, internalCursor, limit)
	if err != nil {
		return nil, nil, newError(MalformedRequest, err)
	}
	next, err := encodeNextPage(tipHash, nextKey)
	if err != nil {
		return nil, nil, newError(MalformedRequest, err)
	}

	if filter.Cursor != nil {
		// Subsequent pages only walk the already-stable tier: the
		// unstable overlay was already merged into page one.
		return stable, next, nil
	}

	chain := s.confirmedChain(filter.MinConfirmations)
	added, removed := overlayUTXOs(s.network, s.utxos.NextHeight(), addr, chain)

	out := added
	for _, e := range stable {
		if _, spent := removed[e.OutPoint]; spent {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Height != out[j].Height {
			return out[i].Height > out[j].Height
		}
		return outpointLess(out[i].OutPoint, out[j].OutPoint)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, next, nil
}

// encodeNextPage wraps the UTXO set's raw address_to_outpoints
// continuation key in a tip-anchored Page cursor. Returns nil when
// addrKey is nil (no further pages).
func encodeNextPage(tipHash btc.Hash, addrKey []byte) ([]byte, error) {
	if addrKey == nil {
		return nil, nil
	}
	_, height, txid, vout, err := codec.DecodeAddressHeightOutPoint(addrKey)
	if err != nil {
		return nil, err
	}
	return codec.EncodePage(tipHash, height, txid, vout), nil
}

// Tree exposes the unstable block tree for metrics reporting.
func (s *State) Tree() *unstable.Tree {
	return s.tree
}

// UTXOs exposes the UTXO set for metrics reporting.
func (s *State) UTXOs() *utxo.Set {
	return s.utxos
}

// IngestState returns the ingestion machine's current phase, for
// metrics reporting.
func (s *State) IngestState() ingest.State {
	return s.mach.State()
}

// GetCurrentFeePercentiles returns the 0th-100th percentile fee rates
// (satoshis per byte) sampled from recently stabilized blocks.
func (s *State) GetCurrentFeePercentiles() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fees.percentiles()
}

// SetConfigRequest carries the optional fields set_config may update;
// a nil field leaves the corresponding setting unchanged.
type SetConfigRequest struct {
	Syncing            *config.Flag
	Fees               *config.Fees
	StabilityThreshold *uint32
}

// SetConfig applies req after checking callerToken against the
// configured admin token.
func (s *State) SetConfig(callerToken string, req SetConfigRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.AdminToken == "" || callerToken != s.cfg.AdminToken {
		return ErrUnauthorized
	}

	if req.Syncing != nil {
		s.cfg.Syncing = *req.Syncing
	}
	if req.Fees != nil {
		s.cfg.Fees = *req.Fees
	}
	if req.StabilityThreshold != nil {
		s.cfg.StabilityThreshold = *req.StabilityThreshold
		s.tree.SetStabilityThreshold(*req.StabilityThreshold)
	}
	return nil
}

// PreUpgrade flushes the UTXO set and snapshots the unstable tree to
// the page store, in that order, so a crash mid-flush never leaves
// the tree referencing UTXO state that was not durably written first
func (s *State) PreUpgrade() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.utxos.Flush(s.store, utxoOffset)
	if err != nil {
		return errors.Wrap(err, "engine: pre_upgrade flush utxos")
	}
	if next > unstableOffset {
		return errors.New("engine: utxo flush overran reserved region")
	}

	blob := s.tree.Snapshot()
	if err := writeBlob(s.store, unstableOffset, blob); err != nil {
		return errors.Wrap(err, "engine: pre_upgrade snapshot tree")
	}
	return nil
}

// PostUpgrade reloads the UTXO set and unstable tree from the page
// store written by a prior PreUpgrade, then rebuilds the ingestion
// machine and fee tracker around them.
func (s *State) PostUpgrade() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	utxos := utxo.New(s.network)
	if _, err := utxos.Load(s.store, utxoOffset); err != nil {
		return errors.Wrap(err, "engine: post_upgrade load utxos")
	}

	blob, err := readBlob(s.store, unstableOffset)
	if err != nil {
		return errors.Wrap(err, "engine: post_upgrade read tree snapshot")
	}
	tree, err := unstable.Restore(blob)
	if err != nil {
		return errors.Wrap(err, "engine: post_upgrade restore tree")
	}
	tree.SetStabilityThreshold(s.cfg.StabilityThreshold)

	mach := ingest.New(s.network, s.source, tree, utxos)
	fees := newFeeTracker()
	mach.SetFeeObserver(fees.observe)

	s.utxos = utxos
	s.tree = tree
	s.mach = mach
	s.fees = fees
	return nil
}

// writeBlob writes a length-prefixed blob at offset, growing the
// store first if needed (same idiom as internal/utxo/persist.go's
// growToFit, duplicated here since that helper is unexported).
func writeBlob(store pagestore.Store, offset uint64, blob []byte) error {
	if err := growToFit(store, offset, 4+len(blob)); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(blob)))
	if err := store.WriteAt(offset, lenBuf[:]); err != nil {
		return err
	}
	return store.WriteAt(offset+4, blob)
}

// readBlob reads back a blob written by writeBlob.
func readBlob(store pagestore.Store, offset uint64) ([]byte, error) {
	var lenBuf [4]byte
	if err := store.ReadAt(offset, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	blob := make([]byte, length)
	if err := store.ReadAt(offset+4, blob); err != nil {
		return nil, err
	}
	return blob, nil
}

func growToFit(store pagestore.Store, offset uint64, length int) error {
	need := offset + uint64(length)
	have := store.Size() * pagestore.PageSize
	if need <= have {
		return nil
	}
	extraBytes := need - have
	extraPages := extraBytes / pagestore.PageSize
	if extraBytes%pagestore.PageSize != 0 {
		extraPages++
	}
	_, err := store.Grow(extraPages)
	return err
}
