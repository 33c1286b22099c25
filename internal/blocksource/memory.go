package blocksource

import "github.com/btcstate/chainstate/pkg/btc"

// MemorySource is an in-memory Source test double: blocks keyed by
// their prev-hash chain, returned whole (no Partial chunking), used
// to exercise the ingestion state machine without a real transport.
type MemorySource struct {
	// ByPrevHash maps a parent block hash to the raw wire bytes of
	// every known successor block.
	ByPrevHash map[btc.Hash][][]byte
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{ByPrevHash: make(map[btc.Hash][][]byte)}
}

// AddBlock registers block as a successor of prevHash.
func (m *MemorySource) AddBlock(prevHash btc.Hash, blockBytes []byte) {
	m.ByPrevHash[prevHash] = append(m.ByPrevHash[prevHash], blockBytes)
}

// Fetch implements Source by returning every registered successor of
// req.Initial.Anchor as a CompleteResponse, skipping hashes already in
// ProcessedBlockHashes is left to the caller (the tree rejects
// duplicates on Push regardless).
func (m *MemorySource) Fetch(req Request) (Response, error) {
	if req.Initial == nil {
		return Response{Complete: &CompleteResponse{}}, nil
	}
	blocks := m.ByPrevHash[req.Initial.Anchor]
	return Response{Complete: &CompleteResponse{Blocks: blocks}}, nil
}
