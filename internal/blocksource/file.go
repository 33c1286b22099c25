package blocksource

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/btcstate/chainstate/pkg/btc"
)

// FileSource serves raw blocks from flat files in a directory, one
// block per file, named so lexicographic order matches chain order
// (e.g. zero-padded height). Used by cmd/chainstated when no live
// transport is configured, analogous to replaying a local blk*.dat
// dump rather than talking to a peer.
type FileSource struct {
	dir    string
	blocks [][]byte
	byHash map[btc.Hash][]byte
}

// NewFileSource loads every file in dir (sorted by name) as a raw
// block, in order.
func NewFileSource(dir string) (*FileSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "blocksource: read block directory")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	fs := &FileSource{dir: dir, byHash: make(map[btc.Hash][]byte)}
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, errors.Wrapf(err, "blocksource: read block file %s", name)
		}
		blk, err := btc.DecodeBlock(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "blocksource: decode block file %s", name)
		}
		fs.blocks = append(fs.blocks, raw)
		fs.byHash[blk.Header.PrevHash] = raw
	}
	return fs, nil
}

// Fetch implements Source by returning the single successor of
// req.Initial.Anchor known to this source, if any.
func (f *FileSource) Fetch(req Request) (Response, error) {
	if req.Initial == nil {
		return Response{Complete: &CompleteResponse{}}, nil
	}
	next, ok := f.byHash[req.Initial.Anchor]
	if !ok {
		return Response{Complete: &CompleteResponse{}}, nil
	}
	return Response{Complete: &CompleteResponse{Blocks: [][]byte{next}}}, nil
}
