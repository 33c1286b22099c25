package unstable

import "github.com/pkg/errors"

// ErrUnknownPrev is returned by Push when no node in the tree (nor the
// anchor) has a hash matching the pushed block's prev_hash.
var ErrUnknownPrev = errors.New("unstable: block's prev_hash is not in the tree")

// ErrBlockAlreadySeen is returned by Push when a node with the same
// block hash already exists in the tree.
var ErrBlockAlreadySeen = errors.New("unstable: block already present in the tree")
