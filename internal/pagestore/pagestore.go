// Package pagestore provides a grow-only, page-addressed byte region
// used as the backing medium for every persistent map in the engine.
package pagestore

import "github.com/pkg/errors"

// PageSize is the fixed page granularity of the store, matching the
// host's stable-memory page size.
const PageSize = 65536

// ErrOutOfBounds is returned by ReadAt/WriteAt when the requested
// range extends past the store's current size.
var ErrOutOfBounds = errors.New("pagestore: access out of bounds")

// ErrCapacityExhausted is returned by Grow when the backing medium
// cannot accommodate the requested additional pages.
var ErrCapacityExhausted = errors.New("pagestore: capacity exhausted")

// Store is a linear, grow-only byte region addressed in PageSize
// pages. Writes past Size()*PageSize must Grow first.
type Store interface {
	// Size returns the current size of the store in pages.
	Size() uint64

	// Grow extends the store by n pages and returns the previous size
	// in pages. Returns ErrCapacityExhausted if the backing medium
	// cannot grow.
	Grow(n uint64) (prev uint64, err error)

	// ReadAt copies len(dst) bytes starting at offset into dst.
	ReadAt(offset uint64, dst []byte) error

	// WriteAt copies src into the store starting at offset.
	WriteAt(offset uint64, src []byte) error

	// Close releases any resources held by the store.
	Close() error
}

func checkBounds(sizePages uint64, offset uint64, length int) error {
	if length == 0 {
		return nil
	}
	end := offset + uint64(length)
	if end < offset {
		return ErrOutOfBounds
	}
	if end > sizePages*PageSize {
		return ErrOutOfBounds
	}
	return nil
}
