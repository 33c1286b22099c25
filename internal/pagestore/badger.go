package pagestore

import (
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// BadgerStore persists pages in a github.com/dgraph-io/badger/v4
// database, one key per page. It is the concrete stand-in for the
// host's real paged stable memory: reopening the same directory after
// a restart reconstructs Size() from the persisted page count.
type BadgerStore struct {
	db *badger.DB
}

var sizeKey = []byte("meta/size")

// NewBadgerStore opens (or creates) a page store at the given
// directory path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open page store at %s", path)
	}
	return &BadgerStore{db: db}, nil
}

func pageKey(n uint64) []byte {
	k := make([]byte, 5+8)
	copy(k, "page/")
	binary.BigEndian.PutUint64(k[5:], n)
	return k
}

func (b *BadgerStore) Size() uint64 {
	var size uint64
	_ = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sizeKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			size = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	return size
}

func (b *BadgerStore) Grow(n uint64) (uint64, error) {
	var prev uint64
	err := b.db.Update(func(txn *badger.Txn) error {
		prev = 0
		item, err := txn.Get(sizeKey)
		if err == nil {
			if verr := item.Value(func(val []byte) error {
				prev = binary.BigEndian.Uint64(val)
				return nil
			}); verr != nil {
				return verr
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, prev+n)
		return txn.Set(sizeKey, buf)
	})
	if err != nil {
		return 0, errors.Wrap(ErrCapacityExhausted, err.Error())
	}
	return prev, nil
}

func (b *BadgerStore) ReadAt(offset uint64, dst []byte) error {
	if err := checkBounds(b.Size(), offset, len(dst)); err != nil {
		return err
	}
	return b.db.View(func(txn *badger.Txn) error {
		return forEachPage(offset, len(dst), func(pageNo uint64, pageOff, n int, di int) error {
			item, err := txn.Get(pageKey(pageNo))
			if err == badger.ErrKeyNotFound {
				// Never-written page reads as zeros.
				return nil
			}
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				copy(dst[di:di+n], val[pageOff:pageOff+n])
				return nil
			})
		})
	})
}

func (b *BadgerStore) WriteAt(offset uint64, src []byte) error {
	if err := checkBounds(b.Size(), offset, len(src)); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return forEachPage(offset, len(src), func(pageNo uint64, pageOff, n int, si int) error {
			key := pageKey(pageNo)
			page := make([]byte, PageSize)
			item, err := txn.Get(key)
			if err == nil {
				if verr := item.Value(func(val []byte) error {
					copy(page, val)
					return nil
				}); verr != nil {
					return verr
				}
			} else if err != badger.ErrKeyNotFound {
				return err
			}
			copy(page[pageOff:pageOff+n], src[si:si+n])
			return txn.Set(key, page)
		})
	})
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

// forEachPage splits the byte range [offset, offset+length) into
// per-page segments, invoking fn(pageNo, pageOffset, segLen, bufOffset)
// for each.
func forEachPage(offset uint64, length int, fn func(pageNo uint64, pageOff, n int, bufOff int) error) error {
	remaining := length
	bufOff := 0
	for remaining > 0 {
		pageNo := offset / PageSize
		pageOff := int(offset % PageSize)
		n := PageSize - pageOff
		if n > remaining {
			n = remaining
		}
		if err := fn(pageNo, pageOff, n, bufOff); err != nil {
			return fmt.Errorf("page %d: %w", pageNo, err)
		}
		offset += uint64(n)
		bufOff += n
		remaining -= n
	}
	return nil
}
