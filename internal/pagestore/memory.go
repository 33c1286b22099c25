package pagestore

// Memory is an in-process Store backed by a growable byte slice. The
// engine drives all access from a single goroutine, so no internal
// locking is required.
type Memory struct {
	buf []byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Size() uint64 {
	return uint64(len(m.buf)) / PageSize
}

func (m *Memory) Grow(n uint64) (uint64, error) {
	prev := m.Size()
	m.buf = append(m.buf, make([]byte, n*PageSize)...)
	return prev, nil
}

func (m *Memory) ReadAt(offset uint64, dst []byte) error {
	if err := checkBounds(m.Size(), offset, len(dst)); err != nil {
		return err
	}
	copy(dst, m.buf[offset:offset+uint64(len(dst))])
	return nil
}

func (m *Memory) WriteAt(offset uint64, src []byte) error {
	if err := checkBounds(m.Size(), offset, len(src)); err != nil {
		return err
	}
	copy(m.buf[offset:offset+uint64(len(src))], src)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
