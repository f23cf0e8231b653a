package storage

// Storage is implemented by providers of a contiguous writable byte region.
// The region must stay valid and fixed in size for the lifetime of any
// allocation strategy built on top of it.
type Storage interface {
	// Bytes exposes the full backing region.
	Bytes() []byte
}

// MakeStorageView collapses any Storage into the {memory} view consumed by
// allocation strategies.
func MakeStorageView(s Storage) StorageView {
	return StorageView{Memory: s.Bytes()}
}

// Dynamic is a Storage whose region is allocated from the Go heap.
type Dynamic struct {
	buf []byte
}

// NewDynamic allocates a heap-backed storage region of n bytes.
func NewDynamic(n int) *Dynamic {
	return &Dynamic{buf: make([]byte, n)}
}

func (d *Dynamic) Bytes() []byte {
	return d.buf
}

// Buffer is a Storage that borrows a caller-supplied region. The caller keeps
// ownership and must not resize or release the slice while any strategy uses
// it.
type Buffer struct {
	buf []byte
}

// NewBuffer wraps an existing byte region in a Storage.
func NewBuffer(buf []byte) *Buffer {
	return &Buffer{buf: buf}
}

func (b *Buffer) Bytes() []byte {
	return b.buf
}
