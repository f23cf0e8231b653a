package arena

import "encoding/binary"

// Bookkeeping headers are 8-byte little-endian words written into the storage
// region itself, immediately before the block they describe. Links between
// headers are stored as buffer offsets rather than raw pointers, which turns
// pointer chasing into bounds-checked slice indexing. The freed/occupied flag
// shares the word with the link: offsets are encoded shifted left by one, so
// the low bit is always free to act as the tag.
const (
	headerSize      = 8
	headerAlignment = 8
)

// noHeader is the in-memory representation of an empty link.
const noHeader = -1

func packHeader(link int, freed bool) uint64 {
	packed := uint64(link+1) << 1
	if freed {
		packed |= 0x01
	}
	return packed
}

func headerLink(packed uint64) int {
	return int(packed>>1) - 1
}

func headerFreed(packed uint64) bool {
	return packed&0x01 != 0
}

func readWord(memory []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(memory[off : off+headerSize])
}

func writeWord(memory []byte, off int, word uint64) {
	binary.LittleEndian.PutUint64(memory[off:off+headerSize], word)
}

func maxAlignment(a, b uint) uint {
	if a > b {
		return a
	}
	return b
}

// clampSize maps zero-size requests to a single byte so that every allocation
// consumes space and returns a distinct address.
func clampSize(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
