// Package arena provides a bump allocator for the short-lived strings a
// nodeset parse produces. Attribute values and character data are copied
// into arena blocks and handed out as string views; nothing is freed
// individually, the whole arena is released in one Reset at teardown.
package arena

import "unsafe"

// DefaultBlockSize is the initial block size hint. Nodeset files carry a
// large number of small attribute strings, so blocks are sized generously
// to keep the block list short.
const DefaultBlockSize = 20 * 1024 * 1024

// Arena is a growable bump allocator. It is not safe for concurrent use;
// the loader is single-threaded by design.
type Arena struct {
	blocks    [][]byte
	offset    int // offset into the last block
	blockSize int
	allocated int64
}

// New creates an arena with the given block size. A blockSize <= 0 falls
// back to DefaultBlockSize.
func New(blockSize int) *Arena {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Arena{blockSize: blockSize}
}

// Alloc returns n bytes of arena-owned memory. The returned slice stays
// valid until Reset.
func (a *Arena) Alloc(n int) []byte {
	if n == 0 {
		return nil
	}
	if len(a.blocks) == 0 || a.offset+n > len(a.blocks[len(a.blocks)-1]) {
		size := a.blockSize
		if n > size {
			size = n
		}
		a.blocks = append(a.blocks, make([]byte, size))
		a.offset = 0
	}
	block := a.blocks[len(a.blocks)-1]
	buf := block[a.offset : a.offset+n : a.offset+n]
	a.offset += n
	a.allocated += int64(n)
	return buf
}

// InternBytes copies b into the arena and returns a string view over the
// arena-owned copy. The caller may reuse b afterwards.
func (a *Arena) InternBytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	buf := a.Alloc(len(b))
	copy(buf, b)
	return unsafe.String(unsafe.SliceData(buf), len(buf))
}

// InternString copies s into the arena and returns the arena-owned view.
func (a *Arena) InternString(s string) string {
	if s == "" {
		return ""
	}
	buf := a.Alloc(len(s))
	copy(buf, s)
	return unsafe.String(unsafe.SliceData(buf), len(buf))
}

// Owns reports whether s points into arena-owned memory. Empty strings
// are considered owned since they carry no backing storage.
func (a *Arena) Owns(s string) bool {
	if len(s) == 0 {
		return true
	}
	p := uintptr(unsafe.Pointer(unsafe.StringData(s)))
	for _, block := range a.blocks {
		start := uintptr(unsafe.Pointer(unsafe.SliceData(block)))
		if p >= start && p+uintptr(len(s)) <= start+uintptr(len(block)) {
			return true
		}
	}
	return false
}

// Allocated returns the total number of bytes handed out since the last
// Reset.
func (a *Arena) Allocated() int64 {
	return a.allocated
}

// Reset drops all blocks. Every string and slice previously returned is
// invalid afterwards.
func (a *Arena) Reset() {
	a.blocks = nil
	a.offset = 0
	a.allocated = 0
}
