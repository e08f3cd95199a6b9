// ════════════════════════════════════════════════════════════════════════════════════════════════
// Main Memory Arena
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Memory shared by the producer (CPU) and the consumer (coprocessor)
//
// Description:
//   A fixed-capacity, word-addressed region standing in for the main memory both
//   execution units can reach. Queue buffers, block chunks and DMA targets are
//   carved out of it, and commands refer to them by byte Addr.
//
// Concurrency model:
//   - Every word access is atomic: the producer publishes command words while
//     the consumer reads them, with no lock held by either side.
//   - Allocation is producer-side and mutex protected; the consumer never
//     allocates or frees.
//
// Byte order:
//   - Byte views (ReadBytes/WriteBytes) are big-endian, matching the
//     coprocessor's native order.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package rdram

import (
	"sort"
	"sync"
	"sync/atomic"

	"rspq/utils"
)

// Addr is a byte address inside an Arena. Zero is never handed out and
// serves as the null address.
type Addr uint32

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CORE DATA STRUCTURES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// span is a free range of memory, in bytes.
type span struct {
	addr Addr
	size uint32
}

// Arena is the shared main memory.
type Arena struct {
	words []uint32 // backing store, accessed atomically

	mu   sync.Mutex
	free []span          // sorted by addr, coalesced
	live map[Addr]uint32 // allocation sizes in bytes
	used uint32
}

// align is the allocation granularity: the DMA alignment, so any allocation
// is a valid DMA target.
const align = 8

// New creates an arena of the given size in bytes.
// The size is rounded down to the allocation granularity.
func New(bytes int) *Arena {
	bytes &^= align - 1
	if bytes < 2*align {
		panic("rdram: arena too small")
	}
	if uint64(bytes) > 1<<32-align {
		panic("rdram: arena exceeds 32-bit address space")
	}
	a := &Arena{
		words: make([]uint32, bytes/4),
		live:  make(map[Addr]uint32),
	}
	// First granule reserved so that Addr 0 stays null.
	a.free = []span{{addr: align, size: uint32(bytes - align)}}
	return a
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// ALLOCATION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Alloc returns a zeroed region of at least n bytes, aligned to 8.
// Panics when the arena is exhausted: the queue cannot make progress without
// its buffers.
func (a *Arena) Alloc(n int) Addr {
	addr, ok := a.TryAlloc(n)
	if !ok {
		panic("rdram: out of memory allocating " + utils.Itoa(n) + " bytes")
	}
	return addr
}

// TryAlloc is Alloc reporting exhaustion instead of panicking.
func (a *Arena) TryAlloc(n int) (Addr, bool) {
	if n <= 0 {
		n = align
	}
	size := uint32((n + align - 1) &^ (align - 1))

	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.free {
		s := &a.free[i]
		if s.size < size {
			continue
		}
		addr := s.addr
		s.addr += Addr(size)
		s.size -= size
		if s.size == 0 {
			a.free = append(a.free[:i], a.free[i+1:]...)
		}
		a.live[addr] = size
		a.used += size
		a.clear(addr, size)
		return addr, true
	}
	return 0, false
}

// Free releases a region returned by Alloc. Freeing an unknown address panics.
func (a *Arena) Free(addr Addr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	size, ok := a.live[addr]
	if !ok {
		panic("rdram: free of unallocated address " + utils.Hex32(uint32(addr)))
	}
	delete(a.live, addr)
	a.used -= size

	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].addr > addr })
	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = span{addr: addr, size: size}

	// Coalesce with the following span, then with the preceding one.
	if i+1 < len(a.free) && a.free[i].addr+Addr(a.free[i].size) == a.free[i+1].addr {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].addr+Addr(a.free[i-1].size) == a.free[i].addr {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

// SizeOf returns the size in bytes of the allocation at addr, or 0.
func (a *Arena) SizeOf(addr Addr) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.live[addr])
}

// Used returns the number of allocated bytes.
func (a *Arena) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.used)
}

// Len returns the arena capacity in bytes.
func (a *Arena) Len() int {
	return len(a.words) * 4
}

func (a *Arena) clear(addr Addr, size uint32) {
	base := int(addr >> 2)
	for i := 0; i < int(size>>2); i++ {
		atomic.StoreUint32(&a.words[base+i], 0)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// WORD ACCESS (HOT PATH)
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Load32 atomically reads the word at addr. addr must be 4-aligned.
//
//go:nosplit
//go:inline
func (a *Arena) Load32(addr Addr) uint32 {
	return atomic.LoadUint32(&a.words[addr>>2])
}

// Store32 atomically writes the word at addr. addr must be 4-aligned.
//
//go:nosplit
//go:inline
func (a *Arena) Store32(addr Addr, v uint32) {
	atomic.StoreUint32(&a.words[addr>>2], v)
}

// Clear zeroes n words starting at addr.
func (a *Arena) Clear(addr Addr, words int) {
	a.clear(addr, uint32(words)*4)
}

// Contains reports whether [addr, addr+n) lies inside the arena.
func (a *Arena) Contains(addr Addr, n int) bool {
	return n >= 0 && uint64(addr)+uint64(n) <= uint64(len(a.words))*4
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// BYTE VIEWS (DMA)
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// ReadBytes copies len(dst) bytes starting at addr into dst.
// addr and len(dst) must be multiples of 4.
func (a *Arena) ReadBytes(addr Addr, dst []byte) {
	base := int(addr >> 2)
	for i := 0; i+4 <= len(dst); i += 4 {
		utils.StoreBE32(dst[i:], atomic.LoadUint32(&a.words[base+i/4]))
	}
}

// WriteBytes copies src into the arena starting at addr.
// addr and len(src) must be multiples of 4.
func (a *Arena) WriteBytes(addr Addr, src []byte) {
	base := int(addr >> 2)
	for i := 0; i+4 <= len(src); i += 4 {
		atomic.StoreUint32(&a.words[base+i/4], utils.LoadBE32(src[i:]))
	}
}
