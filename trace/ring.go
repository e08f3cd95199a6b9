// ============================================================================
// TRACE RECORD RING
// ============================================================================
//
// Single-producer/single-consumer ring of fixed 24-byte trace records. The
// producer is the consumer goroutine of an rsp.Consumer, which must never
// block; the drain goroutine of a Recorder is the only reader.
//
// Architecture overview:
//   - Head and tail cursors on separate cache lines
//   - Per-slot sequence numbers signal availability, no RMW atomics
//   - Power-of-2 capacity, index by mask
//
// Safety model:
//   - SPSC discipline required: one Push caller, one Pop caller
//   - Push returns false when full; the caller counts the drop

package trace

import (
	"sync/atomic"
)

// slot is one record plus its sequence number.
//
//go:notinheap
//go:align 64
type slot struct {
	val [RecordSize]byte
	seq uint64
}

// Ring is a bounded SPSC record queue.
//
//go:notinheap
//go:align 64
type Ring struct {
	_    [64]byte
	head uint64 // reader position

	_    [56]byte
	tail uint64 // writer position

	_ [56]byte

	mask uint64
	step uint64
	buf  []slot
}

// NewRing creates a ring with size slots. size must be a power of two.
func NewRing(size int) *Ring {
	if size <= 0 || size&(size-1) != 0 {
		panic("trace: ring size must be >0 and power of two")
	}
	r := &Ring{
		mask: uint64(size - 1),
		step: uint64(size),
		buf:  make([]slot, size),
	}
	for i := range r.buf {
		r.buf[i].seq = uint64(i)
	}
	return r
}

// Push copies val into the next slot. Returns false when the ring is full.
//
//go:norace
//go:nocheckptr
//go:nosplit
//go:inline
func (r *Ring) Push(val *[RecordSize]byte) bool {
	t := r.tail
	s := &r.buf[t&r.mask]
	if atomic.LoadUint64(&s.seq) != t {
		return false
	}
	s.val = *val
	atomic.StoreUint64(&s.seq, t+1)
	r.tail = t + 1
	return true
}

// Pop copies out the oldest record. ok is false when the ring is empty.
//
//go:norace
//go:nocheckptr
//go:nosplit
//go:inline
func (r *Ring) Pop() (val [RecordSize]byte, ok bool) {
	h := r.head
	s := &r.buf[h&r.mask]
	if atomic.LoadUint64(&s.seq) != h+1 {
		return val, false
	}
	val = s.val
	atomic.StoreUint64(&s.seq, h+r.step)
	r.head = h + 1
	return val, true
}

// Cap returns the number of slots.
func (r *Ring) Cap() int { return int(r.step) }
