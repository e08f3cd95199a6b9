// ============================================================================
// DOUBLE-BUFFERED COMMAND RING
// ============================================================================
//
// Producer-side management of the command buffers the consumer drains.
//
// Core capabilities:
//   - Cursor: the producer's write position inside a run of words, with a
//     sentinel past which the next command might not fit
//   - Queue: two buffers in the shared arena; when the active one fills the
//     producer moves to the other and links them with a jump command
//
// Publication protocol:
//   - Payload words are stored first, word 0 last. The consumer treats a
//     zero word 0 as "not yet written", so a command becomes visible
//     atomically with its first word.
//   - Buffers are zeroed before reuse, so stale commands are never replayed.
//
// Buffer switch (A → B):
//  1. Wait for the queue's bufdone status bit: the consumer has left B
//  2. Clear the bit, zero B, write B[0] = WriteStatus(set bufdone)
//  3. Append Jump(B) at the write cursor in A
//
// The consumer raises bufdone only after it has jumped out of A and
// executed B[0], so A is never cleared while still being read.
//
// Safety model:
//   - Single producer only. The consumer reads through rdram directly and
//     never touches a Cursor or Queue.

package ring

import (
	"sync/atomic"

	"rspq/constants"
	"rspq/rdram"
	"rspq/utils"
)

// ============================================================================
// CURSOR
// ============================================================================

// Cursor is a write position inside a run of command words.
type Cursor struct {
	mem      *rdram.Arena
	base     rdram.Addr
	words    int
	pos      int // next free word
	sentinel int // a cursor past this must move on before the next command
}

// NewCursor positions a cursor at the start of a run of words.
// The run must leave room for one maximum-size command plus a jump.
//
//go:norace
//go:nocheckptr
func NewCursor(mem *rdram.Arena, base rdram.Addr, words int) Cursor {
	if words < constants.MaxCommandSize+constants.JumpWords+1 {
		panic("ring: buffer too small for a maximum size command")
	}
	return Cursor{
		mem:      mem,
		base:     base,
		words:    words,
		sentinel: words - constants.MaxCommandSize - constants.JumpWords,
	}
}

// Put stores w at offset off from the write position.
//
//go:nosplit
//go:inline
func (c *Cursor) Put(off int, w uint32) {
	c.mem.Store32(c.base+rdram.Addr((c.pos+off)<<2), w)
}

// Commit advances the write position past an n-word command and reports
// whether the position crossed the sentinel.
//
//go:nosplit
//go:inline
func (c *Cursor) Commit(n int) bool {
	c.pos += n
	return c.pos > c.sentinel
}

// Link appends a jump to next at the write position. Payload first, so the
// jump is visible only once complete.
func (c *Cursor) Link(next rdram.Addr) {
	j := JumpTo(next)
	c.Put(1, j[1])
	c.Put(0, j[0])
}

// Addr returns the byte address of the write position.
func (c *Cursor) Addr() rdram.Addr {
	return c.base + rdram.Addr(c.pos<<2)
}

// Base returns the start of the run.
func (c *Cursor) Base() rdram.Addr { return c.base }

// Pos returns the write position in words.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the words left before the end of the run.
func (c *Cursor) Remaining() int { return c.words - c.pos }

// ============================================================================
// QUEUE
// ============================================================================

// Queue is a pair of command buffers written through one Cursor.
type Queue struct {
	Cursor

	buf      [2]rdram.Addr
	idx      int    // buffer the cursor is in
	doneBit  uint32 // status bit the consumer raises on entering a buffer
	switches atomic.Uint64
}

// NewQueue allocates both buffers of words each in mem. doneBit is the
// status bit used to hand buffers back to the producer.
func NewQueue(mem *rdram.Arena, words int, doneBit uint32) *Queue {
	if words < constants.MinBufferWords {
		panic("ring: queue buffers must hold at least " + utils.Itoa(constants.MinBufferWords) + " words")
	}
	q := &Queue{doneBit: doneBit}
	q.buf[0] = mem.Alloc(words << 2)
	q.buf[1] = mem.Alloc(words << 2)
	q.Cursor = NewCursor(mem, q.buf[0], words)
	return q
}

// Start returns the address the consumer begins reading at.
func (q *Queue) Start() rdram.Addr { return q.buf[0] }

// Switches returns how many buffer switches the queue has performed. Safe to
// call from any goroutine.
func (q *Queue) Switches() uint64 { return q.switches.Load() }

// Swap moves the cursor to the other buffer and links the two.
// acquire must block until doneBit is raised and then lower it; it is the
// only point where the producer can stall on the consumer.
func (q *Queue) Swap(acquire func(bit uint32)) {
	acquire(q.doneBit)

	next := q.idx ^ 1
	nb := q.buf[next]
	q.mem.Clear(nb, q.words)
	q.mem.Store32(nb, WriteStatus(q.doneBit, 0))

	q.Link(nb)

	q.idx = next
	q.base = nb
	q.pos = 1
	q.switches.Add(1)
}

// Free returns both buffers to the arena.
func (q *Queue) Free() {
	q.mem.Free(q.buf[0])
	q.mem.Free(q.buf[1])
	q.buf = [2]rdram.Addr{}
}
