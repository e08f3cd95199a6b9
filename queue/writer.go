// ════════════════════════════════════════════════════════════════════════════════════════════════
// Command Writer
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Two-phase reserve/commit API
//
// Usage:
//
//	e.Begin(0x31, flags).Arg(x).Arg(y).Finish()
//	e.Write(0x31, flags, x, y)
//
// Publication order:
//   - Arg stores payload words directly into the active buffer.
//   - Finish stores word 0 last; the consumer sees the whole command or
//     nothing.
//
// Writes go to whichever cursor is active: the normal queue, the
// high-priority queue, or the block being recorded.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package queue

import (
	"rspq/constants"
	"rspq/debug"
	"rspq/rdram"
	"rspq/ring"
	"rspq/utils"
)

// Builder is an open command. It is owned by the Engine and reused, so
// Begin does not allocate; it is valid until Finish.
type Builder struct {
	e  *Engine
	w0 uint32
	n  int
}

// Begin opens a command with id and a 24-bit inline payload.
//
//go:norace
//go:nocheckptr
func (e *Engine) Begin(id uint8, payload uint32) *Builder {
	debug.Assert(!e.closed, "write to a closed engine")
	debug.Assert(e.b.n == 0, "Begin called while another command is open")
	debug.Assert(payload&0xff000000 == 0, "command payload exceeds 24 bits")
	e.b.w0 = ring.Word0(id, payload)
	e.b.n = 1
	return &e.b
}

// Arg appends one payload word.
//
//go:norace
//go:nocheckptr
func (b *Builder) Arg(w uint32) *Builder {
	if b.n >= constants.MaxCommandSize {
		debug.Fail("command exceeds " + utils.Itoa(constants.MaxCommandSize) + " words")
	}
	b.e.cur.Put(b.n, w)
	b.n++
	return b
}

// Finish publishes the command.
//
//go:norace
//go:nocheckptr
func (b *Builder) Finish() {
	e := b.e
	debug.Assert(b.n != 0, "Finish without Begin")
	checkSize(e, b.w0, b.n)

	e.cur.Put(0, b.w0)
	n := b.n
	b.n = 0
	if e.cur.Commit(n) {
		e.overflow()
	}
}

// Write emits a whole command: word 0 carries id and payload, args are the
// following words.
func (e *Engine) Write(id uint8, payload uint32, args ...uint32) {
	b := e.Begin(id, payload)
	for _, a := range args {
		b.Arg(a)
	}
	b.Finish()
}

// checkSize asserts that a command matches the size its overlay declared.
// The consumer steps over commands by declared size, so a mismatch would
// desynchronize the stream.
func checkSize(e *Engine, w0 uint32, n int) {
	var want int
	if ring.Overlay(w0) == 0 {
		id := ring.ID(w0)
		if id == ring.CmdWaitNewInput || id > ring.CmdSyncpoint {
			debug.Fail("unknown control command " + utils.Hex32(uint32(id)))
		}
		want = ring.ControlSizes[id]
	} else {
		entry := e.reg.Lookup(ring.ID(w0))
		if entry == nil {
			// Unbound ids fault on the consumer.
			return
		}
		want = entry.Cmd.Size
	}
	if n != want {
		debug.Fail("command " + utils.Hex32(w0>>24) + " written with " + utils.Itoa(n) +
			" words, declared " + utils.Itoa(want))
	}
}

// overflow moves the active cursor off a full buffer or block chunk.
func (e *Engine) overflow() {
	if e.block != nil {
		e.block.grow(e)
		return
	}
	e.active.Swap(e.acquire)
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CONTROL COMMAND WRAPPERS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Noop enqueues a command that does nothing.
func (e *Engine) Noop() {
	e.Write(ring.CmdNoop, 0)
}

// Signal enqueues a status update raising the bits in set and lowering the
// bits in clear. Only the user bits (ring.SigUserMask) may be touched.
func (e *Engine) Signal(set, clear uint32) {
	debug.Assert((set|clear)&^ring.SigUserMask == 0, "Signal may only touch the user status bits")
	e.Write(ring.CmdWriteStatus, (clear<<8)|set)
}

// DMAToMain enqueues a copy of n bytes from DMEM at local to main memory at
// addr. Addresses and length must be 8-byte aligned.
func (e *Engine) DMAToMain(addr rdram.Addr, local uint32, n int, async bool) {
	e.dma(ring.DmaToMain, addr, local, n, async)
}

// DMAToLocal enqueues a copy of n bytes from main memory at addr to DMEM at
// local. Addresses and length must be 8-byte aligned.
func (e *Engine) DMAToLocal(local uint32, addr rdram.Addr, n int, async bool) {
	e.dma(0, addr, local, n, async)
}

func (e *Engine) dma(flags uint32, addr rdram.Addr, local uint32, n int, async bool) {
	const a = constants.DMAAlign
	debug.Assert(addr%a == 0 && local%a == 0, "DMA addresses must be 8-byte aligned")
	debug.Assert(n > 0 && n%a == 0, "DMA length must be a positive multiple of 8")
	if async {
		flags |= ring.DmaAsync
	}
	e.Write(ring.CmdDma, flags, uint32(addr), local, uint32(n))
}
