// ════════════════════════════════════════════════════════════════════════════════════════════════
// Command Dispatch
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Control command execution, overlay residency, local memory
//
// Description:
//   step executes the command at the read cursor. Overlay 0 commands are the
//   queue's own control set and are executed inline. Any other command is
//   looked up in the registry; if its overlay is not resident, the resident
//   overlay's state is saved to its mirror and the new overlay's code, data
//   and state are loaded before the handler runs.
//
// Faults:
//   An unknown control command, an unbound overlay command, an invalid DMA or
//   a panicking handler halts the consumer. Shared state can no longer be
//   trusted after that point.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package rsp

import (
	"rspq/constants"
	"rspq/overlay"
	"rspq/rdram"
	"rspq/ring"
	"rspq/utils"
)

// step executes one command and reports whether the consumer keeps running.
func (c *Consumer) step(w0 uint32) bool {
	id := ring.ID(w0)

	var entry *overlay.Entry
	size := 0
	if ring.Overlay(w0) == 0 {
		if id > ring.CmdSyncpoint {
			c.crash(w0, "unknown control command "+utils.Hex32(uint32(id)))
			return false
		}
		size = ring.ControlSizes[id]
	} else {
		if entry = c.reg.Lookup(id); entry == nil {
			c.crash(w0, "command id "+utils.Hex32(uint32(id))+" not bound to an overlay")
			return false
		}
		size = entry.Cmd.Size
	}

	cmd := c.cmd[:size]
	cmd[0] = w0
	for i := 1; i < size; i++ {
		cmd[i] = c.mem.Load32(c.cur + rdram.Addr(i<<2))
	}

	c.seq++
	if t := c.cfg.Tracer; t != nil {
		t.Trace(Event{Seq: c.seq, Addr: c.cur, Word: w0, Highpri: c.highpri})
	}
	c.commands.Add(1)

	if entry != nil {
		if entry.Desc != c.resident {
			c.load(entry.Desc)
		}
		if reason := c.call(entry.Cmd.Fn, cmd); reason != "" {
			c.crash(w0, entry.Cmd.Name+": "+reason)
			return false
		}
		c.cur += rdram.Addr(size << 2)
		return true
	}
	return c.control(id, cmd)
}

// call runs an overlay handler, converting a panic into a fault reason.
func (c *Consumer) call(fn overlay.Handler, cmd []uint32) (reason string) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case string:
				reason = v
			case error:
				reason = v.Error()
			default:
				reason = "handler panicked"
			}
		}
	}()
	fn(c, cmd)
	return ""
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CONTROL COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (c *Consumer) control(id uint8, cmd []uint32) bool {
	w0 := cmd[0]
	next := c.cur + rdram.Addr(len(cmd)<<2)

	switch id {
	case ring.CmdNoop:
		c.cur = next

	case ring.CmdJump:
		c.cur = rdram.Addr(cmd[1])

	case ring.CmdCall:
		slot := w0 & 0xff
		if slot >= constants.MaxBlockNesting {
			c.crash(w0, "block call slot out of range")
			return false
		}
		c.stack[slot] = next
		c.cur = rdram.Addr(cmd[1])

	case ring.CmdRet:
		slot := w0 & 0xff
		if slot >= constants.MaxBlockNesting || c.stack[slot] == 0 {
			c.crash(w0, "block return without a call")
			return false
		}
		c.cur = c.stack[slot]
		c.stack[slot] = 0

	case ring.CmdDma:
		toMain := w0&ring.DmaToMain != 0
		if reason := c.dma(toMain, rdram.Addr(cmd[1]), cmd[2], int(cmd[3])); reason != "" {
			c.crash(w0, reason)
			return false
		}
		c.cur = next

	case ring.CmdWriteStatus:
		set, clear := w0&0xff, (w0>>8)&0xff
		c.status.And(^clear)
		c.status.Or(set)
		c.cur = next
		c.irq.raise()

	case ring.CmdSwapBuffers:
		if !c.highpri {
			c.crash(w0, "high-priority swap outside the high-priority queue")
			return false
		}
		done := c.hpDone.Add(1)
		if c.hpRequested.Load() != done {
			c.cur = next
		} else {
			c.leaveHighpri(next)
		}
		c.irq.raise()

	case ring.CmdSyncpoint:
		c.cur = next
		c.syncDone.Store(cmd[1])
		c.status.Or(ring.SigSyncpoint)
		c.syncpoints.Add(1)
		c.irq.raise()

	default:
		c.crash(w0, "WaitNewInput dispatched")
		return false
	}
	return true
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// OVERLAY RESIDENCY
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// load makes d the resident overlay.
func (c *Consumer) load(d *overlay.Descriptor) {
	c.saveState()

	u := d.Ucode
	copy(c.imem[constants.OverlayCodeOffset:], u.Code)
	copy(c.dmem[constants.OverlayDataOffset:], u.Data)
	if d.StateSize > 0 {
		off := constants.OverlayDataOffset + u.StateOffset
		c.mem.ReadBytes(d.State, c.dmem[off:off+d.StateSize])
	}

	c.resident = d
	c.switches.Add(1)
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// EXECUTOR (HANDLER VIEW)
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// DMEM returns local data memory.
func (c *Consumer) DMEM() []byte { return c.dmem[:] }

// State returns the resident overlay's persistent window.
func (c *Consumer) State() []byte {
	r := c.resident
	if r == nil || r.StateSize == 0 {
		return nil
	}
	off := constants.OverlayDataOffset + r.Ucode.StateOffset
	return c.dmem[off : off+r.StateSize : off+r.StateSize]
}

// Memory returns main memory.
func (c *Consumer) Memory() *rdram.Arena { return c.mem }

// DMAToLocal copies n bytes from main memory into DMEM. Panics on an
// invalid transfer, which faults the calling command.
func (c *Consumer) DMAToLocal(local uint32, addr rdram.Addr, n int) {
	if reason := c.dma(false, addr, local, n); reason != "" {
		panic(reason)
	}
}

// DMAToMain copies n bytes from DMEM into main memory.
func (c *Consumer) DMAToMain(addr rdram.Addr, local uint32, n int) {
	if reason := c.dma(true, addr, local, n); reason != "" {
		panic(reason)
	}
}

// dma performs a transfer between main memory and DMEM. Transfers complete
// before the next command runs, so the async flag needs no handling here.
func (c *Consumer) dma(toMain bool, addr rdram.Addr, local uint32, n int) string {
	const a = constants.DMAAlign
	switch {
	case addr%a != 0 || local%a != 0 || n%a != 0:
		return "misaligned DMA"
	case n < 0 || int(local)+n > len(c.dmem):
		return "DMA outside DMEM"
	case addr == 0 || !c.mem.Contains(addr, n):
		return "DMA outside main memory"
	}
	buf := c.dmem[local : int(local)+n]
	if toMain {
		c.mem.WriteBytes(addr, buf)
	} else {
		c.mem.ReadBytes(addr, buf)
	}
	return ""
}

var _ overlay.Executor = (*Consumer)(nil)
