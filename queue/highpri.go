package queue

import (
	"runtime"

	"rspq/control"
	"rspq/debug"
	"rspq/ring"
)

// HighpriBegin opens a high-priority segment. Writes go to the high-priority
// queue until HighpriEnd; the consumer switches to it at its next command
// boundary and returns to the normal queue where it left off.
func (e *Engine) HighpriBegin() {
	debug.Assert(!e.closed, "HighpriBegin on a closed engine")
	debug.Assert(!e.highpri, "HighpriBegin inside a high-priority segment")
	debug.Assert(e.block == nil, "HighpriBegin while recording a block")
	debug.Assert(e.b.n == 0, "HighpriBegin while a command is open")

	e.highpri = true
	e.active = e.high
	e.cur = &e.high.Cursor
	e.flags.SignalActivity()
	e.rsp.RequestHighpri()
}

// HighpriEnd closes the segment and flushes it.
func (e *Engine) HighpriEnd() {
	debug.Assert(e.highpri, "HighpriEnd without HighpriBegin")

	e.Write(ring.CmdSwapBuffers, 0)
	e.hpClosed++

	e.highpri = false
	e.active = e.low
	e.cur = &e.low.Cursor
	e.kick()
}

// HighpriSync spins until every closed high-priority segment has run. Meant
// for short segments; use a syncpoint for long ones.
func (e *Engine) HighpriSync() {
	debug.Assert(!e.highpri, "HighpriSync inside a high-priority segment")
	for spins := 0; int32(e.hpClosed-e.rsp.HighpriCompleted()) > 0; spins++ {
		if e.rsp.Crashed() {
			panic("rspq: consumer halted during HighpriSync")
		}
		e.kick()
		if spins&0xff == 0xff {
			runtime.Gosched()
		} else {
			control.Relax()
		}
	}
}
