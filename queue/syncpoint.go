package queue

import (
	"context"

	"rspq/debug"
	"rspq/ring"
)

// Syncpoint identifies a point in the command stream. Zero is never a valid
// syncpoint.
type Syncpoint uint32

// Syncpoint appends a marker and returns its handle. The marker forces an
// interrupt round trip, so use tens per frame, not thousands.
//
// Syncpoint panics while a block is being recorded and between HighpriBegin
// and HighpriEnd. Close the segment and use HighpriSync to wait for
// high-priority work.
func (e *Engine) Syncpoint() Syncpoint {
	debug.Assert(e.block == nil, "cannot create a syncpoint while recording a block")
	debug.Assert(!e.highpri, "cannot create a syncpoint in a high-priority segment")

	id := e.nextSync
	if e.nextSync++; e.nextSync == 0 {
		e.nextSync = 1
	}
	e.Write(ring.CmdSyncpoint, 0, id)
	return Syncpoint(id)
}

// CheckSyncpoint reports whether every command written before sp has run.
// Counters wrap; handles compare by signed distance.
func (e *Engine) CheckSyncpoint(sp Syncpoint) bool {
	if sp == 0 {
		debug.Fail("invalid syncpoint 0")
	}
	return int32(e.rsp.SyncpointDone()-uint32(sp)) >= 0
}

// WaitSyncpoint blocks until sp is reached. Returns at once if it already is.
// Panics if the consumer halts first.
func (e *Engine) WaitSyncpoint(sp Syncpoint) {
	if err := e.WaitSyncpointContext(context.Background(), sp); err != nil {
		panic("rspq: wait for syncpoint: " + err.Error())
	}
}

// WaitSyncpointContext is WaitSyncpoint with cancellation. It returns
// ctx.Err() when ctx ends first and ErrHalted if the consumer crashes.
func (e *Engine) WaitSyncpointContext(ctx context.Context, sp Syncpoint) error {
	if e.CheckSyncpoint(sp) {
		return nil
	}
	e.kick()
	for {
		irq := e.rsp.Interrupt()
		if e.CheckSyncpoint(sp) {
			return nil
		}
		if e.rsp.Crashed() {
			return ErrHalted
		}
		select {
		case <-irq:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Sync waits until every command written so far has run.
func (e *Engine) Sync() {
	e.WaitSyncpoint(e.Syncpoint())
}
