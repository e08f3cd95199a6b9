package rsp

import (
	"rspq/rdram"
	"rspq/utils"
)

// Fault describes why the consumer halted.
type Fault struct {
	Addr   rdram.Addr // address of the faulting command
	Word   uint32     // its word 0
	Reason string
}

func (f Fault) Error() string {
	return "rsp: " + f.Reason + " at " + utils.Hex32(uint32(f.Addr)) + " (cmd " + utils.Hex32(f.Word) + ")"
}

// Stats are consumer-side counters, readable while the consumer runs.
type Stats struct {
	Commands        uint64 // commands executed, control commands included
	OverlaySwitches uint64 // overlay code/data/state loads
	Preemptions     uint64 // switches from the normal to the high-priority queue
	IdleParks       uint64 // times the consumer blocked waiting for input
	Syncpoints      uint64 // syncpoint markers executed
}

// Event is one executed command, reported to a Tracer.
type Event struct {
	Seq     uint64     // execution order, from 1
	Addr    rdram.Addr // where the command was read
	Word    uint32     // word 0
	Highpri bool       // read from the high-priority queue
}

// Tracer observes executed commands. Trace runs on the consumer thread and
// must not block.
type Tracer interface {
	Trace(ev Event)
}
