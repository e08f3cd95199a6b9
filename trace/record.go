package trace

import (
	"rspq/rdram"
	"rspq/ring"
	"rspq/rsp"
	"rspq/utils"
)

// RecordSize is the encoded size of a Record in the ring.
const RecordSize = 24

// Record is one executed command.
type Record struct {
	Seq     uint64     // consumer execution order, from 1
	Nanos   int64      // since the recorder started
	Addr    rdram.Addr // where the command was read
	Word    uint32     // word 0
	Highpri bool
}

// ID returns the command id.
func (r Record) ID() uint8 { return ring.ID(r.Word) }

// Overlay returns the overlay id, 0 for control commands.
func (r Record) Overlay() uint8 { return ring.Overlay(r.Word) }

// fromEvent stamps ev with nanos.
func fromEvent(ev rsp.Event, nanos int64) Record {
	return Record{Seq: ev.Seq, Nanos: nanos, Addr: ev.Addr, Word: ev.Word, Highpri: ev.Highpri}
}

// encode packs r. Command addresses are word aligned, so the priority flag
// rides in bit 0 of the address.
//
//go:nosplit
//go:inline
func (r *Record) encode(p *[RecordSize]byte) {
	addr := uint32(r.Addr)
	if r.Highpri {
		addr |= 1
	}
	utils.StoreBE64(p[0:], r.Seq)
	utils.StoreBE64(p[8:], uint64(r.Nanos))
	utils.StoreBE32(p[16:], addr)
	utils.StoreBE32(p[20:], r.Word)
}

func decode(p *[RecordSize]byte) Record {
	addr := utils.LoadBE32(p[16:])
	return Record{
		Seq:     utils.LoadBE64(p[0:]),
		Nanos:   int64(utils.LoadBE64(p[8:])),
		Addr:    rdram.Addr(addr &^ 1),
		Word:    utils.LoadBE32(p[20:]),
		Highpri: addr&1 != 0,
	}
}
