// ════════════════════════════════════════════════════════════════════════════════════════════════
// Command Word Encoding
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Wire format shared by the producer and the consumer
//
// Word 0 of every command:
//
//	31      28 27      24 23                                   0
//	┌─────────┬──────────┬──────────────────────────────────────┐
//	│ overlay │  index   │              payload                 │
//	└─────────┴──────────┴──────────────────────────────────────┘
//
// Overlay 0 is the engine's own control set. A zero word is never a valid
// command: the consumer reads it as "not yet published" and waits.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package ring

import "rspq/rdram"

// Control command ids (overlay 0).
const (
	CmdWaitNewInput uint8 = 0x00
	CmdNoop         uint8 = 0x01
	CmdJump         uint8 = 0x02
	CmdCall         uint8 = 0x03
	CmdRet          uint8 = 0x04
	CmdDma          uint8 = 0x05
	CmdWriteStatus  uint8 = 0x06
	CmdSwapBuffers  uint8 = 0x07
	CmdSyncpoint    uint8 = 0x08
)

// ControlSizes holds the word count of each control command.
var ControlSizes = [16]int{
	CmdWaitNewInput: 1,
	CmdNoop:         1,
	CmdJump:         2,
	CmdCall:         2,
	CmdRet:          1,
	CmdDma:          4,
	CmdWriteStatus:  1,
	CmdSwapBuffers:  1,
	CmdSyncpoint:    2,
}

// Status register bits.
const (
	SigUser0          uint32 = 1 << 0
	SigUser1          uint32 = 1 << 1
	SigSyncpoint      uint32 = 1 << 2
	SigHighpriRunning uint32 = 1 << 3
	SigBufdoneHigh    uint32 = 1 << 5
	SigBufdoneLow     uint32 = 1 << 6
	SigMore           uint32 = 1 << 7

	SigUserMask = SigUser0 | SigUser1
)

// DMA flags carried in word 0 of CmdDma.
const (
	DmaAsync  uint32 = 1 << 0
	DmaToMain uint32 = 1 << 1
)

// Word0 packs a command id and its 24-bit inline payload.
//
//go:nosplit
//go:inline
func Word0(id uint8, payload uint32) uint32 {
	return uint32(id)<<24 | payload&0x00ffffff
}

// ID extracts the 8-bit command id.
//
//go:nosplit
//go:inline
func ID(w0 uint32) uint8 {
	return uint8(w0 >> 24)
}

// Overlay extracts the overlay nibble.
//
//go:nosplit
//go:inline
func Overlay(w0 uint32) uint8 {
	return uint8(w0 >> 28)
}

// Index extracts the command index within its overlay.
//
//go:nosplit
//go:inline
func Index(w0 uint32) uint8 {
	return uint8(w0>>24) & 0x0f
}

// WriteStatus encodes a status update: bits in set are raised, bits in clear
// are lowered. Both masks are limited to the 8 status bits.
//
//go:nosplit
//go:inline
func WriteStatus(set, clear uint32) uint32 {
	return Word0(CmdWriteStatus, (clear&0xff)<<8|set&0xff)
}

// JumpTo encodes a jump to addr.
func JumpTo(addr rdram.Addr) [2]uint32 {
	return [2]uint32{Word0(CmdJump, 0), uint32(addr)}
}
