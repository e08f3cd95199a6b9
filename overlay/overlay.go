// ════════════════════════════════════════════════════════════════════════════════════════════════
// Overlay Definitions
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Pluggable command sets for the coprocessor
//
// Description:
//   An overlay (ucode) is an independently authored command set: a code
//   image, a data image and up to 16 commands per registered id. Each
//   command declares its size in words so the consumer can step over it,
//   and a handler that runs on the consumer with access to local memory.
//
// Persistent state:
//   - A ucode may declare a window of its data image as state. The window
//     survives overlay switches: the consumer saves it to a mirror in main
//     memory when switching away and restores it when switching back.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package overlay

import (
	"rspq/rdram"
)

// Executor is the consumer as seen by a command handler.
type Executor interface {
	// DMEM returns local data memory. The resident overlay's data image
	// starts at constants.OverlayDataOffset.
	DMEM() []byte

	// State returns the resident overlay's persistent state window, a
	// sub-slice of DMEM. Empty when the overlay has no state.
	State() []byte

	// Memory returns main memory.
	Memory() *rdram.Arena

	// DMAToLocal copies n bytes from main memory into DMEM.
	DMAToLocal(local uint32, addr rdram.Addr, n int)

	// DMAToMain copies n bytes from DMEM into main memory.
	DMAToMain(addr rdram.Addr, local uint32, n int)
}

// Handler executes one command. cmd holds all of the command's words,
// word 0 included.
type Handler func(x Executor, cmd []uint32)

// Command is one entry of an overlay's dispatch table.
type Command struct {
	Name string
	Size int // words, 1..16
	Fn   Handler
}

// Ucode is an overlay image and its dispatch table.
type Ucode struct {
	Name string

	Code []byte // loaded into IMEM at constants.OverlayCodeOffset
	Data []byte // loaded into DMEM at constants.OverlayDataOffset

	StateOffset int // offset of the persistent window inside Data
	StateSize   int

	Commands []Command
}
