// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: constants.go — Command queue tunables & memory geometry
//
// Purpose:
//   - Defines the wire limits shared by producer and consumer (command size,
//     nesting depth, overlay id space).
//   - Defines the default sizes of the queue buffers and of the coprocessor's
//     local memories.
//
// Notes:
//   - All sizes expressed in 32-bit words unless the name says Bytes.
//   - Runtime overrides live in package config; these are the defaults.
//
// ⚠️ No runtime logic here — all values must be compile-time resolvable
// ─────────────────────────────────────────────────────────────────────────────

package constants

// ──────────────────────────── Command Encoding ─────────────────────────────

const (
	// MaxCommandSize is the largest command, in 32-bit words, a producer may
	// write between Begin and Finish.
	MaxCommandSize = 16

	// OverlayCount is the size of the overlay id space (upper nibble of the
	// command id). Overlay 0 is reserved for the engine's control commands.
	OverlayCount = 16

	// OverlayCommands is the number of commands addressable under one overlay id
	// (lower nibble of the command id).
	OverlayCommands = 16

	// CommandIDs is the full 8-bit command id space, size of the dispatch table.
	CommandIDs = OverlayCount * OverlayCommands
)

// ───────────────────────────── Blocks ──────────────────────────────────────

const (
	// MaxBlockNesting is the number of return slots the consumer maintains.
	// A block at nesting level N stores its return address in slot N, so
	// levels 0..MaxBlockNesting-1 are valid.
	MaxBlockNesting = 8

	// BlockMinWords is the size of the first chunk allocated for a block.
	BlockMinWords = 64

	// BlockMaxWords caps the doubling growth of block chunks.
	BlockMaxWords = 4192
)

// ─────────────────────────── Queue Buffers ─────────────────────────────────

const (
	// LowpriBufferWords is the size of each of the two normal-priority buffers.
	LowpriBufferWords = 0x1000

	// HighpriBufferWords is the size of each of the two high-priority buffers.
	// Highpri segments are expected to be short.
	HighpriBufferWords = 0x80

	// MinBufferWords is the smallest accepted buffer: one maximum command,
	// the trailing jump, the leading status write and some slack.
	MinBufferWords = 2*MaxCommandSize + 8

	// JumpWords is the room reserved at the end of every buffer for the jump
	// that links it to the next one.
	JumpWords = 2
)

// ─────────────────────────── Memory Geometry ───────────────────────────────

const (
	// ArenaBytes is the default size of main memory shared by both sides.
	ArenaBytes = 4 << 20 // 4 MiB

	// DMEMBytes is the size of the coprocessor's local data memory.
	DMEMBytes = 0x1000

	// IMEMBytes is the size of the coprocessor's local instruction memory.
	IMEMBytes = 0x1000

	// OverlayDataOffset is where an overlay's data image is loaded in DMEM.
	// Everything below it is engine-private.
	OverlayDataOffset = 0x260

	// OverlayCodeOffset is where an overlay's code image is loaded in IMEM.
	OverlayCodeOffset = 0x200

	// DMAAlign is the required alignment of DMA addresses and lengths.
	DMAAlign = 8
)

// ────────────────────────── Consumer Scheduling ────────────────────────────

const (
	// SpinBudget is the number of empty polls before the consumer parks.
	SpinBudget = 224

	// HotCooldownNs keeps the consumer spinning after a producer flush.
	HotCooldownNs = 200_000 // 200 µs

	// StopTimeoutMs bounds how long Close waits for the consumer goroutine.
	StopTimeoutMs = 2000

	// NoCore disables consumer thread pinning.
	NoCore = -1
)

// ─────────────────────────────── Tracing ───────────────────────────────────

const (
	// TraceRingSize is the default capacity of the trace record ring.
	// Must be a power of two.
	TraceRingSize = 1 << 12

	// TraceBatch is the number of records inserted per SQLite transaction.
	TraceBatch = 256

	// RecentLogBytes is the capacity of the in-memory diagnostic tail.
	RecentLogBytes = 16 << 10
)
