// ════════════════════════════════════════════════════════════════════════════════════════════════
// Command Queue Engine
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Producer-side context
//
// Description:
//   An Engine owns one producer/consumer pair: the shared arena, the normal
//   and high-priority queues, the overlay registry and the consumer goroutine.
//   All write cursors live here instead of in package globals, so independent
//   engines can coexist in one process.
//
// Threading model:
//   - Every Engine method except Stats, Signals, Crashed and CheckSyncpoint
//     must be called from a single producer goroutine.
//   - Nothing on the write path blocks except a buffer switch that finds the
//     consumer still reading the other buffer.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package queue

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"rspq/constants"
	"rspq/control"
	"rspq/debug"
	"rspq/overlay"
	"rspq/rdram"
	"rspq/ring"
	"rspq/rsp"
	"rspq/utils"
)

// ErrHalted is returned by cancellable waits when the consumer has crashed.
var ErrHalted = errors.New("rspq: consumer halted")

// Config sizes and tunes an Engine. Zero fields take the defaults from
// package constants. SpinBudget and HotCooldown accept a negative value to
// switch the behavior off, since zero already means default.
type Config struct {
	LowpriWords  int // words per normal queue buffer
	HighpriWords int // words per high-priority queue buffer
	ArenaBytes   int // main memory size

	BlockMinWords int // first block chunk
	BlockMaxWords int // chunk growth cap

	Pin         bool          // pin the consumer thread to Core
	Core        int           // CPU index used when Pin is set
	SpinBudget  int           // consumer polls before parking, negative parks at once
	HotCooldown time.Duration // consumer keeps spinning this long after a flush, negative disables
	StopTimeout time.Duration // Close waits this long for the consumer

	OnFault func(rsp.Fault) // nil logs the fault and panics
	Tracer  rsp.Tracer      // nil disables tracing
}

// DefaultConfig returns the compiled-in defaults.
func DefaultConfig() Config {
	return Config{
		LowpriWords:   constants.LowpriBufferWords,
		HighpriWords:  constants.HighpriBufferWords,
		ArenaBytes:    constants.ArenaBytes,
		BlockMinWords: constants.BlockMinWords,
		BlockMaxWords: constants.BlockMaxWords,
		SpinBudget:    constants.SpinBudget,
		HotCooldown:   constants.HotCooldownNs * time.Nanosecond,
		StopTimeout:   constants.StopTimeoutMs * time.Millisecond,
	}
}

func (c *Config) fill() {
	d := DefaultConfig()
	if c.LowpriWords == 0 {
		c.LowpriWords = d.LowpriWords
	}
	if c.HighpriWords == 0 {
		c.HighpriWords = d.HighpriWords
	}
	if c.ArenaBytes == 0 {
		c.ArenaBytes = d.ArenaBytes
	}
	if c.BlockMinWords == 0 {
		c.BlockMinWords = d.BlockMinWords
	}
	if c.BlockMaxWords == 0 {
		c.BlockMaxWords = d.BlockMaxWords
	}
	if c.SpinBudget == 0 {
		c.SpinBudget = d.SpinBudget
	}
	if c.HotCooldown == 0 {
		c.HotCooldown = d.HotCooldown
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = d.StopTimeout
	}
	// Negative tunables have been asked to turn off.
	if c.SpinBudget < 0 {
		c.SpinBudget = 0
	}
	if c.HotCooldown < 0 {
		c.HotCooldown = 0
	}
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	minChunk := constants.MaxCommandSize + constants.JumpWords + 1
	switch {
	case c.LowpriWords < constants.MinBufferWords:
		return fmt.Errorf("lowpri buffer of %d words is below the %d word minimum", c.LowpriWords, constants.MinBufferWords)
	case c.HighpriWords < constants.MinBufferWords:
		return fmt.Errorf("highpri buffer of %d words is below the %d word minimum", c.HighpriWords, constants.MinBufferWords)
	case c.BlockMinWords < minChunk:
		return fmt.Errorf("block chunk of %d words cannot hold a maximum size command", c.BlockMinWords)
	case c.BlockMaxWords < c.BlockMinWords:
		return fmt.Errorf("block max chunk %d below min chunk %d", c.BlockMaxWords, c.BlockMinWords)
	case c.Pin && c.Core < 0:
		return fmt.Errorf("cannot pin the consumer to core %d", c.Core)
	}
	need := 4 * 2 * (c.LowpriWords + c.HighpriWords)
	if c.ArenaBytes < need+c.BlockMaxWords*4 {
		return fmt.Errorf("arena of %d bytes cannot hold the queues (%d bytes) and one block chunk", c.ArenaBytes, need)
	}
	return nil
}

// Stats combines consumer counters with producer-side ones.
type Stats struct {
	rsp.Stats
	BufferSwitches uint64 // normal and high-priority buffer switches
	Stalls         uint64 // times a buffer switch waited for the consumer
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// ENGINE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Engine is one command queue.
type Engine struct {
	cfg   Config
	mem   *rdram.Arena
	reg   *overlay.Registry
	flags *control.Flags
	rsp   *rsp.Consumer

	low, high *ring.Queue
	active    *ring.Queue  // queue written when not recording
	cur       *ring.Cursor // where the next command goes

	b Builder

	block *Block // being recorded

	highpri  bool
	hpClosed uint32 // segments closed by the producer

	nextSync uint32
	stalls   atomic.Uint64 // read by Stats from any goroutine
	closed   bool
}

// New allocates the queues and starts the consumer.
func New(cfg Config) (*Engine, error) {
	cfg.fill()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rspq: invalid config: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		mem:      rdram.New(cfg.ArenaBytes),
		flags:    control.New(int64(cfg.HotCooldown)),
		nextSync: 1,
	}
	e.reg = overlay.NewRegistry(e.mem)
	e.low = ring.NewQueue(e.mem, cfg.LowpriWords, ring.SigBufdoneLow)
	e.high = ring.NewQueue(e.mem, cfg.HighpriWords, ring.SigBufdoneHigh)
	e.active = e.low
	e.cur = &e.low.Cursor
	e.b.e = e

	e.rsp = rsp.New(e.mem, e.reg, e.flags, e.low.Start(), e.high.Start(), rsp.Config{
		Core:       e.core(),
		SpinBudget: cfg.SpinBudget,
		OnFault:    cfg.OnFault,
		Tracer:     cfg.Tracer,
	})
	e.rsp.Start()

	debug.DropMessage("INIT", "rspq ready, lowpri "+utils.Itoa(cfg.LowpriWords)+
		" words, highpri "+utils.Itoa(cfg.HighpriWords)+" words")
	return e, nil
}

func (e *Engine) core() int {
	if !e.cfg.Pin {
		return constants.NoCore
	}
	return e.cfg.Core
}

// Close stops the consumer and releases the queues. Commands not yet
// executed are discarded.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	if err := e.rsp.Stop(e.cfg.StopTimeout); err != nil {
		debug.DropError("CLOSE", err)
		return fmt.Errorf("rspq: close: %w", err)
	}
	e.closed = true
	e.low.Free()
	e.high.Free()
	e.reg.Release()
	debug.DropMessage("CLOSE", "rspq stopped after "+utils.Itoa(int(e.rsp.Stats().Commands))+" commands")
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// OVERLAYS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// OverlayRegister binds overlay id to u. See overlay.Registry.Register.
func (e *Engine) OverlayRegister(u *overlay.Ucode, id uint8) {
	e.reg.Register(u, id)
}

// OverlayGetState returns the address of u's state mirror in main memory.
// Changes made while u is resident are overwritten on the next switch.
func (e *Engine) OverlayGetState(u *overlay.Ucode) rdram.Addr {
	return e.reg.State(u)
}

// Overlays lists the registered ucodes.
func (e *Engine) Overlays() []*overlay.Descriptor {
	return e.reg.Descriptors()
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// OBSERVATION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Memory returns main memory.
func (e *Engine) Memory() *rdram.Arena { return e.mem }

// Signals returns the consumer's status register.
func (e *Engine) Signals() uint32 { return e.rsp.Signals() }

// Crashed reports whether the consumer halted on a fault.
func (e *Engine) Crashed() bool { return e.rsp.Crashed() }

// Fault returns the consumer's fault, or nil.
func (e *Engine) Fault() *rsp.Fault { return e.rsp.Fault() }

// Stats snapshots engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Stats:          e.rsp.Stats(),
		BufferSwitches: e.low.Switches() + e.high.Switches(),
		Stalls:         e.stalls.Load(),
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// WAKE & WAIT
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Flush makes sure the consumer is not idle below the last published
// command. No-op while recording a block.
//
//go:inline
func (e *Engine) Flush() {
	if e.block != nil {
		return
	}
	e.kick()
}

func (e *Engine) kick() {
	e.flags.SignalActivity()
	e.rsp.Wake()
}

// acquire waits until the consumer has raised bit, then lowers it.
func (e *Engine) acquire(bit uint32) {
	stalled := false
	for {
		irq := e.rsp.Interrupt()
		if e.rsp.Signals()&bit != 0 {
			e.rsp.ClearSignals(bit)
			return
		}
		if e.rsp.Crashed() {
			panic("rspq: consumer halted while the producer waited for a free buffer")
		}
		if !stalled {
			stalled = true
			e.stalls.Add(1)
		}
		e.kick()
		<-irq
	}
}
