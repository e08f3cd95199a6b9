// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ COPROCESSOR CONSUMER
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Command stream executor
//
// Description:
//   The consumer side of the queue. A dedicated goroutine, locked to an OS
//   thread and optionally pinned to a core, walks the command stream in main
//   memory and executes every command it finds: control commands itself,
//   overlay commands through the registry's dispatch table.
//
// Adaptive idling:
//   - A zero word 0 means "not yet written": the consumer spins while the
//     producer is hot or the spin budget lasts, then parks until the producer
//     flushes.
//
// Shared state (producer ↔ consumer):
//   - status register, syncpoint counter, high-priority request/done counters
//   - everything else below "consumer-owned" is touched by the consumer only
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package rsp

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"rspq/constants"
	"rspq/control"
	"rspq/debug"
	"rspq/overlay"
	"rspq/rdram"
	"rspq/ring"
)

// ErrStopTimeout is returned by Stop when the consumer is stuck inside a
// command handler.
var ErrStopTimeout = errors.New("rsp: consumer did not stop in time")

// Config tunes a Consumer.
type Config struct {
	Core       int // pin the consumer thread to this core; <0 leaves it unpinned
	SpinBudget int // empty polls before parking

	OnFault func(Fault) // nil panics on fault
	Tracer  Tracer      // nil disables tracing
}

// Consumer executes the command stream.
type Consumer struct {
	mem   *rdram.Arena
	reg   *overlay.Registry
	flags *control.Flags
	cfg   Config

	// ── shared with the producer ───────────────────────────────────────
	status      atomic.Uint32
	syncDone    atomic.Uint32
	hpRequested atomic.Uint32
	hpDone      atomic.Uint32
	halted      atomic.Bool
	fault       atomic.Pointer[Fault]

	irq  interrupt
	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	stopOnce  sync.Once
	startOnce sync.Once

	commands    atomic.Uint64
	switches    atomic.Uint64
	preemptions atomic.Uint64
	parks       atomic.Uint64
	syncpoints  atomic.Uint64

	// ── consumer-owned ─────────────────────────────────────────────────
	cur      rdram.Addr
	resume   [2]rdram.Addr // normal, high priority
	highpri  bool
	stack    [constants.MaxBlockNesting]rdram.Addr
	resident *overlay.Descriptor
	cmd      [constants.MaxCommandSize]uint32
	seq      uint64

	dmem [constants.DMEMBytes]byte
	imem [constants.IMEMBytes]byte
}

// New creates a stopped consumer that will start reading at lowStart and
// enter the high-priority queue at highStart.
func New(mem *rdram.Arena, reg *overlay.Registry, flags *control.Flags, lowStart, highStart rdram.Addr, cfg Config) *Consumer {
	if cfg.SpinBudget <= 0 {
		cfg.SpinBudget = constants.SpinBudget
	}
	c := &Consumer{
		mem:   mem,
		reg:   reg,
		flags: flags,
		cfg:   cfg,
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		cur:   lowStart,
	}
	c.resume[1] = highStart
	// Both alternate buffers start out free.
	c.status.Store(ring.SigBufdoneLow | ring.SigBufdoneHigh)
	return c
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Start launches the consumer goroutine. Calling it again has no effect.
func (c *Consumer) Start() {
	c.startOnce.Do(func() {
		go func() {
			runtime.LockOSThread()
			pinned := false
			if c.cfg.Core >= 0 {
				if err := control.Pin(c.cfg.Core); err != nil {
					debug.DropError("RSP_PIN", err)
				} else {
					pinned = true
				}
			}
			defer func() {
				// A pinned thread exits with the goroutine instead of
				// returning to the scheduler with its affinity.
				if !pinned {
					runtime.UnlockOSThread()
				}
				close(c.done)
			}()
			c.run()
		}()
	})
}

// Stop asks the consumer to exit at the next command boundary and waits up
// to timeout for it. Pending commands are not drained.
func (c *Consumer) Stop(timeout time.Duration) error {
	c.stopOnce.Do(func() {
		c.flags.Shutdown()
		close(c.quit)
	})
	select {
	case <-c.done:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

// Done is closed once the consumer goroutine has exited.
func (c *Consumer) Done() <-chan struct{} { return c.done }

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PRODUCER-SIDE REGISTERS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Signals returns the status register.
//
//go:nosplit
//go:inline
func (c *Consumer) Signals() uint32 { return c.status.Load() }

// ClearSignals lowers status bits.
func (c *Consumer) ClearSignals(mask uint32) { c.status.And(^mask) }

// Wake tells the consumer that new commands were published. Never blocks.
func (c *Consumer) Wake() {
	c.status.Or(ring.SigMore)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Interrupt returns a channel closed the next time the consumer raises an
// interrupt (status write, syncpoint, high-priority segment end, halt).
// Take the channel before checking the awaited condition.
func (c *Consumer) Interrupt() <-chan struct{} { return c.irq.wait() }

// SyncpointDone returns the id of the last syncpoint executed.
//
//go:nosplit
//go:inline
func (c *Consumer) SyncpointDone() uint32 { return c.syncDone.Load() }

// RequestHighpri asks the consumer to switch to the high-priority queue at
// the next command boundary. Each request is matched by one SwapBuffers.
func (c *Consumer) RequestHighpri() {
	c.hpRequested.Add(1)
	c.Wake()
}

// HighpriCompleted returns how many high-priority segments have finished.
func (c *Consumer) HighpriCompleted() uint32 { return c.hpDone.Load() }

// Crashed reports whether the consumer halted on a fault.
func (c *Consumer) Crashed() bool { return c.halted.Load() }

// Fault returns the fault that halted the consumer, or nil.
func (c *Consumer) Fault() *Fault { return c.fault.Load() }

// Stats snapshots the consumer counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Commands:        c.commands.Load(),
		OverlaySwitches: c.switches.Load(),
		Preemptions:     c.preemptions.Load(),
		IdleParks:       c.parks.Load(),
		Syncpoints:      c.syncpoints.Load(),
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// MAIN LOOP
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (c *Consumer) run() {
	defer c.saveState()

	var miss int
	for {
		// Priority 1: shutdown
		if c.flags.Stopped() {
			return
		}

		// Priority 2: preemption point between commands
		if !c.highpri && c.hpRequested.Load() != c.hpDone.Load() {
			c.enterHighpri()
		}

		// Priority 3: next command
		w0 := c.mem.Load32(c.cur)
		if w0 != 0 {
			miss = 0
			if !c.step(w0) {
				return
			}
			continue
		}

		// Priority 4: idle
		c.idle(&miss)
	}
}

// idle handles a zero word: spin while the producer is hot or the budget
// lasts, then park until Wake or Stop.
func (c *Consumer) idle(miss *int) {
	c.status.And(^ring.SigMore)
	if c.mem.Load32(c.cur) != 0 {
		return
	}
	c.flags.PollCooldown()
	if c.flags.Hot() {
		control.Relax()
		return
	}
	if *miss++; *miss < c.cfg.SpinBudget {
		control.Relax()
		return
	}
	*miss = 0
	c.parks.Add(1)
	select {
	case <-c.wake:
	case <-c.quit:
	}
}

func (c *Consumer) enterHighpri() {
	c.resume[0] = c.cur
	c.cur = c.resume[1]
	c.highpri = true
	c.status.Or(ring.SigHighpriRunning)
	c.preemptions.Add(1)
}

func (c *Consumer) leaveHighpri(next rdram.Addr) {
	c.resume[1] = next
	c.cur = c.resume[0]
	c.highpri = false
	c.status.And(^ring.SigHighpriRunning)
}

// saveState writes the resident overlay's state back to its mirror so the
// producer sees it after the consumer exits.
func (c *Consumer) saveState() {
	if r := c.resident; r != nil && r.StateSize > 0 {
		off := constants.OverlayDataOffset + r.Ucode.StateOffset
		c.mem.WriteBytes(r.State, c.dmem[off:off+r.StateSize])
	}
}

// crash halts the consumer.
func (c *Consumer) crash(w0 uint32, reason string) {
	f := Fault{Addr: c.cur, Word: w0, Reason: reason}
	c.fault.Store(&f)
	c.halted.Store(true)
	c.irq.raise()

	debug.DropMessage("RSP_CRASH", f.Error())
	if c.cfg.OnFault == nil {
		panic(f.Error())
	}
	c.cfg.OnFault(f)
}
