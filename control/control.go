// control.go — Per-engine hot/stop flags for the pinned consumer
// ============================================================================
// CONSUMER COORDINATION
// ============================================================================
//
// Control provides the lightweight signaling the producer and the consumer
// goroutine share outside of the command stream itself:
//   • stop: set once by Engine.Close, polled by the consumer loop
//   • hot:  set by every producer flush, cleared after a cooldown with no
//     activity; while hot the consumer keeps spinning instead of parking
//
// Each engine owns its own Flags so independent instances can coexist in
// one process (tests run many engines side by side).
//
// Threading model:
//   • Producer calls SignalActivity() from Flush
//   • Consumer calls PollCooldown()/Hot()/Stopped() from its idle path
//   • Shutdown() is called once from Close

package control

import (
	"sync/atomic"
	"time"
)

// Flags holds the coordination state of one producer/consumer pair.
type Flags struct {
	hot        atomic.Uint32 // 1 = producer flushed recently
	stop       atomic.Uint32 // 1 = consumer must exit
	lastHot    atomic.Int64  // UnixNano of last SignalActivity
	cooldownNs int64
}

// New returns flags whose hot state decays after cooldownNs of inactivity.
func New(cooldownNs int64) *Flags {
	return &Flags{cooldownNs: cooldownNs}
}

// SignalActivity marks the producer as active.
//
//go:nosplit
//go:inline
func (f *Flags) SignalActivity() {
	f.lastHot.Store(time.Now().UnixNano())
	f.hot.Store(1)
}

// PollCooldown clears the hot flag once the cooldown has elapsed.
// Called from the consumer's idle loop.
func (f *Flags) PollCooldown() {
	if f.hot.Load() == 1 && time.Now().UnixNano()-f.lastHot.Load() > f.cooldownNs {
		f.hot.Store(0)
	}
}

// Hot reports whether the producer flushed within the cooldown window.
//
//go:nosplit
//go:inline
func (f *Flags) Hot() bool {
	return f.hot.Load() == 1
}

// Shutdown asks the consumer to terminate at its next poll.
func (f *Flags) Shutdown() {
	f.stop.Store(1)
}

// Stopped reports whether Shutdown was called.
//
//go:nosplit
//go:inline
func (f *Flags) Stopped() bool {
	return f.stop.Load() != 0
}
