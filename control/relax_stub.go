// CPU Relaxation - Fallback Implementation
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Compilation Targets:
//   - Architectures without a dedicated spin-wait hint
//   - Builds with assembly disabled (noasm tag)
//   - Builds with cgo disabled
//

//go:build (!amd64 && !arm64) || noasm || !cgo

package control

import "runtime"

// Relax yields the processor to other goroutines.
// Without a hardware hint, letting the scheduler run is the closest match:
// the other side of the queue may be waiting for this very P.
func Relax() {
	runtime.Gosched()
}
