// ════════════════════════════════════════════════════════════════════════════════════════════════
// CPU Relaxation - AMD64 Architecture
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: x86-64 Spin-Wait Hint
//
// Description:
//   Emits PAUSE inside the producer's and consumer's spin loops (buffer switch
//   stalls, highpri sync, consumer idle spin before parking).
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

//go:build amd64 && cgo && !noasm

package control

/*
static inline void cpu_pause() {
    __asm__ __volatile__("pause" ::: "memory");
}
*/
import "C"

// Relax emits x86-64 PAUSE for efficient spin-wait loops.
//
//go:nosplit
//go:inline
func Relax() {
	C.cpu_pause()
}
