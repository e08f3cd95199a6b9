// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go — Cold-path diagnostics & contract assertions
//
// Purpose:
//   - Logs infrequent events (init, close, buffer stalls, coprocessor faults)
//     without fmt formatting.
//   - Keeps the most recent messages in a bounded in-memory tail so a harness
//     or a test can inspect what was reported.
//   - Asserts caller contracts: violations panic immediately with an
//     "rspq: ..." message.
//
// Notes:
//   - Messages go to stderr through utils.PrintWarning.
//   - The tail is a byte FIFO; when full the oldest bytes are discarded.
//
// ⚠️ Never invoke DropMessage/DropError in hot loops — use only in diagnostics.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import (
	"strings"
	"sync"

	"rspq/constants"
	"rspq/utils"

	"github.com/smallnest/ringbuffer"
)

var (
	tailMu  sync.Mutex
	tail    = ringbuffer.New(constants.RecentLogBytes)
	scratch [512]byte
	quiet   bool // suppresses stderr, tail still records
)

// DropError logs error messages with a custom alloc-free print strategy.
// With a nil error only the prefix is printed (used as a cheap tag).
//
//go:inline
func DropError(prefix string, err error) {
	if err != nil {
		emit(prefix + ": " + err.Error() + "\n")
	} else {
		emit(prefix + "\n")
	}
}

// DropMessage logs debug messages for cold-path diagnostics: engine init,
// close, buffer stalls and coprocessor faults.
//
//go:inline
func DropMessage(prefix, message string) {
	emit(prefix + ": " + message + "\n")
}

// Assert panics with msg when cond is false.
// Caller contract violations are not recoverable: the shared buffer protocol
// can no longer be trusted once one has happened.
//
//go:nosplit
func Assert(cond bool, msg string) {
	if !cond {
		Fail(msg)
	}
}

// Fail reports a contract violation unconditionally. Hot paths test the
// condition themselves and call Fail, so the message is only built on failure.
func Fail(msg string) {
	panic("rspq: " + msg)
}

// Recent returns the retained tail of dropped messages, oldest first.
func Recent() string {
	tailMu.Lock()
	defer tailMu.Unlock()

	var sb strings.Builder
	n := tail.Length()
	buf := make([]byte, n)
	got, _ := tail.TryRead(buf)
	sb.Write(buf[:got])
	// Reading drained the FIFO; put the bytes back.
	_, _ = tail.Write(buf[:got])
	return sb.String()
}

// SetQuiet stops mirroring messages to stderr. Tests use it to keep output
// clean while still asserting on Recent().
func SetQuiet(q bool) {
	tailMu.Lock()
	quiet = q
	tailMu.Unlock()
}

// emit appends msg to the tail and prints it.
func emit(msg string) {
	tailMu.Lock()
	defer tailMu.Unlock()

	if !quiet {
		utils.PrintWarning(msg)
	}

	b := []byte(msg)
	if len(b) > constants.RecentLogBytes {
		b = b[len(b)-constants.RecentLogBytes:]
	}
	for tail.Free() < len(b) {
		drop := len(b) - tail.Free()
		if drop > len(scratch) {
			drop = len(scratch)
		}
		if n, _ := tail.TryRead(scratch[:drop]); n == 0 {
			break
		}
	}
	_, _ = tail.Write(b)
}
