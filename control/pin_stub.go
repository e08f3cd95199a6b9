// pin_stub.go - CPU affinity no-op for platforms without sched_setaffinity(2)

//go:build !linux || tinygo

package control

// Pin is a no-op: the consumer goroutine runs unpinned.
func Pin(core int) error {
	return nil
}
