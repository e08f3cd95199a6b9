// pin_linux.go - Linux CPU affinity via sched_setaffinity(2)

//go:build linux && !tinygo

package control

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Pin binds the calling OS thread to the given core.
// The caller must have locked the goroutine to its thread first
// (runtime.LockOSThread), otherwise the affinity applies to whatever thread
// the scheduler happens to be using.
func Pin(core int) error {
	if core < 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("control: pin to core %d: %w", core, err)
	}
	return nil
}
