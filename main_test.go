package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"rspq/debug"
	"rspq/queue"
	"rspq/rsp"
)

func init() { debug.SetQuiet(true) }

func harnessEngine(t *testing.T, onFault func(rsp.Fault)) *queue.Engine {
	t.Helper()
	cfg := queue.DefaultConfig()
	cfg.ArenaBytes = 1 << 20
	cfg.LowpriWords = 256
	cfg.OnFault = onFault
	e, err := queue.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	e.OverlayRegister(checksumUcode(), checksumID)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestWorkloadMatchesModel(t *testing.T) {
	e := harnessEngine(t, nil)
	m := &model{}
	got, err := run(context.Background(), e, m)
	if err != nil {
		t.Fatal(err)
	}
	if got != m.sum {
		t.Fatalf("consumer checksum %#x, model %#x", got, m.sum)
	}
	s := e.Stats()
	if s.Preemptions != 1 || s.BufferSwitches == 0 {
		t.Fatalf("stats %+v", s)
	}
	if len(overlayMeta(e)) != 1 {
		t.Fatal("checksum overlay missing from metadata")
	}
}

func TestWorkloadCancelled(t *testing.T) {
	e := harnessEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := run(ctx, e, &model{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("run with a cancelled context = %v", err)
	}
}

func TestFoldOverflowFaults(t *testing.T) {
	faults := make(chan rsp.Fault, 1)
	e := harnessEngine(t, func(f rsp.Fault) { faults <- f })
	src := e.Memory().Alloc(2 * foldMax)
	e.Write(cmdFold, 0, uint32(src), 2*foldMax)
	e.Flush()
	select {
	case f := <-faults:
		if f.Word>>24 != cmdFold {
			t.Fatalf("fault on %#x", f.Word)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("oversized fold did not fault")
	}
}

func TestHex64(t *testing.T) {
	if got := hex64(0x0123456789abcdef); got != "0x0123456789abcdef" {
		t.Fatalf("hex64 = %s", got)
	}
}
