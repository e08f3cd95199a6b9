// ════════════════════════════════════════════════════════════════════════════════════════════════
// RSP Command Queue - Harness Entry Point
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: RSP Command Queue
// Component: Main Entry Point & Workload Orchestration
//
// Description:
//   Drives one engine through every producer feature against the checksum
//   overlay and verifies the result against a host-side model.
//   Config → Trace → Engine → Workload → Report → Shutdown
//
// Architecture:
//   - Phase 0: Load configuration (optional JSON file as the first argument)
//   - Phase 1: Open the execution trace when a trace path is configured
//   - Phase 2: Start the engine and register the checksum overlay
//   - Phase 3: Streamed writes paced by syncpoints, replayed blocks,
//              a high-priority snapshot
//   - Phase 4: Verify, report statistics, shut down
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package main

import (
	"context"
	"encoding/hex"
	"os"
	"os/signal"
	"syscall"

	"rspq/config"
	"rspq/debug"
	"rspq/queue"
	"rspq/rsp"
	"rspq/trace"
	"rspq/utils"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// MAIN ORCHESTRATION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func main() {
	// PHASE 0: Configuration
	cfg := config.Default()
	if len(os.Args) > 1 {
		var err error
		if cfg, err = config.Load(os.Args[1]); err != nil {
			debug.DropError("CONFIG", err)
			os.Exit(2)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PHASE 1: Execution trace
	var (
		store *trace.Store
		rec   *trace.Recorder
	)
	if cfg.TracePath != "" {
		var err error
		if store, err = trace.Open(cfg.TracePath); err != nil {
			debug.DropError("TRACE", err)
			os.Exit(1)
		}
		defer store.Close()
		rec = trace.NewRecorder(store, cfg.TraceRingSize)
	}

	// PHASE 2: Engine
	ec := cfg.Engine()
	ec.OnFault = func(f rsp.Fault) {
		debug.DropError("FAULT", f)
		stop()
	}
	if rec != nil {
		ec.Tracer = rec
	}
	e, err := queue.New(ec)
	if err != nil {
		debug.DropError("INIT", err)
		os.Exit(1)
	}

	ucode := checksumUcode()
	e.OverlayRegister(ucode, checksumID)
	if store != nil {
		if err := store.SetMeta("overlays", overlayMeta(e)); err != nil {
			debug.DropError("TRACE", err)
		}
	}

	// PHASE 3: Workload
	m := &model{}
	got, werr := run(ctx, e, m)

	// PHASE 4: Report & shutdown
	status := 0
	switch {
	case werr != nil:
		debug.DropError("WORKLOAD", werr)
		status = 1
	case got != m.sum:
		debug.DropMessage("VERIFY", "checksum mismatch: consumer "+hex64(got)+", model "+hex64(m.sum))
		status = 1
	default:
		debug.DropMessage("VERIFY", "checksum "+hex64(got)+" matches")
	}
	report(e)

	if err := e.Close(); err != nil {
		debug.DropError("CLOSE", err)
		status = 1
	}
	if rec != nil {
		if err := rec.Close(); err != nil {
			status = 1
		}
		if counts, err := store.CountByOverlay(); err == nil {
			for _, c := range counts {
				debug.DropMessage("TRACE", "overlay "+utils.Itoa(int(c.Overlay))+": "+utils.Itoa(c.Count)+" commands")
			}
		}
	}
	if status != 0 {
		os.Exit(status)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// REPORTING
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type overlayInfo struct {
	Name   string `json:"name"`
	ID     int    `json:"id"`
	IDs    int    `json:"ids"`
	Digest string `json:"digest"`
}

func overlayMeta(e *queue.Engine) []overlayInfo {
	ds := e.Overlays()
	out := make([]overlayInfo, 0, len(ds))
	for _, d := range ds {
		out = append(out, overlayInfo{
			Name:   d.Ucode.Name,
			ID:     int(d.ID),
			IDs:    d.IDs,
			Digest: hex.EncodeToString(d.Digest[:]),
		})
	}
	return out
}

func report(e *queue.Engine) {
	s := e.Stats()
	debug.DropMessage("STATS", "commands "+utils.Itoa(int(s.Commands))+
		", syncpoints "+utils.Itoa(int(s.Syncpoints))+
		", overlay switches "+utils.Itoa(int(s.OverlaySwitches))+
		", preemptions "+utils.Itoa(int(s.Preemptions)))
	debug.DropMessage("STATS", "buffer switches "+utils.Itoa(int(s.BufferSwitches))+
		", stalls "+utils.Itoa(int(s.Stalls))+
		", idle parks "+utils.Itoa(int(s.IdleParks)))
	for _, d := range e.Overlays() {
		debug.DropMessage("OVERLAY", d.Ucode.Name+" id "+utils.Itoa(int(d.ID))+" sha3 "+hex.EncodeToString(d.Digest[:8]))
	}
}

func hex64(v uint64) string {
	return utils.Hex32(uint32(v>>32)) + utils.Hex32(uint32(v))[2:]
}
