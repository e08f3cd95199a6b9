package main

import (
	"context"
	"fmt"

	"rspq/debug"
	"rspq/queue"
	"rspq/rdram"
	"rspq/utils"
)

const (
	streamCommands = 20000 // mix commands written directly
	syncEvery      = 1000  // one syncpoint per this many commands
	blockRuns      = 200   // replays of the outer block
	foldBytes      = 256   // input of each fold
	blockSalt      = 0xb10c
)

// run drives e through streamed writes, nested blocks and a high-priority
// snapshot, mirroring every command in m. It returns the consumer's final
// checksum.
func run(ctx context.Context, e *queue.Engine, m *model) (uint64, error) {
	mem := e.Memory()
	out, snap := mem.Alloc(8), mem.Alloc(8)
	src := mem.Alloc(foldBytes)
	defer func() {
		mem.Free(out)
		mem.Free(snap)
		mem.Free(src)
	}()

	words := make([]uint32, foldBytes/4)
	for i := range words {
		words[i] = uint32(utils.Mix64(uint64(i) + 1))
		mem.Store32(src+rdram.Addr(4*i), words[i])
	}

	// Streamed writes: keep one syncpoint in flight so the producer runs at
	// most two windows ahead of the consumer.
	var pending queue.Syncpoint
	for i := 0; i < streamCommands; i++ {
		w := uint32(i) * 2654435761
		e.Write(cmdMix, 0, w)
		m.mix(w)

		if (i+1)%syncEvery != 0 {
			continue
		}
		if pending != 0 {
			if err := e.WaitSyncpointContext(ctx, pending); err != nil {
				return 0, fmt.Errorf("stream: %w", err)
			}
		}
		pending = e.Syncpoint()
	}
	debug.DropMessage("PHASE", "streamed "+utils.Itoa(streamCommands)+" commands")

	// Blocks: outer mixes a salt and runs inner twice; inner folds src.
	e.BlockBegin()
	e.Write(cmdFold, 0, uint32(src), foldBytes)
	inner := e.BlockEnd()

	e.BlockBegin()
	e.Write(cmdMix, 0, blockSalt)
	e.BlockRun(inner)
	e.BlockRun(inner)
	outer := e.BlockEnd()

	for i := 0; i < blockRuns; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		e.BlockRun(outer)
		m.mix(blockSalt)
		m.fold(words)
		m.fold(words)

		// A snapshot taken from the high-priority queue mid-stream.
		if i == blockRuns/2 {
			e.HighpriBegin()
			e.Write(cmdStore, 0, uint32(snap))
			e.HighpriEnd()
		}
	}
	e.HighpriSync()
	debug.DropMessage("PHASE", "replayed block of level "+utils.Itoa(outer.Level())+" "+utils.Itoa(blockRuns)+" times")

	e.Write(cmdStore, 0, uint32(out))
	if err := e.WaitSyncpointContext(ctx, e.Syncpoint()); err != nil {
		return 0, fmt.Errorf("final sync: %w", err)
	}
	e.BlockFree(outer)
	e.BlockFree(inner)

	var buf [8]byte
	mem.ReadBytes(snap, buf[:])
	debug.DropMessage("SNAPSHOT", "high-priority read "+hex64(utils.LoadBE64(buf[:])))
	mem.ReadBytes(out, buf[:])
	return utils.LoadBE64(buf[:]), nil
}
