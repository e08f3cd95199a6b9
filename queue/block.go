// ════════════════════════════════════════════════════════════════════════════════════════════════
// Block Recorder / Player
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Recorded, replayable command lists
//
// Recording:
//   BlockBegin redirects every write into a private chain of chunks in main
//   memory. Chunks start at BlockMinWords and double up to BlockMaxWords,
//   linked by jumps. BlockEnd appends a return and hands back the Block.
//
// Playback:
//   BlockRun appends one call command. The consumer saves the return address
//   in a fixed slot of its 8-entry call stack and jumps into the block; the
//   block's trailing return restores it.
//
// Return slots:
//   A block's slot is its nesting level: 0 for a block that calls no other
//   block, otherwise one more than the deepest block it calls. Levels are
//   fixed when recording ends, so nested calls never collide and the depth
//   limit is checked while recording instead of on the consumer.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package queue

import (
	"rspq/constants"
	"rspq/debug"
	"rspq/rdram"
	"rspq/ring"
	"rspq/utils"
)

// Block is a recorded command list.
type Block struct {
	start  rdram.Addr
	chunks []rdram.Addr
	level  int

	cur       ring.Cursor // write position while recording
	next      int         // words in the next chunk
	recording bool
	freed     bool
}

// Level returns the block's nesting level: how many blocks deep its
// transitive calls go.
func (b *Block) Level() int { return b.level }

// Chunks returns how many memory chunks hold the block.
func (b *Block) Chunks() int { return len(b.chunks) }

// BlockBegin starts recording. Until BlockEnd every write goes into the new
// block and Flush does nothing.
func (e *Engine) BlockBegin() {
	debug.Assert(!e.closed, "BlockBegin on a closed engine")
	debug.Assert(e.block == nil, "BlockBegin while already recording a block")
	debug.Assert(!e.highpri, "BlockBegin inside a high-priority segment")
	debug.Assert(e.b.n == 0, "BlockBegin while a command is open")

	b := &Block{recording: true, next: e.cfg.BlockMinWords}
	b.start = b.alloc(e)
	e.block = b
	e.cur = &b.cur
}

// BlockEnd finishes recording and returns the block.
func (e *Engine) BlockEnd() *Block {
	b := e.block
	debug.Assert(b != nil, "BlockEnd without BlockBegin")
	debug.Assert(e.b.n == 0, "BlockEnd while a command is open")

	// A chunk with its cursor under the sentinel always has room for this.
	b.cur.Put(0, ring.Word0(ring.CmdRet, uint32(b.level)))
	b.cur.Commit(1)

	b.recording = false
	e.block = nil
	e.cur = &e.active.Cursor
	return b
}

// BlockRun enqueues a call to b. Runs from inside a recording raise the
// recording block's level; the depth limit is 8.
func (e *Engine) BlockRun(b *Block) {
	debug.Assert(b != nil && !b.freed, "BlockRun of a freed block")
	debug.Assert(!b.recording, "BlockRun of a block that is still being recorded")
	debug.Assert(!e.highpri, "blocks cannot be run from a high-priority segment")

	if rec := e.block; rec != nil {
		if b.level+1 > rec.level {
			rec.level = b.level + 1
		}
		if rec.level >= constants.MaxBlockNesting {
			debug.Fail("block nesting exceeds " + utils.Itoa(constants.MaxBlockNesting) + " levels")
		}
	}
	e.Write(ring.CmdCall, uint32(b.level), uint32(b.start))
}

// BlockFree releases b's memory. b must not be run afterwards, nor be
// referenced by a block that is still run.
func (e *Engine) BlockFree(b *Block) {
	debug.Assert(b != nil && !b.freed, "BlockFree of a freed block")
	debug.Assert(!b.recording, "BlockFree of a block that is still being recorded")
	for _, c := range b.chunks {
		e.mem.Free(c)
	}
	b.chunks = nil
	b.freed = true
}

// alloc adds a chunk and points the recording cursor at it.
func (b *Block) alloc(e *Engine) rdram.Addr {
	words := b.next
	addr := e.mem.Alloc(words << 2)
	b.chunks = append(b.chunks, addr)
	b.cur = ring.NewCursor(e.mem, addr, words)
	if b.next < e.cfg.BlockMaxWords {
		b.next *= 2
		if b.next > e.cfg.BlockMaxWords {
			b.next = e.cfg.BlockMaxWords
		}
	}
	return addr
}

// grow links a fresh chunk after the current one.
func (b *Block) grow(e *Engine) {
	old := b.cur
	addr := b.alloc(e)
	old.Link(addr)
}
