// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: checksum.go — Demo overlay for the harness
//
// Purpose:
//   - Registers a small stateful ucode that folds words into a 64-bit sum.
//   - Keeps a host-side model of the same fold so the harness can verify
//     that every command ran exactly once and in order.
//
// Commands (overlay id checksumID):
//   0 mix   (2 words) sum = Mix64(sum ^ w1)
//   1 fold  (3 words) DMA w2 bytes from main memory at w1, mix each word
//   2 store (2 words) DMA the sum to main memory at w1
// ─────────────────────────────────────────────────────────────────────────────

package main

import (
	"rspq/constants"
	"rspq/overlay"
	"rspq/rdram"
	"rspq/utils"
)

const (
	checksumID = 1

	cmdMix   = checksumID<<4 | 0
	cmdFold  = checksumID<<4 | 1
	cmdStore = checksumID<<4 | 2

	// foldScratch is where fold stages its input in DMEM.
	foldScratch = 0x800
	// foldMax bounds a single fold.
	foldMax = 0x400
)

// checksumUcode returns the demo ucode. The sum lives in the first 8 bytes
// of its data image, declared as persistent state.
func checksumUcode() *overlay.Ucode {
	return &overlay.Ucode{
		Name: "checksum",
		Code: []byte("checksum ucode v1"),
		Data: make([]byte, 16),

		StateOffset: 0,
		StateSize:   8,

		Commands: []overlay.Command{
			{Name: "mix", Size: 2, Fn: mixCmd},
			{Name: "fold", Size: 3, Fn: foldCmd},
			{Name: "store", Size: 2, Fn: storeCmd},
		},
	}
}

func mixCmd(x overlay.Executor, cmd []uint32) {
	st := x.State()
	utils.StoreBE64(st, utils.Mix64(utils.LoadBE64(st)^uint64(cmd[1])))
}

func foldCmd(x overlay.Executor, cmd []uint32) {
	n := int(cmd[2])
	if n > foldMax {
		panic("fold of " + utils.Itoa(n) + " bytes exceeds scratch")
	}
	x.DMAToLocal(foldScratch, rdram.Addr(cmd[1]), n)

	dmem := x.DMEM()
	st := x.State()
	sum := utils.LoadBE64(st)
	for off := foldScratch; off < foldScratch+n; off += 4 {
		sum = utils.Mix64(sum ^ uint64(utils.LoadBE32(dmem[off:])))
	}
	utils.StoreBE64(st, sum)
}

func storeCmd(x overlay.Executor, cmd []uint32) {
	x.DMAToMain(rdram.Addr(cmd[1]), constants.OverlayDataOffset, 8)
}

// model mirrors the checksum ucode on the host.
type model struct{ sum uint64 }

func (m *model) mix(w uint32) { m.sum = utils.Mix64(m.sum ^ uint64(w)) }

func (m *model) fold(words []uint32) {
	for _, w := range words {
		m.mix(w)
	}
}
