// ════════════════════════════════════════════════════════════════════════════════════════════════
// Overlay Registry
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Command id → handler mapping
//
// Description:
//   Binds overlay ids to ucodes and builds the flat 256-entry dispatch table
//   the consumer indexes with the command id byte. The table is written by
//   the producer at registration time and read lock-free by the consumer.
//
// Id ranges:
//   - Id 0 is the engine's control set and cannot be registered.
//   - A ucode exposing more than 16 commands is registered once per block of
//     16, on consecutive ids. The n-th registration binds commands
//     [16n, 16n+16).
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package overlay

import (
	"sync"
	"sync/atomic"

	"rspq/constants"
	"rspq/debug"
	"rspq/rdram"
	"rspq/utils"

	"golang.org/x/crypto/sha3"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CORE DATA STRUCTURES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Descriptor is the registry's record of one ucode.
type Descriptor struct {
	Ucode *Ucode
	ID    uint8 // first overlay id
	IDs   int   // consecutive ids bound

	State     rdram.Addr // state mirror in main memory, 0 if none
	StateSize int

	Digest [32]byte // SHA3-256 of Code followed by Data
}

// Entry is one dispatch table slot.
type Entry struct {
	Desc  *Descriptor
	Cmd   *Command
	Index int // position in Desc.Ucode.Commands
}

// Registry maps command ids to overlay commands.
type Registry struct {
	mem *rdram.Arena

	mu      sync.Mutex
	byUcode map[*Ucode]*Descriptor
	ids     [constants.OverlayCount]*Descriptor

	table [constants.CommandIDs]atomic.Pointer[Entry]
}

// NewRegistry creates an empty registry whose state mirrors live in mem.
func NewRegistry(mem *rdram.Arena) *Registry {
	return &Registry{
		mem:     mem,
		byUcode: make(map[*Ucode]*Descriptor),
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// REGISTRATION (PRODUCER, COLD PATH)
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Register binds overlay id to u. Registering u again binds the next block
// of 16 of its commands and must use the id following the previous one.
func (r *Registry) Register(u *Ucode, id uint8) *Descriptor {
	debug.Assert(id != 0, "overlay id 0 is reserved for the control commands")
	debug.Assert(id < constants.OverlayCount, "overlay id "+utils.Itoa(int(id))+" out of range")

	r.mu.Lock()
	defer r.mu.Unlock()

	debug.Assert(r.ids[id] == nil, "overlay id "+utils.Itoa(int(id))+" already registered")

	d, again := r.byUcode[u]
	if again {
		debug.Assert(int(id) == int(d.ID)+d.IDs,
			"overlay "+u.Name+" must be registered on consecutive ids")
	} else {
		validate(u)
		d = &Descriptor{
			Ucode:     u,
			ID:        id,
			StateSize: u.StateSize,
			Digest:    digest(u),
		}
		if u.StateSize > 0 {
			d.State = r.mem.Alloc(u.StateSize)
			r.mem.WriteBytes(d.State, u.Data[u.StateOffset:u.StateOffset+u.StateSize])
		}
		r.byUcode[u] = d
	}

	base := d.IDs * constants.OverlayCommands
	for i := 0; i < constants.OverlayCommands && base+i < len(u.Commands); i++ {
		r.table[int(id)<<4|i].Store(&Entry{Desc: d, Cmd: &u.Commands[base+i], Index: base + i})
	}
	d.IDs++
	r.ids[id] = d

	debug.DropMessage("OVERLAY", u.Name+" bound to "+utils.Hex32(uint32(id)<<28))
	return d
}

// validate checks the static shape of a ucode before its first registration.
func validate(u *Ucode) {
	debug.Assert(u != nil, "nil ucode")
	debug.Assert(len(u.Commands) > 0, "overlay "+u.Name+" has no commands")
	debug.Assert(constants.OverlayCodeOffset+len(u.Code) <= constants.IMEMBytes,
		"overlay "+u.Name+" code does not fit in IMEM")
	debug.Assert(constants.OverlayDataOffset+len(u.Data) <= constants.DMEMBytes,
		"overlay "+u.Name+" data does not fit in DMEM")
	debug.Assert(u.StateOffset >= 0 && u.StateSize >= 0 &&
		u.StateOffset+u.StateSize <= len(u.Data),
		"overlay "+u.Name+" state window outside its data image")
	debug.Assert(u.StateOffset%constants.DMAAlign == 0 && u.StateSize%constants.DMAAlign == 0,
		"overlay "+u.Name+" state window must be 8-byte aligned")
	for i := range u.Commands {
		c := &u.Commands[i]
		debug.Assert(c.Size >= 1 && c.Size <= constants.MaxCommandSize,
			"command "+c.Name+" size out of range")
		debug.Assert(c.Fn != nil, "command "+c.Name+" has no handler")
	}
}

func digest(u *Ucode) [32]byte {
	h := sha3.New256()
	h.Write(u.Code)
	h.Write(u.Data)
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// QUERIES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Lookup returns the dispatch entry for a command id, or nil when unbound.
// Safe to call from the consumer concurrently with Register.
//
//go:nosplit
//go:inline
func (r *Registry) Lookup(id uint8) *Entry {
	return r.table[id].Load()
}

// Descriptor returns the record for u, or nil if u is not registered.
func (r *Registry) Descriptor(u *Ucode) *Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byUcode[u]
}

// State returns the address of u's state mirror in main memory.
// u must be registered and declare state.
func (r *Registry) State(u *Ucode) rdram.Addr {
	d := r.Descriptor(u)
	debug.Assert(d != nil, "overlay "+u.Name+" is not registered")
	debug.Assert(d.State != 0, "overlay "+u.Name+" has no persistent state")
	return d.State
}

// Descriptors returns every registered ucode ordered by first id.
func (r *Registry) Descriptors() []*Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Descriptor
	for id, d := range r.ids {
		if d != nil && int(d.ID) == id {
			out = append(out, d)
		}
	}
	return out
}

// Release frees every state mirror. The registry must not be used after.
func (r *Registry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.byUcode {
		if d.State != 0 {
			r.mem.Free(d.State)
			d.State = 0
		}
	}
}
