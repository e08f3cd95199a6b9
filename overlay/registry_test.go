package overlay

import (
	"strings"
	"testing"

	"rspq/debug"
	"rspq/rdram"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/sha3"
)

func init() { debug.SetQuiet(true) }

func nop(Executor, []uint32) {}

func ucode(name string, ncmds int) *Ucode {
	u := &Ucode{
		Name:        name,
		Code:        []byte{0xde, 0xad, 0xbe, 0xef},
		Data:        make([]byte, 32),
		StateOffset: 8,
		StateSize:   16,
	}
	for i := range u.Data {
		u.Data[i] = byte(i)
	}
	for i := 0; i < ncmds; i++ {
		u.Commands = append(u.Commands, Command{Name: name + "_cmd", Size: 1 + i%4, Fn: nop})
	}
	return u
}

func expectPanic(t *testing.T, substr string, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q", substr)
		}
		if msg, _ := r.(string); !strings.Contains(msg, substr) {
			t.Fatalf("panic %q does not mention %q", r, substr)
		}
	}()
	fn()
}

func TestRegisterBindsDispatchTable(t *testing.T) {
	r := NewRegistry(rdram.New(4096))
	u := ucode("gfx", 3)
	d := r.Register(u, 0x4)

	for i := 0; i < 3; i++ {
		e := r.Lookup(uint8(0x40 | i))
		if e == nil || e.Desc != d || e.Cmd != &u.Commands[i] || e.Index != i {
			t.Fatalf("entry 0x%x not bound to command %d: %+v", 0x40|i, i, e)
		}
	}
	if r.Lookup(0x43) != nil {
		t.Fatal("ids past the ucode's command count must stay unbound")
	}
	if r.Lookup(0x50) != nil || r.Lookup(0x01) != nil {
		t.Fatal("unrelated ids bound")
	}
}

func TestRegisterReservedAndDuplicateIDs(t *testing.T) {
	r := NewRegistry(rdram.New(4096))
	expectPanic(t, "reserved", func() { r.Register(ucode("a", 1), 0) })
	expectPanic(t, "out of range", func() { r.Register(ucode("a", 1), 16) })

	r.Register(ucode("a", 1), 2)
	expectPanic(t, "already registered", func() { r.Register(ucode("b", 1), 2) })
}

func TestRegisterConsecutiveIDs(t *testing.T) {
	r := NewRegistry(rdram.New(4096))
	u := ucode("wide", 20)
	r.Register(u, 6)
	d := r.Register(u, 7)

	if d.IDs != 2 {
		t.Fatalf("IDs = %d, want 2", d.IDs)
	}
	e := r.Lookup(0x72)
	if e == nil || e.Index != 18 {
		t.Fatalf("0x72 should dispatch to command 18, got %+v", e)
	}
	if r.Lookup(0x74) != nil {
		t.Fatal("0x74 is past the 20 commands")
	}
	if got := len(r.Descriptors()); got != 1 {
		t.Fatalf("Descriptors() = %d entries, want 1", got)
	}

	expectPanic(t, "consecutive", func() { r.Register(u, 9) })
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry(rdram.New(4096))

	big := ucode("big", 1)
	big.Data = make([]byte, 4096)
	expectPanic(t, "DMEM", func() { r.Register(big, 1) })

	bad := ucode("bad", 1)
	bad.Commands[0].Size = 17
	expectPanic(t, "size", func() { r.Register(bad, 1) })

	nofn := ucode("nofn", 1)
	nofn.Commands[0].Fn = nil
	expectPanic(t, "handler", func() { r.Register(nofn, 1) })

	unaligned := ucode("unaligned", 1)
	unaligned.StateOffset = 4
	expectPanic(t, "aligned", func() { r.Register(unaligned, 1) })
}

func TestStateMirrorInitialisedFromData(t *testing.T) {
	mem := rdram.New(4096)
	r := NewRegistry(mem)
	u := ucode("stateful", 1)
	r.Register(u, 3)

	addr := r.State(u)
	got := make([]byte, u.StateSize)
	mem.ReadBytes(addr, got)
	if diff := cmp.Diff(u.Data[8:24], got); diff != "" {
		t.Fatalf("state mirror (-want +got):\n%s", diff)
	}

	r.Release()
	if mem.Used() != 0 {
		t.Fatalf("Release left %d bytes", mem.Used())
	}
}

func TestStatelessOverlay(t *testing.T) {
	r := NewRegistry(rdram.New(4096))
	u := ucode("plain", 1)
	u.StateSize = 0
	r.Register(u, 1)
	expectPanic(t, "no persistent state", func() { r.State(u) })
	expectPanic(t, "not registered", func() { r.State(ucode("ghost", 1)) })
}

func TestDigest(t *testing.T) {
	r := NewRegistry(rdram.New(4096))
	u := ucode("digest", 1)
	d := r.Register(u, 1)
	want := sha3.Sum256(append(append([]byte{}, u.Code...), u.Data...))
	if d.Digest != want {
		t.Fatalf("Digest = %x, want %x", d.Digest, want)
	}
}

func BenchmarkLookup(b *testing.B) {
	r := NewRegistry(rdram.New(4096))
	r.Register(ucode("bench", 16), 1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Lookup(uint8(0x10 | i&0xf))
	}
}
