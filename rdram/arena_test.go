package rdram

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAllocAlignedNonNullZeroed(t *testing.T) {
	a := New(4096)
	p := a.Alloc(13)
	if p == 0 {
		t.Fatal("Alloc returned the null address")
	}
	if p%8 != 0 {
		t.Fatalf("Alloc returned misaligned address %#x", p)
	}
	if got := a.SizeOf(p); got != 16 {
		t.Fatalf("SizeOf = %d, want 16 (rounded)", got)
	}
	for i := 0; i < 4; i++ {
		a.Store32(p+Addr(i*4), 0xffffffff)
	}
	a.Free(p)

	q := a.Alloc(16)
	if q != p {
		t.Fatalf("first-fit should reuse %#x, got %#x", p, q)
	}
	for i := 0; i < 4; i++ {
		if v := a.Load32(q + Addr(i*4)); v != 0 {
			t.Fatalf("word %d not zeroed after realloc: %#x", i, v)
		}
	}
}

func TestFreeCoalesces(t *testing.T) {
	a := New(1024)
	x := a.Alloc(256)
	y := a.Alloc(256)
	z := a.Alloc(256)
	a.Free(x)
	a.Free(z)
	a.Free(y)
	if a.Used() != 0 {
		t.Fatalf("Used = %d after freeing everything", a.Used())
	}
	if diff := cmp.Diff([]span{{addr: 8, size: 1016}}, a.free, cmp.AllowUnexported(span{})); diff != "" {
		t.Fatalf("free list not coalesced (-want +got):\n%s", diff)
	}
	// The whole arena is again available as one region.
	if _, ok := a.TryAlloc(1016); !ok {
		t.Fatal("coalesced arena could not satisfy a full-size allocation")
	}
}

func TestExhaustion(t *testing.T) {
	a := New(64)
	if _, ok := a.TryAlloc(64); ok {
		t.Fatal("allocation larger than the usable arena succeeded")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("Alloc on exhausted arena did not panic")
		}
	}()
	a.Alloc(1 << 20)
}

func TestFreeUnknownPanics(t *testing.T) {
	a := New(256)
	defer func() {
		if recover() == nil {
			t.Fatal("Free of an unallocated address did not panic")
		}
	}()
	a.Free(64)
}

func TestBytesBigEndian(t *testing.T) {
	a := New(256)
	p := a.Alloc(8)
	a.WriteBytes(p, []byte{0x01, 0x02, 0x03, 0x04, 0xaa, 0xbb, 0xcc, 0xdd})
	if got := a.Load32(p); got != 0x01020304 {
		t.Fatalf("word 0 = %#x, want 0x01020304", got)
	}
	if got := a.Load32(p + 4); got != 0xaabbccdd {
		t.Fatalf("word 1 = %#x, want 0xaabbccdd", got)
	}
	out := make([]byte, 8)
	a.ReadBytes(p, out)
	if diff := cmp.Diff([]byte{0x01, 0x02, 0x03, 0x04, 0xaa, 0xbb, 0xcc, 0xdd}, out); diff != "" {
		t.Fatalf("ReadBytes mismatch (-want +got):\n%s", diff)
	}
}

func TestContains(t *testing.T) {
	a := New(128)
	if !a.Contains(0, 128) || a.Contains(120, 16) || a.Contains(0, -1) {
		t.Fatal("Contains bounds wrong")
	}
}

func TestConcurrentWordPublication(t *testing.T) {
	a := New(4096)
	p := a.Alloc(4)
	const n = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		last := uint32(0)
		for last < n {
			v := a.Load32(p)
			if v < last {
				t.Errorf("observed word going backwards: %d after %d", v, last)
				return
			}
			last = v
		}
	}()
	for i := uint32(1); i <= n; i++ {
		a.Store32(p, i)
	}
	wg.Wait()
}

func BenchmarkLoad32(b *testing.B) {
	a := New(4096)
	p := a.Alloc(4)
	var sink uint32
	for i := 0; i < b.N; i++ {
		sink += a.Load32(p)
	}
	_ = sink
}
