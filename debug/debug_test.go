package debug

import (
	"errors"
	"strings"
	"testing"

	"rspq/constants"
)

func TestDropMessageRecorded(t *testing.T) {
	SetQuiet(true)
	defer SetQuiet(false)

	DropMessage("INIT", "engine ready")
	DropError("CLOSE", errors.New("consumer timeout"))
	DropError("TAG", nil)

	got := Recent()
	for _, want := range []string{"INIT: engine ready\n", "CLOSE: consumer timeout\n", "TAG\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("Recent() missing %q in %q", want, got)
		}
	}
}

func TestRecentIsRepeatable(t *testing.T) {
	SetQuiet(true)
	defer SetQuiet(false)

	DropMessage("REPEAT", "twice")
	a := Recent()
	b := Recent()
	if a != b {
		t.Fatalf("Recent() consumed the tail: %q then %q", a, b)
	}
}

func TestTailDropsOldest(t *testing.T) {
	SetQuiet(true)
	defer SetQuiet(false)

	DropMessage("FIRST", "marker")
	filler := strings.Repeat("x", 1024)
	for i := 0; i < 2*constants.RecentLogBytes/len(filler); i++ {
		DropMessage("FILL", filler)
	}
	DropMessage("LAST", "marker")

	got := Recent()
	if strings.Contains(got, "FIRST: marker") {
		t.Error("oldest message should have been discarded")
	}
	if !strings.HasSuffix(got, "LAST: marker\n") {
		t.Error("newest message should be retained at the end")
	}
	if len(got) > constants.RecentLogBytes {
		t.Errorf("tail grew past capacity: %d bytes", len(got))
	}
}

func TestAssert(t *testing.T) {
	Assert(true, "never fires")

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Assert(false) did not panic")
		}
		if msg, _ := r.(string); msg != "rspq: broken contract" {
			t.Fatalf("unexpected panic value %v", r)
		}
	}()
	Assert(false, "broken contract")
}

func TestFail(t *testing.T) {
	defer func() {
		if msg, _ := recover().(string); msg != "rspq: unconditional" {
			t.Fatalf("unexpected panic value %q", msg)
		}
	}()
	Fail("unconditional")
}
