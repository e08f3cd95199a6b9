package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rspq/constants"
	"rspq/queue"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "rspq.json")
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	p := writeFile(t, `{"lowpri_words": 256, "core": 2, "trace_path": "/tmp/t.db", "hot_cooldown_us": 10}`)
	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	want.LowpriWords = 256
	want.Core = 2
	want.TracePath = "/tmp/t.db"
	want.HotCooldownUs = 10
	if diff := cmp.Diff(want, c); diff != "" {
		t.Fatalf("loaded config (-want +got):\n%s", diff)
	}

	ec := c.Engine()
	if !ec.Pin || ec.Core != 2 || ec.HotCooldown != 10*time.Microsecond || ec.LowpriWords != 256 {
		t.Fatalf("engine config %+v", ec)
	}
}

func TestEngineUnpinnedByDefault(t *testing.T) {
	ec := Default().Engine()
	want := queue.DefaultConfig()
	if diff := cmp.Diff(want, ec, cmpQueueConfig); diff != "" {
		t.Fatalf("Default().Engine() differs from queue defaults (-want +got):\n%s", diff)
	}
	if ec.Pin {
		t.Fatal("default config pins the consumer")
	}
}

func TestZeroTunablesDisable(t *testing.T) {
	c, err := Load(writeFile(t, `{"spin_budget": 0, "hot_cooldown_us": 0}`))
	if err != nil {
		t.Fatal(err)
	}
	ec := c.Engine()
	if ec.SpinBudget >= 0 || ec.HotCooldown >= 0 {
		t.Fatalf("zero tunables reached the engine as spin %d, cooldown %v", ec.SpinBudget, ec.HotCooldown)
	}
	e, err := queue.New(ec)
	if err != nil {
		t.Fatalf("New with disabled tunables: %v", err)
	}
	e.Noop()
	e.Sync()
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
}

// cmpQueueConfig ignores the function-valued hooks, which the caller wires.
var cmpQueueConfig = cmp.FilterPath(func(p cmp.Path) bool {
	s := p.String()
	return s == "OnFault" || s == "Tracer"
}, cmp.Ignore())

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"Syntax", `{"lowpri_words": `, "parse"},
		{"TinyBuffer", `{"lowpri_words": 4}`, "lowpri"},
		{"Core", `{"core": -7}`, "unpinned"},
		{"TraceRing", `{"trace_ring_size": 1000}`, "power of two"},
		{"StopTimeout", `{"stop_timeout_ms": 0}`, "stop_timeout_ms"},
		{"SpinBudget", `{"spin_budget": -1}`, "spin_budget"},
		{"HotCooldown", `{"hot_cooldown_us": -5}`, "hot_cooldown_us"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("Load of a missing file succeeded")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := Default()
	c.ArenaBytes = 8 << 20
	c.TraceRingSize = constants.TraceRingSize * 2
	p := filepath.Join(t.TempDir(), "out.json")
	if err := c.Save(p); err != nil {
		t.Fatal(err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c, got); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}
