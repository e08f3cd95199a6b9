// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: config.go — Runtime configuration
//
// Purpose:
//   - Loads engine and trace settings from a JSON file.
//   - Missing fields keep the compiled-in defaults from package constants.
//
// Notes:
//   - Durations are written in microseconds/milliseconds as plain integers so
//     the file stays readable without a duration parser.
//   - Core -1 leaves the consumer thread unpinned.
//   - spin_budget 0 parks the idle consumer at once; hot_cooldown_us 0
//     turns the post-flush hot window off.
// ─────────────────────────────────────────────────────────────────────────────

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"rspq/constants"
	"rspq/queue"

	"github.com/sugawarayuuta/sonnet"
)

// Config is the file format.
type Config struct {
	LowpriWords   int `json:"lowpri_words"`
	HighpriWords  int `json:"highpri_words"`
	ArenaBytes    int `json:"arena_bytes"`
	BlockMinWords int `json:"block_min_words"`
	BlockMaxWords int `json:"block_max_words"`

	Core          int `json:"core"`
	SpinBudget    int `json:"spin_budget"`
	HotCooldownUs int `json:"hot_cooldown_us"`
	StopTimeoutMs int `json:"stop_timeout_ms"`

	TracePath     string `json:"trace_path"` // empty disables tracing
	TraceRingSize int    `json:"trace_ring_size"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LowpriWords:   constants.LowpriBufferWords,
		HighpriWords:  constants.HighpriBufferWords,
		ArenaBytes:    constants.ArenaBytes,
		BlockMinWords: constants.BlockMinWords,
		BlockMaxWords: constants.BlockMaxWords,
		Core:          constants.NoCore,
		SpinBudget:    constants.SpinBudget,
		HotCooldownUs: constants.HotCooldownNs / 1000,
		StopTimeoutMs: constants.StopTimeoutMs,
		TraceRingSize: constants.TraceRingSize,
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	if err := sonnet.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Save writes c to path as JSON.
func (c Config) Save(path string) error {
	data, err := sonnet.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Validate checks the trace settings and the engine settings.
func (c Config) Validate() error {
	if c.Core < constants.NoCore {
		return fmt.Errorf("core %d: use -1 for unpinned", c.Core)
	}
	if c.SpinBudget < 0 || c.HotCooldownUs < 0 || c.StopTimeoutMs <= 0 {
		return errors.New("spin_budget and hot_cooldown_us must be >= 0, stop_timeout_ms > 0")
	}
	if n := c.TraceRingSize; n <= 0 || n&(n-1) != 0 {
		return fmt.Errorf("trace_ring_size %d is not a power of two", n)
	}
	return c.Engine().Validate()
}

// Engine converts c to an engine configuration. Fault handling and tracing
// are wired by the caller.
func (c Config) Engine() queue.Config {
	ec := queue.Config{
		LowpriWords:   c.LowpriWords,
		HighpriWords:  c.HighpriWords,
		ArenaBytes:    c.ArenaBytes,
		BlockMinWords: c.BlockMinWords,
		BlockMaxWords: c.BlockMaxWords,
		SpinBudget:    c.SpinBudget,
		HotCooldown:   time.Duration(c.HotCooldownUs) * time.Microsecond,
		StopTimeout:   time.Duration(c.StopTimeoutMs) * time.Millisecond,
	}
	// The engine reads zero as "use the default"; here zero means off.
	if c.SpinBudget == 0 {
		ec.SpinBudget = -1
	}
	if c.HotCooldownUs == 0 {
		ec.HotCooldown = -1
	}
	if c.Core >= 0 {
		ec.Pin = true
		ec.Core = c.Core
	}
	return ec
}
