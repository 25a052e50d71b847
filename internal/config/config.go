// Package config provides TOML configuration for the runtime's debug
// and JIT subsystems, with defaults, validation, and live reload of
// tunables.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/rubolt/internal/jit"
	"github.com/dshills/rubolt/internal/jit/codecache"
)

// Config is the root configuration.
type Config struct {
	Debug DebugConfig `toml:"debug"`
	JIT   JITConfig   `toml:"jit"`
}

// DebugConfig configures the debugger.
type DebugConfig struct {
	// Enabled turns the debug hooks on.
	Enabled bool `toml:"enabled"`

	// BreakpointFile is where breakpoints persist between sessions.
	// Empty disables persistence.
	BreakpointFile string `toml:"breakpoint_file"`
}

// JITConfig configures the tier manager.
type JITConfig struct {
	// Enabled gates promotion out of tier None.
	Enabled bool `toml:"enabled"`

	// HotThreshold is the call count that triggers promotion.
	HotThreshold uint64 `toml:"hot_threshold"`

	// DefaultTier is the tier requested on first promotion:
	// "baseline" or "optimized".
	DefaultTier string `toml:"default_tier"`

	// CacheCapacity is the code cache byte budget.
	CacheCapacity int `toml:"cache_capacity"`

	// QueueSize bounds the compile worker's request queue.
	QueueSize int `toml:"queue_size"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Debug: DebugConfig{
			Enabled: true,
		},
		JIT: JITConfig{
			Enabled:       true,
			HotThreshold:  jit.DefaultHotThreshold,
			DefaultTier:   "baseline",
			CacheCapacity: codecache.DefaultCapacity,
			QueueSize:     16,
		},
	}
}

// Load reads configuration from a TOML file, layered over the
// defaults. A missing file yields the defaults and no error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return DefaultConfig(), fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.JIT.HotThreshold == 0 {
		return fmt.Errorf("jit.hot_threshold must be positive")
	}
	if c.JIT.CacheCapacity <= 0 {
		return fmt.Errorf("jit.cache_capacity must be positive")
	}
	if c.JIT.QueueSize <= 0 {
		return fmt.Errorf("jit.queue_size must be positive")
	}
	tier, err := jit.ParseTier(c.JIT.DefaultTier)
	if err != nil {
		return fmt.Errorf("jit.default_tier: %w", err)
	}
	if tier == jit.TierNone {
		return fmt.Errorf("jit.default_tier must not be %q", tier)
	}
	return nil
}

// ManagerConfig converts the JIT section into the tier manager's
// configuration. Call Validate first; an unparseable tier falls back
// to baseline here.
func (c *Config) ManagerConfig() jit.Config {
	tier, err := jit.ParseTier(c.JIT.DefaultTier)
	if err != nil || tier == jit.TierNone {
		tier = jit.TierBaseline
	}
	return jit.Config{
		Enabled:       c.JIT.Enabled,
		HotThreshold:  c.JIT.HotThreshold,
		DefaultTier:   tier,
		CacheCapacity: c.JIT.CacheCapacity,
	}
}
