package jit

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dshills/rubolt/internal/jit/codecache"
)

// ErrTierDemotion is returned by Install when the requested tier is
// lower than the function's current tier.
var ErrTierDemotion = errors.New("tier demotion is not allowed")

// ErrInvalidTier is returned by Install when the requested tier is
// TierNone; installed code always has a real tier.
var ErrInvalidTier = errors.New("cannot install code at tier none")

// DefaultHotThreshold is the call count at which a function becomes
// eligible for promotion out of tier None.
const DefaultHotThreshold = 1000

// PromotionRequest signals that a function is eligible to move to a
// higher tier. Fulfillment is the caller's responsibility: generate
// code for the named function at the given tier and Install it.
type PromotionRequest struct {
	Name string
	Tier Tier
}

// FunctionInfo is a read-only view of one function's compilation state.
type FunctionInfo struct {
	Name        string
	Tier        Tier
	CallCount   uint64
	Valid       bool
	CompileTime time.Duration

	// Handle is the function's native code region, nil iff Tier is
	// TierNone. Retained across Invalidate so statistics stay
	// inspectable.
	Handle *codecache.Handle
}

// Stats aggregates manager-wide compilation statistics.
type Stats struct {
	TotalFunctions   int
	BaselineCount    int
	OptimizedCount   int
	TotalCompiled    uint64
	TotalCompileTime time.Duration
	CacheCapacity    int
	CacheUsed        int
}

// Config holds the manager's tunables.
type Config struct {
	// Enabled gates promotion. Disabling stops new requests without
	// forgetting already-compiled functions.
	Enabled bool

	// HotThreshold is the call count that triggers promotion.
	HotThreshold uint64

	// DefaultTier is the tier requested on first promotion.
	DefaultTier Tier

	// CacheCapacity is the code cache byte budget.
	CacheCapacity int
}

// DefaultConfig returns the manager defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		HotThreshold:  DefaultHotThreshold,
		DefaultTier:   TierBaseline,
		CacheCapacity: codecache.DefaultCapacity,
	}
}

type function struct {
	name        string
	tier        Tier
	callCount   uint64
	valid       bool
	requested   bool
	compileTime time.Duration
	handle      *codecache.Handle
}

// Manager owns the function-tier registry and the code cache.
// A single mutex guards both; see the package documentation for the
// threading contract.
type Manager struct {
	mu sync.Mutex

	funcs        map[string]*function
	cache        *codecache.Cache
	enabled      bool
	hotThreshold uint64
	defaultTier  Tier

	totalCompiled    uint64
	totalCompileTime time.Duration
	closed           bool
}

// NewManager creates a manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.HotThreshold == 0 {
		cfg.HotThreshold = DefaultHotThreshold
	}
	if cfg.DefaultTier == TierNone {
		cfg.DefaultTier = TierBaseline
	}
	return &Manager{
		funcs:        make(map[string]*function),
		cache:        codecache.New(cfg.CacheCapacity),
		enabled:      cfg.Enabled,
		hotThreshold: cfg.HotThreshold,
		defaultTier:  cfg.DefaultTier,
	}
}

// RecordCall increments the named function's call count, creating its
// registry entry on first call. If the function is at tier None and its
// call count has reached the hot threshold, a PromotionRequest is
// returned with ok true, exactly once per function.
func (m *Manager) RecordCall(name string) (PromotionRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return PromotionRequest{}, false
	}

	fn := m.funcs[name]
	if fn == nil {
		fn = &function{name: name}
		m.funcs[name] = fn
	}
	fn.callCount++

	if m.enabled && fn.tier == TierNone && !fn.requested && fn.callCount >= m.hotThreshold {
		fn.requested = true
		return PromotionRequest{Name: name, Tier: m.defaultTier}, true
	}
	return PromotionRequest{}, false
}

// ShouldCompile reports whether a function with the given call count is
// eligible for compilation. Pure: no state is mutated. A function
// already holding a tier is never eligible.
func (m *Manager) ShouldCompile(name string, callCount uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled || m.closed || callCount < m.hotThreshold {
		return false
	}
	if fn := m.funcs[name]; fn != nil && fn.tier != TierNone {
		return false
	}
	return true
}

// Install records generated native code for a function: the code is
// copied into a fresh executable region, the function moves to the
// given tier and becomes valid. A previously installed handle is
// released only after the new allocation succeeds, so an allocation
// failure leaves the function exactly as it was (fail-closed) and no
// handle ever leaks.
func (m *Manager) Install(name string, tier Tier, code []byte, compileTime time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return codecache.ErrCacheClosed
	}
	if tier == TierNone {
		return fmt.Errorf("install %s: %w", name, ErrInvalidTier)
	}

	fn := m.funcs[name]
	if fn == nil {
		fn = &function{name: name}
		m.funcs[name] = fn
	}
	if tier < fn.tier {
		return fmt.Errorf("install %s at %s (currently %s): %w", name, tier, fn.tier, ErrTierDemotion)
	}

	h, err := m.cache.Allocate(len(code))
	if err != nil {
		return fmt.Errorf("install %s: %w", name, err)
	}
	h.Write(code)

	if fn.handle != nil {
		// Old code cannot be executing here: install replaces only
		// code the execution thread reaches through this registry.
		if rerr := m.cache.Release(fn.handle); rerr != nil {
			_ = m.cache.Release(h)
			return fmt.Errorf("install %s: release previous handle: %w", name, rerr)
		}
	}

	fn.handle = h
	fn.tier = tier
	fn.valid = true
	fn.compileTime = compileTime
	m.totalCompiled++
	m.totalCompileTime += compileTime
	return nil
}

// Recompile authorizes a function's transition to a new tier and marks
// it valid again; the actual re-codegen and Install are the caller's
// responsibility. Returns false for unknown functions and for functions
// with no installed code. A lower tier never demotes: the current tier
// is kept and the call still revalidates, so Recompile is idempotent.
func (m *Manager) Recompile(name string, newTier Tier) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn := m.funcs[name]
	if fn == nil || fn.handle == nil {
		return false
	}
	if newTier > fn.tier {
		fn.tier = newTier
	}
	fn.valid = true
	return true
}

// Invalidate marks a function's native code unsafe to execute. The
// handle is retained so Get still reports it; dispatch must check
// Valid and fall back to the interpreted path. Unknown names are a
// no-op.
func (m *Manager) Invalidate(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fn := m.funcs[name]; fn != nil {
		fn.valid = false
	}
}

// Get returns a view of the named function's state.
func (m *Manager) Get(name string) (FunctionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn := m.funcs[name]
	if fn == nil {
		return FunctionInfo{}, false
	}
	return FunctionInfo{
		Name:        fn.name,
		Tier:        fn.tier,
		CallCount:   fn.callCount,
		Valid:       fn.valid,
		CompileTime: fn.compileTime,
		Handle:      fn.handle,
	}, true
}

// SetEnabled toggles promotion. Disabling makes RecordCall and
// ShouldCompile return no-request/false without forgetting compiled
// functions; already-installed code keeps running.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
}

// Enabled reports whether promotion is active.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// HotThreshold returns the current promotion threshold.
func (m *Manager) HotThreshold() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hotThreshold
}

// SetHotThreshold updates the promotion threshold, e.g. on config
// reload. A zero threshold is ignored.
func (m *Manager) SetHotThreshold(threshold uint64) {
	if threshold == 0 {
		return
	}
	m.mu.Lock()
	m.hotThreshold = threshold
	m.mu.Unlock()
}

// Stats returns aggregate compilation statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		TotalFunctions:   len(m.funcs),
		TotalCompiled:    m.totalCompiled,
		TotalCompileTime: m.totalCompileTime,
		CacheCapacity:    m.cache.Capacity(),
		CacheUsed:        m.cache.UsedBytes(),
	}
	for _, fn := range m.funcs {
		switch fn.tier {
		case TierBaseline:
			s.BaselineCount++
		case TierOptimized:
			s.OptimizedCount++
		}
	}
	return s
}

// FormatStats renders the statistics and per-function state for the
// console front-end.
func (m *Manager) FormatStats() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "JIT statistics:\n")
	fmt.Fprintf(&b, "  functions:     %d\n", len(m.funcs))
	fmt.Fprintf(&b, "  compilations:  %d (%.2f ms total)\n",
		m.totalCompiled, float64(m.totalCompileTime.Microseconds())/1000)
	fmt.Fprintf(&b, "  code cache:    %d/%d bytes\n", m.cache.UsedBytes(), m.cache.Capacity())

	names := make([]string, 0, len(m.funcs))
	for name := range m.funcs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fn := m.funcs[name]
		size := 0
		if fn.handle != nil {
			size = fn.handle.Size()
		}
		valid := ""
		if fn.handle != nil && !fn.valid {
			valid = " INVALID"
		}
		fmt.Fprintf(&b, "  %s: tier=%s calls=%d size=%d%s\n", name, fn.tier, fn.callCount, size, valid)
	}
	return b.String()
}

// Shutdown releases every function's native handle and clears the
// registry. Accessors afterward return empty results, not errors.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.funcs = make(map[string]*function)
	_ = m.cache.Close()
}
