// Package codecache manages the pool of executable memory regions that
// hold compiled function bodies.
//
// Regions are mapped with mmap (PROT_READ|PROT_WRITE|PROT_EXEC) and
// accounted against a fixed byte budget. Allocation failure is an
// ordinary error the caller recovers from by staying in the uncompiled
// tier; releasing a handle twice is a caller bug and fails loudly.
package codecache

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrCacheFull is returned when an allocation would exceed the cache's
// byte budget.
var ErrCacheFull = errors.New("code cache capacity exhausted")

// ErrDoubleRelease is returned when a handle is released more than once.
var ErrDoubleRelease = errors.New("code handle already released")

// ErrCacheClosed is returned when allocating from a closed cache.
var ErrCacheClosed = errors.New("code cache is closed")

// Handle is one executable memory region. Each compiled function owns
// exactly one handle; handles are never shared.
type Handle struct {
	mem      []byte
	size     int
	released bool
}

// Size returns the requested size of the region in bytes.
func (h *Handle) Size() int {
	return h.size
}

// Write copies code into the region and returns the number of bytes
// copied. Bytes beyond the region size are dropped.
func (h *Handle) Write(code []byte) int {
	if h.released {
		return 0
	}
	return copy(h.mem[:h.size], code)
}

// Bytes returns a read-only view of the region contents.
// The view is invalidated when the handle is released.
func (h *Handle) Bytes() []byte {
	if h.released {
		return nil
	}
	return h.mem[:h.size]
}

// Cache is a capacity-bounded pool of executable memory regions.
// A single mutex guards all state; allocations are rare relative to
// execution so contention is not a concern.
type Cache struct {
	mu       sync.Mutex
	capacity int
	used     int
	live     map[*Handle]struct{}
	closed   bool
}

// New creates a cache with the given capacity in bytes.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		live:     make(map[*Handle]struct{}),
	}
}

// DefaultCapacity is the code cache budget used when none is configured.
const DefaultCapacity = 16 << 20 // 16 MiB

// Allocate reserves an executable-mapped region of at least size bytes.
// The mapping is page-rounded and the rounded size counts against the
// budget. Returns ErrCacheFull when the budget is exhausted, or a
// wrapped mmap error if the platform cannot map executable memory.
func (c *Cache) Allocate(size int) (*Handle, error) {
	if size <= 0 {
		return nil, fmt.Errorf("allocate %d bytes: size must be positive", size)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCacheClosed
	}

	mapped := pageRound(size)
	if c.used+mapped > c.capacity {
		return nil, fmt.Errorf("allocate %d bytes (%d used of %d): %w", mapped, c.used, c.capacity, ErrCacheFull)
	}

	mem, err := unix.Mmap(-1, 0, mapped,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("map executable memory: %w", err)
	}

	h := &Handle{mem: mem, size: size}
	c.live[h] = struct{}{}
	c.used += mapped
	return h, nil
}

// Release unmaps a region. Calling Release twice on the same handle
// returns ErrDoubleRelease; the second call does not touch the mapping.
func (c *Cache) Release(h *Handle) error {
	if h == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseLocked(h)
}

func (c *Cache) releaseLocked(h *Handle) error {
	if h.released {
		return ErrDoubleRelease
	}

	mem := h.mem
	h.released = true
	h.mem = nil
	delete(c.live, h)
	c.used -= pageRound(h.size)

	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("unmap code region: %w", err)
	}
	return nil
}

// UsedBytes returns the page-rounded bytes currently allocated.
func (c *Cache) UsedBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Capacity returns the cache's byte budget.
func (c *Cache) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// LiveCount returns the number of live allocations.
func (c *Cache) LiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// Close releases every live allocation and marks the cache closed.
// Further Allocate calls return ErrCacheClosed. Close is idempotent.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	for h := range c.live {
		if err := c.releaseLocked(h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func pageRound(size int) int {
	page := os.Getpagesize()
	return (size + page - 1) / page * page
}
