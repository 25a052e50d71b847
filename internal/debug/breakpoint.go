package debug

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Kind is the breakpoint type.
type Kind int

const (
	// KindLine breaks when a specific line is about to execute.
	KindLine Kind = iota
	// KindFunction breaks at the first line of a named function.
	KindFunction
	// KindConditional is a line breakpoint with a condition expression.
	KindConditional
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindFunction:
		return "function"
	case KindConditional:
		return "conditional"
	default:
		return "unknown"
	}
}

// Breakpoint is a user-defined breakpoint. An empty File matches any
// file. HitCount increments every time the location matches, including
// conditional breakpoints whose condition turns out false.
type Breakpoint struct {
	ID           int    `json:"id"`
	Kind         Kind   `json:"kind"`
	File         string `json:"file,omitempty"`
	Line         int    `json:"line,omitempty"`
	FunctionName string `json:"functionName,omitempty"`
	Condition    string `json:"condition,omitempty"`
	Enabled      bool   `json:"enabled"`
	HitCount     int    `json:"hitCount"`
}

// Location returns a human-readable location for listings.
func (b Breakpoint) Location() string {
	switch b.Kind {
	case KindFunction:
		return "fn " + b.FunctionName
	case KindConditional:
		file := b.File
		if file == "" {
			file = "<any>"
		}
		return fmt.Sprintf("%s:%d if %s", file, b.Line, b.Condition)
	default:
		file := b.File
		if file == "" {
			file = "<any>"
		}
		return fmt.Sprintf("%s:%d", file, b.Line)
	}
}

// Registry owns the set of breakpoints. IDs are assigned from a
// registry-wide counter starting at 1 and are never reused, even after
// removal. All lookups return copies; the registry keeps sole ownership
// of its entries.
type Registry struct {
	mu          sync.RWMutex
	breakpoints map[int]*Breakpoint
	nextID      int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		breakpoints: make(map[int]*Breakpoint),
		nextID:      1,
	}
}

func (r *Registry) insert(bp *Breakpoint) int {
	bp.ID = r.nextID
	r.nextID++
	bp.Enabled = true
	r.breakpoints[bp.ID] = bp
	return bp.ID
}

// AddLine adds a line breakpoint. An empty file matches any file.
func (r *Registry) AddLine(file string, line int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(&Breakpoint{Kind: KindLine, File: file, Line: line})
}

// AddFunction adds a breakpoint on entry to the named function.
func (r *Registry) AddFunction(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(&Breakpoint{Kind: KindFunction, FunctionName: name})
}

// AddConditional adds a conditional line breakpoint. The condition is
// stored verbatim; see the package documentation for when it is
// evaluated.
func (r *Registry) AddConditional(file string, line int, condition string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(&Breakpoint{Kind: KindConditional, File: file, Line: line, Condition: condition})
}

// Remove deletes a breakpoint. Returns false if the id is unknown;
// removing twice is not an error.
func (r *Registry) Remove(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.breakpoints[id]; !ok {
		return false
	}
	delete(r.breakpoints, id)
	return true
}

// Enable enables a breakpoint. Unknown ids are a no-op.
func (r *Registry) Enable(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bp, ok := r.breakpoints[id]; ok {
		bp.Enabled = true
	}
}

// Disable disables a breakpoint. Unknown ids are a no-op.
func (r *Registry) Disable(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bp, ok := r.breakpoints[id]; ok {
		bp.Enabled = false
	}
}

// Get returns a copy of the breakpoint with the given id.
func (r *Registry) Get(id int) (Breakpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bp, ok := r.breakpoints[id]
	if !ok {
		return Breakpoint{}, false
	}
	return *bp, true
}

// List returns a snapshot of all breakpoints ordered by id.
func (r *Registry) List() []Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Breakpoint, 0, len(r.breakpoints))
	for _, bp := range r.breakpoints {
		result = append(result, *bp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Count returns the number of registered breakpoints.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.breakpoints)
}

// Matches returns copies of the enabled line and conditional
// breakpoints matching the location. Matching increments each match's
// hit count as a side effect, whether or not the session subsequently
// pauses there.
func (r *Registry) Matches(file string, line int) []Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Breakpoint
	for _, bp := range r.breakpoints {
		if !bp.Enabled {
			continue
		}
		if bp.Kind != KindLine && bp.Kind != KindConditional {
			continue
		}
		if bp.Line != line {
			continue
		}
		if bp.File != "" && bp.File != file {
			continue
		}
		bp.HitCount++
		result = append(result, *bp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// MatchFunction returns the ids of enabled function breakpoints on the
// named function. Hit counts are not incremented here; the session
// records the hit when the break actually fires at the next line hook.
func (r *Registry) MatchFunction(name string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []int
	for _, bp := range r.breakpoints {
		if bp.Enabled && bp.Kind == KindFunction && bp.FunctionName == name {
			ids = append(ids, bp.ID)
		}
	}
	sort.Ints(ids)
	return ids
}

// RecordHit increments a breakpoint's hit count. Unknown ids are a
// no-op.
func (r *Registry) RecordHit(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bp, ok := r.breakpoints[id]; ok {
		bp.HitCount++
	}
}

// Clear removes all breakpoints. The id counter is not reset.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakpoints = make(map[int]*Breakpoint)
}

// Format renders the breakpoint list for the console front-end.
func (r *Registry) Format() string {
	var b strings.Builder
	b.WriteString("Breakpoints:\n")
	for _, bp := range r.List() {
		state := "enabled"
		if !bp.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&b, "  #%d %s %s (hits=%d)\n", bp.ID, state, bp.Location(), bp.HitCount)
	}
	return b.String()
}

// persistedBreakpoints is the on-disk format for Save and Load.
type persistedBreakpoints struct {
	Version     int          `json:"version"`
	NextID      int          `json:"nextId"`
	Breakpoints []Breakpoint `json:"breakpoints"`
}

// Save writes the breakpoints to a JSON file, creating parent
// directories as needed.
func (r *Registry) Save(path string) error {
	r.mu.RLock()
	data := persistedBreakpoints{
		Version:     1,
		NextID:      r.nextID,
		Breakpoints: make([]Breakpoint, 0, len(r.breakpoints)),
	}
	for _, bp := range r.breakpoints {
		data.Breakpoints = append(data.Breakpoints, *bp)
	}
	r.mu.RUnlock()

	sort.Slice(data.Breakpoints, func(i, j int) bool {
		return data.Breakpoints[i].ID < data.Breakpoints[j].ID
	})

	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal breakpoints: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write breakpoints: %w", err)
	}
	return nil
}

// Load replaces the registry contents with a previously saved file.
// A missing file is not an error. The id counter resumes past the
// highest persisted id and never below its current value, so ids are
// still never reused.
func (r *Registry) Load(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read breakpoints: %w", err)
	}

	var data persistedBreakpoints
	if err := json.Unmarshal(content, &data); err != nil {
		return fmt.Errorf("unmarshal breakpoints: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.breakpoints = make(map[int]*Breakpoint, len(data.Breakpoints))
	maxID := 0
	for i := range data.Breakpoints {
		bp := data.Breakpoints[i]
		r.breakpoints[bp.ID] = &bp
		if bp.ID > maxID {
			maxID = bp.ID
		}
	}
	// The counter never moves backward: ids handed out before the load
	// stay retired even when the file knows nothing about them.
	if maxID+1 > r.nextID {
		r.nextID = maxID + 1
	}
	if data.NextID > r.nextID {
		r.nextID = data.NextID
	}
	return nil
}
