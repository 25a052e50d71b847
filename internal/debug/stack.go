package debug

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyStack is returned by Pop when there is no frame to remove.
// A mismatched pop means the evaluator's enter/exit hooks are
// unbalanced; surfacing it keeps depth-based stepping honest.
var ErrEmptyStack = errors.New("call stack is empty")

// LocalsStore is the debugger's view of a frame's local variables.
// Storage belongs to the evaluator; the frame holds only this
// back-reference.
type LocalsStore interface {
	// Get returns a variable's value, or false if it is not defined.
	Get(name string) (any, bool)

	// Set assigns a variable. Returns false if the store rejects the
	// name.
	Set(name string, value any) bool

	// Names lists the defined variable names.
	Names() []string
}

// Frame is one live call on the shadow stack. Line tracks the current
// line within the frame and is updated by the line hook while the
// frame is on top.
type Frame struct {
	Function string
	File     string
	Line     int
	Locals   LocalsStore
}

// FormatLocation returns "function (file:line)".
func (f *Frame) FormatLocation() string {
	file := f.File
	if file == "" {
		file = "<unknown>"
	}
	return fmt.Sprintf("%s (%s:%d)", f.Function, file, f.Line)
}

// CallStack mirrors the evaluator's call stack for depth-based
// stepping decisions. Frames live in a slice, top last; there is no
// arbitrary removal, only LIFO push and pop. The stack is owned by the
// execution thread and carries no lock.
type CallStack struct {
	frames []*Frame
}

// NewCallStack creates an empty stack.
func NewCallStack() *CallStack {
	return &CallStack{}
}

// Push adds a new top frame.
func (s *CallStack) Push(function, file string, line int, locals LocalsStore) {
	s.frames = append(s.frames, &Frame{
		Function: function,
		File:     file,
		Line:     line,
		Locals:   locals,
	})
}

// Pop removes the top frame. Returns ErrEmptyStack if there is none;
// the stack is left unchanged in that case.
func (s *CallStack) Pop() error {
	if len(s.frames) == 0 {
		return ErrEmptyStack
	}
	s.frames[len(s.frames)-1] = nil
	s.frames = s.frames[:len(s.frames)-1]
	return nil
}

// Current returns the top frame, or nil if the stack is empty. The
// reference is invalidated by the next Pop.
func (s *CallStack) Current() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Depth returns the number of live frames.
func (s *CallStack) Depth() int {
	return len(s.frames)
}

// Frames returns a snapshot ordered most recent first.
func (s *CallStack) Frames() []*Frame {
	result := make([]*Frame, len(s.frames))
	for i, f := range s.frames {
		result[len(s.frames)-1-i] = f
	}
	return result
}

// Unwind pops every frame.
func (s *CallStack) Unwind() {
	for i := range s.frames {
		s.frames[i] = nil
	}
	s.frames = s.frames[:0]
}

// Format renders the stack most recent first, marking the top frame.
func (s *CallStack) Format() string {
	var b strings.Builder
	b.WriteString("Call stack (most recent first):\n")
	for i, f := range s.Frames() {
		marker := "  "
		if i == 0 {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s#%d %s\n", marker, i, f.FormatLocation())
	}
	return b.String()
}
