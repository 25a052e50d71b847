package debug

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// State is the session run state.
type State int

const (
	// StateRunning means execution proceeds without stopping.
	StateRunning State = iota
	// StatePaused means execution is halted awaiting a command.
	StatePaused
	// StateStepping means a stepping directive is active.
	StateStepping
	// StateStopped is terminal, reached only via Shutdown.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStepping:
		return "stepping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StepMode is the active stepping directive, orthogonal to State.
type StepMode int

const (
	// StepNone means no stepping directive is set.
	StepNone StepMode = iota
	// StepInto pauses at the next line regardless of depth.
	StepInto
	// StepOver pauses at the next line at or above the issuing depth.
	StepOver
	// StepOut pauses at the next line shallower than the issuing depth.
	StepOut
)

// String returns the directive name.
func (m StepMode) String() string {
	switch m {
	case StepNone:
		return "none"
	case StepInto:
		return "into"
	case StepOver:
		return "over"
	case StepOut:
		return "out"
	default:
		return "unknown"
	}
}

// Pause reasons reported to Handlers.OnPaused.
const (
	ReasonBreakpoint         = "breakpoint"
	ReasonFunctionBreakpoint = "function breakpoint"
	ReasonStep               = "step"
	ReasonPause              = "pause"
)

// Handlers contains callbacks for session events. All callbacks run on
// the execution thread and must not block.
type Handlers struct {
	// OnStateChanged is called when the run state changes.
	OnStateChanged func(old, new State)

	// OnPaused is called when the session pauses, with the reason and
	// the location about to execute.
	OnPaused func(reason, file string, line int)
}

// Session orchestrates run-state transitions, stepping directives, and
// break decisions. It composes the breakpoint registry and the shadow
// call stack; the evaluator drives it through the OnLine,
// OnFunctionEnter, and OnFunctionExit hooks.
type Session struct {
	id       string
	registry *Registry
	stack    *CallStack

	state           State
	stepMode        StepMode
	stepTargetDepth int

	// pauseRequested is the only cross-thread input; see Pause.
	pauseRequested atomic.Bool

	currentFile string
	currentLine int

	// armedFunctionBPs holds function breakpoints matched on the most
	// recent OnFunctionEnter, fired at the next OnLine.
	armedFunctionBPs []int

	watches  []string
	handlers Handlers
	cond     ConditionEvaluator
}

// NewSession creates a session with a fresh registry and call stack.
func NewSession() *Session {
	return &Session{
		id:       uuid.NewString(),
		registry: NewRegistry(),
		stack:    NewCallStack(),
		state:    StateRunning,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Registry returns the session's breakpoint registry.
func (s *Session) Registry() *Registry {
	return s.registry
}

// SetHandlers sets the event callbacks.
func (s *Session) SetHandlers(h Handlers) {
	s.handlers = h
}

// SetConditionEvaluator switches conditional breakpoints from the
// default always-break behavior to real evaluation. Passing nil
// restores the default.
func (s *Session) SetConditionEvaluator(ev ConditionEvaluator) {
	s.cond = ev
}

// State returns the current run state.
func (s *Session) State() State {
	return s.state
}

// StepDirective returns the active stepping directive.
func (s *Session) StepDirective() StepMode {
	return s.stepMode
}

// Location returns the most recent file and line seen by OnLine.
func (s *Session) Location() (string, int) {
	return s.currentFile, s.currentLine
}

// Depth returns the shadow stack depth.
func (s *Session) Depth() int {
	return s.stack.Depth()
}

// CurrentFrame returns the top shadow frame, or nil.
func (s *Session) CurrentFrame() *Frame {
	return s.stack.Current()
}

// Frames returns a snapshot of the shadow stack, most recent first.
func (s *Session) Frames() []*Frame {
	return s.stack.Frames()
}

func (s *Session) setState(state State) {
	if s.state == state {
		return
	}
	old := s.state
	s.state = state
	if s.handlers.OnStateChanged != nil {
		s.handlers.OnStateChanged(old, state)
	}
}

// Continue resumes execution and clears any stepping directive.
// A no-op unless the session is paused or stepping.
func (s *Session) Continue() {
	if s.state != StatePaused && s.state != StateStepping {
		return
	}
	s.stepMode = StepNone
	s.setState(StateRunning)
}

// StepInto pauses at the next executed line, entering callees.
func (s *Session) StepInto() {
	if s.state == StateStopped {
		return
	}
	s.stepMode = StepInto
	s.setState(StateStepping)
}

// StepOver pauses at the next line at or above the current depth,
// skipping over callee lines.
func (s *Session) StepOver() {
	if s.state == StateStopped {
		return
	}
	s.stepMode = StepOver
	s.stepTargetDepth = s.stack.Depth()
	s.setState(StateStepping)
}

// StepOut pauses at the first line shallower than the current depth,
// i.e. after the current function returns to its caller.
func (s *Session) StepOut() {
	if s.state == StateStopped {
		return
	}
	s.stepMode = StepOut
	s.stepTargetDepth = s.stack.Depth()
	s.setState(StateStepping)
}

// Pause requests an asynchronous pause. Safe to call from any
// goroutine; it takes effect at the next OnLine, since there is no
// safe point to interrupt mid-statement.
func (s *Session) Pause() {
	s.pauseRequested.Store(true)
}

// Shutdown moves the session to its terminal state, releases all
// breakpoints, and unwinds the shadow stack. Accessors afterward
// return empty results, not errors.
func (s *Session) Shutdown() {
	if s.state == StateStopped {
		return
	}
	s.setState(StateStopped)
	s.stepMode = StepNone
	s.registry.Clear()
	s.stack.Unwind()
	s.armedFunctionBPs = nil
	s.watches = nil
}

// OnLine is the line-boundary hook, called once per statement before
// it executes. It returns true when the session paused; the evaluator
// must then hold execution until the state leaves Paused.
func (s *Session) OnLine(file string, line int) bool {
	if s.state == StateStopped {
		return false
	}

	s.currentFile = file
	s.currentLine = line
	if top := s.stack.Current(); top != nil {
		top.Line = line
	}

	reason, brk := s.shouldBreak(file, line)

	// The pause flag is consumed by any break at this line.
	if s.pauseRequested.CompareAndSwap(true, false) && !brk {
		reason, brk = ReasonPause, true
	}

	if !brk {
		return false
	}

	s.setState(StatePaused)
	if s.handlers.OnPaused != nil {
		s.handlers.OnPaused(reason, file, line)
	}
	return true
}

// shouldBreak computes the break decision for a location. Matching
// breakpoints increment their hit counts here even when the session
// does not pause (condition false while an evaluator is installed).
func (s *Session) shouldBreak(file string, line int) (string, bool) {
	for _, bp := range s.registry.Matches(file, line) {
		if bp.Kind == KindConditional && s.cond != nil {
			hold, err := s.cond.Eval(bp.Condition, s.stack.Current())
			if err == nil && !hold {
				continue
			}
			// Evaluation errors break anyway rather than masking the
			// location.
		}
		return ReasonBreakpoint, true
	}

	if len(s.armedFunctionBPs) > 0 {
		for _, id := range s.armedFunctionBPs {
			s.registry.RecordHit(id)
		}
		s.armedFunctionBPs = nil
		return ReasonFunctionBreakpoint, true
	}

	if s.state == StateStepping {
		switch s.stepMode {
		case StepInto:
			return ReasonStep, true
		case StepOver:
			if s.stack.Depth() <= s.stepTargetDepth {
				return ReasonStep, true
			}
		case StepOut:
			if s.stack.Depth() < s.stepTargetDepth {
				return ReasonStep, true
			}
		}
	}

	return "", false
}

// OnFunctionEnter is the call-boundary hook: it pushes a shadow frame
// and arms any function breakpoints on the entered function. It never
// breaks itself; a function breakpoint fires at the next OnLine, which
// the evaluator issues for the function's first line.
func (s *Session) OnFunctionEnter(name, file string, line int, locals LocalsStore) {
	if s.state == StateStopped {
		return
	}
	s.stack.Push(name, file, line, locals)
	if ids := s.registry.MatchFunction(name); len(ids) > 0 {
		s.armedFunctionBPs = append(s.armedFunctionBPs, ids...)
	}
}

// OnFunctionExit pops the shadow frame for the returning call.
// Returns ErrEmptyStack when the hooks are unbalanced.
func (s *Session) OnFunctionExit() error {
	if s.state == StateStopped {
		return nil
	}
	return s.stack.Pop()
}

// FormatStack renders the shadow stack for the console front-end.
func (s *Session) FormatStack() string {
	return s.stack.Format()
}
