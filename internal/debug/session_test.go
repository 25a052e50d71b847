package debug

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// mapLocals is a minimal LocalsStore for tests.
type mapLocals map[string]any

func (m mapLocals) Get(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

func (m mapLocals) Set(name string, value any) bool {
	m[name] = value
	return true
}

func (m mapLocals) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return names
}

func TestSession_InitialState(t *testing.T) {
	s := NewSession()

	if s.State() != StateRunning {
		t.Errorf("expected initial state running, got %v", s.State())
	}
	if s.StepDirective() != StepNone {
		t.Errorf("expected no step directive, got %v", s.StepDirective())
	}
	if s.ID() == "" {
		t.Error("expected a session id")
	}
}

func TestSession_OnLineNoBreak(t *testing.T) {
	s := NewSession()

	if s.OnLine("a.rbo", 1) {
		t.Error("expected no pause with no breakpoints")
	}
	if s.State() != StateRunning {
		t.Errorf("expected state running, got %v", s.State())
	}

	file, line := s.Location()
	if file != "a.rbo" || line != 1 {
		t.Errorf("expected location a.rbo:1, got %s:%d", file, line)
	}
}

func TestSession_BreakpointPauses(t *testing.T) {
	s := NewSession()
	s.Registry().AddLine("a.rbo", 10)

	var gotReason, gotFile string
	var gotLine int
	s.SetHandlers(Handlers{
		OnPaused: func(reason, file string, line int) {
			gotReason, gotFile, gotLine = reason, file, line
		},
	})

	if s.OnLine("a.rbo", 9) {
		t.Error("expected no pause at non-breakpoint line")
	}
	if !s.OnLine("a.rbo", 10) {
		t.Fatal("expected pause at breakpoint")
	}
	if s.State() != StatePaused {
		t.Errorf("expected state paused, got %v", s.State())
	}
	if gotReason != ReasonBreakpoint || gotFile != "a.rbo" || gotLine != 10 {
		t.Errorf("unexpected notification %s %s:%d", gotReason, gotFile, gotLine)
	}
}

func TestSession_ContinueClearsDirective(t *testing.T) {
	s := NewSession()

	s.StepInto()
	if s.State() != StateStepping || s.StepDirective() != StepInto {
		t.Fatalf("expected stepping/into, got %v/%v", s.State(), s.StepDirective())
	}

	s.Continue()
	if s.State() != StateRunning {
		t.Errorf("expected running after continue, got %v", s.State())
	}
	if s.StepDirective() != StepNone {
		t.Errorf("expected directive cleared, got %v", s.StepDirective())
	}

	// Continue from running is a no-op.
	s.Continue()
	if s.State() != StateRunning {
		t.Errorf("expected running, got %v", s.State())
	}
}

func TestSession_StepIntoPausesEveryLine(t *testing.T) {
	s := NewSession()

	s.StepInto()
	if !s.OnLine("a.rbo", 1) {
		t.Error("expected pause at first line")
	}

	s.StepInto()
	s.OnFunctionEnter("f", "a.rbo", 10, nil)
	if !s.OnLine("a.rbo", 10) {
		t.Error("expected step-into to pause inside callee")
	}
}

func TestSession_StepOverSkipsCalleeLines(t *testing.T) {
	s := NewSession()

	// Enter f at depth 1, pause there, then step over a call to g.
	s.OnFunctionEnter("f", "a.rbo", 1, nil)
	s.OnLine("a.rbo", 1)

	s.StepOver() // target depth 1

	s.OnFunctionEnter("g", "b.rbo", 1, nil)
	for line := 1; line <= 5; line++ {
		if s.OnLine("b.rbo", line) {
			t.Fatalf("step-over must not pause inside g at line %d (depth %d)", line, s.Depth())
		}
	}
	if err := s.OnFunctionExit(); err != nil {
		t.Fatalf("OnFunctionExit failed: %v", err)
	}

	if !s.OnLine("a.rbo", 2) {
		t.Error("expected pause back in f after g returned")
	}
}

func TestSession_StepOverPausesAtShallowerDepth(t *testing.T) {
	s := NewSession()

	s.OnFunctionEnter("f", "a.rbo", 1, nil)
	s.StepOver() // target depth 1

	if err := s.OnFunctionExit(); err != nil {
		t.Fatalf("OnFunctionExit failed: %v", err)
	}
	// Returned to depth 0 < target depth: still pauses.
	if !s.OnLine("a.rbo", 9) {
		t.Error("expected pause at depth below target")
	}
}

func TestSession_StepOutSkipsCurrentDepth(t *testing.T) {
	s := NewSession()

	s.OnFunctionEnter("main", "a.rbo", 1, nil)
	s.OnFunctionEnter("f", "a.rbo", 10, nil)
	s.OnLine("a.rbo", 10)

	s.StepOut() // issued at depth 2

	if s.OnLine("a.rbo", 11) {
		t.Error("step-out must not pause at the issuing depth")
	}
	if err := s.OnFunctionExit(); err != nil {
		t.Fatalf("OnFunctionExit failed: %v", err)
	}
	if !s.OnLine("a.rbo", 2) {
		t.Error("expected pause at the first line after returning")
	}
}

func TestSession_PauseTakesEffectAtNextLine(t *testing.T) {
	s := NewSession()

	s.Pause()
	if s.State() != StateRunning {
		t.Errorf("pause must not apply immediately, state %v", s.State())
	}

	if !s.OnLine("a.rbo", 1) {
		t.Fatal("expected pause at next line hook")
	}
	if s.State() != StatePaused {
		t.Errorf("expected paused, got %v", s.State())
	}

	// Flag is consumed: continuing and hitting another line runs.
	s.Continue()
	if s.OnLine("a.rbo", 2) {
		t.Error("expected no pause after flag consumed")
	}
}

func TestSession_PauseConsumedByBreakpoint(t *testing.T) {
	s := NewSession()
	s.Registry().AddLine("a.rbo", 1)

	var reason string
	s.SetHandlers(Handlers{OnPaused: func(r, _ string, _ int) { reason = r }})

	s.Pause()
	if !s.OnLine("a.rbo", 1) {
		t.Fatal("expected pause")
	}
	if reason != ReasonBreakpoint {
		t.Errorf("expected breakpoint reason, got %q", reason)
	}

	s.Continue()
	if s.OnLine("a.rbo", 2) {
		t.Error("pause flag should have been consumed by the breakpoint")
	}
}

func TestSession_FunctionBreakpointFiresAtNextLine(t *testing.T) {
	s := NewSession()
	id := s.Registry().AddFunction("fib")

	var reason string
	s.SetHandlers(Handlers{OnPaused: func(r, _ string, _ int) { reason = r }})

	s.OnFunctionEnter("fib", "a.rbo", 20, nil)
	if s.State() != StateRunning {
		t.Error("function entry must not itself pause")
	}

	if !s.OnLine("a.rbo", 20) {
		t.Fatal("expected pause at first line of fib")
	}
	if reason != ReasonFunctionBreakpoint {
		t.Errorf("expected function breakpoint reason, got %q", reason)
	}
	if bp, _ := s.Registry().Get(id); bp.HitCount != 1 {
		t.Errorf("expected hit count 1, got %d", bp.HitCount)
	}

	// Fires once per entry, not on every subsequent line.
	s.Continue()
	if s.OnLine("a.rbo", 21) {
		t.Error("function breakpoint must not fire again")
	}
}

func TestSession_FunctionBreakpointOtherFunction(t *testing.T) {
	s := NewSession()
	s.Registry().AddFunction("fib")

	s.OnFunctionEnter("main", "a.rbo", 1, nil)
	if s.OnLine("a.rbo", 1) {
		t.Error("expected no pause entering an unrelated function")
	}
}

func TestSession_ConditionalAlwaysBreaksByDefault(t *testing.T) {
	s := NewSession()
	id := s.Registry().AddConditional("a.rbo", 5, "x > 100")

	s.OnFunctionEnter("f", "a.rbo", 1, mapLocals{"x": 1})
	if !s.OnLine("a.rbo", 5) {
		t.Error("stored condition must not be evaluated by default")
	}
	if bp, _ := s.Registry().Get(id); bp.HitCount != 1 {
		t.Errorf("expected hit count 1, got %d", bp.HitCount)
	}
}

func TestSession_ConditionalWithEvaluator(t *testing.T) {
	s := NewSession()
	id := s.Registry().AddConditional("a.rbo", 5, "x > 100")
	s.SetConditionEvaluator(NewLuaCondition())

	locals := mapLocals{"x": 1}
	s.OnFunctionEnter("f", "a.rbo", 1, locals)

	if s.OnLine("a.rbo", 5) {
		t.Error("expected no pause while condition is false")
	}
	// The hit still counts even though the condition failed.
	if bp, _ := s.Registry().Get(id); bp.HitCount != 1 {
		t.Errorf("expected hit count 1, got %d", bp.HitCount)
	}

	locals["x"] = 101
	if !s.OnLine("a.rbo", 5) {
		t.Error("expected pause once condition holds")
	}
	if bp, _ := s.Registry().Get(id); bp.HitCount != 2 {
		t.Errorf("expected hit count 2, got %d", bp.HitCount)
	}
}

func TestSession_ConditionalEvaluatorErrorBreaks(t *testing.T) {
	s := NewSession()
	s.Registry().AddConditional("a.rbo", 5, "this is not lua")
	s.SetConditionEvaluator(NewLuaCondition())

	if !s.OnLine("a.rbo", 5) {
		t.Error("expected a broken condition to break anyway")
	}
}

func TestSession_OnFunctionExitUnderflow(t *testing.T) {
	s := NewSession()

	err := s.OnFunctionExit()
	if !errors.Is(err, ErrEmptyStack) {
		t.Errorf("expected ErrEmptyStack, got %v", err)
	}
}

func TestSession_OnLineUpdatesTopFrame(t *testing.T) {
	s := NewSession()

	s.OnFunctionEnter("f", "a.rbo", 1, nil)
	s.OnLine("a.rbo", 7)

	if top := s.CurrentFrame(); top == nil || top.Line != 7 {
		t.Errorf("expected top frame line 7, got %+v", top)
	}
}

func TestSession_Shutdown(t *testing.T) {
	s := NewSession()
	s.Registry().AddLine("a.rbo", 1)
	s.OnFunctionEnter("main", "a.rbo", 1, nil)
	s.WatchVar("x")

	var transitions []State
	s.SetHandlers(Handlers{OnStateChanged: func(_, new State) { transitions = append(transitions, new) }})

	s.Shutdown()

	if s.State() != StateStopped {
		t.Errorf("expected stopped, got %v", s.State())
	}
	if s.Registry().Count() != 0 {
		t.Error("expected breakpoints released")
	}
	if s.Depth() != 0 {
		t.Error("expected stack unwound")
	}
	if len(s.Watches()) != 0 {
		t.Error("expected watches cleared")
	}

	// Terminal: hooks and commands become no-ops, not errors.
	if s.OnLine("a.rbo", 1) {
		t.Error("OnLine after shutdown must not pause")
	}
	s.StepInto()
	if s.State() != StateStopped {
		t.Error("stepping after shutdown must not leave stopped")
	}
	if err := s.OnFunctionExit(); err != nil {
		t.Errorf("OnFunctionExit after shutdown should be a no-op, got %v", err)
	}
	s.Shutdown() // idempotent

	if len(transitions) != 1 || transitions[0] != StateStopped {
		t.Errorf("expected a single transition to stopped, got %v", transitions)
	}
}

func TestSession_Variables(t *testing.T) {
	s := NewSession()

	if _, ok := s.InspectVar("x"); ok {
		t.Error("expected no value with no frame")
	}
	if s.SetVar("x", 1) {
		t.Error("expected set to fail with no frame")
	}

	locals := mapLocals{"x": 42, "name": "rubolt"}
	s.OnFunctionEnter("f", "a.rbo", 1, locals)

	v, ok := s.InspectVar("x")
	if !ok || v != 42 {
		t.Errorf("expected x = 42, got %v (ok=%v)", v, ok)
	}

	names := s.ListVars()
	if len(names) != 2 || names[0] != "name" || names[1] != "x" {
		t.Errorf("expected sorted names [name x], got %v", names)
	}

	if !s.SetVar("x", 99) {
		t.Fatal("expected set to succeed")
	}
	if v, _ := s.InspectVar("x"); v != 99 {
		t.Errorf("expected x = 99, got %v", v)
	}
}

func TestSession_Watches(t *testing.T) {
	s := NewSession()
	s.WatchVar("x")
	s.WatchVar("y")
	s.WatchVar("x") // duplicate ignored

	if got := s.Watches(); len(got) != 2 {
		t.Fatalf("expected 2 watches, got %v", got)
	}

	s.OnFunctionEnter("f", "a.rbo", 1, mapLocals{"x": 5})
	out := s.FormatWatches()
	if !strings.Contains(out, "x = 5") {
		t.Errorf("expected watched value, got:\n%s", out)
	}
	if !strings.Contains(out, "y = <not defined>") {
		t.Errorf("expected undefined marker, got:\n%s", out)
	}
}

func TestSession_ShowSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.rbo")
	src := "let a = 1\nlet b = 2\nprint(a + b)\nlet c = 3\nlet d = 4\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	s := NewSession()
	s.OnLine(path, 3)

	out, err := s.ShowSource(1)
	if err != nil {
		t.Fatalf("ShowSource failed: %v", err)
	}
	if !strings.Contains(out, ">    3  print(a + b)") {
		t.Errorf("expected current line marked, got:\n%s", out)
	}
	if !strings.Contains(out, "let b = 2") || !strings.Contains(out, "let c = 3") {
		t.Errorf("expected context lines, got:\n%s", out)
	}
	if strings.Contains(out, "let a = 1") || strings.Contains(out, "let d = 4") {
		t.Errorf("expected lines outside context excluded, got:\n%s", out)
	}
}

func TestSession_ShowSourceNoLocation(t *testing.T) {
	s := NewSession()
	if _, err := s.ShowSource(2); err == nil {
		t.Error("expected error with no current location")
	}
}
