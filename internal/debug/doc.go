// Package debug provides the Rubolt runtime's in-process debugger: the
// breakpoint registry, the shadow call stack, and the run/pause/step
// session state machine the evaluator hooks into.
//
// # Hook contract
//
// The evaluator calls Session.OnLine before executing each statement
// and acts on the returned decision: true means the session paused and
// execution must not proceed until a control command (Continue, a step,
// or Shutdown) moves it out of the paused state. Around every function
// invocation it calls OnFunctionEnter and OnFunctionExit, strictly
// paired; a mismatched exit surfaces as ErrEmptyStack rather than
// silently desynchronizing depth-based stepping.
//
// # Threading
//
// Session and call stack state belong to the execution thread. The one
// exception is Pause, which may be requested from another goroutine
// (an operator console); it is stored as an atomic flag and applied at
// the next OnLine, since there is no safe point mid-statement. The
// breakpoint registry carries its own lock so a front-end can add and
// remove breakpoints while the evaluator is paused.
//
// # Conditional breakpoints
//
// By default a conditional breakpoint stores its condition text but
// never evaluates it: it behaves as an always-true breakpoint and
// still counts hits. This mirrors the runtime's historical behavior.
// Installing a ConditionEvaluator (see LuaCondition) switches on real
// evaluation; hit counts still increment whether or not the condition
// holds, and an evaluation error breaks anyway rather than masking the
// location.
package debug
