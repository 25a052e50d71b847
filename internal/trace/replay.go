package trace

import (
	"fmt"

	"github.com/dshills/rubolt/internal/debug"
	"github.com/dshills/rubolt/internal/jit"
)

// Replayer drives a debug session and tier manager from a parsed
// trace. Resume executes steps until the session pauses or the trace
// ends; the caller interacts with the session (step, continue,
// inspect) between calls.
//
// Not safe for concurrent use: the replayer stands in for the single
// execution thread.
type Replayer struct {
	session *debug.Session
	manager *jit.Manager
	steps   []Step
	pos     int

	// OnPromotion receives each promotion request the manager emits
	// during replay. Nil requests are simply dropped.
	OnPromotion func(jit.PromotionRequest)
}

// NewReplayer builds a replayer over the given steps. manager may be
// nil when tier tracking is not wanted; call events are then ignored.
func NewReplayer(session *debug.Session, manager *jit.Manager, steps []Step) *Replayer {
	return &Replayer{
		session: session,
		manager: manager,
		steps:   steps,
	}
}

// Session returns the session being driven.
func (r *Replayer) Session() *debug.Session {
	return r.session
}

// Done reports whether the trace has been fully consumed.
func (r *Replayer) Done() bool {
	return r.pos >= len(r.steps)
}

// Position returns the index of the next step to execute.
func (r *Replayer) Position() int {
	return r.pos
}

// Resume executes steps until the session pauses, the session stops,
// or the trace ends. It returns true when the session paused and the
// caller should prompt before resuming again.
func (r *Replayer) Resume() (bool, error) {
	for r.pos < len(r.steps) {
		if r.session.State() == debug.StateStopped {
			r.pos = len(r.steps)
			return false, nil
		}

		step := r.steps[r.pos]
		r.pos++

		paused, err := r.apply(step)
		if err != nil {
			return false, fmt.Errorf("trace step %d (%s): %w", r.pos, step.Kind, err)
		}
		if paused {
			return true, nil
		}
	}
	return false, nil
}

func (r *Replayer) apply(step Step) (bool, error) {
	switch step.Kind {
	case OpEnter:
		r.session.OnFunctionEnter(step.Name, step.File, step.Line, NewMapLocals())
		return false, nil

	case OpLine:
		return r.session.OnLine(step.File, step.Line), nil

	case OpCall:
		if r.manager == nil {
			return false, nil
		}
		if req, ok := r.manager.RecordCall(step.Name); ok && r.OnPromotion != nil {
			r.OnPromotion(req)
		}
		return false, nil

	case OpExit:
		return false, r.session.OnFunctionExit()

	case OpSet:
		frame := r.session.CurrentFrame()
		if frame == nil || frame.Locals == nil {
			return false, fmt.Errorf("set %s outside any frame", step.Name)
		}
		frame.Locals.Set(step.Name, step.Value)
		return false, nil

	default:
		return false, fmt.Errorf("unknown op %d", step.Kind)
	}
}
