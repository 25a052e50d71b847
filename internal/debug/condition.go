package debug

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// ConditionEvaluator evaluates a conditional breakpoint's expression
// against a frame. A nil frame means no locals are in scope.
type ConditionEvaluator interface {
	Eval(condition string, frame *Frame) (bool, error)
}

// LuaCondition evaluates breakpoint conditions as Lua expressions with
// the frame's locals bound as globals. Each evaluation runs on a fresh
// state with the standard libraries skipped, so a condition cannot
// touch the file system or the process. Conditions fire rarely, so the
// per-eval state cost is irrelevant.
type LuaCondition struct{}

// NewLuaCondition creates a Lua-backed condition evaluator.
func NewLuaCondition() *LuaCondition {
	return &LuaCondition{}
}

// Eval runs "return <condition>" and interprets the result with Lua
// truthiness (false and nil are false, everything else true).
func (c *LuaCondition) Eval(condition string, frame *Frame) (bool, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	if frame != nil && frame.Locals != nil {
		for _, name := range frame.Locals.Names() {
			v, ok := frame.Locals.Get(name)
			if !ok {
				continue
			}
			L.SetGlobal(name, luaValue(v))
		}
	}

	if err := L.DoString("return " + condition); err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", condition, err)
	}
	return lua.LVAsBool(L.Get(-1)), nil
}

// luaValue converts an evaluator value to a Lua value. Unsupported
// types fall back to their string form so conditions can at least
// compare them textually.
func luaValue(v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int32:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case uint64:
		return lua.LNumber(x)
	case float32:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	default:
		return lua.LString(fmt.Sprint(x))
	}
}
