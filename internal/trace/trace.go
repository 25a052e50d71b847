// Package trace parses and replays execution traces through the debug
// and JIT hooks. A trace is a line-oriented text file describing what
// an interpreter would report: function entries and exits, line
// boundaries, call counts, and local-variable assignments. Replaying
// one exercises the full control plane without a real interpreter.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// OpKind identifies a trace event.
type OpKind int

const (
	// OpEnter pushes a call frame: "enter <func> <file>:<line>".
	OpEnter OpKind = iota
	// OpLine reports a line boundary: "line <file>:<line>".
	OpLine
	// OpCall counts a call for tier promotion: "call <func>".
	OpCall
	// OpExit pops the current call frame: "exit".
	OpExit
	// OpSet assigns a local in the current frame: "set <name> <value>".
	OpSet
)

func (k OpKind) String() string {
	switch k {
	case OpEnter:
		return "enter"
	case OpLine:
		return "line"
	case OpCall:
		return "call"
	case OpExit:
		return "exit"
	case OpSet:
		return "set"
	default:
		return "unknown"
	}
}

// Step is one parsed trace event. Fields beyond Kind are populated
// according to the event: Enter uses Name, File and Line; Line uses
// File and Line; Call uses Name; Set uses Name and Value.
type Step struct {
	Kind  OpKind
	Name  string
	File  string
	Line  int
	Value any
}

// Parse reads a trace. Blank lines and lines starting with '#' are
// skipped. Errors carry the 1-based line number of the offending line.
func Parse(r io.Reader) ([]Step, error) {
	var steps []Step

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		step, err := parseLine(text)
		if err != nil {
			return nil, fmt.Errorf("trace line %d: %w", lineNo, err)
		}
		steps = append(steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return steps, nil
}

func parseLine(text string) (Step, error) {
	fields := strings.Fields(text)
	op, args := fields[0], fields[1:]

	switch op {
	case "enter":
		if len(args) != 2 {
			return Step{}, fmt.Errorf("enter wants <func> <file>:<line>, got %q", text)
		}
		file, line, err := parseLocation(args[1])
		if err != nil {
			return Step{}, err
		}
		return Step{Kind: OpEnter, Name: args[0], File: file, Line: line}, nil

	case "line":
		if len(args) != 1 {
			return Step{}, fmt.Errorf("line wants <file>:<line>, got %q", text)
		}
		file, line, err := parseLocation(args[0])
		if err != nil {
			return Step{}, err
		}
		return Step{Kind: OpLine, File: file, Line: line}, nil

	case "call":
		if len(args) != 1 {
			return Step{}, fmt.Errorf("call wants <func>, got %q", text)
		}
		return Step{Kind: OpCall, Name: args[0]}, nil

	case "exit":
		if len(args) != 0 {
			return Step{}, fmt.Errorf("exit takes no arguments, got %q", text)
		}
		return Step{Kind: OpExit}, nil

	case "set":
		if len(args) < 2 {
			return Step{}, fmt.Errorf("set wants <name> <value>, got %q", text)
		}
		return Step{Kind: OpSet, Name: args[0], Value: ParseValue(strings.Join(args[1:], " "))}, nil

	default:
		return Step{}, fmt.Errorf("unknown trace op %q", op)
	}
}

func parseLocation(s string) (string, int, error) {
	idx := strings.LastIndex(s, ":")
	if idx <= 0 {
		return "", 0, fmt.Errorf("location %q wants <file>:<line>", s)
	}
	line, err := strconv.Atoi(s[idx+1:])
	if err != nil || line <= 0 {
		return "", 0, fmt.Errorf("location %q has no valid line number", s)
	}
	return s[:idx], line, nil
}

// ParseValue interprets a trace literal: int, float, bool, nil, a
// double-quoted string, or a bare string for anything else.
func ParseValue(s string) any {
	if s == "nil" {
		return nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if unq, err := strconv.Unquote(s); err == nil {
		return unq
	}
	return s
}
