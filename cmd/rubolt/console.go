package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dshills/rubolt/internal/debug"
	"github.com/dshills/rubolt/internal/jit"
	"github.com/dshills/rubolt/internal/trace"
)

// console is the interactive command loop. It owns the replay cycle:
// resume the trace, and when the session pauses, read commands until
// one of them resumes execution.
type console struct {
	session  *debug.Session
	manager  *jit.Manager
	replayer *trace.Replayer
	in       *bufio.Scanner
	out      io.Writer
}

func newConsole(session *debug.Session, manager *jit.Manager, replayer *trace.Replayer, in io.Reader, out io.Writer) *console {
	return &console{
		session:  session,
		manager:  manager,
		replayer: replayer,
		in:       bufio.NewScanner(in),
		out:      out,
	}
}

// Run replays the trace to completion or until the user quits.
func (c *console) Run() error {
	c.session.SetHandlers(debug.Handlers{
		OnPaused: func(reason, file string, line int) {
			fmt.Fprintf(c.out, "Paused (%s) at %s:%d\n", reason, file, line)
		},
	})

	// Prompt once before the replay starts so breakpoints can be set.
	fmt.Fprintln(c.out, "Type help for commands, continue to start.")
	if quit := c.prompt(); quit {
		c.session.Shutdown()
		return nil
	}

	for {
		paused, err := c.replayer.Resume()
		if err != nil {
			return err
		}
		if !paused {
			fmt.Fprintln(c.out, "Trace finished.")
			return nil
		}
		if quit := c.prompt(); quit {
			c.session.Shutdown()
			return nil
		}
	}
}

// prompt reads commands until one resumes execution. Returns true when
// the user quits.
func (c *console) prompt() bool {
	for {
		fmt.Fprint(c.out, "(rubolt) ")
		if !c.in.Scan() {
			return true
		}
		line := strings.TrimSpace(c.in.Text())
		if line == "" {
			continue
		}

		resume, quit := c.dispatch(line)
		if quit {
			return true
		}
		if resume {
			return false
		}
	}
}

func (c *console) dispatch(line string) (resume, quit bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "continue", "c":
		c.session.Continue()
		return true, false
	case "step", "s":
		c.session.StepInto()
		return true, false
	case "next", "n":
		c.session.StepOver()
		return true, false
	case "out", "o":
		c.session.StepOut()
		return true, false
	case "quit", "q", "exit":
		return false, true

	case "break", "b":
		c.cmdBreak(args)
	case "breakfn":
		c.cmdBreakFn(args)
	case "cond":
		c.cmdCond(args)
	case "delete", "d":
		c.cmdDelete(args)
	case "enable":
		c.cmdEnableDisable(args, true)
	case "disable":
		c.cmdEnableDisable(args, false)
	case "breakpoints", "bp":
		fmt.Fprintln(c.out, c.session.Registry().Format())
	case "stack", "bt":
		fmt.Fprintln(c.out, c.session.FormatStack())
	case "vars":
		fmt.Fprintln(c.out, c.session.FormatVars())
	case "print", "p":
		c.cmdPrint(args)
	case "set":
		c.cmdSet(args)
	case "watch":
		c.cmdWatch(args)
	case "watches":
		fmt.Fprintln(c.out, c.session.FormatWatches())
	case "source", "list", "l":
		c.cmdSource(args)
	case "jit":
		c.cmdJIT(args)
	case "help", "h":
		c.printHelp()

	default:
		fmt.Fprintf(c.out, "Unknown command %q (try help)\n", cmd)
	}
	return false, false
}

func (c *console) cmdBreak(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: break <file>:<line>")
		return
	}
	file, line, err := parseLocation(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "%v\n", err)
		return
	}
	id := c.session.Registry().AddLine(file, line)
	fmt.Fprintf(c.out, "Breakpoint %d set at %s:%d\n", id, file, line)
}

func (c *console) cmdBreakFn(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: breakfn <function>")
		return
	}
	id := c.session.Registry().AddFunction(args[0])
	fmt.Fprintf(c.out, "Breakpoint %d set on function %s\n", id, args[0])
}

func (c *console) cmdCond(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "usage: cond <file>:<line> <expression>")
		return
	}
	file, line, err := parseLocation(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "%v\n", err)
		return
	}
	expr := strings.Join(args[1:], " ")
	id := c.session.Registry().AddConditional(file, line, expr)
	fmt.Fprintf(c.out, "Breakpoint %d set at %s:%d if %s\n", id, file, line, expr)
}

func (c *console) cmdDelete(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: delete <id>")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "invalid breakpoint id %q\n", args[0])
		return
	}
	if c.session.Registry().Remove(id) {
		fmt.Fprintf(c.out, "Breakpoint %d removed\n", id)
	} else {
		fmt.Fprintf(c.out, "No breakpoint %d\n", id)
	}
}

func (c *console) cmdEnableDisable(args []string, enable bool) {
	verb := "disable"
	if enable {
		verb = "enable"
	}
	if len(args) != 1 {
		fmt.Fprintf(c.out, "usage: %s <id>\n", verb)
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "invalid breakpoint id %q\n", args[0])
		return
	}
	if enable {
		c.session.Registry().Enable(id)
	} else {
		c.session.Registry().Disable(id)
	}
}

func (c *console) cmdPrint(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: print <name>")
		return
	}
	if v, ok := c.session.InspectVar(args[0]); ok {
		fmt.Fprintf(c.out, "%s = %v\n", args[0], v)
	} else {
		fmt.Fprintf(c.out, "%s is not defined\n", args[0])
	}
}

func (c *console) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "usage: set <name> <value>")
		return
	}
	value := trace.ParseValue(strings.Join(args[1:], " "))
	if c.session.SetVar(args[0], value) {
		fmt.Fprintf(c.out, "%s = %v\n", args[0], value)
	} else {
		fmt.Fprintf(c.out, "cannot set %s: no frame\n", args[0])
	}
}

func (c *console) cmdWatch(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: watch <name>")
		return
	}
	c.session.WatchVar(args[0])
	fmt.Fprintf(c.out, "Watching %s\n", args[0])
}

func (c *console) cmdSource(args []string) {
	contextLines := 3
	if len(args) == 1 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			contextLines = n
		}
	}
	src, err := c.session.ShowSource(contextLines)
	if err != nil {
		fmt.Fprintf(c.out, "source unavailable: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, src)
}

func (c *console) cmdJIT(args []string) {
	if c.manager == nil {
		fmt.Fprintln(c.out, "JIT is disabled")
		return
	}
	if len(args) == 0 {
		fmt.Fprintln(c.out, "usage: jit stats | jit invalidate <function>")
		return
	}
	switch args[0] {
	case "stats":
		fmt.Fprintln(c.out, c.manager.FormatStats())
	case "invalidate":
		if len(args) != 2 {
			fmt.Fprintln(c.out, "usage: jit invalidate <function>")
			return
		}
		c.manager.Invalidate(args[1])
		fmt.Fprintf(c.out, "Invalidated %s\n", args[1])
	default:
		fmt.Fprintf(c.out, "unknown jit subcommand %q\n", args[0])
	}
}

func (c *console) printHelp() {
	help := `Commands:
  break <file>:<line>        Set a line breakpoint
  breakfn <function>         Break when a function is entered
  cond <file>:<line> <expr>  Set a conditional breakpoint
  delete <id>                Remove a breakpoint
  enable/disable <id>        Toggle a breakpoint
  breakpoints                List breakpoints
  continue (c)               Resume execution
  step (s)                   Step to the next line, entering calls
  next (n)                   Step over calls
  out (o)                    Run until the current function returns
  stack (bt)                 Show the call stack
  vars                       List locals in the current frame
  print <name>               Print a variable
  set <name> <value>         Assign a variable
  watch <name> / watches     Watch expressions
  source [n]                 Show source around the current line
  jit stats                  Show tier statistics
  jit invalidate <function>  Force a function back to interpretation
  quit (q)                   Stop debugging`
	fmt.Fprintln(c.out, help)
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
