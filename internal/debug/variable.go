package debug

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// InspectVar returns the value of a variable in the current frame's
// locals. False when there is no frame, no locals store, or no such
// variable.
func (s *Session) InspectVar(name string) (any, bool) {
	top := s.stack.Current()
	if top == nil || top.Locals == nil {
		return nil, false
	}
	return top.Locals.Get(name)
}

// ListVars returns the sorted names of the current frame's locals.
func (s *Session) ListVars() []string {
	top := s.stack.Current()
	if top == nil || top.Locals == nil {
		return nil
	}
	names := top.Locals.Names()
	sort.Strings(names)
	return names
}

// SetVar assigns a variable in the current frame's locals. False when
// there is no frame or the store rejects the assignment.
func (s *Session) SetVar(name string, value any) bool {
	top := s.stack.Current()
	if top == nil || top.Locals == nil {
		return false
	}
	return top.Locals.Set(name, value)
}

// WatchVar adds a variable to the watch list. Duplicates are ignored.
func (s *Session) WatchVar(name string) {
	for _, w := range s.watches {
		if w == name {
			return
		}
	}
	s.watches = append(s.watches, name)
}

// Watches returns the watched variable names in watch order.
func (s *Session) Watches() []string {
	return append([]string(nil), s.watches...)
}

// FormatVars renders the current frame's locals for the console.
func (s *Session) FormatVars() string {
	var b strings.Builder
	b.WriteString("Locals:\n")
	for _, name := range s.ListVars() {
		v, _ := s.InspectVar(name)
		fmt.Fprintf(&b, "  %s = %v\n", name, v)
	}
	return b.String()
}

// FormatWatches renders the watch list with current values.
func (s *Session) FormatWatches() string {
	var b strings.Builder
	b.WriteString("Watches:\n")
	for _, name := range s.watches {
		if v, ok := s.InspectVar(name); ok {
			fmt.Fprintf(&b, "  %s = %v\n", name, v)
		} else {
			fmt.Fprintf(&b, "  %s = <not defined>\n", name)
		}
	}
	return b.String()
}

// ShowSource reads the current file and returns contextLines lines
// around the current line, marking it. Fails if no location has been
// seen or the file cannot be read.
func (s *Session) ShowSource(contextLines int) (string, error) {
	if s.currentFile == "" {
		return "", fmt.Errorf("no current source location")
	}
	if contextLines < 0 {
		contextLines = 0
	}

	f, err := os.Open(s.currentFile)
	if err != nil {
		return "", fmt.Errorf("open source %s: %w", s.currentFile, err)
	}
	defer f.Close()

	first := s.currentLine - contextLines
	last := s.currentLine + contextLines

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo < first {
			continue
		}
		if lineNo > last {
			break
		}
		marker := "  "
		if lineNo == s.currentLine {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%4d  %s\n", marker, lineNo, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read source %s: %w", s.currentFile, err)
	}
	return b.String(), nil
}
