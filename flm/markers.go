package flm

import (
	"fmt"
	"strconv"
	"strings"
)

// Marker strings printed by the runtime. Changing any of them breaks
// readiness and termination detection.
const (
	ReadyMarker   = "Enter 'exit' to stop the server:"
	StoppedMarker = "[SYSTEM] Server stopped with code"
	PromptMarker  = ">>>"
)

// Prefixes the gateway puts on forwarded runtime output.
const (
	StdoutPrefix = "[FLM] "
	StderrPrefix = "[FLM ERR] "
)

// Matcher recognises lifecycle events in runtime output.
type Matcher interface {
	// Ready reports whether a server log line signals that serving has begun.
	Ready(line string) bool
	// Stopped extracts the exit code from a termination line.
	Stopped(line string) (code int, ok bool)
	// Graceful reports whether a termination line carries a success code.
	Graceful(line string) bool
	// Prompt reports whether a chat chunk contains the input prompt.
	Prompt(chunk string) bool
	// StripPrompt removes the first prompt marker from a chat chunk.
	StripPrompt(chunk string) string
}

// SubstringMatcher matches fixed substrings. Empty fields use the defaults.
type SubstringMatcher struct {
	ReadyMarker   string
	StoppedMarker string
	PromptMarker  string
}

func (m SubstringMatcher) ready() string   { return or(m.ReadyMarker, ReadyMarker) }
func (m SubstringMatcher) stopped() string { return or(m.StoppedMarker, StoppedMarker) }
func (m SubstringMatcher) prompt() string  { return or(m.PromptMarker, PromptMarker) }

func (m SubstringMatcher) Ready(line string) bool {
	return strings.Contains(line, m.ready())
}

func (m SubstringMatcher) Stopped(line string) (int, bool) {
	marker := m.stopped()
	i := strings.Index(line, marker)
	if i < 0 {
		return 0, false
	}
	fields := strings.Fields(line[i+len(marker):])
	if len(fields) == 0 {
		return -1, true
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return -1, true
	}
	return code, true
}

func (m SubstringMatcher) Graceful(line string) bool {
	code, ok := m.Stopped(line)
	return ok && code == 0
}

func (m SubstringMatcher) Prompt(chunk string) bool {
	return strings.Contains(chunk, m.prompt())
}

func (m SubstringMatcher) StripPrompt(chunk string) string {
	return strings.Replace(chunk, m.prompt(), "", 1)
}

// StoppedLine is the log line emitted when a server process exits.
func StoppedLine(code int) string {
	return fmt.Sprintf("%s %d", StoppedMarker, code)
}

func or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
