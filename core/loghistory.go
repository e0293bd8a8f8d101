package core

import (
	"sync"
	"time"
)

// LogHistory is the append-only log of the current server or chat session.
type LogHistory struct {
	mu    sync.Mutex
	lines []string
	now   func() time.Time
}

func NewLogHistory() *LogHistory {
	return &LogHistory{now: time.Now}
}

// Add stamps line with the wall-clock time and appends it. It returns the
// stored line.
func (h *LogHistory) Add(line string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	stamped := "[" + h.now().Format("15:04:05") + "] " + line
	h.lines = append(h.lines, stamped)
	return stamped
}

func (h *LogHistory) Clear() {
	h.mu.Lock()
	h.lines = nil
	h.mu.Unlock()
}

// Lines returns a copy of the history.
func (h *LogHistory) Lines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.lines...)
}

func (h *LogHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.lines)
}
