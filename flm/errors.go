package flm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProcessActive is returned when a server or chat process is already owned.
	ErrProcessActive = errors.New("a runtime process is already running")
	ErrNoProcess     = errors.New("no runtime process is running")
)

// Version sentinels returned instead of errors.
const (
	VersionUnknown  = "Unknown"
	VersionNotFound = "Not Found"
)

// CommandError reports a runtime command that exited nonzero.
type CommandError struct {
	Args   []string
	Code   int
	Stderr string
}

func (e *CommandError) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	return fmt.Sprintf("process exited with code %d", e.Code)
}
