package flm

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
)

// Kind tells what a process was started for.
type Kind string

const (
	KindServer Kind = "server"
	KindChat   Kind = "chat"
)

// Process is a long-running runtime process owned through the Slot.
type Process struct {
	Kind Kind

	cmd      *exec.Cmd
	stdinMu  sync.Mutex
	stdin    io.WriteCloser
	done     chan struct{}
	code     int
	stopping atomic.Bool
}

func newProcess(kind Kind, cmd *exec.Cmd) *Process {
	return &Process{Kind: kind, cmd: cmd, done: make(chan struct{})}
}

// PID returns the operating system process id, or 0 before start.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitCode is valid after Done is closed; -1 means killed by a signal.
func (p *Process) ExitCode() int {
	<-p.done
	return p.code
}

func (p *Process) write(s string) error {
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if p.stdin == nil {
		return ErrNoProcess
	}
	_, err := io.WriteString(p.stdin, s)
	return err
}

func (p *Process) kill() error {
	if p.cmd.Process == nil {
		return ErrNoProcess
	}
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *Process) finish(code int) {
	p.code = code
	close(p.done)
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}

// pumpLines calls fn for every line read from r, without the line ending.
func pumpLines(r io.Reader, fn func(string)) error {
	return pump(r, bufio.ScanLines, fn)
}

// pumpProgress also splits on bare carriage returns, which download
// progress bars use to redraw in place.
func pumpProgress(r io.Reader, fn func(string)) error {
	return pump(r, scanLinesOrCR, fn)
}

func pump(r io.Reader, split bufio.SplitFunc, fn func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(split)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		fn(line)
	}
	return ignoreClosed(sc.Err())
}

// pumpChunks delivers output as it arrives: complete lines keep their
// newline and a trailing partial line, such as a prompt, is sent at once.
func pumpChunks(r io.Reader, fn func(string)) error {
	buf := make([]byte, 4096)
	var pending []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				fn(string(pending[:i+1]))
				pending = pending[i+1:]
			}
			if len(pending) > 0 {
				fn(string(pending))
				pending = nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return ignoreClosed(err)
		}
	}
}

func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func ignoreClosed(err error) error {
	if err == nil || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
