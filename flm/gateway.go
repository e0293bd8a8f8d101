// Package flm is the only code that runs the runtime executable or the
// platform shell. Long-running commands stream their output line by line;
// short ones are executed and captured.
package flm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/flmcompanion/flmcompanion/catalog"
	"github.com/flmcompanion/flmcompanion/config"
	"github.com/flmcompanion/flmcompanion/logging"
	"golang.org/x/sync/errgroup"
)

// Filter selects which models `flm list` reports.
type Filter string

const (
	FilterAll          Filter = "all"
	FilterInstalled    Filter = "installed"
	FilterNotInstalled Filter = "not-installed"
)

// DefaultStopTimeout is the grace period before a stopping process is killed.
const DefaultStopTimeout = 5 * time.Second

var versionPrefix = regexp.MustCompile(`(?i)^FLM\s+`)

type Options struct {
	Binary      string   // executable name or path, "flm" when empty
	CatalogDir  string   // directory holding model_list.json, resolved when empty
	Matcher     Matcher  // SubstringMatcher when nil
	Shell       []string // interpreter and flags for RunScript
	StopTimeout time.Duration
}

// Gateway runs the runtime CLI and owns at most one long-running process.
type Gateway struct {
	binary      string
	catalogDir  string
	matcher     Matcher
	shell       []string
	stopTimeout time.Duration

	slot Slot

	mu    sync.Mutex
	meta  map[string]catalog.Model
	lists map[Filter][]catalog.Model
}

func New(opts Options) *Gateway {
	g := &Gateway{
		binary:      opts.Binary,
		catalogDir:  opts.CatalogDir,
		matcher:     opts.Matcher,
		shell:       opts.Shell,
		stopTimeout: opts.StopTimeout,
		lists:       make(map[Filter][]catalog.Model),
	}
	if g.binary == "" {
		g.binary = "flm"
	}
	if g.matcher == nil {
		g.matcher = SubstringMatcher{}
	}
	if len(g.shell) == 0 {
		g.shell = DefaultShell()
	}
	if g.stopTimeout <= 0 {
		g.stopTimeout = DefaultStopTimeout
	}
	return g
}

// DefaultShell returns the platform script interpreter.
func DefaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"powershell", "-NoProfile", "-Command"}
	}
	return []string{"sh", "-c"}
}

func (g *Gateway) Binary() string   { return g.binary }
func (g *Gateway) Matcher() Matcher { return g.matcher }

// Owned reports whether a server or chat process is currently held.
func (g *Gateway) Owned() bool { return g.slot.Current() != nil }

// Current returns the owned process, or nil.
func (g *Gateway) Current() *Process { return g.slot.Current() }

// Version runs `flm --version`. It returns VersionUnknown on a nonzero exit
// and VersionNotFound when the executable cannot be run.
func (g *Gateway) Version(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, g.binary, "--version").Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logging.WarnLogger.Warn().Msgf("flm --version exited with code %d", exitErr.ExitCode())
			return VersionUnknown
		}
		logging.ErrorLogger.Error().Msgf("Failed to get FLM version: %v", err)
		return VersionNotFound
	}
	return versionPrefix.ReplaceAllString(strings.TrimSpace(string(out)), "")
}

// CatalogDir returns the directory the catalog is read from.
func (g *Gateway) CatalogDir() string {
	if g.catalogDir != "" {
		return g.catalogDir
	}
	return catalog.ResolveDir(g.binary, g.FindRuntimePath)
}

func (g *Gateway) metadata(force bool) map[string]catalog.Model {
	g.mu.Lock()
	meta := g.meta
	g.mu.Unlock()
	if meta != nil && !force {
		return meta
	}

	meta = catalog.ReadDir(g.CatalogDir())
	g.mu.Lock()
	g.meta = meta
	g.mu.Unlock()
	return meta
}

// ListModels lists models for a filter, merged with catalog metadata.
// Results are cached per filter until forced or invalidated. Failures are
// logged and yield an empty list.
func (g *Gateway) ListModels(ctx context.Context, filter Filter, force bool) []catalog.Model {
	if filter == "" {
		filter = FilterInstalled
	}
	if !force {
		g.mu.Lock()
		cached, ok := g.lists[filter]
		g.mu.Unlock()
		if ok {
			return append([]catalog.Model(nil), cached...)
		}
	}

	meta := g.metadata(force)

	args := ListArgs(filter)
	logging.DebugLogger.Debug().Msgf("Executing: flm %s", strings.Join(args, " "))
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		logging.ErrorLogger.Error().Msgf("Failed to list models (filter=%s): %v: %s", filter, err, strings.TrimSpace(stderr.String()))
		return []catalog.Model{}
	}

	models := catalog.Merge(catalog.ParseList(string(out)), meta)
	g.mu.Lock()
	g.lists[filter] = models
	g.mu.Unlock()
	return append([]catalog.Model(nil), models...)
}

// InvalidateCache drops every cached listing.
func (g *Gateway) InvalidateCache() {
	g.mu.Lock()
	g.lists = make(map[Filter][]catalog.Model)
	g.mu.Unlock()
}

// PullModel downloads a model, sending every output line to onProgress.
// onProgress may be called from two goroutines at once.
func (g *Gateway) PullModel(ctx context.Context, name string, onProgress func(string)) error {
	g.InvalidateCache()

	args := []string{"pull", name}
	logging.InfoLogger.Info().Msgf("Executing: flm %s", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, g.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start pull: %w", err)
	}

	if onProgress == nil {
		onProgress = func(string) {}
	}
	var errOutput strings.Builder
	var eg errgroup.Group
	eg.Go(func() error { return pumpProgress(stdout, onProgress) })
	eg.Go(func() error {
		return pumpProgress(stderr, func(line string) {
			errOutput.WriteString(line)
			errOutput.WriteByte('\n')
			onProgress(line)
		})
	})
	if err := eg.Wait(); err != nil {
		logging.WarnLogger.Warn().Msgf("Reading pull output failed: %v", err)
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &CommandError{Args: args, Code: exitErr.ExitCode(), Stderr: errOutput.String()}
		}
		return fmt.Errorf("pull %s: %w", name, err)
	}
	g.InvalidateCache()
	return nil
}

// RemoveModel deletes an installed model.
func (g *Gateway) RemoveModel(ctx context.Context, name string) error {
	args := []string{"remove", name}
	logging.InfoLogger.Info().Msgf("Executing: flm %s", strings.Join(args, " "))
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Stderr = &stderr
	err := cmd.Run()
	g.InvalidateCache()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &CommandError{Args: args, Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// spawn acquires the slot and starts a long-running process.
// spawn claims ownership and starts the runtime. onAcquired, if set, runs
// once ownership is held and before the process is started.
func (g *Gateway) spawn(kind Kind, args []string, onAcquired func()) (*Process, io.ReadCloser, io.ReadCloser, error) {
	cmd := exec.Command(g.binary, args...)
	p := newProcess(kind, cmd)
	if err := g.slot.Acquire(p); err != nil {
		return nil, nil, nil, err
	}
	if onAcquired != nil {
		onAcquired()
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		g.slot.Release(p)
		return nil, nil, nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		g.slot.Release(p)
		return nil, nil, nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		g.slot.Release(p)
		return nil, nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		g.slot.Release(p)
		return nil, nil, nil, err
	}
	p.stdinMu.Lock()
	p.stdin = stdin
	p.stdinMu.Unlock()
	return p, stdout, stderr, nil
}

// supervise drains both streams, waits for the process, releases the slot
// and finally reports the exit code.
func (g *Gateway) supervise(p *Process, stderr io.Reader, pumpOut func() error, onErr func(string), onExit func(int)) {
	var eg errgroup.Group
	eg.Go(pumpOut)
	eg.Go(func() error { return pumpLines(stderr, onErr) })
	if err := eg.Wait(); err != nil {
		logging.WarnLogger.Warn().Msgf("Reading %s output failed: %v", p.Kind, err)
	}

	_ = p.cmd.Wait()
	code := exitCode(p.cmd.ProcessState)
	g.slot.Release(p)
	p.finish(code)
	logging.InfoLogger.Info().Msgf("%s process %d exited with code %d", p.Kind, p.PID(), code)
	onExit(code)
}

// StartServer spawns `flm serve`. Output is forwarded to onLog as "[FLM] "
// and "[FLM ERR] " lines, followed by StoppedLine once the process has exited
// and released ownership. onLog is called from several goroutines.
func (g *Gateway) StartServer(model string, opts config.ServerOptions, onLog func(string)) error {
	if onLog == nil {
		onLog = func(string) {}
	}
	args := ServeArgs(model, opts)
	logging.InfoLogger.Info().Msgf("Starting server with args: %s", strings.Join(args, " "))
	p, stdout, stderr, err := g.spawn(KindServer, args, func() {
		onLog("[SYSTEM] Executing: flm " + strings.Join(args, " "))
	})
	if err != nil {
		if !errors.Is(err, ErrProcessActive) {
			onLog(fmt.Sprintf("[ERROR] %v", err))
			logging.ErrorLogger.Error().Msgf("Failed to start server: %v", err)
		}
		return err
	}
	onLog(fmt.Sprintf("[SYSTEM] Server process started (PID: %d)", p.PID()))

	go g.supervise(p, stderr,
		func() error { return pumpLines(stdout, func(l string) { onLog(StdoutPrefix + l) }) },
		func(l string) { onLog(StderrPrefix + l) },
		func(code int) { onLog(StoppedLine(code)) },
	)
	return nil
}

// StopServer asks the owned process to exit, killing it after the grace
// period. It returns once the process is gone. Without an owned process, or
// while another stop is in progress, it does nothing.
func (g *Gateway) StopServer(onLog func(string)) {
	p := g.slot.Current()
	if p == nil || !p.stopping.CompareAndSwap(false, true) {
		return
	}
	say := func(s string) {
		if onLog != nil {
			onLog(s)
		}
	}

	say("[SYSTEM] Sending 'exit' command to server...")
	if err := p.write("exit\r\n"); err != nil {
		logging.ErrorLogger.Error().Msgf("Failed to write exit command, forcing kill: %v", err)
		say(fmt.Sprintf("[ERROR] Failed to write exit command: %v. Forcing kill...", err))
		g.kill(p)
		return
	}
	say("[SYSTEM] Exit command sent. Waiting for graceful shutdown...")

	timer := time.NewTimer(g.stopTimeout)
	defer timer.Stop()
	select {
	case <-p.Done():
		return
	case <-timer.C:
	}

	say("[SYSTEM] Server did not exit gracefully, forcing kill...")
	logging.WarnLogger.Warn().Msg("Server did not exit gracefully, forcing kill...")
	g.kill(p)
}

func (g *Gateway) kill(p *Process) {
	if err := p.kill(); err != nil {
		logging.ErrorLogger.Error().Msgf("Failed to kill process %d: %v", p.PID(), err)
	}
	select {
	case <-p.Done():
	case <-time.After(g.stopTimeout):
		logging.ErrorLogger.Error().Msgf("Process %d still running after kill", p.PID())
	}
}

// ChatEventKind discriminates chat output events.
type ChatEventKind int

const (
	ChatStdout ChatEventKind = iota
	ChatStderr
	ChatExit
)

// ChatEvent is one piece of chat process output. Code is set for ChatExit.
type ChatEvent struct {
	Kind ChatEventKind
	Text string
	Code int
}

// StartChat spawns `flm run` under the same ownership rule as StartServer.
func (g *Gateway) StartChat(model string, opts config.ServerOptions, onData func(ChatEvent)) error {
	if onData == nil {
		onData = func(ChatEvent) {}
	}
	args := RunArgs(model, opts)
	logging.InfoLogger.Info().Msgf("Starting chat with args: %s", strings.Join(args, " "))

	p, stdout, stderr, err := g.spawn(KindChat, args, nil)
	if err != nil {
		if !errors.Is(err, ErrProcessActive) {
			logging.ErrorLogger.Error().Msgf("Failed to start chat: %v", err)
		}
		return err
	}

	go g.supervise(p, stderr,
		func() error {
			return pumpChunks(stdout, func(c string) { onData(ChatEvent{Kind: ChatStdout, Text: c}) })
		},
		func(l string) { onData(ChatEvent{Kind: ChatStderr, Text: l}) },
		func(code int) { onData(ChatEvent{Kind: ChatExit, Code: code}) },
	)
	return nil
}

// SendChatMessage writes text and a newline to the owned process. Without
// an owned process it does nothing.
func (g *Gateway) SendChatMessage(text string) error {
	p := g.slot.Current()
	if p == nil {
		return nil
	}
	return p.write(text + "\n")
}

// StopChat ends a chat session the same way a server is stopped.
func (g *Gateway) StopChat() {
	g.StopServer(nil)
}

// FindRuntimePath returns the directory holding the runtime executable
// found on the search path.
func (g *Gateway) FindRuntimePath() (string, bool) {
	path, err := exec.LookPath(g.binary)
	if err != nil {
		logging.DebugLogger.Debug().Msgf("Runtime %q not found on PATH: %v", g.binary, err)
		return "", false
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Dir(path), true
}

// RunScript runs script with the platform shell and returns its stdout.
func (g *Gateway) RunScript(ctx context.Context, script string) (string, error) {
	args := append(append([]string(nil), g.shell[1:]...), script)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.shell[0], args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), &CommandError{Args: g.shell, Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return "", fmt.Errorf("failed to run script: %w", err)
	}
	return stdout.String(), nil
}
