package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flmcompanion/flmcompanion/catalog"
	"github.com/flmcompanion/flmcompanion/config"
	"github.com/flmcompanion/flmcompanion/flm"
	"github.com/flmcompanion/flmcompanion/logging"
)

// ServerStatus is the lifecycle state of the served runtime.
type ServerStatus string

const (
	StatusStopped  ServerStatus = "stopped"
	StatusStarting ServerStatus = "starting"
	StatusRunning  ServerStatus = "running"
)

// DefaultRestartDelay is the pause between a stop and the restart it was
// queued for.
const DefaultRestartDelay = 300 * time.Millisecond

var (
	ErrServerActive  = errors.New("server is already running")
	ErrNoSelection   = errors.New("no model selected")
	ErrUnknownPreset = errors.New("unknown preset")
)

// ServerRunner starts and stops the runtime server. flm.Gateway implements it.
type ServerRunner interface {
	StartServer(model string, opts config.ServerOptions, onLog func(string)) error
	StopServer(onLog func(string))
}

type ServerManagerOptions struct {
	Runner       ServerRunner
	Matcher      flm.Matcher
	Notifier     *NotificationService
	Bus          *EventBus
	RestartDelay time.Duration

	// Initial state, usually restored from the config file.
	Options   config.ServerOptions
	Selection string
	Presets   []config.ServerPreset

	// OnChange is called after the selection or options change.
	OnChange func(selection string, opts config.ServerOptions)
}

// ServerManager drives the server through stopped, starting and running by
// watching its log lines. Option changes made while the server runs are
// applied by stopping it and starting it again once it has stopped.
type ServerManager struct {
	runner       ServerRunner
	matcher      flm.Matcher
	notifier     *NotificationService
	bus          *EventBus
	logs         *LogHistory
	restartDelay time.Duration
	onChange     func(string, config.ServerOptions)

	mu         sync.Mutex
	status     ServerStatus
	options    config.ServerOptions
	selection  string
	spawnModel string
	installed  []catalog.Model
	presets    []config.ServerPreset
	// pending holds the options to restart with once the server stops;
	// scheduled holds them between the stop and the delayed start.
	pending   *config.ServerOptions
	scheduled *config.ServerOptions
}

func NewServerManager(o ServerManagerOptions) *ServerManager {
	m := &ServerManager{
		runner:       o.Runner,
		matcher:      o.Matcher,
		notifier:     o.Notifier,
		bus:          o.Bus,
		logs:         NewLogHistory(),
		restartDelay: o.RestartDelay,
		onChange:     o.OnChange,
		status:       StatusStopped,
		options:      o.Options,
		selection:    o.Selection,
		presets:      append([]config.ServerPreset(nil), o.Presets...),
	}
	if m.matcher == nil {
		m.matcher = flm.SubstringMatcher{}
	}
	if m.restartDelay <= 0 {
		m.restartDelay = DefaultRestartDelay
	}
	m.spawnModel = m.selection
	if config.IsPresetID(m.selection) {
		if p, ok := config.FindPreset(m.selection, m.presets); ok {
			m.spawnModel = p.Model
		} else {
			m.spawnModel = ""
		}
	}
	return m
}

func (m *ServerManager) Status() ServerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *ServerManager) Options() config.ServerOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.options
}

// Selection is the selected model name or preset id.
func (m *ServerManager) Selection() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selection
}

// SpawnModel is the model passed to the runtime, empty for presets without one.
func (m *ServerManager) SpawnModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spawnModel
}

func (m *ServerManager) Logs() []string { return m.logs.Lines() }

// History exposes the session log.
func (m *ServerManager) History() *LogHistory { return m.logs }

// AddLog appends a line to the session log.
func (m *ServerManager) AddLog(line string) {
	stamped := m.logs.Add(line)
	m.bus.Publish(EventServerLog, stamped)
}

// HandleLog records a server output line and advances the state machine on
// readiness and termination lines. It is safe to call from any goroutine.
// Runtime stderr lines are recorded but never matched.
func (m *ServerManager) HandleLog(line string) {
	m.AddLog(line)
	if strings.HasPrefix(line, flm.StderrPrefix) {
		return
	}

	if m.matcher.Ready(line) {
		m.mu.Lock()
		became := m.status == StatusStarting
		if became {
			m.status = StatusRunning
		}
		model := m.spawnModel
		m.mu.Unlock()
		if became {
			logging.InfoLogger.Info().Msgf("Server is ready (model: %s)", orNone(model))
			m.bus.Publish(EventServerStatus, StatusRunning)
			m.notifier.Send("Server started", fmt.Sprintf("The FLM server is running with %s.", orNone(model)))
		}
		return
	}

	code, ok := m.matcher.Stopped(line)
	if !ok {
		return
	}
	m.mu.Lock()
	changed := m.status != StatusStopped
	m.status = StatusStopped
	restart := m.pending
	m.pending = nil
	if restart != nil {
		m.scheduled = restart
	}
	m.mu.Unlock()

	if changed {
		m.bus.Publish(EventServerStatus, StatusStopped)
	}
	if m.matcher.Graceful(line) {
		m.notifier.Send("Server stopped", "The FLM server has stopped.")
	} else {
		logging.ErrorLogger.Error().Msgf("Server exited with code %d", code)
		m.notifier.Send("Server error", fmt.Sprintf("The FLM server exited with code %d.", code))
	}
	if restart != nil {
		logging.InfoLogger.Info().Msgf("Restarting server in %s with new options", m.restartDelay)
		time.AfterFunc(m.restartDelay, m.restart)
	}
}

func (m *ServerManager) restart() {
	m.mu.Lock()
	opts := m.scheduled
	m.scheduled = nil
	m.mu.Unlock()
	if opts == nil {
		return
	}
	if err := m.start(opts); err != nil {
		logging.ErrorLogger.Error().Msgf("Failed to restart server: %v", err)
		m.bus.Publish(EventError, err)
	}
}

// Toggle stops a starting or running server and starts a stopped one.
func (m *ServerManager) Toggle() error {
	if m.Status() == StatusStopped {
		return m.Start()
	}
	m.Stop()
	return nil
}

// Start launches the server with the current selection and options.
func (m *ServerManager) Start() error {
	return m.start(nil)
}

func (m *ServerManager) start(override *config.ServerOptions) error {
	m.mu.Lock()
	if m.status != StatusStopped {
		m.mu.Unlock()
		return ErrServerActive
	}
	if m.selection == "" {
		m.mu.Unlock()
		return ErrNoSelection
	}
	opts := m.options
	if override != nil {
		opts = *override
	}
	model := m.spawnModel
	m.status = StatusStarting
	m.scheduled = nil
	m.mu.Unlock()

	m.logs.Clear()
	m.bus.Publish(EventServerStatus, StatusStarting)
	m.AddLog(fmt.Sprintf("Starting server with model %s...", orNone(model)))

	if err := m.runner.StartServer(model, opts, m.HandleLog); err != nil {
		m.mu.Lock()
		m.status = StatusStopped
		m.pending = nil
		m.mu.Unlock()
		m.AddLog(fmt.Sprintf("Failed to start server: %v", err))
		m.bus.Publish(EventServerStatus, StatusStopped)
		return err
	}
	return nil
}

// Stop asks a starting or running server to exit and drops any queued
// restart. It returns once the stop has been carried out; the status
// follows when the process reports its exit. Stopping a stopped server does
// nothing.
func (m *ServerManager) Stop() {
	m.mu.Lock()
	m.pending = nil
	m.scheduled = nil
	active := m.status != StatusStopped
	m.mu.Unlock()
	if !active {
		return
	}
	m.runner.StopServer(m.AddLog)
}

// SetOptions replaces the server options.
func (m *ServerManager) SetOptions(opts config.ServerOptions) {
	m.UpdateOptions(func(o *config.ServerOptions) { *o = opts })
}

// UpdateOptions edits the server options in place. A running server is
// restarted with the result.
func (m *ServerManager) UpdateOptions(fn func(*config.ServerOptions)) {
	m.mu.Lock()
	opts := m.options
	fn(&opts)
	if opts == m.options {
		m.mu.Unlock()
		return
	}
	m.options = opts
	restart := m.queueRestartLocked()
	selection := m.selection
	m.mu.Unlock()

	m.bus.Publish(EventOptionsChanged, opts)
	m.changed(selection, opts)
	if restart {
		m.runner.StopServer(m.AddLog)
	}
}

func (m *ServerManager) ToggleASR() {
	m.UpdateOptions(func(o *config.ServerOptions) { o.ASR = !o.ASR })
}

func (m *ServerManager) ToggleEmbed() {
	m.UpdateOptions(func(o *config.ServerOptions) { o.Embed = !o.Embed })
}

// Select selects a model name, a preset id, or nothing. A preset overlays
// its options and decides the model that is spawned.
func (m *ServerManager) Select(id string) error {
	m.mu.Lock()
	if id == m.selection {
		m.mu.Unlock()
		return nil
	}
	opts := m.options
	spawn := id
	if config.IsPresetID(id) {
		p, ok := config.FindPreset(id, m.presets)
		if !ok {
			m.mu.Unlock()
			return fmt.Errorf("%s: %w", id, ErrUnknownPreset)
		}
		opts = p.Options.Apply(opts)
		spawn = p.Model
	}
	opts = m.inferContextLocked(spawn, opts)

	m.selection = id
	m.spawnModel = spawn
	optionsChanged := opts != m.options
	m.options = opts
	restart := m.queueRestartLocked()
	m.mu.Unlock()

	logging.DebugLogger.Debug().Msgf("Selected %q (model %q)", id, spawn)
	m.bus.Publish(EventSelectionChanged, id)
	if optionsChanged {
		m.bus.Publish(EventOptionsChanged, opts)
	}
	m.changed(id, opts)
	if restart {
		m.runner.StopServer(m.AddLog)
	}
	return nil
}

// SetInstalledModels records the installed models and fills in the context
// length of the selected one when none is set.
func (m *ServerManager) SetInstalledModels(models []catalog.Model) {
	m.mu.Lock()
	m.installed = append([]catalog.Model(nil), models...)
	opts := m.inferContextLocked(m.spawnModel, m.options)
	changed := opts != m.options
	m.options = opts
	selection := m.selection
	m.mu.Unlock()

	if changed {
		m.bus.Publish(EventOptionsChanged, opts)
		m.changed(selection, opts)
	}
}

// InstalledModels returns the models last recorded by SetInstalledModels.
func (m *ServerManager) InstalledModels() []catalog.Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]catalog.Model(nil), m.installed...)
}

// SetPresets replaces the user-defined presets.
func (m *ServerManager) SetPresets(presets []config.ServerPreset) {
	m.mu.Lock()
	m.presets = append([]config.ServerPreset(nil), presets...)
	m.mu.Unlock()
}

// Presets returns the built-in presets followed by the user-defined ones.
func (m *ServerManager) Presets() []config.ServerPreset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return config.AllPresets(m.presets)
}

func (m *ServerManager) inferContextLocked(model string, opts config.ServerOptions) config.ServerOptions {
	if opts.CtxLen != 0 || model == "" {
		return opts
	}
	if found, ok := catalog.Find(m.installed, model); ok && found.ContextLength > 0 {
		opts.CtxLen = found.ContextLength
	}
	return opts
}

// queueRestartLocked records the current options for a restart when the
// server is running, and refreshes a restart that is already scheduled.
func (m *ServerManager) queueRestartLocked() bool {
	o := m.options
	if m.scheduled != nil {
		m.scheduled = &o
	}
	if m.status != StatusRunning {
		return false
	}
	m.pending = &o
	return true
}

func (m *ServerManager) changed(selection string, opts config.ServerOptions) {
	if m.onChange != nil {
		m.onChange(selection, opts)
	}
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
