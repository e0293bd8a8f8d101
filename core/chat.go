package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/flmcompanion/flmcompanion/config"
	"github.com/flmcompanion/flmcompanion/flm"
	"github.com/flmcompanion/flmcompanion/logging"
)

// ChatState is the turn state of an interactive session.
type ChatState string

const (
	ChatIdle     ChatState = "idle"
	ChatLoading  ChatState = "loading" // spawned, still printing its banner
	ChatReady    ChatState = "ready"
	ChatThinking ChatState = "thinking"
)

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleSystem    ChatRole = "system"
)

type ChatEntry struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

var (
	ErrChatActive   = errors.New("chat session already running")
	ErrChatNotReady = errors.New("chat session is not ready for input")
	ErrEmptyMessage = errors.New("message is empty")
)

// ChatRunner runs an interactive runtime process. flm.Gateway implements it.
type ChatRunner interface {
	StartChat(model string, opts config.ServerOptions, onData func(flm.ChatEvent)) error
	SendChatMessage(text string) error
	StopChat()
}

// ChatSession turns the stdout stream of `flm run` into alternating user
// and assistant entries, using the input prompt to tell when a reply ends.
type ChatSession struct {
	runner  ChatRunner
	matcher flm.Matcher
	bus     *EventBus

	mu      sync.Mutex
	state   ChatState
	model   string
	entries []ChatEntry
}

func NewChatSession(runner ChatRunner, matcher flm.Matcher, bus *EventBus) *ChatSession {
	if matcher == nil {
		matcher = flm.SubstringMatcher{}
	}
	return &ChatSession{runner: runner, matcher: matcher, bus: bus, state: ChatIdle}
}

func (c *ChatSession) State() ChatState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *ChatSession) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// Entries returns a copy of the transcript.
func (c *ChatSession) Entries() []ChatEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatEntry(nil), c.entries...)
}

// Start spawns a chat process for model, replacing the previous transcript.
func (c *ChatSession) Start(model string, opts config.ServerOptions) error {
	if model == "" {
		return ErrNoSelection
	}
	c.mu.Lock()
	if c.state != ChatIdle {
		c.mu.Unlock()
		return ErrChatActive
	}
	c.state = ChatLoading
	c.model = model
	c.entries = []ChatEntry{{Role: RoleSystem, Content: fmt.Sprintf("Starting chat with %s...", model)}}
	c.mu.Unlock()
	c.publishState(ChatLoading)

	if err := c.runner.StartChat(model, opts, c.Handle); err != nil {
		logging.ErrorLogger.Error().Msgf("Failed to start chat with %s: %v", model, err)
		c.mu.Lock()
		c.state = ChatIdle
		c.mu.Unlock()
		c.append(ChatEntry{Role: RoleSystem, Content: fmt.Sprintf("Error: %v", err)})
		c.publishState(ChatIdle)
		return err
	}
	return nil
}

// Send writes a user turn to the process. It is only allowed when the
// session is ready.
func (c *ChatSession) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	c.mu.Lock()
	if c.state != ChatReady {
		c.mu.Unlock()
		return ErrChatNotReady
	}
	c.entries = append(c.entries,
		ChatEntry{Role: RoleUser, Content: text},
		ChatEntry{Role: RoleAssistant},
	)
	c.state = ChatThinking
	c.mu.Unlock()
	c.bus.Publish(EventChatEntry, ChatEntry{Role: RoleUser, Content: text})
	c.publishState(ChatThinking)

	if err := c.runner.SendChatMessage(text); err != nil {
		c.append(ChatEntry{Role: RoleSystem, Content: fmt.Sprintf("Error: %v", err)})
		return err
	}
	return nil
}

// Stop ends the session. The exit entry follows when the process is gone.
func (c *ChatSession) Stop() {
	if c.State() == ChatIdle {
		return
	}
	c.runner.StopChat()
}

// Handle consumes one event from the chat process.
func (c *ChatSession) Handle(ev flm.ChatEvent) {
	switch ev.Kind {
	case flm.ChatStdout:
		c.handleStdout(ev.Text)
	case flm.ChatStderr:
		c.append(ChatEntry{Role: RoleSystem, Content: "[LOG] " + ev.Text})
	case flm.ChatExit:
		c.mu.Lock()
		c.state = ChatIdle
		c.mu.Unlock()
		c.append(ChatEntry{Role: RoleSystem, Content: fmt.Sprintf("Process exited with code %d", ev.Code)})
		c.publishState(ChatIdle)
	}
}

func (c *ChatSession) handleStdout(text string) {
	c.mu.Lock()
	prev := c.state
	prompt := c.matcher.Prompt(text)
	clean := c.matcher.StripPrompt(text)
	if prompt {
		c.state = ChatReady
	}

	var entry *ChatEntry
	if !(prompt && strings.TrimSpace(clean) == "") {
		entry = c.placeLocked(prev, clean)
	}
	c.mu.Unlock()

	if entry != nil {
		c.bus.Publish(EventChatEntry, *entry)
	}
	if prompt && prev != ChatReady {
		c.publishState(ChatReady)
	}
}

// placeLocked adds a stdout chunk to the transcript according to the state
// the session was in before the chunk arrived.
func (c *ChatSession) placeLocked(prev ChatState, text string) *ChatEntry {
	n := len(c.entries)
	var last *ChatEntry
	if n > 0 {
		last = &c.entries[n-1]
	}
	switch {
	case last != nil && last.Role == RoleAssistant && prev != ChatReady:
		last.Content += text
		e := *last
		return &e
	case prev == ChatThinking && (last == nil || last.Role != RoleAssistant):
		c.entries = append(c.entries, ChatEntry{Role: RoleAssistant, Content: text})
	case prev != ChatReady && (last == nil || last.Role == RoleSystem):
		c.entries = append(c.entries, ChatEntry{Role: RoleSystem, Content: text})
	default:
		return nil
	}
	e := c.entries[len(c.entries)-1]
	return &e
}

func (c *ChatSession) append(e ChatEntry) {
	c.mu.Lock()
	c.entries = append(c.entries, e)
	c.mu.Unlock()
	c.bus.Publish(EventChatEntry, e)
}

func (c *ChatSession) publishState(s ChatState) {
	c.bus.Publish(EventChatState, s)
}
