package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/flmcompanion/flmcompanion/logging"
)

// Notification is a user-facing message about a background event.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Sender delivers notifications somewhere the user will see them.
type Sender interface {
	Notify(title, body string) error
}

// NotificationService sends notifications only while the application is
// not in front of the user, unless asked to send regardless.
type NotificationService struct {
	Visible func() bool
	Sender  Sender
}

func NewNotificationService(visible func() bool, sender Sender) *NotificationService {
	return &NotificationService{Visible: visible, Sender: sender}
}

// Send delivers the notification when the application is not visible.
func (n *NotificationService) Send(title, body string) {
	if n == nil {
		return
	}
	if n.Visible != nil && n.Visible() {
		logging.DebugLogger.Debug().Msgf("Notification suppressed while visible: %s", title)
		return
	}
	n.SendAlways(title, body)
}

// SendAlways delivers the notification whatever the visibility.
func (n *NotificationService) SendAlways(title, body string) {
	if n == nil || n.Sender == nil {
		return
	}
	if err := n.Sender.Notify(title, body); err != nil {
		logging.WarnLogger.Warn().Msgf("Failed to send notification %q: %v", title, err)
	}
}

// Senders fans a notification out to several senders.
type Senders []Sender

func (s Senders) Notify(title, body string) error {
	var errs []error
	for _, sender := range s {
		if err := sender.Notify(title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSender records notifications in the application log and on the bus.
type LogSender struct {
	Bus *EventBus
}

func (s LogSender) Notify(title, body string) error {
	logging.InfoLogger.Info().Msgf("Notification: %s: %s", title, body)
	s.Bus.Publish(EventNotification, Notification{Title: title, Body: body})
	return nil
}

// ScriptRunner runs a script with the platform shell.
type ScriptRunner interface {
	RunScript(ctx context.Context, script string) (string, error)
}

// DesktopSender shows native desktop notifications through the platform shell.
type DesktopSender struct {
	Runner  ScriptRunner
	GOOS    string
	AppName string
	Timeout time.Duration
}

func NewDesktopSender(runner ScriptRunner) DesktopSender {
	return DesktopSender{Runner: runner, GOOS: runtime.GOOS, AppName: "FLM Companion", Timeout: 10 * time.Second}
}

func (s DesktopSender) Notify(title, body string) error {
	script := desktopScript(s.GOOS, s.AppName, title, body)
	if script == "" {
		return fmt.Errorf("desktop notifications are not supported on %s", s.GOOS)
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := s.Runner.RunScript(ctx, script)
	return err
}

func desktopScript(goos, app, title, body string) string {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "notify-send --app-name=" + shellQuote(app) + " " + shellQuote(title) + " " + shellQuote(body)
	case "darwin":
		apple := fmt.Sprintf("display notification %s with title %s", appleQuote(body), appleQuote(title))
		return "osascript -e " + shellQuote(apple)
	case "windows":
		return fmt.Sprintf(windowsToast, psQuote(title), psQuote(body), psQuote(app))
	}
	return ""
}

const windowsToast = `[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] > $null
$t = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
$x = $t.GetElementsByTagName('text')
$x.Item(0).AppendChild($t.CreateTextNode(%s)) > $null
$x.Item(1).AppendChild($t.CreateTextNode(%s)) > $null
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier(%s).Show([Windows.UI.Notifications.ToastNotification]::new($t))`

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
