package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/flmcompanion/flmcompanion/catalog"
	"github.com/flmcompanion/flmcompanion/config"
	"github.com/flmcompanion/flmcompanion/core"
	"github.com/flmcompanion/flmcompanion/flm"
	"github.com/flmcompanion/flmcompanion/logging"
	"github.com/flmcompanion/flmcompanion/styles"
	"github.com/spf13/cobra"
)

// settleDelay is how long a stopped server is given to come back after an
// options change before serve gives up on it.
const settleDelay = time.Second

// nextModel returns the installed model after current, wrapping around.
// A selection that is not an installed model moves to the first one.
func nextModel(models []catalog.Model, current string) string {
	if len(models) == 0 {
		return ""
	}
	for i, m := range models {
		if m.Name == current {
			return models[(i+1)%len(models)].Name
		}
	}
	return models[0].Name
}

// nextPreset returns the preset id after current, wrapping around.
func nextPreset(presets []config.ServerPreset, current string) string {
	if len(presets) == 0 {
		return ""
	}
	for i, p := range presets {
		if p.ID == current {
			return presets[(i+1)%len(presets)].ID
		}
	}
	return presets[0].ID
}

// selectionLabel names a selection the way the dashboard shows it.
func selectionLabel(id string, presets []config.ServerPreset) string {
	if id == "" {
		return "None"
	}
	for _, p := range presets {
		if p.ID == id {
			return "Preset: " + p.DisplayName(config.EnglishName)
		}
	}
	return id
}

// serveOptions applies command line overrides to the current options.
type serveOptions struct {
	pmode  string
	ctxLen int
	port   int
	host   string
	asr    bool
	embed  bool

	set map[string]bool
}

// markChanged records which option flags were given on the command line.
func (o *serveOptions) markChanged(cmd *cobra.Command) {
	o.set = map[string]bool{}
	for _, name := range []string{"pmode", "ctx-len", "port", "host", "asr", "embed"} {
		o.set[name] = cmd.Flags().Changed(name)
	}
}

func (o serveOptions) apply(opts config.ServerOptions) (config.ServerOptions, error) {
	if o.set["pmode"] {
		mode := config.PerformanceMode(o.pmode)
		if !mode.Valid() {
			return opts, fmt.Errorf("invalid performance mode %q", o.pmode)
		}
		opts.PMode = mode
	}
	if o.set["ctx-len"] {
		opts.CtxLen = o.ctxLen
	}
	if o.set["port"] {
		opts.Port = o.port
	}
	if o.set["host"] {
		opts.Host = o.host
	}
	if o.set["asr"] {
		opts.ASR = o.asr
	}
	if o.set["embed"] {
		opts.Embed = o.embed
	}
	return opts, opts.Validate()
}

// patch turns the given flags into a preset overlay.
func (o serveOptions) patch() (config.ServerOptionsPatch, error) {
	var p config.ServerOptionsPatch
	if o.set["pmode"] {
		mode := config.PerformanceMode(o.pmode)
		if !mode.Valid() {
			return p, fmt.Errorf("invalid performance mode %q", o.pmode)
		}
		p.PMode = &mode
	}
	if o.set["ctx-len"] {
		if o.ctxLen < 0 {
			return p, fmt.Errorf("context length must not be negative, got %d", o.ctxLen)
		}
		p.CtxLen = &o.ctxLen
	}
	if o.set["port"] {
		p.Port = &o.port
	}
	if o.set["host"] {
		p.Host = &o.host
	}
	if o.set["asr"] {
		p.ASR = &o.asr
	}
	if o.set["embed"] {
		p.Embed = &o.embed
	}
	return p, nil
}

// serve runs the server in the foreground, printing its log until ctx is
// cancelled or the server stops for good.
func serve(ctx context.Context, svc *core.Service, out io.Writer, colour bool) error {
	bus := svc.GetEventBus()
	logs := bus.Subscribe(core.EventServerLog)
	status := bus.Subscribe(core.EventServerStatus)

	if err := svc.Server().Start(); err != nil {
		return err
	}

	emit := func(line string) {
		if colour {
			line = styles.LogLineStyle(line).Render(line)
		}
		fmt.Fprintln(out, line)
	}

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			logging.InfoLogger.Info().Msgf("Interrupted, stopping server")
			svc.Server().Stop()
			for _, line := range drain(logs) {
				emit(line)
			}
			return nil
		case ev, ok := <-logs:
			if !ok {
				return nil
			}
			if line, ok := ev.Data.(string); ok {
				emit(line)
			}
		case ev := <-status:
			if ev.Data == core.StatusStopped {
				settle = time.After(settleDelay)
			} else {
				settle = nil
			}
		case <-settle:
			if svc.Server().Status() != core.StatusStopped {
				settle = nil
				continue
			}
			for _, line := range drain(logs) {
				emit(line)
			}
			return exitError(svc.Gateway().Matcher(), svc.Server().Logs())
		}
	}
}

func drain(ch <-chan core.Event) []string {
	var lines []string
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return lines
			}
			if line, ok := ev.Data.(string); ok {
				lines = append(lines, line)
			}
		default:
			return lines
		}
	}
}

var errServerFailed = errors.New("server exited with an error")

// exitError inspects the session log for the termination line.
func exitError(matcher flm.Matcher, logs []string) error {
	for i := len(logs) - 1; i >= 0; i-- {
		if _, ok := matcher.Stopped(logs[i]); ok {
			if matcher.Graceful(logs[i]) {
				return nil
			}
			return errServerFailed
		}
	}
	return nil
}
