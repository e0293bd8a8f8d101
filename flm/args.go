package flm

import (
	"strconv"

	"github.com/flmcompanion/flmcompanion/config"
)

// ServeArgs builds `serve [model] [flags]`. Numeric flags are left out when
// not positive; boolean flags are always given as 0 or 1.
func ServeArgs(model string, o config.ServerOptions) []string {
	args := []string{"serve"}
	if model != "" {
		args = append(args, model)
	}
	if o.PMode != "" {
		args = append(args, "--pmode", string(o.PMode))
	}
	args = appendPositive(args, "--ctx-len", o.CtxLen)
	args = appendPositive(args, "--port", o.Port)
	if o.Host != "" {
		args = append(args, "--host", o.Host)
	}
	args = appendPositive(args, "--socket", o.Socket)
	args = appendPositive(args, "--q-len", o.QLen)
	args = append(args,
		"--asr", flag(o.ASR),
		"--embed", flag(o.Embed),
		"--cors", flag(o.CORS),
		"--preemption", flag(o.Preemption),
	)
	return args
}

// RunArgs builds `run <model> [flags]`; chat sessions only take a subset of the server flags.
func RunArgs(model string, o config.ServerOptions) []string {
	args := []string{"run", model}
	if o.PMode != "" {
		args = append(args, "--pmode", string(o.PMode))
	}
	args = appendPositive(args, "--ctx-len", o.CtxLen)
	args = append(args, "--asr", flag(o.ASR), "--embed", flag(o.Embed))
	return args
}

// ListArgs builds `list --quiet [--filter f]`.
func ListArgs(filter Filter) []string {
	args := []string{"list", "--quiet"}
	if filter != FilterAll && filter != "" {
		args = append(args, "--filter", string(filter))
	}
	return args
}

func appendPositive(args []string, name string, v int) []string {
	if v > 0 {
		return append(args, name, strconv.Itoa(v))
	}
	return args
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
