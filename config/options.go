package config

import "fmt"

// PerformanceMode is the runtime's --pmode level.
type PerformanceMode string

const (
	PowerSaver  PerformanceMode = "powersaver"
	Balanced    PerformanceMode = "balanced"
	Performance PerformanceMode = "performance"
	Turbo       PerformanceMode = "turbo"
)

// PerformanceModes lists the modes in ascending power order.
var PerformanceModes = []PerformanceMode{PowerSaver, Balanced, Performance, Turbo}

func (m PerformanceMode) Valid() bool {
	for _, p := range PerformanceModes {
		if p == m {
			return true
		}
	}
	return false
}

// ServerOptions are the settings a server or chat process is started with.
// A running process never sees changes; they take effect on the next start.
type ServerOptions struct {
	PMode      PerformanceMode `json:"pmode" mapstructure:"pmode" yaml:"pmode" toml:"pmode"`
	CtxLen     int             `json:"ctxLen" mapstructure:"ctxLen" yaml:"ctxLen" toml:"ctxLen"` // 0 means the model default
	Port       int             `json:"port" mapstructure:"port" yaml:"port" toml:"port"`
	Host       string          `json:"host" mapstructure:"host" yaml:"host" toml:"host"`
	ASR        bool            `json:"asr" mapstructure:"asr" yaml:"asr" toml:"asr"`
	Embed      bool            `json:"embed" mapstructure:"embed" yaml:"embed" toml:"embed"`
	Socket     int             `json:"socket" mapstructure:"socket" yaml:"socket" toml:"socket"`
	QLen       int             `json:"qLen" mapstructure:"qLen" yaml:"qLen" toml:"qLen"`
	CORS       bool            `json:"cors" mapstructure:"cors" yaml:"cors" toml:"cors"`
	Preemption bool            `json:"preemption" mapstructure:"preemption" yaml:"preemption" toml:"preemption"`
}

// DefaultServerOptions returns the options used on first run.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		PMode:  Performance,
		CtxLen: 0,
		Port:   52625,
		ASR:    false,
		Embed:  false,
		Socket: 10,
		QLen:   10,
		CORS:   true,
	}
}

// Validate reports the first field outside its allowed range.
func (o ServerOptions) Validate() error {
	if o.PMode != "" && !o.PMode.Valid() {
		return fmt.Errorf("invalid performance mode %q", o.PMode)
	}
	if o.CtxLen < 0 {
		return fmt.Errorf("context length must not be negative, got %d", o.CtxLen)
	}
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("port out of range: %d", o.Port)
	}
	if o.Socket < 0 || o.QLen < 0 {
		return fmt.Errorf("socket and queue limits must not be negative")
	}
	return nil
}

// ServerOptionsPatch is a partial ServerOptions; nil fields are left alone.
type ServerOptionsPatch struct {
	PMode      *PerformanceMode `json:"pmode,omitempty" mapstructure:"pmode" yaml:"pmode,omitempty" toml:"pmode,omitempty"`
	CtxLen     *int             `json:"ctxLen,omitempty" mapstructure:"ctxLen" yaml:"ctxLen,omitempty" toml:"ctxLen,omitempty"`
	Port       *int             `json:"port,omitempty" mapstructure:"port" yaml:"port,omitempty" toml:"port,omitempty"`
	Host       *string          `json:"host,omitempty" mapstructure:"host" yaml:"host,omitempty" toml:"host,omitempty"`
	ASR        *bool            `json:"asr,omitempty" mapstructure:"asr" yaml:"asr,omitempty" toml:"asr,omitempty"`
	Embed      *bool            `json:"embed,omitempty" mapstructure:"embed" yaml:"embed,omitempty" toml:"embed,omitempty"`
	Socket     *int             `json:"socket,omitempty" mapstructure:"socket" yaml:"socket,omitempty" toml:"socket,omitempty"`
	QLen       *int             `json:"qLen,omitempty" mapstructure:"qLen" yaml:"qLen,omitempty" toml:"qLen,omitempty"`
	CORS       *bool            `json:"cors,omitempty" mapstructure:"cors" yaml:"cors,omitempty" toml:"cors,omitempty"`
	Preemption *bool            `json:"preemption,omitempty" mapstructure:"preemption" yaml:"preemption,omitempty" toml:"preemption,omitempty"`
}

// Apply overlays the set fields of p onto o.
func (p ServerOptionsPatch) Apply(o ServerOptions) ServerOptions {
	if p.PMode != nil {
		o.PMode = *p.PMode
	}
	if p.CtxLen != nil {
		o.CtxLen = *p.CtxLen
	}
	if p.Port != nil {
		o.Port = *p.Port
	}
	if p.Host != nil {
		o.Host = *p.Host
	}
	if p.ASR != nil {
		o.ASR = *p.ASR
	}
	if p.Embed != nil {
		o.Embed = *p.Embed
	}
	if p.Socket != nil {
		o.Socket = *p.Socket
	}
	if p.QLen != nil {
		o.QLen = *p.QLen
	}
	if p.CORS != nil {
		o.CORS = *p.CORS
	}
	if p.Preemption != nil {
		o.Preemption = *p.Preemption
	}
	return o
}

// IsEmpty reports whether the patch changes nothing.
func (p ServerOptionsPatch) IsEmpty() bool {
	return p == ServerOptionsPatch{}
}

func ptr[T any](v T) *T { return &v }
