package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// PresetPrefix marks a selection id as a preset rather than a model name.
const PresetPrefix = "preset:"

// ServerPreset bundles a target model with an options overlay.
// Built-in presets carry a NameKey for translation, user presets a literal Name.
type ServerPreset struct {
	ID      string             `json:"id" mapstructure:"id" yaml:"id" toml:"id"`
	Name    string             `json:"name,omitempty" mapstructure:"name" yaml:"name,omitempty" toml:"name,omitempty"`
	NameKey string             `json:"nameKey,omitempty" mapstructure:"nameKey" yaml:"nameKey,omitempty" toml:"nameKey,omitempty"`
	Model   string             `json:"model" mapstructure:"model" yaml:"model" toml:"model"`
	Options ServerOptionsPatch `json:"options" mapstructure:"options" yaml:"options" toml:"options"`
	Builtin bool               `json:"-" mapstructure:"-" yaml:"-" toml:"-"`
}

// BuiltinPresets are always available and cannot be edited.
var BuiltinPresets = []ServerPreset{
	{
		ID:      "preset:chat",
		NameKey: "presets.chat",
		Options: ServerOptionsPatch{PMode: ptr(Performance), ASR: ptr(false), Embed: ptr(false)},
		Builtin: true,
	},
	{
		ID:      "preset:long-context",
		NameKey: "presets.longContext",
		Options: ServerOptionsPatch{PMode: ptr(Turbo), CtxLen: ptr(32768)},
		Builtin: true,
	},
	{
		ID:      "preset:transcription",
		NameKey: "presets.transcription",
		Options: ServerOptionsPatch{ASR: ptr(true), Embed: ptr(false)},
		Builtin: true,
	},
	{
		ID:      "preset:embeddings",
		NameKey: "presets.embeddings",
		Options: ServerOptionsPatch{Embed: ptr(true)},
		Builtin: true,
	},
	{
		ID:      "preset:low-power",
		NameKey: "presets.lowPower",
		Options: ServerOptionsPatch{PMode: ptr(PowerSaver)},
		Builtin: true,
	},
}

var presetNames = map[string]string{
	"presets.chat":          "Chat",
	"presets.longContext":   "Long context",
	"presets.transcription": "Transcription",
	"presets.embeddings":    "Embeddings",
	"presets.lowPower":      "Low power",
}

// EnglishName translates a preset name key, falling back to the key itself.
func EnglishName(key string) string {
	if name, ok := presetNames[key]; ok {
		return name
	}
	return key
}

func IsPresetID(id string) bool {
	return strings.HasPrefix(id, PresetPrefix)
}

// AllPresets returns the built-in presets followed by the user's.
func AllPresets(user []ServerPreset) []ServerPreset {
	all := make([]ServerPreset, 0, len(BuiltinPresets)+len(user))
	all = append(all, BuiltinPresets...)
	all = append(all, user...)
	return all
}

func FindPreset(id string, user []ServerPreset) (ServerPreset, bool) {
	for _, p := range AllPresets(user) {
		if p.ID == id {
			return p, true
		}
	}
	return ServerPreset{}, false
}

// DisplayName returns the translated name for built-ins and the literal name otherwise.
func (p ServerPreset) DisplayName(t func(string) string) string {
	if p.NameKey != "" && t != nil {
		return t(p.NameKey)
	}
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// NewUserPreset creates a user preset with a fresh id.
func NewUserPreset(name, model string, patch ServerOptionsPatch) ServerPreset {
	return ServerPreset{
		ID:      PresetPrefix + "user-" + uuid.NewString(),
		Name:    name,
		Model:   model,
		Options: patch,
	}
}

type presetFile struct {
	Presets []ServerPreset `json:"presets" yaml:"presets" toml:"presets"`
}

// LoadPresets reads user presets from a .yaml/.yml, .json or .toml file.
// Ids missing the preset prefix are regenerated.
func LoadPresets(path string) ([]ServerPreset, error) {
	if path == "" {
		return nil, fmt.Errorf("empty presets path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f presetFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &f)
	case ".json":
		err = json.Unmarshal(b, &f)
	case ".toml":
		err = toml.Unmarshal(b, &f)
	default:
		return nil, fmt.Errorf("unsupported presets extension: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode presets file: %w", err)
	}

	for i := range f.Presets {
		if !IsPresetID(f.Presets[i].ID) {
			f.Presets[i].ID = PresetPrefix + "user-" + uuid.NewString()
		}
		if f.Presets[i].PMode() != nil && !f.Presets[i].PMode().Valid() {
			return nil, fmt.Errorf("preset %s: invalid performance mode %q", f.Presets[i].ID, *f.Presets[i].PMode())
		}
		f.Presets[i].NameKey = ""
		f.Presets[i].Builtin = false
	}
	return f.Presets, nil
}

// SavePresets writes presets in the format chosen by the file extension.
func SavePresets(path string, presets []ServerPreset) error {
	f := presetFile{Presets: presets}
	var (
		b   []byte
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		b, err = yaml.Marshal(f)
	case ".json":
		b, err = json.MarshalIndent(f, "", "  ")
	case ".toml":
		b, err = toml.Marshal(f)
	default:
		return fmt.Errorf("unsupported presets extension: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to encode presets: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// PMode is a shorthand for the preset's performance mode override.
func (p ServerPreset) PMode() *PerformanceMode {
	return p.Options.PMode
}
