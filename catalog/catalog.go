// Package catalog reads the model_list.json shipped with the runtime and
// merges its metadata into the plain model names printed by `flm list`.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/flmcompanion/flmcompanion/logging"
	"github.com/flmcompanion/flmcompanion/utils"
)

// FileName is the catalog file name inside the runtime install directory.
const FileName = "model_list.json"

// Model describes one model known to the catalog or installed locally.
// Two models are the same iff their names match.
type Model struct {
	Name          string `json:"name"`
	Size          string `json:"size"`
	RealSize      int64  `json:"realSize,omitempty"`
	Modified      string `json:"modified"`
	Description   string `json:"description,omitempty"`
	Family        string `json:"family,omitempty"`
	IsThink       bool   `json:"isThink,omitempty"`
	IsVLM         bool   `json:"isVlm,omitempty"`
	IsEmbedding   bool   `json:"isEmbedding,omitempty"`
	IsAudio       bool   `json:"isAudio,omitempty"`
	ContextLength int    `json:"contextLength,omitempty"`
	Quantization  string `json:"quantization,omitempty"`
	URL           string `json:"url,omitempty"`
	ParameterSize string `json:"parameterSize,omitempty"`
}

type document struct {
	ModelPath string                      `json:"model_path"`
	Models    map[string]map[string]entry `json:"models"`
}

type entry struct {
	Name                 string  `json:"name"`
	URL                  string  `json:"url"`
	ModifiedAt           string  `json:"modified_at"`
	Size                 int64   `json:"size"`
	DefaultContextLength int     `json:"default_context_length"`
	VLM                  bool    `json:"vlm"`
	Details              details `json:"details"`
}

type details struct {
	Format            string `json:"format"`
	Family            string `json:"family"`
	Think             bool   `json:"think"`
	ParameterSize     string `json:"parameter_size"`
	QuantizationLevel string `json:"quantization_level"`
}

// Read parses the catalog at path into a map keyed "family:tag".
// Any failure yields an empty map and a logged warning.
func Read(path string) map[string]Model {
	out := make(map[string]Model)

	data, err := os.ReadFile(path)
	if err != nil {
		logging.WarnLogger.Warn().Msgf("Could not read %s: %v", path, err)
		return out
	}
	doc, err := parse(data)
	if err != nil {
		logging.WarnLogger.Warn().Msgf("Could not parse %s: %v", path, err)
		return out
	}

	for family, tags := range doc.Models {
		for tag, e := range tags {
			name := family + ":" + tag
			out[name] = e.toModel(name)
		}
	}
	logging.DebugLogger.Debug().Msgf("Loaded %d catalog entries from %s", len(out), path)
	return out
}

// ReadDir reads FileName from dir.
func ReadDir(dir string) map[string]Model {
	return Read(filepath.Join(dir, FileName))
}

func parse(data []byte) (document, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, err
	}
	if doc.Models == nil {
		return doc, fmt.Errorf("no models section")
	}
	return doc, nil
}

func (e entry) toModel(name string) Model {
	family := e.Details.Family
	lower := strings.ToLower(name + " " + family)
	return Model{
		Name:          name,
		Size:          FormatSize(e.Size),
		RealSize:      e.Size,
		Modified:      e.ModifiedAt,
		Description:   e.Name,
		Family:        family,
		IsThink:       e.Details.Think,
		IsVLM:         e.VLM,
		IsEmbedding:   strings.Contains(lower, "embed"),
		IsAudio:       strings.Contains(lower, "whisper"),
		ContextLength: e.DefaultContextLength,
		Quantization:  e.Details.QuantizationLevel,
		URL:           e.URL,
		ParameterSize: e.Details.ParameterSize,
	}
}

// DefaultInstallDir is where the runtime installer puts its files.
func DefaultInstallDir() string {
	if runtime.GOOS == "windows" {
		return `C:\Program Files\flm`
	}
	return "/opt/flm"
}

// ResolveDir picks the directory holding the catalog: flmPath when it is a
// directory, the directory of flmPath when it names an executable, else the
// directory found by lookup, else the install default.
func ResolveDir(flmPath string, lookup func() (string, bool)) string {
	if flmPath != "" && utils.IsDir(flmPath) {
		return flmPath
	}
	// an explicit executable path wins over the search path
	if strings.ContainsAny(flmPath, `/\`) {
		return utils.DirOf(flmPath)
	}
	if lookup != nil {
		if dir, ok := lookup(); ok && dir != "" {
			return dir
		}
	}
	return DefaultInstallDir()
}
