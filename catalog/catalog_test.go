package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `{
  "model_path": "models",
  "models": {
    "llama3.2": {
      "1b": {
        "name": "Llama-3.2-1B-NPU2",
        "url": "https://huggingface.co/FastFlowLM/Llama-3.2-1B-NPU2",
        "modified_at": "2025-06-01T10:00:00Z",
        "size": 1717986918,
        "default_context_length": 131072,
        "details": {
          "format": "NPU2",
          "family": "llama",
          "think": false,
          "parameter_size": "1.2B",
          "quantization_level": "Q4_1"
        }
      }
    },
    "gemma3": {
      "4b": {
        "name": "Gemma-3-4B-NPU2",
        "url": "https://huggingface.co/FastFlowLM/gemma3-4b",
        "modified_at": "2025-07-01T10:00:00Z",
        "size": 524288000,
        "default_context_length": 8192,
        "vlm": true,
        "details": {
          "format": "NPU2",
          "family": "gemma3",
          "think": true,
          "parameter_size": "4B",
          "quantization_level": "Q4_0"
        }
      }
    },
    "embed-gemma": {
      "300m": {
        "name": "EmbeddingGemma",
        "size": 0,
        "details": {"family": "gemma3"}
      }
    },
    "whisper-v3": {
      "turbo": {"name": "Whisper", "size": 1073741824, "details": {"family": "whisper"}}
    }
  }
}`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))
	return dir
}

func TestReadDir(t *testing.T) {
	meta := ReadDir(writeCatalog(t, sampleCatalog))
	require.Len(t, meta, 4)

	llama := meta["llama3.2:1b"]
	assert.Equal(t, "llama3.2:1b", llama.Name)
	assert.Equal(t, "1.6GB", llama.Size)
	assert.Equal(t, int64(1717986918), llama.RealSize)
	assert.Equal(t, "Llama-3.2-1B-NPU2", llama.Description)
	assert.Equal(t, "llama", llama.Family)
	assert.Equal(t, 131072, llama.ContextLength)
	assert.Equal(t, "Q4_1", llama.Quantization)
	assert.Equal(t, "1.2B", llama.ParameterSize)
	assert.False(t, llama.IsVLM)

	gemma := meta["gemma3:4b"]
	assert.Equal(t, "500MB", gemma.Size)
	assert.True(t, gemma.IsVLM)
	assert.True(t, gemma.IsThink)

	assert.True(t, meta["embed-gemma:300m"].IsEmbedding)
	assert.Equal(t, "0MB", meta["embed-gemma:300m"].Size)
	assert.True(t, meta["whisper-v3:turbo"].IsAudio)
	assert.Equal(t, "1.0GB", meta["whisper-v3:turbo"].Size)
}

func TestReadFailuresAreNonFatal(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{name: "missing file", path: func(t *testing.T) string { return filepath.Join(t.TempDir(), FileName) }},
		{name: "invalid JSON", path: func(t *testing.T) string { return filepath.Join(writeCatalog(t, "{not json"), FileName) }},
		{name: "no models section", path: func(t *testing.T) string { return filepath.Join(writeCatalog(t, `{"model_path":"x"}`), FileName) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := Read(tt.path(t))
			assert.NotNil(t, meta)
			assert.Empty(t, meta)
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0MB"},
		{1, "0MB"},
		{5 * mib, "5MB"},
		{gib - 1, "1024MB"},
		{gib, "1.0GB"},
		{3*gib + gib/2, "3.5GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSize(tt.bytes), "FormatSize(%d)", tt.bytes)
	}
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "-", FormatDate(""))
	assert.Equal(t, "-", FormatDate("-"))
	assert.Equal(t, "2025-06-01", FormatDate("2025-06-01T10:00:00Z"))
	assert.Equal(t, "yesterday", FormatDate("yesterday"))
}

func TestParseList(t *testing.T) {
	out := "NAME    SIZE\n" +
		"----------------\n" +
		"Models:\n" +
		"- llama3.2:1b   1.6GB\n" +
		"\n" +
		"  • gemma3:4b\n" +
		"> qwen3:8b\n" +
		"custom-model\r\n"

	assert.Equal(t, []string{"llama3.2:1b", "gemma3:4b", "qwen3:8b", "custom-model"}, ParseList(out))
	assert.Empty(t, ParseList(""))
}

func TestMerge(t *testing.T) {
	meta := ReadDir(writeCatalog(t, sampleCatalog))
	models := Merge([]string{"gemma3:4b", "mystery:7b", "plain"}, meta)
	require.Len(t, models, 3)

	assert.Equal(t, meta["gemma3:4b"], models[0])
	assert.Equal(t, "Q4_0", models[0].Quantization)
	assert.Equal(t, 8192, models[0].ContextLength)

	assert.Equal(t, Model{Name: "mystery:7b", Size: "7b", Modified: "-"}, models[1])
	assert.Equal(t, Model{Name: "plain", Size: "-", Modified: "-"}, models[2])

	m, ok := Find(models, "plain")
	assert.True(t, ok)
	assert.Equal(t, "plain", m.Name)
	_, ok = Find(models, "nope")
	assert.False(t, ok)
}

func TestResolveDir(t *testing.T) {
	dir := t.TempDir()
	found := func() (string, bool) { return "/found/on/path", true }
	missing := func() (string, bool) { return "", false }

	assert.Equal(t, dir, ResolveDir(dir, missing))
	assert.Equal(t, "/usr/local/flm", ResolveDir("/usr/local/flm/flm", found))
	assert.Equal(t, "/found/on/path", ResolveDir("flm", found))
	assert.Equal(t, DefaultInstallDir(), ResolveDir("flm", missing))
	assert.Equal(t, DefaultInstallDir(), ResolveDir("", nil))
}
