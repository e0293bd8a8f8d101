package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPresetID(t *testing.T) {
	assert.True(t, IsPresetID("preset:chat"))
	assert.True(t, IsPresetID("preset:user-123"))
	assert.False(t, IsPresetID("llama3.2:1b"))
	assert.False(t, IsPresetID(""))
}

func TestFindPreset(t *testing.T) {
	user := []ServerPreset{{ID: "preset:user-x", Name: "X", Model: "gemma3:4b"}}

	p, ok := FindPreset("preset:transcription", user)
	require.True(t, ok)
	assert.True(t, p.Builtin)
	assert.Empty(t, p.Model)
	require.NotNil(t, p.Options.ASR)
	assert.True(t, *p.Options.ASR)

	p, ok = FindPreset("preset:user-x", user)
	require.True(t, ok)
	assert.Equal(t, "gemma3:4b", p.Model)

	_, ok = FindPreset("preset:missing", user)
	assert.False(t, ok)

	all := AllPresets(user)
	assert.Len(t, all, len(BuiltinPresets)+1)
	assert.Equal(t, "preset:user-x", all[len(all)-1].ID)
}

func TestDisplayName(t *testing.T) {
	builtin, _ := FindPreset("preset:low-power", nil)
	assert.Equal(t, "Low power", builtin.DisplayName(EnglishName))
	assert.Equal(t, "presets.lowPower", builtin.DisplayName(func(k string) string { return k }))

	assert.Equal(t, "Mine", ServerPreset{ID: "preset:user-1", Name: "Mine"}.DisplayName(EnglishName))
	assert.Equal(t, "preset:user-2", ServerPreset{ID: "preset:user-2"}.DisplayName(EnglishName))
}

func TestNewUserPreset(t *testing.T) {
	a := NewUserPreset("A", "m", ServerOptionsPatch{})
	b := NewUserPreset("B", "m", ServerOptionsPatch{})
	assert.True(t, strings.HasPrefix(a.ID, "preset:user-"))
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.Builtin)
}

func TestPresetsFileFormats(t *testing.T) {
	presets := []ServerPreset{
		{ID: "preset:user-1", Name: "Fast", Model: "qwen3:0.6b", Options: ServerOptionsPatch{PMode: ptr(Turbo), CtxLen: ptr(4096)}},
		{ID: "preset:user-2", Name: "Listen", Options: ServerOptionsPatch{ASR: ptr(true)}},
	}

	for _, ext := range []string{".json", ".yaml", ".yml", ".toml"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "presets"+ext)
			require.NoError(t, SavePresets(path, presets))

			got, err := LoadPresets(path)
			require.NoError(t, err)
			assert.Equal(t, presets, got)
		})
	}
}

func TestLoadPresetsNormalises(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.yaml")
	content := "presets:\n  - id: custom\n    name: Imported\n    nameKey: presets.chat\n    model: llama3.2:1b\n    options:\n      embed: true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	got, err := LoadPresets(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, IsPresetID(got[0].ID))
	assert.Empty(t, got[0].NameKey)
	assert.Equal(t, "Imported", got[0].Name)
}

func TestLoadPresetsErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadPresets("")
	assert.Error(t, err)

	txt := filepath.Join(dir, "p.txt")
	require.NoError(t, os.WriteFile(txt, []byte("nope"), 0644))
	_, err = LoadPresets(txt)
	assert.Error(t, err)

	bad := filepath.Join(dir, "p.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"presets":[{"id":"preset:user-1","options":{"pmode":"warp"}}]}`), 0644))
	_, err = LoadPresets(bad)
	assert.Error(t, err)

	assert.Error(t, SavePresets(filepath.Join(dir, "p.ini"), nil))
}
