package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, "dark", onDisk["theme"])
	assert.Equal(t, "flm", onDisk["flmPath"])
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		expected      func() Config
		expectedError bool
	}{
		{
			name:    "Saved values merge over defaults",
			content: `{"theme":"light","flmPath":"/opt/flm/flm","serverOptions":{"asr":true,"port":8080}}`,
			expected: func() Config {
				c := DefaultConfig()
				c.Theme = ThemeLight
				c.FlmPath = "/opt/flm/flm"
				c.ServerOptions.ASR = true
				c.ServerOptions.Port = 8080
				return c
			},
		},
		{
			name:    "Explicit false overrides a true default",
			content: `{"serverOptions":{"cors":false}}`,
			expected: func() Config {
				c := DefaultConfig()
				c.ServerOptions.CORS = false
				return c
			},
		},
		{
			name:    "Unknown performance mode falls back",
			content: `{"serverOptions":{"pmode":"ludicrous","ctxLen":4096}}`,
			expected: func() Config {
				c := DefaultConfig()
				c.ServerOptions.CtxLen = 4096
				return c
			},
		},
		{
			name:    "Unknown theme falls back to dark",
			content: `{"theme":"solarized"}`,
			expected: func() Config {
				return DefaultConfig()
			},
		},
		{
			name:    "User presets are decoded",
			content: `{"userPresets":[{"id":"preset:user-1","name":"Mine","model":"llama3.2:1b","options":{"asr":true,"ctxLen":2048}}]}`,
			expected: func() Config {
				c := DefaultConfig()
				c.UserPresets = []ServerPreset{{
					ID:      "preset:user-1",
					Name:    "Mine",
					Model:   "llama3.2:1b",
					Options: ServerOptionsPatch{ASR: ptr(true), CtxLen: ptr(2048)},
				}}
				return c
			},
		},
		{
			name:          "Invalid JSON",
			content:       `{"theme":`,
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			cfg, err := Load(path)
			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected(), cfg)
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Config{
		Theme:             ThemeSystem,
		StartMinimized:    true,
		FlmPath:           `C:\Program Files\flm\flm.exe`,
		LastSelectedModel: "preset:long-context",
		ServerOptions: ServerOptions{
			PMode:      Turbo,
			CtxLen:     8192,
			Port:       9000,
			Host:       "0.0.0.0",
			ASR:        true,
			Embed:      true,
			Socket:     4,
			QLen:       2,
			CORS:       false,
			Preemption: true,
		},
		UserPresets: []ServerPreset{
			NewUserPreset("Whisper", "", ServerOptionsPatch{ASR: ptr(true), PMode: ptr(Balanced)}),
		},
		LogLevel:    "debug",
		LogFilePath: "/tmp/flmc.log",
	}

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestEnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, Save(path, DefaultConfig()))
	t.Setenv("FLMC_FLMPATH", "/usr/local/bin/flm")
	t.Setenv("FLMC_SERVEROPTIONS_PORT", "1234")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/flm", cfg.FlmPath)
	assert.Equal(t, 1234, cfg.ServerOptions.Port)
}

func TestServerOptionsPatch(t *testing.T) {
	base := DefaultServerOptions()

	assert.Equal(t, base, ServerOptionsPatch{}.Apply(base))
	assert.True(t, ServerOptionsPatch{}.IsEmpty())

	got := ServerOptionsPatch{ASR: ptr(true), PMode: ptr(PowerSaver), CORS: ptr(false)}.Apply(base)
	want := base
	want.ASR = true
	want.PMode = PowerSaver
	want.CORS = false
	assert.Equal(t, want, got)
}

func TestServerOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerOptions)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*ServerOptions) {}},
		{name: "bad mode", mutate: func(o *ServerOptions) { o.PMode = "warp" }, wantErr: true},
		{name: "negative ctx", mutate: func(o *ServerOptions) { o.CtxLen = -1 }, wantErr: true},
		{name: "port too large", mutate: func(o *ServerOptions) { o.Port = 70000 }, wantErr: true},
		{name: "negative queue", mutate: func(o *ServerOptions) { o.QLen = -3 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultServerOptions()
			tt.mutate(&o)
			err := o.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStoreDebouncedSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := NewStore(path)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		n := i
		s.Update(func(c *Config) { c.ServerOptions.CtxLen = n * 1024 })
	}
	assert.Equal(t, 5*1024, s.Get().ServerOptions.CtxLen)

	require.Eventually(t, func() bool {
		cfg, err := Load(path)
		return err == nil && cfg.ServerOptions.CtxLen == 5*1024
	}, 3*time.Second, 50*time.Millisecond)
}

func TestStoreFallsBackOnMalformedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	broken := []byte(`{"theme": "dark", "serverOptions": {`)
	require.NoError(t, os.WriteFile(path, broken, 0644))

	s, err := NewStore(path)
	require.NoError(t, err)
	assert.Error(t, s.LoadError())
	assert.Equal(t, DefaultConfig(), s.Get())

	saved, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, broken, saved)

	s.Update(func(c *Config) { c.LastSelectedModel = "qwen3:8b" })
	require.NoError(t, s.Flush())
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qwen3:8b", cfg.LastSelectedModel)

	saved, err = os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, broken, saved)
}

func TestStoreFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := NewStore(path)
	require.NoError(t, err)

	s.Update(func(c *Config) { c.LastSelectedModel = "qwen3:8b" })
	require.NoError(t, s.Flush())

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qwen3:8b", cfg.LastSelectedModel)
}

func TestStoreGetReturnsCopy(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	s.Update(func(c *Config) {
		c.UserPresets = []ServerPreset{{ID: "preset:user-a", Name: "A"}}
	})

	got := s.Get()
	got.UserPresets[0].Name = "changed"
	assert.Equal(t, "A", s.Get().UserPresets[0].Name)
}

func TestStoreWatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem watch test in -short mode")
	}
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := NewStore(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen atomic.Value
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func(c Config) { seen.Store(c.FlmPath) })
	}()
	time.Sleep(200 * time.Millisecond)

	edited := DefaultConfig()
	edited.FlmPath = "/edited/flm"
	require.NoError(t, Save(path, edited))

	require.Eventually(t, func() bool {
		v, _ := seen.Load().(string)
		return v == "/edited/flm"
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "/edited/flm", s.Get().FlmPath)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestResolveTheme(t *testing.T) {
	dark := func() bool { return true }
	light := func() bool { return false }

	assert.Equal(t, "dark", resolveTheme(ThemeDark, light).Name)
	assert.Equal(t, "light", resolveTheme(ThemeLight, dark).Name)
	assert.Equal(t, "dark", resolveTheme(ThemeSystem, dark).Name)
	assert.Equal(t, "light", resolveTheme(ThemeSystem, light).Name)
	assert.Equal(t, "dark", resolveTheme("neon", light).Name)
}
