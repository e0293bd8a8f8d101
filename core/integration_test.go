package core

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flmcompanion/flmcompanion/config"
	"github.com/flmcompanion/flmcompanion/flm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	fakeOnce sync.Once
	fakeDir  string
	fakeBin  string
	fakeErr  error
)

func TestMain(m *testing.M) {
	code := m.Run()
	if fakeDir != "" {
		_ = os.RemoveAll(fakeDir)
	}
	os.Exit(code)
}

// buildFakeRuntime builds the gateway's fake runtime once per test run.
func buildFakeRuntime(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode")
	}
	fakeOnce.Do(func() {
		fakeDir, fakeErr = os.MkdirTemp("", "fakeflm")
		if fakeErr != nil {
			return
		}
		name := "flm"
		if runtime.GOOS == "windows" {
			name += ".exe"
		}
		fakeBin = filepath.Join(fakeDir, name)
		cmd := exec.Command("go", "build", "-o", fakeBin, "../flm/testdata/fakeflm")
		cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
		if out, err := cmd.CombinedOutput(); err != nil {
			fakeErr = errors.New(err.Error() + ": " + string(out))
		}
	})
	if fakeErr != nil {
		t.Fatalf("build fake runtime: %v", fakeErr)
	}
	return fakeBin
}

func hasLog(s *ServerManager, sub string) bool {
	for _, l := range s.Logs() {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

func TestServerLifecycleWithRuntime(t *testing.T) {
	bin := buildFakeRuntime(t)
	t.Setenv("FAKEFLM_INSTALLED", "llama3.2:1b,qwen3:4b")
	s, _ := newTestService(t, bin, nil)
	s.server.restartDelay = 10 * time.Millisecond
	ctx := context.Background()

	models := s.RefreshModels(ctx, true)
	require.Len(t, models, 2)
	assert.Equal(t, "llama3.2:1b", s.Server().Selection())

	require.NoError(t, s.RequestStart())
	require.Eventually(t, func() bool { return s.Server().Status() == StatusRunning }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, hasLog(s.Server(), "--asr 0"))

	s.Server().ToggleASR()
	require.Eventually(t, func() bool {
		return s.Server().Status() == StatusRunning && hasLog(s.Server(), "Executing: flm serve llama3.2:1b") && hasLog(s.Server(), "--asr 1")
	}, 5*time.Second, 10*time.Millisecond)

	s.RequestStop()
	require.Eventually(t, func() bool { return s.Server().Status() == StatusStopped }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, hasLog(s.Server(), flm.StoppedLine(0)))
	assert.False(t, s.Gateway().Owned())
}

func TestChatWithRuntime(t *testing.T) {
	bin := buildFakeRuntime(t)
	s, _ := newTestService(t, bin, nil)
	chat := s.Chat()

	require.NoError(t, chat.Start("llama3.2:1b", config.DefaultServerOptions()))
	require.Eventually(t, func() bool { return chat.State() == ChatReady }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Server().Select("llama3.2:1b"))
	assert.ErrorIs(t, s.RequestStart(), flm.ErrProcessActive)

	require.NoError(t, chat.Send("hello"))
	require.Eventually(t, func() bool { return chat.State() == ChatReady }, 5*time.Second, 10*time.Millisecond)
	entries := chat.Entries()
	last := entries[len(entries)-1]
	assert.Equal(t, RoleAssistant, last.Role)
	assert.Contains(t, last.Content, "echo: hello")

	chat.Stop()
	require.Eventually(t, func() bool { return chat.State() == ChatIdle }, 5*time.Second, 10*time.Millisecond)
	entries = chat.Entries()
	assert.Equal(t, "Process exited with code 0", entries[len(entries)-1].Content)
}

func TestPullAndRemoveWithRuntime(t *testing.T) {
	bin := buildFakeRuntime(t)
	t.Setenv("FAKEFLM_INSTALLED", "llama3.2:1b")
	s, _ := newTestService(t, bin, nil)
	ctx := context.Background()

	var progress []string
	var mu sync.Mutex
	require.NoError(t, s.PullModel(ctx, "gemma3:1b", func(l string) {
		mu.Lock()
		progress = append(progress, l)
		mu.Unlock()
	}))
	assert.Contains(t, progress, "Pulled gemma3:1b")
	assert.Equal(t, "llama3.2:1b", s.Server().Selection())

	var cmdErr *flm.CommandError
	require.ErrorAs(t, s.RemoveModel(ctx, "bad-model"), &cmdErr)
	assert.Equal(t, 1, cmdErr.Code)
}
