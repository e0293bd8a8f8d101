package release

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient()
	c.BaseURL = srv.URL
	c.HTTP = srv.Client()
	return c
}

func TestLatestRelease(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/FastFlowLM/FastFlowLM/releases/latest", r.URL.Path)
		assert.Equal(t, "flm-companion", r.Header.Get("User-Agent"))
		fmt.Fprint(w, `{"tag_name":"v0.9.10","body":"notes","html_url":"https://example.com/r","assets":[{"name":"flm-setup.exe","browser_download_url":"https://example.com/flm-setup.exe","size":42}]}`)
	})

	rel, err := c.LatestRelease(context.Background(), RuntimeRepo)
	require.NoError(t, err)
	assert.Equal(t, "v0.9.10", rel.TagName)
	assert.Equal(t, "notes", rel.Body)
	require.Len(t, rel.Assets, 1)
	assert.Equal(t, int64(42), rel.Assets[0].Size)
}

func TestLatestReleaseErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		is     error
	}{
		{name: "not found", status: http.StatusNotFound, is: ErrNotFound},
		{name: "server error", status: http.StatusInternalServerError},
		{name: "bad JSON", status: http.StatusOK, body: "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := c.LatestRelease(context.Background(), CompanionRepo)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestReleaseByTagRetriesWithPrefix(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/repos/o/r/releases/tags/v1.2.0" {
			fmt.Fprint(w, `{"tag_name":"v1.2.0"}`)
			return
		}
		http.NotFound(w, r)
	})

	rel, err := c.ReleaseByTag(context.Background(), "o/r", "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, "v1.2.0", rel.TagName)
	assert.Equal(t, []string{"/repos/o/r/releases/tags/1.2.0", "/repos/o/r/releases/tags/v1.2.0"}, paths)

	paths = nil
	_, err = c.ReleaseByTag(context.Background(), "o/r", "v9.9.9")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, paths, 1)
}

func TestIsNewerVersion(t *testing.T) {
	tests := []struct {
		local, remote string
		want          bool
	}{
		{"1.2.0", "v1.2.0", false},
		{"v1.2.0", "1.2.0", false},
		{"1.2.0", "1.2.1", true},
		{"1.2.1", "1.2.0", true},
		{"1.2.0", "1.2.0-rc1", true},
		{"", "1.0.0", false},
		{"1.0.0", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.local+"->"+tt.remote, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNewerVersion(tt.local, tt.remote))
		})
	}
}

func TestPickAsset(t *testing.T) {
	rel := Release{Assets: []Asset{
		{Name: "checksums.txt"},
		{Name: "flm-companion_1.0.0_amd64.AppImage"},
		{Name: "flm-companion_1.0.0_amd64.deb"},
		{Name: "FLM-Companion-Setup.msi"},
		{Name: "FLM-Companion-Setup.exe"},
		{Name: "flm-companion.dmg"},
	}}

	a, err := PickAsset(rel, "windows")
	require.NoError(t, err)
	assert.Equal(t, "FLM-Companion-Setup.exe", a.Name)

	a, err = PickAsset(rel, "linux")
	require.NoError(t, err)
	assert.Equal(t, "flm-companion_1.0.0_amd64.deb", a.Name)

	a, err = PickAsset(rel, "darwin")
	require.NoError(t, err)
	assert.Equal(t, "flm-companion.dmg", a.Name)

	_, err = PickAsset(rel, "plan9")
	assert.ErrorIs(t, err, ErrNoAsset)
	_, err = PickAsset(Release{}, "linux")
	assert.ErrorIs(t, err, ErrNoAsset)
}

func TestDownload(t *testing.T) {
	payload := make([]byte, 100*1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	})

	var progress []int
	data, err := c.Download(context.Background(), Asset{Name: "setup.exe", BrowserDownloadURL: c.BaseURL + "/setup.exe"}, func(p int) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	require.NotEmpty(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i], progress[i-1])
	}

	path, err := WriteTemp("setup.exe", data)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(path) })
	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, onDisk)
}

func TestDownloadOutlivesMetadataTimeout(t *testing.T) {
	const chunks = 5
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(chunks*1024))
		flusher, _ := w.(http.Flusher)
		for i := 0; i < chunks; i++ {
			_, _ = w.Write(make([]byte, 1024))
			if flusher != nil {
				flusher.Flush()
			}
			time.Sleep(40 * time.Millisecond)
		}
	})
	c.MetadataTimeout = 50 * time.Millisecond

	var last int
	data, err := c.Download(context.Background(), Asset{BrowserDownloadURL: c.BaseURL + "/slow.exe"}, func(p int) { last = p })
	require.NoError(t, err)
	assert.Len(t, data, chunks*1024)
	assert.Equal(t, 100, last)
}

func TestMetadataTimeout(t *testing.T) {
	assert.Zero(t, NewClient().HTTP.Timeout)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{"tag_name":"v1"}`)
	})
	c.MetadataTimeout = 20 * time.Millisecond
	_, err := c.LatestRelease(context.Background(), RuntimeRepo)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDownloadFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := c.Download(context.Background(), Asset{BrowserDownloadURL: c.BaseURL + "/x"}, nil)
	assert.Error(t, err)
}

func TestLaunch(t *testing.T) {
	var opened string
	orig := openFile
	openFile = func(p string) error { opened = p; return nil }
	t.Cleanup(func() { openFile = orig })

	require.NoError(t, Launch("/tmp/setup.exe"))
	assert.Equal(t, "/tmp/setup.exe", opened)

	openFile = func(string) error { return errors.New("no handler") }
	assert.Error(t, Launch("/tmp/setup.exe"))
}

func TestWaitForVersionChange(t *testing.T) {
	ctx := context.Background()
	calls := 0
	version := func(context.Context) string {
		calls++
		switch {
		case calls < 3:
			return "0.9.9"
		case calls == 3:
			return ""
		default:
			return "0.9.10"
		}
	}

	v, err := WaitForVersionChange(ctx, version, "0.9.9", time.Millisecond, 10)
	require.NoError(t, err)
	assert.Equal(t, "0.9.10", v)
	assert.Equal(t, 4, calls)

	_, err = WaitForVersionChange(ctx, func(context.Context) string { return "0.9.9" }, "0.9.9", time.Millisecond, 3)
	assert.ErrorIs(t, err, ErrInstallTimeout)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = WaitForVersionChange(cancelled, version, "0.9.9", time.Hour, 3)
	assert.ErrorIs(t, err, context.Canceled)
}
