package release

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/flmcompanion/flmcompanion/logging"
	"github.com/pkg/browser"
)

// Download fetches an asset into memory. onProgress receives whole
// percentages when the server reports a length.
func (c *Client) Download(ctx context.Context, asset Asset, onProgress func(pct int)) ([]byte, error) {
	resp, err := c.get(ctx, asset.BrowserDownloadURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = asset.Size
	}
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}

	chunk := make([]byte, 32*1024)
	last := -1
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if total > 0 && onProgress != nil {
				pct := int(int64(buf.Len()) * 100 / total)
				if pct > 100 {
					pct = 100
				}
				if pct != last {
					last = pct
					onProgress(pct)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("download interrupted: %w", err)
		}
	}
	logging.InfoLogger.Info().Msgf("Downloaded %s (%d bytes)", AssetFileName(asset), buf.Len())
	return buf.Bytes(), nil
}

// WriteTemp writes data to a fresh temporary directory under name.
func WriteTemp(name string, data []byte) (string, error) {
	dir, err := os.MkdirTemp("", "flm-companion-update")
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(p, data, 0755); err != nil {
		return "", err
	}
	return p, nil
}

var (
	openFile = browser.OpenFile
	openURL  = browser.OpenURL
)

// Launch hands a downloaded installer to the operating system.
func Launch(path string) error {
	logging.InfoLogger.Info().Msgf("Launching installer %s", path)
	if err := openFile(path); err != nil {
		return fmt.Errorf("failed to launch installer: %w", err)
	}
	return nil
}

// OpenPage opens a release page in the default browser.
func OpenPage(url string) error {
	return openURL(url)
}

// Defaults for WaitForVersionChange after running the runtime installer.
const (
	InstallPollInterval = 2 * time.Second
	InstallPollAttempts = 60
)

// WaitForVersionChange polls version until it returns something other than
// previous or the empty string, giving up after attempts polls.
func WaitForVersionChange(ctx context.Context, version func(context.Context) string, previous string, interval time.Duration, attempts int) (string, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		if v := version(ctx); v != "" && v != previous {
			logging.InfoLogger.Info().Msgf("Version changed from %s to %s", previous, v)
			return v, nil
		}
	}
	return "", ErrInstallTimeout
}
