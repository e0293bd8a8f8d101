// Package release checks GitHub releases for newer versions of the companion
// and the runtime, and downloads installers.
package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/flmcompanion/flmcompanion/logging"
)

const (
	DefaultBaseURL = "https://api.github.com"

	CompanionRepo = "flmcompanion/flmcompanion"
	RuntimeRepo   = "FastFlowLM/FastFlowLM"

	// DefaultMetadataTimeout bounds release lookups. Installer downloads
	// are only bounded by the caller's context.
	DefaultMetadataTimeout = 30 * time.Second
)

var (
	ErrNotFound       = errors.New("release not found")
	ErrNoAsset        = errors.New("no installer asset for this platform")
	ErrInstallTimeout = errors.New("installed version did not change in time")
)

type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

type Release struct {
	TagName string  `json:"tag_name"`
	Body    string  `json:"body"`
	HTMLURL string  `json:"html_url"`
	Assets  []Asset `json:"assets"`
}

// Client talks to the GitHub releases API.
type Client struct {
	BaseURL         string
	UserAgent       string
	HTTP            *http.Client
	MetadataTimeout time.Duration
}

func NewClient() *Client {
	return &Client{
		BaseURL:         DefaultBaseURL,
		UserAgent:       "flm-companion",
		HTTP:            &http.Client{},
		MetadataTimeout: DefaultMetadataTimeout,
	}
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	return resp, nil
}

func (c *Client) fetchRelease(ctx context.Context, endpoint string) (Release, error) {
	base := strings.TrimSuffix(c.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if c.MetadataTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.MetadataTimeout)
		defer cancel()
	}
	resp, err := c.get(ctx, base+endpoint)
	if err != nil {
		return Release{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Release{}, fmt.Errorf("%s: %w", endpoint, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return Release{}, fmt.Errorf("API request failed with status %d", resp.StatusCode)
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return Release{}, fmt.Errorf("failed to decode release: %w", err)
	}
	return rel, nil
}

// LatestRelease fetches the latest release of repo ("owner/name").
func (c *Client) LatestRelease(ctx context.Context, repo string) (Release, error) {
	rel, err := c.fetchRelease(ctx, "/repos/"+repo+"/releases/latest")
	if err != nil {
		logging.ErrorLogger.Error().Msgf("Error fetching latest release for %s: %v", repo, err)
		return Release{}, err
	}
	return rel, nil
}

// ReleaseByTag fetches a release by tag, retrying with a "v" prefix when the
// bare tag is rejected.
func (c *Client) ReleaseByTag(ctx context.Context, repo, tag string) (Release, error) {
	rel, err := c.fetchRelease(ctx, "/repos/"+repo+"/releases/tags/"+tag)
	if err != nil && !strings.HasPrefix(tag, "v") && isStatusError(err) {
		rel, err = c.fetchRelease(ctx, "/repos/"+repo+"/releases/tags/v"+tag)
	}
	if err != nil {
		logging.ErrorLogger.Error().Msgf("Error fetching release %s for %s: %v", tag, repo, err)
		return Release{}, err
	}
	return rel, nil
}

func isStatusError(err error) bool {
	return errors.Is(err, ErrNotFound) || strings.Contains(err.Error(), "API request failed with status")
}

// IsNewerVersion reports whether remote differs from local once a leading
// "v" is dropped from both. Any textual difference counts as newer.
func IsNewerVersion(local, remote string) bool {
	if local == "" || remote == "" {
		return false
	}
	return strings.TrimPrefix(local, "v") != strings.TrimPrefix(remote, "v")
}

var installerSuffixes = map[string][]string{
	"windows": {".exe", ".msi"},
	"linux":   {".deb", ".appimage", ".tar.gz"},
	"darwin":  {".dmg", ".pkg"},
}

// PickAsset returns the first asset installable on goos, in order of preference.
func PickAsset(rel Release, goos string) (Asset, error) {
	for _, suffix := range installerSuffixes[goos] {
		for _, a := range rel.Assets {
			if strings.HasSuffix(strings.ToLower(a.Name), suffix) {
				return a, nil
			}
		}
	}
	return Asset{}, fmt.Errorf("%s: %w", goos, ErrNoAsset)
}

// AssetFileName is the local file name for an asset.
func AssetFileName(a Asset) string {
	if a.Name != "" {
		return path.Base(a.Name)
	}
	return path.Base(a.BrowserDownloadURL)
}
