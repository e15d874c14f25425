package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrVersionResolution means the release index gave no usable version tag.
	ErrVersionResolution = errors.New("version resolution failed")
	// ErrDownloadFailed means an artifact request failed or returned non-2xx.
	ErrDownloadFailed = errors.New("download failed")
)

// Client fetches release metadata and artifacts over HTTP.
type Client struct {
	HTTP *http.Client
	Log  io.Writer
}

// NewClient returns a Client with a bounded request timeout.
func NewClient(log io.Writer) *Client {
	return &Client{
		HTTP: &http.Client{Timeout: 5 * time.Minute},
		Log:  log,
	}
}

// releaseIndex is the subset of the release index response we care about.
// Sibling fields may appear in any order; only the tag matters.
type releaseIndex struct {
	TagName string `json:"tag_name"`
}

// ResolveLatest queries the release index and returns the newest published
// version with any leading "v" stripped. The index's notion of "latest" is
// authoritative; nothing else about the response is assumed.
func (c *Client) ResolveLatest(ctx context.Context, indexURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, indexURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVersionResolution, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: GET %s: %v", ErrVersionResolution, indexURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: GET %s: HTTP %d", ErrVersionResolution, indexURL, resp.StatusCode)
	}

	var idx releaseIndex
	if err := json.NewDecoder(resp.Body).Decode(&idx); err != nil {
		return "", fmt.Errorf("%w: parsing index: %v", ErrVersionResolution, err)
	}

	version := strings.TrimPrefix(strings.TrimSpace(idx.TagName), "v")
	if version == "" {
		return "", fmt.Errorf("%w: index has no version tag", ErrVersionResolution)
	}

	fmt.Fprintf(c.Log, "[provisr] Latest version: %s\n", version)
	return version, nil
}

// Download fetches url into dest. The body is streamed to a temp file in
// dest's directory and renamed into place, so a failed transfer never leaves
// a half-written file at dest.
func (c *Client) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	fmt.Fprintf(c.Log, "[provisr] Downloading %s\n", url)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrDownloadFailed, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: GET %s: HTTP %d", ErrDownloadFailed, url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	tmpPath := tmp.Name()

	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: writing %s: %v", ErrDownloadFailed, dest, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: closing %s: %v", ErrDownloadFailed, tmpPath, closeErr)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return nil
}
