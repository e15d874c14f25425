package release

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// ErrChecksumMismatch means a downloaded artifact did not match its
// published SHA-256 sum. The live binary is never touched in that case.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// FetchChecksums downloads a sha256sums manifest ("<hex>  <filename>" per
// line) and returns a filename→hex map.
func (c *Client) FetchChecksums(ctx context.Context, url string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrDownloadFailed, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: GET %s: HTTP %d", ErrDownloadFailed, url, resp.StatusCode)
	}

	sums := make(map[string]string)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		sums[strings.TrimPrefix(fields[1], "*")] = fields[0]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading checksums: %v", ErrDownloadFailed, err)
	}
	return sums, nil
}

// VerifyChecksum compares the SHA-256 of the file at path against wantHex.
func VerifyChecksum(path, wantHex string) error {
	got, err := hashFile(path)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", path, err)
	}
	if !strings.EqualFold(got, wantHex) {
		return fmt.Errorf("%w: %s: got sha256:%s, want sha256:%s", ErrChecksumMismatch, path, got, wantHex)
	}
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
