package release

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveLatest_StripsPrefixAndIgnoresSiblingOrder(t *testing.T) {
	bodies := []string{
		`{"tag_name": "v1.8.2", "name": "1.8.2 / 2024-06-19", "draft": false}`,
		`{"draft": false, "assets": [], "tag_name": "v1.8.2"}`,
	}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		}))
		c := NewClient(io.Discard)
		got, err := c.ResolveLatest(context.Background(), srv.URL)
		srv.Close()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "1.8.2" {
			t.Errorf("ResolveLatest = %q, want 1.8.2", got)
		}
	}
}

func TestResolveLatest_EmptyTag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name": "weird release"}`)
	}))
	defer srv.Close()

	c := NewClient(io.Discard)
	_, err := c.ResolveLatest(context.Background(), srv.URL)
	if !errors.Is(err, ErrVersionResolution) {
		t.Errorf("want ErrVersionResolution, got %v", err)
	}
}

func TestResolveLatest_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(io.Discard)
	_, err := c.ResolveLatest(context.Background(), srv.URL)
	if !errors.Is(err, ErrVersionResolution) {
		t.Errorf("want ErrVersionResolution, got %v", err)
	}
}

func TestDownload_WritesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "tarball-bytes")
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "artifact.tar.gz")
	c := NewClient(io.Discard)
	if err := c.Download(context.Background(), srv.URL, dest); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "tarball-bytes" {
		t.Errorf("unexpected content: %q", data)
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(filepath.Dir(dest))
	if len(entries) != 1 {
		t.Errorf("expected only the artifact in dest dir, got %d entries", len(entries))
	}
}

func TestDownload_Non2xxFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "artifact.tar.gz")
	c := NewClient(io.Discard)
	err := c.Download(context.Background(), srv.URL, dest)
	if !errors.Is(err, ErrDownloadFailed) {
		t.Errorf("want ErrDownloadFailed, got %v", err)
	}
	if _, statErr := os.Stat(dest); statErr == nil {
		t.Error("no file should exist at dest after a failed download")
	}
}

func TestFetchChecksums(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "abc123  node_exporter-1.8.2.linux-amd64.tar.gz\n"+
			"def456  node_exporter-1.8.2.linux-arm64.tar.gz\n"+
			"\n"+
			"malformed line without hash\n")
	}))
	defer srv.Close()

	c := NewClient(io.Discard)
	sums, err := c.FetchChecksums(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if sums["node_exporter-1.8.2.linux-amd64.tar.gz"] != "abc123" {
		t.Errorf("amd64 sum = %q", sums["node_exporter-1.8.2.linux-amd64.tar.gz"])
	}
	if sums["node_exporter-1.8.2.linux-arm64.tar.gz"] != "def456" {
		t.Errorf("arm64 sum = %q", sums["node_exporter-1.8.2.linux-arm64.tar.gz"])
	}
}

func TestVerifyChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	os.WriteFile(path, []byte("content"), 0644)

	sum := sha256.Sum256([]byte("content"))
	want := hex.EncodeToString(sum[:])

	if err := VerifyChecksum(path, want); err != nil {
		t.Errorf("matching checksum should verify: %v", err)
	}
	if err := VerifyChecksum(path, "deadbeef"); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("want ErrChecksumMismatch, got %v", err)
	}
}

func TestInstallBinary(t *testing.T) {
	// Build a release-shaped tarball: versioned dir containing the binary.
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	content := "#!/bin/true\n"
	tw.WriteHeader(&tar.Header{
		Name: "node_exporter-1.8.2.linux-amd64/node_exporter",
		Mode: 0755, Size: int64(len(content)), Typeflag: tar.TypeReg,
	})
	tw.Write([]byte(content))
	tw.Close()
	gw.Close()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar.gz")
	os.WriteFile(archivePath, buf.Bytes(), 0644)

	destPath := filepath.Join(dir, "bin", "node_exporter")
	if err := InstallBinary(archivePath, "node_exporter", destPath, "", io.Discard); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		t.Fatalf("binary not installed: %v", err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}
	data, _ := os.ReadFile(destPath)
	if string(data) != content {
		t.Errorf("unexpected binary content: %q", data)
	}
}

func TestInstallBinary_MissingBinaryInArchive(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	tw.WriteHeader(&tar.Header{Name: "pkg/README", Mode: 0644, Size: 5, Typeflag: tar.TypeReg})
	tw.Write([]byte("hello"))
	tw.Close()
	gw.Close()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar.gz")
	os.WriteFile(archivePath, buf.Bytes(), 0644)

	destPath := filepath.Join(dir, "bin", "node_exporter")
	if err := InstallBinary(archivePath, "node_exporter", destPath, "", io.Discard); err == nil {
		t.Error("expected error when binary is absent from archive")
	}
	if _, err := os.Stat(destPath); err == nil {
		t.Error("nothing should be installed when the binary is absent")
	}
}
