package release

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/provisr-dev/provisr/internal/account"
	"github.com/provisr-dev/provisr/internal/archive"
)

// InstallBinary extracts archivePath, locates binaryName inside it, and
// installs it at destPath owned by the named account. The binary is staged
// in destPath's directory and renamed over the final path, so a concurrently
// running service never observes a half-written executable. An empty owner
// leaves ownership unchanged.
func InstallBinary(archivePath, binaryName, destPath, owner string, log io.Writer) error {
	staging, err := os.MkdirTemp("", "provisr-extract-")
	if err != nil {
		return fmt.Errorf("creating staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	if err := archive.Extract(f, staging); err != nil {
		return fmt.Errorf("extracting %s: %w", archivePath, err)
	}

	binPath, err := archive.FindFile(staging, binaryName)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(destPath), err)
	}

	// Stage the binary next to its destination so the final rename is atomic.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+binaryName+"-*")
	if err != nil {
		return fmt.Errorf("staging binary: %w", err)
	}
	tmpPath := tmp.Name()

	src, err := os.Open(binPath)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("opening extracted binary: %w", err)
	}
	_, copyErr := io.Copy(tmp, src)
	src.Close()
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		if copyErr != nil {
			return fmt.Errorf("copying binary: %w", copyErr)
		}
		return fmt.Errorf("closing staged binary: %w", closeErr)
	}

	if err := os.Chmod(tmpPath, 0755); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod staged binary: %w", err)
	}
	if owner != "" {
		if err := account.Chown(tmpPath, owner); err != nil {
			os.Remove(tmpPath)
			return err
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("installing %s: %w", destPath, err)
	}

	fmt.Fprintf(log, "[provisr] Installed %s\n", destPath)
	return nil
}
