package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/provisr-dev/provisr/internal/release"
	"github.com/provisr-dev/provisr/internal/sysd"
)

const exporterBinary = "node_exporter"

// exporterOwner is a var so tests can install without a real system account.
var exporterOwner = "node_exporter"

// provisionExporter installs the metrics exporter from its latest upstream
// release and wires it into systemd, bound to the host's detected address.
func (p *Provisioner) provisionExporter(ctx context.Context) error {
	rc := release.NewClient(p.Log)

	// Version first: if resolution fails nothing else may run, and an
	// already-installed binary stays untouched.
	version, err := rc.ResolveLatest(ctx, p.Manifest.ReleaseIndexURL)
	if err != nil {
		return err
	}

	binPath := filepath.Join(p.Manifest.InstallDir, exporterBinary)

	if err := ensureAccount(exporterOwner, p.Log); err != nil {
		return fmt.Errorf("ensuring account %s: %w", exporterOwner, err)
	}

	if p.exporterUpToDate(binPath, version) {
		fmt.Fprintf(p.Log, "[provisr] %s %s already installed, skipping download\n", exporterBinary, version)
	} else if err := p.fetchExporter(ctx, rc, version, binPath); err != nil {
		return err
	}

	unit := sysd.Unit{
		Name:        exporterBinary,
		Description: "Prometheus Node Exporter",
		ExecStart: fmt.Sprintf("%s --web.listen-address=%s:%d",
			binPath, p.Profile.IPv4, p.Manifest.ExporterPort),
		User: exporterOwner,
	}
	if err := installUnit(unit, p.Log); err != nil {
		return err
	}
	if err := enableUnit(exporterBinary, p.Log); err != nil {
		return err
	}
	if err := restartUnit(exporterBinary, p.Log); err != nil {
		return err
	}
	return waitActive(exporterBinary, p.Manifest.PollTimeout(), pollInterval, p.Log)
}

// fetchExporter downloads, checksum-verifies and installs one release
// artifact. Scratch space is cleaned up on every exit path.
func (p *Provisioner) fetchExporter(ctx context.Context, rc *release.Client, version, binPath string) error {
	artifact := fmt.Sprintf("%s-%s.linux-%s.tar.gz", exporterBinary, version, p.Profile.Arch)
	artifactURL := fmt.Sprintf("%s/v%s/%s", p.Manifest.DownloadBaseURL, version, artifact)
	sumsURL := fmt.Sprintf("%s/v%s/sha256sums.txt", p.Manifest.DownloadBaseURL, version)

	scratch, err := os.MkdirTemp("", "provisr-")
	if err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	archivePath := filepath.Join(scratch, artifact)
	if err := rc.Download(ctx, artifactURL, archivePath); err != nil {
		return err
	}

	sums, err := rc.FetchChecksums(ctx, sumsURL)
	if err != nil {
		return err
	}
	want, ok := sums[artifact]
	if !ok {
		return fmt.Errorf("%w: no checksum published for %s", release.ErrChecksumMismatch, artifact)
	}
	if err := release.VerifyChecksum(archivePath, want); err != nil {
		return err
	}

	return installBinary(archivePath, exporterBinary, binPath, exporterOwner, p.Log)
}

// exporterUpToDate reports whether the installed binary already claims the
// resolved version, making the download redundant.
func (p *Provisioner) exporterUpToDate(binPath, version string) bool {
	if _, err := os.Stat(binPath); err != nil {
		return false
	}
	out := binaryVersion(binPath, p.Log)
	return strings.Contains(out, "version "+version)
}
