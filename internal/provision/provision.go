package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/provisr-dev/provisr/internal/account"
	"github.com/provisr-dev/provisr/internal/config"
	"github.com/provisr-dev/provisr/internal/deps"
	"github.com/provisr-dev/provisr/internal/probe"
	"github.com/provisr-dev/provisr/internal/release"
	"github.com/provisr-dev/provisr/internal/sysd"
)

// ErrPrerequisiteConfigMissing means a worker-role run found no pre-copied
// scheduler config. Workers must join with the primary's secret; generating
// a fresh one would split the cluster.
var ErrPrerequisiteConfigMissing = errors.New("prerequisite config missing")

// Role selects primary or worker provisioning behavior. It is always chosen
// explicitly by the caller: running cluster initialization on a worker is a
// cluster-corrupting bug, so the distinction is never inferred.
type Role int

const (
	RolePrimary Role = iota
	RoleWorker
)

func (r Role) String() string {
	if r == RoleWorker {
		return "worker"
	}
	return "primary"
}

// Options are operator-selected behavior switches.
type Options struct {
	// TextualPatch opts into line-substitution config patching instead of
	// the canonical structured JSON rewrite.
	TextualPatch bool
}

// Provisioner drives the four provisioning stages for one host. All inputs
// are fixed before Run; the host profile is never re-derived mid-run.
type Provisioner struct {
	Profile  *probe.HostProfile
	Manifest *config.Manifest
	Role     Role
	Secret   string // primary only; workers inherit the pre-copied config's value
	Opts     Options
	Log      io.Writer
}

// Seams for tests. Everything that touches the live system goes through one
// of these.
var (
	ensureTool = func(in *deps.Installer, tool, pkg string) error {
		return in.EnsureInstalled(tool, pkg)
	}
	ensureAccount = account.Ensure
	installBinary = release.InstallBinary
	installUnit   = sysd.Install
	enableUnit    = sysd.Enable
	restartUnit   = sysd.Restart
	waitActive    = sysd.WaitActive
	binaryVersion = readBinaryVersion
	nodeRun       = runNode
	chownTree     = recursiveChown
)

// Run executes the provisioning stages in order: dependency install,
// exporter, scheduler. The first error aborts the whole run; re-running
// converges because every step checks live system state first.
func (p *Provisioner) Run(ctx context.Context) error {
	// Preflight, before any mutation: a worker without the primary's config
	// must fail with nothing written and nothing started.
	if p.Role == RoleWorker {
		if err := p.checkWorkerPrereq(); err != nil {
			return err
		}
	}

	fmt.Fprintf(p.Log, "[provisr] Provisioning host %s (%s role, %s/%s)\n",
		p.Profile.IPv4, p.Role, p.Profile.PkgManager, p.Profile.Arch)

	inst := &deps.Installer{Family: p.Profile.PkgManager, Log: p.Log}
	if err := ensureTool(inst, "node", "nodejs"); err != nil {
		return err
	}

	if err := p.provisionExporter(ctx); err != nil {
		return err
	}
	if err := p.provisionScheduler(ctx); err != nil {
		return err
	}

	fmt.Fprintf(p.Log, "[provisr] Provisioning complete\n")
	return nil
}

func (p *Provisioner) checkWorkerPrereq() error {
	cfgPath := p.schedulerConfigPath()
	if _, err := os.Stat(cfgPath); err != nil {
		return fmt.Errorf("%w: %s not found, copy it from the primary host (scp primary:%s %s) and re-run",
			ErrPrerequisiteConfigMissing, cfgPath, cfgPath, cfgPath)
	}
	return nil
}

func (p *Provisioner) schedulerConfigPath() string {
	return filepath.Join(p.Manifest.SchedulerDir, "conf", "config.json")
}

func readBinaryVersion(binPath string, log io.Writer) string {
	out, err := exec.Command(binPath, "--version").CombinedOutput()
	if err != nil {
		return ""
	}
	return string(out)
}

func runNode(log io.Writer, script, workDir string) error {
	fmt.Fprintf(log, "[provisr] $ node %s\n", script)
	cmd := exec.Command("node", script)
	cmd.Dir = workDir
	cmd.Stdout = log
	cmd.Stderr = log
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("node %s: %w", script, err)
	}
	return nil
}

func recursiveChown(path, owner string, log io.Writer) error {
	fmt.Fprintf(log, "[provisr] $ chown -R %s:%s %s\n", owner, owner, path)
	cmd := exec.Command("chown", "-R", owner+":"+owner, path)
	cmd.Stdout = log
	cmd.Stderr = log
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("chown -R %s: %w", path, err)
	}
	return nil
}
