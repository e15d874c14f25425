package provision

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/provisr-dev/provisr/internal/confpatch"
	"github.com/provisr-dev/provisr/internal/release"
	"github.com/provisr-dev/provisr/internal/sysd"
)

const (
	schedulerService = "cronicle"
	pollInterval     = 2 * time.Second
)

var schedulerOwner = "cronicle"

// provisionScheduler installs the Cronicle job scheduler via its upstream
// installer, wires the cluster secret into its config and supervises it with
// systemd. Primary and worker roles diverge in exactly two places: only the
// primary patches config, and only the primary runs first-time cluster init.
func (p *Provisioner) provisionScheduler(ctx context.Context) error {
	dir := p.Manifest.SchedulerDir
	cfgPath := p.schedulerConfigPath()
	controlScript := filepath.Join(dir, "bin", "control.sh")

	if err := ensureAccount(schedulerOwner, p.Log); err != nil {
		return fmt.Errorf("ensuring account %s: %w", schedulerOwner, err)
	}

	if _, err := os.Stat(controlScript); err != nil {
		if err := p.installScheduler(ctx, cfgPath); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(p.Log, "[provisr] Scheduler already installed at %s, skipping installer\n", dir)
	}

	switch p.Role {
	case RolePrimary:
		mode := confpatch.ModeStructured
		if p.Opts.TextualPatch {
			mode = confpatch.ModeTextual
		}
		if err := confpatch.Apply(confpatch.Patch{Path: cfgPath, Key: "secret_key", Value: p.Secret}, mode, p.Log); err != nil {
			return err
		}
		baseURL := fmt.Sprintf("http://%s:%d", p.Profile.IPv4, p.Manifest.SchedulerPort)
		if err := confpatch.Apply(confpatch.Patch{Path: cfgPath, Key: "base_app_url", Value: baseURL}, mode, p.Log); err != nil {
			return err
		}
		if err := p.clusterInit(); err != nil {
			return err
		}
	case RoleWorker:
		// The pre-copied config carries the primary's secret and base URL
		// verbatim; touching it here could only make things worse.
		fmt.Fprintf(p.Log, "[provisr] Worker role: using pre-copied config at %s\n", cfgPath)
	}

	if err := chownTree(dir, schedulerOwner, p.Log); err != nil {
		return err
	}

	unit := sysd.Unit{
		Name:             schedulerService,
		Description:      "Cronicle job scheduler",
		Type:             "forking",
		PIDFile:          filepath.Join(dir, "logs", "cronicled.pid"),
		ExecStart:        controlScript + " start",
		ExecStop:         controlScript + " stop",
		User:             schedulerOwner,
		WorkingDirectory: dir,
	}
	if err := installUnit(unit, p.Log); err != nil {
		return err
	}
	if err := enableUnit(schedulerService, p.Log); err != nil {
		return err
	}
	if err := restartUnit(schedulerService, p.Log); err != nil {
		return err
	}
	return waitActive(schedulerService, p.Manifest.PollTimeout(), pollInterval, p.Log)
}

// installScheduler fetches the upstream installer over HTTPS and runs it
// under node. The installer is an opaque trusted collaborator: only its exit
// status matters. On workers the pre-copied config is saved first and put
// back afterwards, because the installer writes a fresh config with a
// generated (non-matching) secret.
func (p *Provisioner) installScheduler(ctx context.Context, cfgPath string) error {
	var preserved []byte
	if p.Role == RoleWorker {
		data, err := os.ReadFile(cfgPath)
		if err != nil {
			return fmt.Errorf("%w: reading pre-copied config: %v", ErrPrerequisiteConfigMissing, err)
		}
		preserved = data
	}

	scratch, err := os.MkdirTemp("", "provisr-")
	if err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	rc := release.NewClient(p.Log)
	script := filepath.Join(scratch, "install.js")
	if err := rc.Download(ctx, p.Manifest.InstallerScriptURL, script); err != nil {
		return err
	}
	if err := nodeRun(p.Log, script, scratch); err != nil {
		return fmt.Errorf("scheduler installer: %w", err)
	}

	if preserved != nil {
		fmt.Fprintf(p.Log, "[provisr] Restoring pre-copied config over installer default\n")
		if err := os.WriteFile(cfgPath, preserved, 0644); err != nil {
			return fmt.Errorf("restoring config: %w", err)
		}
	}
	return nil
}

// clusterInit runs the scheduler's first-time storage setup. It must run
// exactly once per cluster, on the primary: the data directory acts as the
// "already initialized" marker so re-runs converge instead of re-seeding.
func (p *Provisioner) clusterInit() error {
	dataDir := filepath.Join(p.Manifest.SchedulerDir, "data")
	if entries, err := os.ReadDir(dataDir); err == nil && len(entries) > 0 {
		fmt.Fprintf(p.Log, "[provisr] Cluster storage already initialized, skipping setup\n")
		return nil
	}

	setup := filepath.Join(p.Manifest.SchedulerDir, "bin", "control.sh")
	return clusterSetup(p.Log, setup, p.Manifest.SchedulerDir)
}

var clusterSetup = func(log io.Writer, controlScript, workDir string) error {
	fmt.Fprintf(log, "[provisr] $ %s setup\n", controlScript)
	cmd := exec.Command(controlScript, "setup")
	cmd.Dir = workDir
	cmd.Stdout = log
	cmd.Stderr = log
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("cluster setup: %w", err)
	}
	return nil
}
