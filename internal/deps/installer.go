package deps

import (
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/provisr-dev/provisr/internal/probe"
)

var (
	// ErrNoInstallStrategy means the detected package manager family has no
	// known install command sequence.
	ErrNoInstallStrategy = errors.New("no install strategy")
	// ErrInstallVerification means the install command reported success but
	// the tool still does not resolve on PATH.
	ErrInstallVerification = errors.New("install verification failed")
)

// Installer installs prerequisite tools via the host's package manager.
type Installer struct {
	Family probe.Family
	Log    io.Writer
}

// Seams for tests.
var (
	lookPath = exec.LookPath
	execRun  = runCmd
)

// strategies maps a package-manager family to its fixed command sequence.
// The last command of each sequence gets the package name appended.
var strategies = map[probe.Family][][]string{
	probe.FamilyApt: {{"apt-get", "update", "-qq"}, {"apt-get", "install", "-y"}},
	probe.FamilyDnf: {{"dnf", "makecache", "-q"}, {"dnf", "install", "-y"}},
	probe.FamilyYum: {{"yum", "makecache", "-q"}, {"yum", "install", "-y"}},
	probe.FamilyApk: {{"apk", "update"}, {"apk", "add"}},
}

// EnsureInstalled makes the named tool resolvable on PATH, installing pkg via
// the detected package manager if it is not. Already-resolvable tools are a
// no-op. A tool that still does not resolve after a successful install is a
// distinct error: the install command lied.
func (in *Installer) EnsureInstalled(tool, pkg string) error {
	if _, err := lookPath(tool); err == nil {
		fmt.Fprintf(in.Log, "[provisr] %s already installed, skipping\n", tool)
		return nil
	}

	steps, ok := strategies[in.Family]
	if !ok {
		return fmt.Errorf("%w for family %q: install %s manually and re-run", ErrNoInstallStrategy, in.Family, pkg)
	}

	fmt.Fprintf(in.Log, "[provisr] Installing %s (package %s) via %s\n", tool, pkg, in.Family)
	for i, step := range steps {
		args := step
		if i == len(steps)-1 {
			args = append(append([]string{}, step...), pkg)
		}
		if err := execRun(in.Log, args[0], args[1:]...); err != nil {
			return fmt.Errorf("installing %s: %w", pkg, err)
		}
	}

	if _, err := lookPath(tool); err != nil {
		return fmt.Errorf("%w: %s not on PATH after installing %s", ErrInstallVerification, tool, pkg)
	}
	return nil
}

func runCmd(log io.Writer, name string, args ...string) error {
	fmt.Fprintf(log, "[provisr] $ %s %v\n", name, args)
	cmd := exec.Command(name, args...)
	cmd.Env = append(cmd.Environ(), "DEBIAN_FRONTEND=noninteractive")
	cmd.Stdout = log
	cmd.Stderr = log
	return cmd.Run()
}
