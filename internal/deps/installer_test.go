package deps

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/provisr-dev/provisr/internal/probe"
)

func patchSeams(t *testing.T, resolvable map[string]bool) *[][]string {
	t.Helper()
	origLook, origRun := lookPath, execRun
	t.Cleanup(func() { lookPath, execRun = origLook, origRun })

	lookPath = func(bin string) (string, error) {
		if resolvable[bin] {
			return "/usr/bin/" + bin, nil
		}
		return "", fmt.Errorf("%s: not found", bin)
	}

	calls := &[][]string{}
	execRun = func(log io.Writer, name string, args ...string) error {
		*calls = append(*calls, append([]string{name}, args...))
		return nil
	}
	return calls
}

func TestEnsureInstalled_NoopWhenResolvable(t *testing.T) {
	calls := patchSeams(t, map[string]bool{"node": true})

	in := &Installer{Family: probe.FamilyApt, Log: io.Discard}
	if err := in.EnsureInstalled("node", "nodejs"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*calls) != 0 {
		t.Errorf("no commands should run when tool is resolvable, got %v", *calls)
	}
}

func TestEnsureInstalled_AptSequence(t *testing.T) {
	origLook, origRun := lookPath, execRun
	t.Cleanup(func() { lookPath, execRun = origLook, origRun })

	installed := false
	lookPath = func(bin string) (string, error) {
		if installed {
			return "/usr/bin/" + bin, nil
		}
		return "", fmt.Errorf("not found")
	}
	var calls [][]string
	execRun = func(log io.Writer, name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		installed = true
		return nil
	}

	in := &Installer{Family: probe.FamilyApt, Log: io.Discard}
	if err := in.EnsureInstalled("node", "nodejs"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("expected 2 commands (index refresh + install), got %v", calls)
	}
	if got := strings.Join(calls[0], " "); got != "apt-get update -qq" {
		t.Errorf("first command = %q", got)
	}
	if got := strings.Join(calls[1], " "); got != "apt-get install -y nodejs" {
		t.Errorf("second command = %q", got)
	}
}

func TestEnsureInstalled_UnknownFamily(t *testing.T) {
	patchSeams(t, nil)

	in := &Installer{Family: probe.FamilyUnknown, Log: io.Discard}
	err := in.EnsureInstalled("node", "nodejs")
	if !errors.Is(err, ErrNoInstallStrategy) {
		t.Errorf("want ErrNoInstallStrategy, got %v", err)
	}
}

func TestEnsureInstalled_VerificationFailure(t *testing.T) {
	// Install commands "succeed" but the tool never shows up on PATH.
	calls := patchSeams(t, nil)

	in := &Installer{Family: probe.FamilyApk, Log: io.Discard}
	err := in.EnsureInstalled("node", "nodejs")
	if !errors.Is(err, ErrInstallVerification) {
		t.Errorf("want ErrInstallVerification, got %v", err)
	}
	if len(*calls) != 2 {
		t.Errorf("install commands should still have run, got %v", *calls)
	}
}

func TestEnsureInstalled_InstallCommandFails(t *testing.T) {
	origLook, origRun := lookPath, execRun
	t.Cleanup(func() { lookPath, execRun = origLook, origRun })

	lookPath = func(bin string) (string, error) { return "", fmt.Errorf("not found") }
	execRun = func(log io.Writer, name string, args ...string) error {
		return fmt.Errorf("exit status 100")
	}

	in := &Installer{Family: probe.FamilyDnf, Log: io.Discard}
	err := in.EnsureInstalled("node", "nodejs")
	if err == nil {
		t.Fatal("expected error when install command fails")
	}
	if errors.Is(err, ErrInstallVerification) {
		t.Error("command failure must be distinguishable from verification failure")
	}
}
