package sysd

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// ErrServiceActivation means a service did not reach active state within the
// polling budget after being (re)started.
var ErrServiceActivation = errors.New("service activation failed")

var unitDir = "/etc/systemd/system"

// Seams for tests.
var (
	runSystemctl = func(log io.Writer, args ...string) error {
		fmt.Fprintf(log, "[provisr] systemctl %v\n", args)
		cmd := exec.Command("systemctl", args...)
		cmd.Stdout = log
		cmd.Stderr = log
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("systemctl %v: %w", args, err)
		}
		return nil
	}
	isActive = func(name string) bool {
		return exec.Command("systemctl", "is-active", "--quiet", name).Run() == nil
	}
	journalTail = func(name string, lines int) string {
		out, err := exec.Command("journalctl", "-u", name, "-n", fmt.Sprint(lines), "--no-pager").CombinedOutput()
		if err != nil {
			return fmt.Sprintf("(journalctl failed: %v)", err)
		}
		return string(out)
	}
	sleep = time.Sleep
)

func daemonReload(log io.Writer) error {
	return runSystemctl(log, "daemon-reload")
}

// Enable marks the unit for automatic start at boot.
func Enable(name string, log io.Writer) error {
	return runSystemctl(log, "enable", name)
}

// Restart (re)starts the unit; a stopped unit is simply started.
func Restart(name string, log io.Writer) error {
	return runSystemctl(log, "restart", name)
}

// WaitActive polls the unit's active state at the given interval until it is
// active or the timeout budget is exhausted. On failure it dumps recent
// journal lines so the operator sees why the service died.
func WaitActive(name string, timeout, interval time.Duration, log io.Writer) error {
	deadline := time.Now().Add(timeout)
	for {
		if isActive(name) {
			fmt.Fprintf(log, "[provisr] Service %s is active\n", name)
			return nil
		}
		if time.Now().After(deadline) {
			break
		}
		sleep(interval)
	}

	fmt.Fprintf(log, "[provisr] Recent log output for %s:\n%s", name, journalTail(name, 25))
	return fmt.Errorf("%w: %s did not become active within %s", ErrServiceActivation, name, timeout)
}
