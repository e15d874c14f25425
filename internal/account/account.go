package account

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"strconv"
)

// Seams for tests.
var (
	lookupUser = user.Lookup
	execRun    = runCmd
	chownFile  = os.Chown
)

// Ensure creates a dedicated unprivileged service account if it does not
// already exist: system user, no home directory, login shell disabled.
// An existing account is success, not an error.
func Ensure(name string, log io.Writer) error {
	if _, err := lookupUser(name); err == nil {
		fmt.Fprintf(log, "[provisr] User %s already exists, skipping\n", name)
		return nil
	}

	fmt.Fprintf(log, "[provisr] Creating service account: %s\n", name)
	return execRun(log, "useradd",
		"--system",
		"--no-create-home",
		"--shell", "/usr/sbin/nologin",
		name)
}

// Chown transfers ownership of path to the named account's uid/gid.
func Chown(path, name string) error {
	u, err := lookupUser(name)
	if err != nil {
		return fmt.Errorf("looking up %s: %w", name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("parsing uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("parsing gid %q: %w", u.Gid, err)
	}
	if err := chownFile(path, uid, gid); err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	return nil
}

func runCmd(log io.Writer, name string, args ...string) error {
	fmt.Fprintf(log, "[provisr] $ %s %v\n", name, args)
	cmd := exec.Command(name, args...)
	cmd.Stdout = log
	cmd.Stderr = log
	return cmd.Run()
}
