package probe

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"sort"
	"syscall"
)

var (
	// ErrUnsupportedEnvironment means no known package manager was found.
	ErrUnsupportedEnvironment = errors.New("unsupported environment")
	// ErrUnsupportedArchitecture means the machine hardware identifier is not in the release-naming table.
	ErrUnsupportedArchitecture = errors.New("unsupported architecture")
	// ErrNoRoutableAddress means no non-loopback IPv4 address could be found.
	ErrNoRoutableAddress = errors.New("no routable IPv4 address")
)

// Family identifies the host's package manager family.
type Family string

const (
	FamilyApt     Family = "apt"
	FamilyDnf     Family = "dnf"
	FamilyYum     Family = "yum"
	FamilyApk     Family = "apk"
	FamilyUnknown Family = "unknown"
)

// HostProfile holds the facts detected about the target machine.
// It is computed once per run and never mutated afterwards.
type HostProfile struct {
	PkgManager Family
	Arch       string // release-naming token: amd64, arm64, armv7
	IPv4       string // primary non-loopback address, dotted quad
}

// Seams for tests.
var (
	lookPath     = exec.LookPath
	unameMachine = readMachine
	listIfaces   = net.Interfaces
)

// Probe detects the package manager, CPU architecture and primary IPv4
// address of this host. Any detection failure is fatal for the whole run.
func Probe(log io.Writer) (*HostProfile, error) {
	pm := detectPackageManager()
	if pm == FamilyUnknown {
		return nil, fmt.Errorf("%w: no package manager found (tried apt-get, dnf, yum, apk)", ErrUnsupportedEnvironment)
	}

	machine, err := unameMachine()
	if err != nil {
		return nil, fmt.Errorf("reading machine identifier: %w", err)
	}
	arch, err := MapArch(machine)
	if err != nil {
		return nil, err
	}

	ip, err := routableIPv4()
	if err != nil {
		return nil, err
	}

	profile := &HostProfile{PkgManager: pm, Arch: arch, IPv4: ip}
	fmt.Fprintf(log, "[provisr] Host: pkg=%s arch=%s ip=%s\n", profile.PkgManager, profile.Arch, profile.IPv4)
	return profile, nil
}

// detectPackageManager probes for known package managers in a fixed
// priority order. The first executable found on PATH wins.
func detectPackageManager() Family {
	candidates := []struct {
		bin    string
		family Family
	}{
		{"apt-get", FamilyApt},
		{"dnf", FamilyDnf},
		{"yum", FamilyYum},
		{"apk", FamilyApk},
	}
	for _, c := range candidates {
		if _, err := lookPath(c.bin); err == nil {
			return c.family
		}
	}
	return FamilyUnknown
}

// MapArch translates a uname machine identifier into the token used by
// release artifact names. Unknown identifiers are fatal; there is no
// best-effort fallback.
func MapArch(machine string) (string, error) {
	switch machine {
	case "x86_64":
		return "amd64", nil
	case "aarch64":
		return "arm64", nil
	case "armv7l":
		return "armv7", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedArchitecture, machine)
	}
}

func readMachine() (string, error) {
	var uts syscall.Utsname
	if err := syscall.Uname(&uts); err != nil {
		return "", err
	}
	b := make([]byte, 0, len(uts.Machine))
	for _, c := range uts.Machine {
		if c == 0 {
			break
		}
		b = append(b, byte(c))
	}
	return string(b), nil
}

// routableIPv4 walks the host's interfaces in index order and returns the
// first non-loopback IPv4 address. The service bind address is derived from
// this, so an empty result is fatal: binding to all interfaces is explicitly
// not an acceptable substitute.
func routableIPv4() (string, error) {
	ifaces, err := listIfaces()
	if err != nil {
		return "", fmt.Errorf("listing interfaces: %w", err)
	}
	sort.Slice(ifaces, func(i, j int) bool { return ifaces[i].Index < ifaces[j].Index })

	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagLoopback != 0 || ifc.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		if ip := FirstIPv4(addrs); ip != "" {
			return ip, nil
		}
	}
	return "", ErrNoRoutableAddress
}

// FirstIPv4 returns the first non-loopback IPv4 address in addrs, or "".
// Iteration order is the caller's, so selection is deterministic.
func FirstIPv4(addrs []net.Addr) string {
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil || ip4.IsLoopback() {
			continue
		}
		return ip4.String()
	}
	return ""
}
