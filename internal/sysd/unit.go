package sysd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// Unit describes a systemd service unit. Render is a pure function of these
// fields, so installing a unit always converges to the same file content no
// matter what a previous run (or a hand edit) left behind.
type Unit struct {
	Name             string // unit name without the .service suffix
	Description      string
	After            string // default: network.target
	Type             string // default: simple
	PIDFile          string // forking units only
	ExecStart        string
	ExecStop         string
	User             string
	Group            string
	WorkingDirectory string
	RestartSec       int // default: 5
}

// Restart policy is fixed: always restart with a flat delay. Backoff is left
// to systemd's own StartLimit handling.
const unitTemplate = `[Unit]
Description={{.Description}}
After={{.After}}

[Service]
Type={{.Type}}
{{- if .PIDFile}}
PIDFile={{.PIDFile}}
{{- end}}
User={{.User}}
{{- if .Group}}
Group={{.Group}}
{{- end}}
{{- if .WorkingDirectory}}
WorkingDirectory={{.WorkingDirectory}}
{{- end}}
ExecStart={{.ExecStart}}
{{- if .ExecStop}}
ExecStop={{.ExecStop}}
{{- end}}
Restart=always
RestartSec={{.RestartSec}}

[Install]
WantedBy=multi-user.target
`

var unitTmpl = template.Must(template.New("unit").Parse(unitTemplate))

// Render produces the full unit file text with defaults applied.
func (u Unit) Render() (string, error) {
	if u.After == "" {
		u.After = "network.target"
	}
	if u.Type == "" {
		u.Type = "simple"
	}
	if u.RestartSec == 0 {
		u.RestartSec = 5
	}
	var b strings.Builder
	if err := unitTmpl.Execute(&b, u); err != nil {
		return "", fmt.Errorf("rendering unit %s: %w", u.Name, err)
	}
	return b.String(), nil
}

// UnitPath returns the on-disk path for the named unit.
func UnitPath(name string) string {
	return filepath.Join(unitDir, name+".service")
}

// Install writes the unit file as a full overwrite and reloads the unit
// cache. Existing files are never patched; regeneration guarantees
// convergence even over stale or hand-edited units.
func Install(u Unit, log io.Writer) error {
	content, err := u.Render()
	if err != nil {
		return err
	}

	path := UnitPath(u.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating unit dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing unit %s: %w", path, err)
	}
	fmt.Fprintf(log, "[provisr] Wrote unit %s\n", path)

	return daemonReload(log)
}
