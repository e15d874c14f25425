package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the optional provisioner manifest lives.
const DefaultPath = "/etc/provisr/provisr.yaml"

// Manifest holds the few knobs an operator may override. Every field has a
// built-in default; an absent file means "all defaults".
type Manifest struct {
	InstallDir         string `yaml:"install_dir"`          // exporter binary location
	SchedulerDir       string `yaml:"scheduler_dir"`        // scheduler install root
	ExporterPort       int    `yaml:"exporter_port"`        // metrics listen port
	SchedulerPort      int    `yaml:"scheduler_port"`       // scheduler web UI port
	ReleaseIndexURL    string `yaml:"release_index_url"`    // "latest release" metadata endpoint
	DownloadBaseURL    string `yaml:"download_base_url"`    // artifact URL base
	InstallerScriptURL string `yaml:"installer_script_url"` // scheduler upstream installer
	ActivationTimeout  int    `yaml:"activation_timeout_seconds"`
}

// Load reads the manifest at path. A missing file is not an error: the
// built-in defaults describe a standard installation.
func Load(path string) (*Manifest, error) {
	var m Manifest

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyDefaults(&m)

	if m.ExporterPort <= 0 || m.ExporterPort > 65535 {
		return nil, fmt.Errorf("%s: exporter_port %d out of range", path, m.ExporterPort)
	}
	if m.SchedulerPort <= 0 || m.SchedulerPort > 65535 {
		return nil, fmt.Errorf("%s: scheduler_port %d out of range", path, m.SchedulerPort)
	}

	return &m, nil
}

// PollTimeout returns the service-activation polling budget.
func (m *Manifest) PollTimeout() time.Duration {
	return time.Duration(m.ActivationTimeout) * time.Second
}

func applyDefaults(m *Manifest) {
	if m.InstallDir == "" {
		m.InstallDir = "/usr/local/bin"
	}
	if m.SchedulerDir == "" {
		m.SchedulerDir = "/opt/cronicle"
	}
	if m.ExporterPort == 0 {
		m.ExporterPort = 9100
	}
	if m.SchedulerPort == 0 {
		m.SchedulerPort = 3012
	}
	if m.ReleaseIndexURL == "" {
		m.ReleaseIndexURL = "https://api.github.com/repos/prometheus/node_exporter/releases/latest"
	}
	if m.DownloadBaseURL == "" {
		m.DownloadBaseURL = "https://github.com/prometheus/node_exporter/releases/download"
	}
	if m.InstallerScriptURL == "" {
		m.InstallerScriptURL = "https://raw.githubusercontent.com/jhuckaby/Cronicle/master/bin/install.js"
	}
	if m.ActivationTimeout == 0 {
		m.ActivationTimeout = 30
	}
}
