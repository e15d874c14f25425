package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	if m.InstallDir != "/usr/local/bin" {
		t.Errorf("InstallDir = %q", m.InstallDir)
	}
	if m.SchedulerDir != "/opt/cronicle" {
		t.Errorf("SchedulerDir = %q", m.SchedulerDir)
	}
	if m.ExporterPort != 9100 || m.SchedulerPort != 3012 {
		t.Errorf("ports = %d/%d", m.ExporterPort, m.SchedulerPort)
	}
	if m.PollTimeout() != 30*time.Second {
		t.Errorf("PollTimeout = %v", m.PollTimeout())
	}
}

func TestLoad_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provisr.yaml")
	os.WriteFile(path, []byte("exporter_port: 9200\ninstall_dir: /opt/bin\n"), 0644)

	m, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.ExporterPort != 9200 {
		t.Errorf("ExporterPort = %d, want 9200", m.ExporterPort)
	}
	if m.InstallDir != "/opt/bin" {
		t.Errorf("InstallDir = %q, want /opt/bin", m.InstallDir)
	}
	// Untouched fields keep defaults.
	if m.SchedulerPort != 3012 {
		t.Errorf("SchedulerPort = %d, want default 3012", m.SchedulerPort)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provisr.yaml")
	os.WriteFile(path, []byte("exporter_port: 99999\n"), 0644)

	if _, err := Load(path); err == nil {
		t.Error("expected error for out-of-range port")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provisr.yaml")
	os.WriteFile(path, []byte(":\n\t- not yaml"), 0644)

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
