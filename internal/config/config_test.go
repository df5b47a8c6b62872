package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/lotusrpc/internal/testutil/testlog"
	"github.com/danmuck/lotusrpc/internal/transport"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lrpcc.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTemplate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "lrpcc.toml")
	if err := WriteTemplate(path, "tcp", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Definition != filepath.Join(filepath.Dir(path), "example.lrpc.yaml") {
		t.Fatalf("definition not resolved against config dir: %s", cfg.Definition)
	}
	if cfg.Transport.Kind != TransportTCP || cfg.Transport.Address != "localhost:5000" {
		t.Fatalf("unexpected transport: %+v", cfg.Transport)
	}
	if cfg.Transport.ReadTimeout != time.Second || cfg.Transport.Backoff.InitialDelay != 250*time.Millisecond {
		t.Fatalf("unexpected durations: %+v", cfg.Transport.Config)
	}
	if !cfg.CheckServerVersion || cfg.Transport.TLS.Enabled {
		t.Fatalf("unexpected flags: %+v", cfg)
	}
}

func TestLoadStdioTemplate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "lrpcc.toml")
	if err := WriteTemplate(path, "stdio", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport.Kind != TransportStdio || cfg.CheckServerVersion || cfg.LogLevel != "warn" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Transport.Command) != 2 || cfg.Transport.Command[0] != "./server" {
		t.Fatalf("unexpected command: %q", cfg.Transport.Command)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
definition = "/defs/app.lrpc.yaml"

[transport]
address = "10.0.0.2:5000"
read_timeout = "250ms"

[transport.tls]
enabled = true
mutual = true
ca_file = "certs/ca.crt"
cert_file = "certs/lrpcc.crt"
key_file = "certs/lrpcc.key"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := transport.DefaultConfig()
	if cfg.Definition != "/defs/app.lrpc.yaml" {
		t.Fatalf("absolute definition changed: %s", cfg.Definition)
	}
	if cfg.Transport.ReadTimeout != 250*time.Millisecond || cfg.Transport.WriteTimeout != def.WriteTimeout {
		t.Fatalf("unexpected timeouts: %+v", cfg.Transport.Config)
	}
	if cfg.LogLevel != "info" || !cfg.CheckServerVersion {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.Transport.TLS.CAFile != filepath.Join(filepath.Dir(path), "certs", "ca.crt") {
		t.Fatalf("ca file not resolved: %s", cfg.Transport.TLS.CAFile)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"missing definition": `[transport]
address = "localhost:1"`,
		"unknown key": `definition = "a.yaml"
colour = "blue"
[transport]
address = "localhost:1"`,
		"bad duration": `definition = "a.yaml"
[transport]
address = "localhost:1"
read_timeout = "soon"`,
		"bad kind": `definition = "a.yaml"
[transport]
kind = "carrier-pigeon"`,
		"missing address": `definition = "a.yaml"`,
		"stdio without command": `definition = "a.yaml"
[transport]
kind = "stdio"`,
		"bad log level": `definition = "a.yaml"
log_level = "loud"
[transport]
address = "localhost:1"`,
		"tls without ca": `definition = "a.yaml"
[transport]
address = "localhost:1"
[transport.tls]
enabled = true`,
	}
	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestLoadReportsTransportCause(t *testing.T) {
	testlog.Start(t)
	_, err := Load(writeConfig(t, `definition = "a.yaml"
[transport]
address = "localhost:1"
[transport.tls]
enabled = true`))
	if !errors.Is(err, transport.ErrTLSCAFileRequired) {
		t.Fatalf("expected transport cause, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	testlog.Start(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil || !strings.Contains(err.Error(), "load lrpcc config") {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, "definition = \"keep.yaml\"\n")
	if err := WriteTemplate(path, "tcp", false); err == nil {
		t.Fatalf("expected error for existing config")
	}
	if err := WriteTemplate(path, "tcp", true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := Template("serial"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
