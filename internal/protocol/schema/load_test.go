package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/lotusrpc/internal/testutil/testlog"
)

func TestLoadFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "test.lrpc.yaml")
	if err := os.WriteFile(path, []byte(testDefinitionYAML), 0o644); err != nil {
		t.Fatalf("write definition: %v", err)
	}
	d, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if d.Name() != "test" || d.Version() != "1.2.3" || d.Namespace() != "ns" {
		t.Fatalf("unexpected definition header: %s %s %s", d.Name(), d.Version(), d.Namespace())
	}
}

func TestLoadFileMissing(t *testing.T) {
	testlog.Start(t)
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.lrpc.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	_, err := Parse([]byte("name: x\nunknown_key: 1\nservices:\n  - name: s\n    functions: [{ name: f }]\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown_key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	testlog.Start(t)
	if _, err := Parse(nil); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("expected ErrInvalidDefinition, got %v", err)
	}
}
