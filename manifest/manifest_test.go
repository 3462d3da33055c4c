package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chazu/m43/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[program]
name = "double"
source = "src/double.m43"

[debug]
breakpoints = [2, 2, 4, 6]
step-limit = 1000

[server]
port = 8080

[log]
verbosity = 2
file = "m43.log"

[trace]
database = "runs.db"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Program.Name != "double" {
		t.Errorf("program name = %q, want double", m.Program.Name)
	}
	if m.SourcePath() != filepath.Join(m.Dir, "src", "double.m43") {
		t.Errorf("source path = %q", m.SourcePath())
	}
	if !reflect.DeepEqual(m.Debug.Breakpoints, []int{2, 2, 4, 6}) {
		t.Errorf("breakpoints = %v", m.Debug.Breakpoints)
	}
	if m.Debug.StepLimit != 1000 {
		t.Errorf("step limit = %d, want 1000", m.Debug.StepLimit)
	}
	if m.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", m.Server.Port)
	}
	if p := m.LogPath(); p == nil || *p != filepath.Join(m.Dir, "m43.log") {
		t.Errorf("log path = %v", p)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", m.Log.Verbosity)
	}
	db, err := m.TraceDatabase()
	if err != nil || db != filepath.Join(m.Dir, "runs.db") {
		t.Errorf("trace database = %q, %v", db, err)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[program]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Program.Source != "main.m43" {
		t.Errorf("default source = %q, want main.m43", m.Program.Source)
	}
	if m.Server.Port != 4343 {
		t.Errorf("default port = %d, want 4343", m.Server.Port)
	}
	if m.LogPath() != nil {
		t.Error("default log path should be nil (stderr)")
	}
}

func TestLoadManifestOddBreakpoints(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[debug]
breakpoints = [1, 2, 3]
`)
	_, err := Load(dir)
	if !errors.Is(err, vm.FaultBadBreakpoints) {
		t.Fatalf("Load error = %v, want FaultBadBreakpoints", err)
	}
}

func TestLoadManifestSyntaxError(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[program\nname = ")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTraceDisabled(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[trace]\ndisabled = true\n")
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if db, err := m.TraceDatabase(); db != "" || err != nil {
		t.Errorf("TraceDatabase = %q, %v; want disabled", db, err)
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[program]\nname = \"found\"\n")
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m == nil || m.Program.Name != "found" {
		t.Fatalf("manifest = %+v", m)
	}
}

func TestFindAndLoadNone(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	// A temp dir could sit below a stray m43.toml; only assert when none is found.
	if m != nil && m.Dir == "" {
		t.Error("found manifest without Dir")
	}
}
