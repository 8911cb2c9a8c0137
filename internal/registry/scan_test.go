package registry_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orreryhq/orrery/internal/registry"
	"github.com/orreryhq/orrery/internal/widget"
)

func writeArtifact(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(name), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestScanOutputDirRebuildsGeneration(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeArtifact(t, dir, "solar-system-0123456789abcdef.html")
	writeArtifact(t, dir, "solar-system-aaaaaaaaaaaaaaaa.js")
	writeArtifact(t, dir, "solar-system-bbbbbbbbbbbbbbbb.css")
	writeArtifact(t, dir, "manifest.json") // not an artifact, ignored

	gen, err := registry.ScanOutputDir(dir, "assets")
	if err != nil {
		t.Fatalf("ScanOutputDir() error: %v", err)
	}

	if gen.ID != 1 {
		t.Errorf("ID = %d, want reset to 1", gen.ID)
	}
	if len(gen.Widgets) != 1 {
		t.Fatalf("recovered %d widgets, want 1", len(gen.Widgets))
	}
	e := gen.Widgets[0]
	if e.WidgetID != "solar-system" {
		t.Errorf("WidgetID = %q", e.WidgetID)
	}
	if e.Markup != "assets/solar-system-0123456789abcdef.html" {
		t.Errorf("Markup = %q", e.Markup)
	}
	if e.Hashes[widget.KindScript] != "aaaaaaaaaaaaaaaa" {
		t.Errorf("script hash = %q", e.Hashes[widget.KindScript])
	}
	if e.Tool.Name == "" || e.Tool.Description == "" {
		t.Errorf("recovered entry lacks a usable tool spec: %+v", e.Tool)
	}
}

func TestScanOutputDirSkipsIncompleteTriples(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeArtifact(t, dir, "solar-system-0123456789abcdef.html")
	writeArtifact(t, dir, "solar-system-aaaaaaaaaaaaaaaa.js")
	// no style artifact

	gen, err := registry.ScanOutputDir(dir, "assets")
	if err != nil {
		t.Fatal(err)
	}
	if len(gen.Widgets) != 0 {
		t.Errorf("recovered %d widgets, want 0 for incomplete triple", len(gen.Widgets))
	}
}

func TestScanOutputDirNewestWins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	old := writeArtifact(t, dir, "clock-0000000000000000.js")
	writeArtifact(t, dir, "clock-1111111111111111.js")
	writeArtifact(t, dir, "clock-0123456789abcdef.html")
	writeArtifact(t, dir, "clock-bbbbbbbbbbbbbbbb.css")

	// Make the duplicate script unambiguously older.
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	gen, err := registry.ScanOutputDir(dir, "assets")
	if err != nil {
		t.Fatal(err)
	}
	if len(gen.Widgets) != 1 {
		t.Fatalf("recovered %d widgets, want 1", len(gen.Widgets))
	}
	if got := gen.Widgets[0].Hashes[widget.KindScript]; got != "1111111111111111" {
		t.Errorf("script hash = %q, want newest 1111111111111111", got)
	}
}

func TestScanOutputDirMissingDir(t *testing.T) {
	t.Parallel()

	if _, err := registry.ScanOutputDir(filepath.Join(t.TempDir(), "nope"), "assets"); err == nil {
		t.Fatal("ScanOutputDir() succeeded for missing directory")
	}
}
