package widget_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/orreryhq/orrery/internal/widget"
)

const validDescriptorJSON = `{
	"title": "Solar System",
	"entrypoints": {
		"markup": "index.html",
		"script": "dist/widget.js",
		"style": "widget.css"
	},
	"tool": {
		"name": "focus-planet",
		"description": "Center the view on a planet",
		"handler": "solar",
		"invoking": "Focusing...",
		"invoked": "Focused"
	}
}`

// writeWidgetDir creates <root>/<name>/widget.json with the given contents
// and returns the widget directory.
func writeWidgetDir(t *testing.T, root, name, descriptor string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, widget.DescriptorFilename), []byte(descriptor), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadDescriptor(t *testing.T) {
	t.Parallel()

	dir := writeWidgetDir(t, t.TempDir(), "solar-system", validDescriptorJSON)

	p, err := widget.LoadDescriptor(dir)
	if err != nil {
		t.Fatalf("LoadDescriptor() error: %v", err)
	}

	if p.ID != "solar-system" {
		t.Errorf("ID = %q, want %q (directory name default)", p.ID, "solar-system")
	}
	if p.Title != "Solar System" {
		t.Errorf("Title = %q, want %q", p.Title, "Solar System")
	}
	if got := p.Entrypoints[widget.KindScript]; got != "dist/widget.js" {
		t.Errorf("script entrypoint = %q, want %q", got, "dist/widget.js")
	}
	if p.Tool.Name != "focus-planet" || p.Tool.Handler != "solar" {
		t.Errorf("Tool = %+v, want name focus-planet handler solar", p.Tool)
	}
}

func TestLoadDescriptorDefaultsTitleToID(t *testing.T) {
	t.Parallel()

	descriptor := `{
		"entrypoints": {"markup": "index.html", "script": "widget.js", "style": "widget.css"},
		"tool": {"name": "t", "description": "d"}
	}`
	dir := writeWidgetDir(t, t.TempDir(), "clock", descriptor)

	p, err := widget.LoadDescriptor(dir)
	if err != nil {
		t.Fatalf("LoadDescriptor() error: %v", err)
	}
	if p.Title != "clock" {
		t.Errorf("Title = %q, want id fallback %q", p.Title, "clock")
	}
}

func TestLoadDescriptorErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		dirName    string
		descriptor string
		wantSubstr string
	}{
		{
			name:    "missing entrypoints",
			dirName: "clock",
			descriptor: `{
				"tool": {"name": "t", "description": "d"}
			}`,
			wantSubstr: "entrypoints",
		},
		{
			name:    "missing tool description",
			dirName: "clock",
			descriptor: `{
				"entrypoints": {"markup": "a.html", "script": "b.js", "style": "c.css"},
				"tool": {"name": "t"}
			}`,
			wantSubstr: "description",
		},
		{
			name:    "unknown field rejected",
			dirName: "clock",
			descriptor: `{
				"entrypoints": {"markup": "a.html", "script": "b.js", "style": "c.css"},
				"tool": {"name": "t", "description": "d"},
				"bogus": true
			}`,
			wantSubstr: "bogus",
		},
		{
			name:    "id mismatch with directory",
			dirName: "clock",
			descriptor: `{
				"id": "sundial",
				"entrypoints": {"markup": "a.html", "script": "b.js", "style": "c.css"},
				"tool": {"name": "t", "description": "d"}
			}`,
			wantSubstr: "does not match",
		},
		{
			name:    "invalid id casing",
			dirName: "Clock",
			descriptor: `{
				"entrypoints": {"markup": "a.html", "script": "b.js", "style": "c.css"},
				"tool": {"name": "t", "description": "d"}
			}`,
			wantSubstr: "not a valid widget identifier",
		},
		{
			name:    "entrypoint escapes directory",
			dirName: "clock",
			descriptor: `{
				"entrypoints": {"markup": "../outside.html", "script": "b.js", "style": "c.css"},
				"tool": {"name": "t", "description": "d"}
			}`,
			wantSubstr: "escapes the widget directory",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dir := writeWidgetDir(t, t.TempDir(), tc.dirName, tc.descriptor)
			_, err := widget.LoadDescriptor(dir)
			if err == nil {
				t.Fatal("LoadDescriptor() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.wantSubstr) {
				t.Errorf("error %q does not mention %q", err, tc.wantSubstr)
			}
		})
	}
}

func TestLoadDescriptorMissingFile(t *testing.T) {
	t.Parallel()

	_, err := widget.LoadDescriptor(t.TempDir())
	if err == nil {
		t.Fatal("LoadDescriptor() succeeded for directory without widget.json")
	}
}
