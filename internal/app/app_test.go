package app_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/orreryhq/orrery/internal/app"
	"github.com/orreryhq/orrery/internal/config"
	"github.com/orreryhq/orrery/internal/observe"
	"github.com/orreryhq/orrery/internal/registry"
	"github.com/orreryhq/orrery/internal/widget"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// seedOutputDir writes a complete artifact triple and a manifest for one
// widget, returning the config pointing at it.
func seedOutputDir(t *testing.T) *config.Config {
	t.Helper()
	outputDir := t.TempDir()

	names := map[widget.Kind]string{
		widget.KindMarkup: "solar-system-0123456789abcdef.html",
		widget.KindScript: "solar-system-aaaaaaaaaaaaaaaa.js",
		widget.KindStyle:  "solar-system-bbbbbbbbbbbbbbbb.css",
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(outputDir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	gen := &widget.Generation{
		ID: 1,
		Widgets: []widget.Entry{{
			WidgetID: "solar-system",
			Title:    "Solar System",
			Tool:     widget.ToolSpec{Name: "focus-planet", Description: "d"},
			Markup:   "assets/" + names[widget.KindMarkup],
			Script:   "assets/" + names[widget.KindScript],
			Style:    "assets/" + names[widget.KindStyle],
			Hashes: map[widget.Kind]string{
				widget.KindMarkup: "0123456789abcdef",
				widget.KindScript: "aaaaaaaaaaaaaaaa",
				widget.KindStyle:  "bbbbbbbbbbbbbbbb",
			},
			Generation: 1,
		}},
	}
	manifest := filepath.Join(outputDir, "manifest.json")
	if err := registry.NewFileStore(manifest).Save(context.Background(), gen); err != nil {
		t.Fatal(err)
	}

	return &config.Config{
		Server: config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Assets: config.AssetsConfig{
			OutputDir:  outputDir,
			BaseURL:    "https://example.test",
			PublicPath: "assets",
		},
		Registry: config.RegistryConfig{
			Backend:      config.BackendFile,
			ManifestPath: manifest,
		},
	}
}

func TestNewLoadsManifest(t *testing.T) {
	t.Parallel()

	cfg := seedOutputDir(t)
	a, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
}

func TestNewRecoversFromOutputScan(t *testing.T) {
	t.Parallel()

	cfg := seedOutputDir(t)
	// Remove the manifest so startup has to fall back to the filename scan.
	if err := os.Remove(cfg.Registry.ManifestPath); err != nil {
		t.Fatal(err)
	}

	a, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer a.Shutdown(context.Background())
}

func TestNewFailsWithoutWidgets(t *testing.T) {
	t.Parallel()

	cfg := seedOutputDir(t)
	cfg.Assets.OutputDir = t.TempDir() // empty, no artifacts
	if err := os.Remove(cfg.Registry.ManifestPath); err != nil {
		t.Fatal(err)
	}

	_, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t)))
	if err == nil {
		t.Fatal("New() succeeded with no published widgets")
	}
	if !strings.Contains(err.Error(), "orrery build") {
		t.Errorf("error %q does not point at the build command", err)
	}
}

func TestNewFailsOnBadBaseURL(t *testing.T) {
	t.Parallel()

	cfg := seedOutputDir(t)
	cfg.Assets.BaseURL = "not-a-url"

	if _, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t))); err == nil {
		t.Fatal("New() succeeded with invalid base URL")
	}
}

func TestNewFailsOnUnknownLogicHandler(t *testing.T) {
	t.Parallel()

	cfg := seedOutputDir(t)

	// Rewrite the manifest so the widget references a handler nobody
	// registered.
	store := registry.NewFileStore(cfg.Registry.ManifestPath)
	gen, err := store.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	gen.Widgets[0].Tool.Handler = "nonexistent"
	if err := store.Save(context.Background(), gen); err != nil {
		t.Fatal(err)
	}

	if _, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t))); err == nil {
		t.Fatal("New() succeeded with unregistered logic handler")
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	t.Parallel()

	cfg := seedOutputDir(t)
	a, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run() returned %v, want context.Canceled", err)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
}
