// Package build implements the widget build orchestrator: discovery of
// widget projects, per-widget bundling, deterministic content-addressed
// naming, markup URL rewriting, and the atomic publish of a complete build
// generation.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/orreryhq/orrery/internal/baseurl"
	"github.com/orreryhq/orrery/internal/observe"
	"github.com/orreryhq/orrery/internal/registry"
	"github.com/orreryhq/orrery/internal/widget"
)

// Orchestrator produces complete build generations. A run either commits a
// whole generation (every widget's markup/script/style triple built,
// written, and published in one registry swap) or fails with no visible
// effect on the previously published generation.
type Orchestrator struct {
	scanner    widget.Scanner
	bundler    Bundler
	resolver   *baseurl.Resolver
	registry   *registry.Registry
	store      registry.Store
	outputDir  string
	publicPath string
	metrics    *observe.Metrics
}

// Option is a functional option for [New].
type Option func(*Orchestrator)

// WithBundler overrides the default [FileBundler].
func WithBundler(b Bundler) Option {
	return func(o *Orchestrator) { o.bundler = b }
}

// WithMetrics wires build instrumentation. Without it the orchestrator runs
// unmetered.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an Orchestrator. outputDir is where artifacts are written;
// publicPath is the URL path prefix under which the static server exposes
// them (e.g. "assets").
func New(scanner widget.Scanner, resolver *baseurl.Resolver, reg *registry.Registry, store registry.Store, outputDir, publicPath string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		scanner:    scanner,
		bundler:    FileBundler{},
		resolver:   resolver,
		registry:   reg,
		store:      store,
		outputDir:  outputDir,
		publicPath: publicPath,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// widgetBuild is the in-memory result of building one widget: its registry
// entry plus the final bytes per artifact filename, ready to be written.
type widgetBuild struct {
	entry widget.Entry
	files map[string][]byte
}

// Run executes one full build. On success it returns the committed
// generation; when the input is byte-identical to the previous generation
// the previous generation is returned unchanged (idempotence: same hashes,
// same entries, no new generation id).
//
// Any widget failure aborts the whole run before the manifest or registry
// are touched: a broken widget must never take down already-working widgets.
func (o *Orchestrator) Run(ctx context.Context) (*widget.Generation, error) {
	ctx, span := observe.StartSpan(ctx, "build.run")
	defer span.End()
	start := time.Now()

	gen, err := o.run(ctx)

	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.metrics.BuildDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("status", status)))
		if gen != nil && err == nil {
			o.metrics.RegistryGeneration.Record(ctx, gen.ID)
		}
	}
	return gen, err
}

func (o *Orchestrator) run(ctx context.Context) (*widget.Generation, error) {
	projects, err := o.scanner.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("build: discovery: %w", err)
	}
	if len(projects) == 0 {
		return nil, fmt.Errorf("build: no widget projects found")
	}

	// Fan out per-widget bundling. Widgets are independent and share no
	// mutable state; every widget is attempted even when siblings fail so
	// the error report covers the whole source set.
	results := make([]widgetBuild, len(projects))
	buildErrs := make([]error, len(projects))
	var g errgroup.Group
	for i, p := range projects {
		g.Go(func() error {
			results[i], buildErrs[i] = o.buildWidget(ctx, p)
			return nil
		})
	}
	g.Wait()

	if err := errors.Join(buildErrs...); err != nil {
		return nil, fmt.Errorf("build: generation aborted: %w", err)
	}

	prev, err := o.previousGeneration(ctx)
	if err != nil {
		return nil, err
	}

	gen := &widget.Generation{CreatedAt: time.Now().UTC()}
	for _, r := range results {
		gen.Widgets = append(gen.Widgets, r.entry)
	}
	gen.Sort()

	// Artifacts are content-addressed, so writing them can never clobber the
	// previous generation; files land on disk before the registry moves.
	if err := o.writeArtifacts(results); err != nil {
		return nil, err
	}

	if prev != nil && gen.SameContent(prev) {
		slog.Info("build unchanged, keeping generation",
			"generation", prev.ID, "widgets", len(prev.Widgets))
		o.registry.Publish(prev)
		return prev, nil
	}

	gen.ID = 1
	if prev != nil {
		gen.ID = prev.ID + 1
	}
	for i := range gen.Widgets {
		gen.Widgets[i].Generation = gen.ID
	}

	if err := o.store.Save(ctx, gen); err != nil {
		return nil, fmt.Errorf("build: commit manifest: %w", err)
	}
	o.registry.Publish(gen)

	slog.Info("build generation published",
		"generation", gen.ID, "widgets", len(gen.Widgets))
	return gen, nil
}

// previousGeneration returns the last committed generation, preferring the
// in-memory registry and falling back to the manifest store.
func (o *Orchestrator) previousGeneration(ctx context.Context) (*widget.Generation, error) {
	if gen := o.registry.Current(); gen != nil {
		return gen, nil
	}
	gen, err := o.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("build: load previous generation: %w", err)
	}
	return gen, nil
}

// buildWidget bundles one widget and assembles its content-addressed triple.
// Script and style are hashed first; the markup is rewritten to reference
// their absolute URLs and hashed after the rewrite, so the markup hash
// covers the final referenced URLs.
func (o *Orchestrator) buildWidget(ctx context.Context, p widget.Project) (widgetBuild, error) {
	out, err := o.bundler.Bundle(ctx, p)
	if err != nil {
		return widgetBuild{}, err
	}
	for _, kind := range widget.Kinds {
		if _, ok := out[kind]; !ok {
			return widgetBuild{}, fmt.Errorf("build: widget %q: bundler produced no %s output", p.ID, kind)
		}
	}

	files := make(map[string][]byte, len(widget.Kinds))
	hashes := make(map[widget.Kind]string, len(widget.Kinds))
	relPaths := make(map[widget.Kind]string, len(widget.Kinds))
	urls := make(map[widget.Kind]string, 2)

	for _, kind := range []widget.Kind{widget.KindScript, widget.KindStyle} {
		data := out[kind]
		hash := Fingerprint(data)
		name := widget.ArtifactFilename(p.ID, hash, kind)
		hashes[kind] = hash
		relPaths[kind] = path.Join(o.publicPath, name)
		urls[kind] = o.resolver.Absolute(relPaths[kind])
		files[name] = data
	}

	markup := rewriteMarkup(out[widget.KindMarkup], p.Entrypoints, urls)
	markupHash := Fingerprint(markup)
	markupName := widget.ArtifactFilename(p.ID, markupHash, widget.KindMarkup)
	hashes[widget.KindMarkup] = markupHash
	relPaths[widget.KindMarkup] = path.Join(o.publicPath, markupName)
	files[markupName] = markup

	if o.metrics != nil {
		for _, data := range files {
			o.metrics.ArtifactsBuilt.Add(ctx, 1,
				metric.WithAttributes(attribute.String("widget", p.ID)))
			o.metrics.ArtifactBytes.Add(ctx, int64(len(data)),
				metric.WithAttributes(attribute.String("widget", p.ID)))
		}
	}

	return widgetBuild{
		entry: widget.Entry{
			WidgetID: p.ID,
			Title:    p.Title,
			Tool:     p.Tool,
			Markup:   relPaths[widget.KindMarkup],
			Script:   relPaths[widget.KindScript],
			Style:    relPaths[widget.KindStyle],
			Hashes:   hashes,
		},
		files: files,
	}, nil
}

// writeArtifacts writes every built file via temp file + rename so the
// static server never observes a partially written artifact. Rewriting an
// existing artifact writes identical bytes (names are content-addressed).
func (o *Orchestrator) writeArtifacts(results []widgetBuild) error {
	if err := os.MkdirAll(o.outputDir, 0o755); err != nil {
		return fmt.Errorf("build: create output dir %q: %w", o.outputDir, err)
	}
	for _, r := range results {
		for name, data := range r.files {
			if err := writeFileAtomic(filepath.Join(o.outputDir, name), data); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeFileAtomic(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, ".orrery-*")
	if err != nil {
		return fmt.Errorf("build: create temp file in %q: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("build: write %q: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("build: close %q: %w", dst, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("build: chmod %q: %w", dst, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("build: commit %q: %w", dst, err)
	}
	return nil
}
