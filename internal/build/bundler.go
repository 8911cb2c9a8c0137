package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orreryhq/orrery/internal/widget"
)

// Bundler transforms a widget project's sources into final output bytes,
// one byte slice per declared output kind. The actual bundling toolchain
// (esbuild, vite, …) is an external collaborator; the orchestrator's
// contract starts where the final bytes end.
//
// Bundle must be deterministic: unchanged source must yield identical bytes,
// with no embedded timestamps or nondeterministic ordering, or the
// content-addressed naming downstream breaks.
type Bundler interface {
	Bundle(ctx context.Context, p widget.Project) (map[widget.Kind][]byte, error)
}

// FileBundler is the default bundler: it reads each declared entry point
// verbatim. It suits pre-built widget sources whose entry points already are
// the final markup/script/style files.
type FileBundler struct{}

// Compile-time interface check.
var _ Bundler = FileBundler{}

// Bundle implements [Bundler].
func (FileBundler) Bundle(ctx context.Context, p widget.Project) (map[widget.Kind][]byte, error) {
	out := make(map[widget.Kind][]byte, len(p.Entrypoints))
	for kind, entry := range p.Entrypoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(p.Dir, entry))
		if err != nil {
			return nil, fmt.Errorf("build: widget %q: read %s entrypoint: %w", p.ID, kind, err)
		}
		out[kind] = data
	}
	return out, nil
}
