package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Scanner enumerates the widget projects available for a build. The
// filesystem implementation is [DirScanner]; tests inject fakes.
type Scanner interface {
	// List returns all widget projects, sorted by id. Malformed descriptors
	// and duplicate widget ids or tool names are discovery errors: List
	// fails and nothing is built.
	List(ctx context.Context) ([]Project, error)
}

// DirScanner discovers widget projects by directory convention: every
// subdirectory of the root containing a widget.json is one widget project.
type DirScanner struct {
	root string
}

// NewDirScanner returns a scanner over the given source root.
func NewDirScanner(root string) *DirScanner {
	return &DirScanner{root: root}
}

// Compile-time interface check.
var _ Scanner = (*DirScanner)(nil)

// List implements [Scanner]. Subdirectories without a widget.json are
// skipped with a debug log so scratch directories in the source tree do not
// break builds; a present-but-invalid descriptor is an error.
func (s *DirScanner) List(ctx context.Context) ([]Project, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("widget: scan %q: %w", s.root, err)
	}

	var (
		projects  []Project
		errs      []error
		seen      = make(map[string]string)
		seenTools = make(map[string]string)
	)
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !de.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, de.Name())
		if _, err := os.Stat(filepath.Join(dir, DescriptorFilename)); os.IsNotExist(err) {
			slog.Debug("skipping directory without descriptor", "dir", dir)
			continue
		}

		p, err := LoadDescriptor(dir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, ok := seen[p.ID]; ok {
			errs = append(errs, fmt.Errorf("widget: duplicate widget id %q in %q and %q", p.ID, prev, dir))
			continue
		}
		// Tool names share one MCP namespace: a collision would leave one
		// widget silently shadowed at registration time.
		if prev, ok := seenTools[p.Tool.Name]; ok {
			errs = append(errs, fmt.Errorf("widget: duplicate tool name %q in %q and %q", p.Tool.Name, prev, dir))
			continue
		}
		seen[p.ID] = dir
		seenTools[p.Tool.Name] = dir
		projects = append(projects, p)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects, nil
}
