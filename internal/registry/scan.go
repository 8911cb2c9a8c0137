package registry

import (
	"fmt"
	"os"
	"path"
	"sort"
	"time"

	"github.com/orreryhq/orrery/internal/widget"
)

// ScanOutputDir reconstructs a generation from the filename convention of an
// output directory. This is the recovery path for a lost or corrupt
// manifest: the convention is itself the wire format, so paths and hashes
// come back intact. Tool metadata does not survive a scan (it lives only in
// descriptors and the manifest) and is replaced by a synthesized minimal
// spec, and the generation id is reset to 1, so the result serves assets
// correctly but should be replaced by a real build as soon as possible.
//
// When artifacts from several generations coexist in the directory, the
// newest file per (widget, kind) wins. Widgets without a complete
// markup/script/style triple are skipped.
func ScanOutputDir(dir, publicPath string) (*widget.Generation, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("registry: scan output dir %q: %w", dir, err)
	}

	type candidate struct {
		hash     string
		filename string
		modTime  time.Time
	}
	found := make(map[string]map[widget.Kind]candidate)

	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		id, hash, kind, ok := widget.ParseArtifactName(de.Name())
		if !ok {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("registry: stat %q: %w", de.Name(), err)
		}
		if found[id] == nil {
			found[id] = make(map[widget.Kind]candidate)
		}
		prev, exists := found[id][kind]
		if !exists || info.ModTime().After(prev.modTime) {
			found[id][kind] = candidate{hash: hash, filename: de.Name(), modTime: info.ModTime()}
		}
	}

	gen := &widget.Generation{ID: 1, CreatedAt: time.Now().UTC()}
	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		kinds := found[id]
		if len(kinds) != len(widget.Kinds) {
			continue
		}
		entry := widget.Entry{
			WidgetID: id,
			Title:    id,
			// The descriptor's tool metadata is gone; synthesize a minimal
			// spec so the widget stays invocable until the next build.
			Tool: widget.ToolSpec{
				Name:        "show-" + id,
				Description: "Render the " + id + " widget.",
			},
			Markup:     path.Join(publicPath, kinds[widget.KindMarkup].filename),
			Script:     path.Join(publicPath, kinds[widget.KindScript].filename),
			Style:      path.Join(publicPath, kinds[widget.KindStyle].filename),
			Hashes:     map[widget.Kind]string{},
			Generation: gen.ID,
		}
		for kind, c := range kinds {
			entry.Hashes[kind] = c.hash
		}
		gen.Widgets = append(gen.Widgets, entry)
	}
	return gen, nil
}
