// Package widget defines the core data model for the Orrery widget pipeline:
// projects discovered in the source tree, content-addressed build artifacts,
// and the atomically published generations the asset registry serves from.
package widget

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"time"
)

// Kind identifies one of the three output kinds every widget produces.
type Kind string

const (
	KindMarkup Kind = "markup"
	KindScript Kind = "script"
	KindStyle  Kind = "style"
)

// Kinds lists all output kinds in a stable order.
var Kinds = []Kind{KindMarkup, KindScript, KindStyle}

// IsValid reports whether k is a recognised output kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindMarkup, KindScript, KindStyle:
		return true
	}
	return false
}

// Ext returns the file extension (including the dot) used for artifacts of
// this kind.
func (k Kind) Ext() string {
	switch k {
	case KindMarkup:
		return ".html"
	case KindScript:
		return ".js"
	case KindStyle:
		return ".css"
	}
	return ""
}

// KindForExt returns the output kind associated with a file extension
// (".html", ".js", ".css"). The second return value is false for unknown
// extensions.
func KindForExt(ext string) (Kind, bool) {
	for _, k := range Kinds {
		if k.Ext() == ext {
			return k, true
		}
	}
	return "", false
}

// TemplateURI returns the stable logical template identifier for a widget.
// It never changes across builds: clients key their template caches on it,
// while the markup artifact URL changes whenever the content does.
func TemplateURI(widgetID string) string {
	return "ui://widget/" + widgetID + ".html"
}

// ToolSpec describes the MCP tool a widget exposes. It is declared in the
// widget descriptor and carried through the manifest so the serving process
// can register tools without re-reading widget sources.
type ToolSpec struct {
	// Name is the tool name advertised over MCP (e.g. "focus-solar-planet").
	Name string `json:"name"`

	// Description is the human-readable tool description shown to the model.
	Description string `json:"description"`

	// Handler names the registered domain-logic handler that executes the
	// tool. Empty selects the default echo handler.
	Handler string `json:"handler,omitempty"`

	// Invoking and Invoked are the status strings shown by the client while
	// the tool call is in flight and after it completes.
	Invoking string `json:"invoking,omitempty"`
	Invoked  string `json:"invoked,omitempty"`

	// InputSchema is the raw JSON Schema for the tool's arguments. Empty
	// means an unconstrained object.
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Project is a single widget project discovered in the source set. It is
// immutable for the duration of a build.
type Project struct {
	// ID is the logical widget identifier, unique across the source set and
	// stable across builds.
	ID string

	// Dir is the absolute path of the widget's project directory.
	Dir string

	// Title is the human-readable widget title.
	Title string

	// Entrypoints maps each output kind to the entry point file (relative to
	// Dir) that produces it. Exactly one entry point per kind.
	Entrypoints map[Kind]string

	// Tool is the MCP tool this widget exposes.
	Tool ToolSpec
}

// Artifact is one content-addressed build output file.
type Artifact struct {
	// WidgetID is the logical identifier of the widget this artifact
	// belongs to.
	WidgetID string `json:"widgetId"`

	// Kind is the output kind of this artifact.
	Kind Kind `json:"kind"`

	// Hash is the fixed-length hexadecimal fingerprint of the final bytes.
	// Byte-identical input always yields the same hash.
	Hash string `json:"hash"`

	// Filename is "{widgetId}-{hash}{ext}". The filename convention doubles
	// as the wire format for registry reconstruction.
	Filename string `json:"filename"`

	// RelativePath is the serving path of the artifact relative to the base
	// URL (e.g. "assets/solar-system-ab12cd34ef567890.js").
	RelativePath string `json:"relativePath"`
}

// Entry is the registry record for one widget within one generation: the
// complete markup/script/style triple plus the tool metadata needed to serve
// it. Entries are derived wholly from a single complete generation and are
// never mutated field-by-field.
type Entry struct {
	WidgetID string   `json:"widgetId"`
	Title    string   `json:"title"`
	Tool     ToolSpec `json:"tool"`

	// Markup, Script and Style are serving paths relative to the base URL.
	Markup string `json:"markup"`
	Script string `json:"script"`
	Style  string `json:"style"`

	// Hashes records the content hash per output kind.
	Hashes map[Kind]string `json:"hashes"`

	// Generation is the id of the generation this entry belongs to.
	Generation int64 `json:"generation"`
}

// Path returns the serving path for the given output kind.
func (e Entry) Path(k Kind) string {
	switch k {
	case KindMarkup:
		return e.Markup
	case KindScript:
		return e.Script
	case KindStyle:
		return e.Style
	}
	return ""
}

// Generation is one complete, atomically published set of build outputs
// across all widgets. Either every widget's triple is present and the
// generation is committed, or the previous generation remains authoritative.
type Generation struct {
	// ID increases by one on every committed publish that changed content.
	// Rebuilding unchanged input does not advance it.
	ID int64 `json:"id"`

	// CreatedAt records when the generation was committed.
	CreatedAt time.Time `json:"createdAt"`

	// Widgets holds one entry per widget, sorted by widget id.
	Widgets []Entry `json:"widgets"`
}

// Sort orders the widget entries by id. Called before a generation is
// committed so serialisation and comparison are deterministic.
func (g *Generation) Sort() {
	sort.Slice(g.Widgets, func(i, j int) bool {
		return g.Widgets[i].WidgetID < g.Widgets[j].WidgetID
	})
}

// Lookup returns the entry for the given widget id.
func (g *Generation) Lookup(widgetID string) (Entry, bool) {
	for _, e := range g.Widgets {
		if e.WidgetID == widgetID {
			return e, true
		}
	}
	return Entry{}, false
}

// SameContent reports whether two generations were derived from identical
// input: the same widget set with identical content hashes, titles, and tool
// metadata. Generation id and timestamp are ignored; they are bookkeeping,
// not content.
func (g *Generation) SameContent(other *Generation) bool {
	if other == nil || len(g.Widgets) != len(other.Widgets) {
		return false
	}
	for i, e := range g.Widgets {
		o := other.Widgets[i]
		if e.WidgetID != o.WidgetID || e.Title != o.Title {
			return false
		}
		if !sameToolSpec(e.Tool, o.Tool) {
			return false
		}
		for _, k := range Kinds {
			if e.Hashes[k] != o.Hashes[k] {
				return false
			}
		}
	}
	return true
}

func sameToolSpec(a, b ToolSpec) bool {
	return a.Name == b.Name &&
		a.Description == b.Description &&
		a.Handler == b.Handler &&
		a.Invoking == b.Invoking &&
		a.Invoked == b.Invoked &&
		string(a.InputSchema) == string(b.InputSchema)
}

// ArtifactFilename returns the content-addressed filename for an artifact:
// "{widgetId}-{hash}{ext}".
func ArtifactFilename(widgetID, hash string, kind Kind) string {
	return fmt.Sprintf("%s-%s%s", widgetID, hash, kind.Ext())
}

// artifactNamePattern matches the content-addressed filename convention
// "{widgetId}-{16 hex}.{ext}". Hyphenated widget ids stay intact because the
// hash length is fixed.
var artifactNamePattern = regexp.MustCompile(`^([a-z0-9-]+)-([0-9a-f]{16})\.(html|js|css)$`)

// ParseArtifactName splits a content-addressed filename back into widget id,
// hash, and kind. The filename convention is the wire format the registry
// can be rebuilt from. ok is false for names outside the convention.
func ParseArtifactName(filename string) (widgetID, hash string, kind Kind, ok bool) {
	m := artifactNamePattern.FindStringSubmatch(filename)
	if m == nil {
		return "", "", "", false
	}
	kind, ok = KindForExt(path.Ext(filename))
	if !ok {
		return "", "", "", false
	}
	return m[1], m[2], kind, true
}
