package widget

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/xeipuuv/gojsonschema"
)

// DescriptorFilename is the per-widget descriptor file each project directory
// must contain.
const DescriptorFilename = "widget.json"

// descriptorSchema validates the structural shape of a widget descriptor
// before it is decoded. Field-level semantics (id format, entry point
// extensions) are checked afterwards in [Descriptor.Validate].
const descriptorSchema = `{
	"type": "object",
	"required": ["entrypoints", "tool"],
	"additionalProperties": false,
	"properties": {
		"id": {"type": "string"},
		"title": {"type": "string"},
		"entrypoints": {
			"type": "object",
			"required": ["markup", "script", "style"],
			"additionalProperties": false,
			"properties": {
				"markup": {"type": "string", "minLength": 1},
				"script": {"type": "string", "minLength": 1},
				"style":  {"type": "string", "minLength": 1}
			}
		},
		"tool": {
			"type": "object",
			"required": ["name", "description"],
			"additionalProperties": false,
			"properties": {
				"name":        {"type": "string", "minLength": 1},
				"description": {"type": "string", "minLength": 1},
				"handler":     {"type": "string"},
				"invoking":    {"type": "string"},
				"invoked":     {"type": "string"},
				"inputSchema": {"type": "object"}
			}
		}
	}
}`

// widgetIDPattern constrains widget identifiers to lowercase kebab-case so
// they are safe as filename stems and URL path segments.
var widgetIDPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Descriptor is the decoded form of a widget.json file.
type Descriptor struct {
	// ID overrides the widget identifier. When empty the project directory
	// name is used. A non-empty ID must match the directory name; a
	// descriptor copied between directories without editing is a
	// configuration mistake worth failing on.
	ID string `json:"id,omitempty"`

	// Title is the human-readable widget title. Defaults to the id.
	Title string `json:"title,omitempty"`

	// Entrypoints names the entry point file per output kind, relative to
	// the widget directory.
	Entrypoints struct {
		Markup string `json:"markup"`
		Script string `json:"script"`
		Style  string `json:"style"`
	} `json:"entrypoints"`

	// Tool describes the MCP tool the widget exposes.
	Tool ToolSpec `json:"tool"`
}

// LoadDescriptor reads and validates the widget.json in dir, returning the
// fully resolved [Project]. The base name of dir supplies the default widget
// id.
func LoadDescriptor(dir string) (Project, error) {
	path := filepath.Join(dir, DescriptorFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return Project{}, fmt.Errorf("widget: read descriptor %q: %w", path, err)
	}

	if err := validateDescriptorJSON(data); err != nil {
		return Project{}, fmt.Errorf("widget: descriptor %q: %w", path, err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Project{}, fmt.Errorf("widget: decode descriptor %q: %w", path, err)
	}

	dirName := filepath.Base(dir)
	p, err := d.resolve(dir, dirName)
	if err != nil {
		return Project{}, fmt.Errorf("widget: descriptor %q: %w", path, err)
	}
	return p, nil
}

// validateDescriptorJSON checks data against the embedded descriptor schema
// and joins all violations into a single error.
func validateDescriptorJSON(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(descriptorSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var errs []error
	for _, desc := range result.Errors() {
		errs = append(errs, fmt.Errorf("%s: %s", desc.Field(), desc.Description()))
	}
	return errors.Join(errs...)
}

// resolve converts the descriptor into a [Project], applying defaults and
// checking the field-level rules the JSON schema cannot express.
func (d Descriptor) resolve(dir, dirName string) (Project, error) {
	id := d.ID
	if id == "" {
		id = dirName
	} else if id != dirName {
		return Project{}, fmt.Errorf("id %q does not match project directory %q", id, dirName)
	}
	if !widgetIDPattern.MatchString(id) {
		return Project{}, fmt.Errorf("id %q is not a valid widget identifier (lowercase kebab-case)", id)
	}

	title := d.Title
	if title == "" {
		title = id
	}

	entries := map[Kind]string{
		KindMarkup: d.Entrypoints.Markup,
		KindScript: d.Entrypoints.Script,
		KindStyle:  d.Entrypoints.Style,
	}
	var errs []error
	for kind, entry := range entries {
		if !filepath.IsLocal(entry) {
			errs = append(errs, fmt.Errorf("entrypoints.%s %q escapes the widget directory", kind, entry))
		}
	}
	if len(errs) > 0 {
		return Project{}, errors.Join(errs...)
	}

	return Project{
		ID:          id,
		Dir:         dir,
		Title:       title,
		Entrypoints: entries,
		Tool:        d.Tool,
	}, nil
}
