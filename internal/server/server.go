// Package server implements the tool invocation surface of Orrery: an MCP
// server (streamable HTTP) whose tools are derived from the asset registry,
// plus the thin static handler that serves the content-addressed artifacts.
//
// Every tool call produces a three-part envelope: human-readable text,
// structured JSON payload, and resource metadata pointing at the widget's
// current markup artifact. The template identifier in the metadata is stable
// per widget across calls and across generations; only the artifact URL
// moves when content changes. Client-side template caching depends on that
// split.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/orreryhq/orrery/internal/baseurl"
	"github.com/orreryhq/orrery/internal/observe"
	"github.com/orreryhq/orrery/internal/registry"
	"github.com/orreryhq/orrery/internal/widget"
)

// MIMEType is the media type of widget template resources, as expected by
// Apps-SDK clients.
const MIMEType = "text/html+skybridge"

// Config configures [New].
type Config struct {
	// Name and Version identify the MCP server implementation.
	Name    string
	Version string

	// Registry resolves widget ids to the current generation's artifacts.
	Registry *registry.Registry

	// Resolver turns relative artifact paths into absolute URLs.
	Resolver *baseurl.Resolver

	// OutputDir is the directory holding the built artifacts; markup is read
	// from here when embedding widget resources in responses.
	OutputDir string

	// Logic supplies the domain-logic handlers referenced by widget
	// descriptors. Nil means only the default echo handler is available.
	Logic *LogicRegistry

	// Metrics wires tool-call instrumentation. Optional.
	Metrics *observe.Metrics
}

// Server is the MCP tool invocation server. Create instances with [New];
// the zero value is not usable.
type Server struct {
	registry  *registry.Registry
	resolver  *baseurl.Resolver
	outputDir string
	logic     *LogicRegistry
	metrics   *observe.Metrics
	mcp       *mcpsdk.Server
}

// New builds a Server from the registry's current generation: one MCP tool
// and one template resource per widget. A widget whose descriptor names an
// unregistered logic handler is a configuration error and fails construction,
// better at startup than on the first tool call.
func New(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		cfg.Name = "orrery"
	}
	if cfg.Logic == nil {
		cfg.Logic = NewLogicRegistry()
	}

	entries := cfg.Registry.Widgets()
	if len(entries) == 0 {
		return nil, fmt.Errorf("server: registry has no published generation, run a build first")
	}

	s := &Server{
		registry:  cfg.Registry,
		resolver:  cfg.Resolver,
		outputDir: cfg.OutputDir,
		logic:     cfg.Logic,
		metrics:   cfg.Metrics,
		mcp: mcpsdk.NewServer(
			&mcpsdk.Implementation{Name: cfg.Name, Version: cfg.Version},
			nil,
		),
	}

	// AddTool replaces an existing tool with the same name, so a collision
	// must be rejected here or one widget becomes silently uninvocable.
	toolOwner := make(map[string]string, len(entries))

	for _, entry := range entries {
		if prev, ok := toolOwner[entry.Tool.Name]; ok {
			return nil, fmt.Errorf("server: widgets %q and %q both declare tool %q", prev, entry.WidgetID, entry.Tool.Name)
		}
		toolOwner[entry.Tool.Name] = entry.WidgetID

		logicFn, err := cfg.Logic.Get(entry.Tool.Handler)
		if err != nil {
			return nil, fmt.Errorf("server: widget %q: %w", entry.WidgetID, err)
		}

		schema, err := toolInputSchema(entry.Tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("server: widget %q: %w", entry.WidgetID, err)
		}

		falsep := false
		s.mcp.AddTool(&mcpsdk.Tool{
			Name:        entry.Tool.Name,
			Title:       entry.Title,
			Description: entry.Tool.Description,
			InputSchema: schema,
			Meta:        invocationMeta(entry),
			Annotations: &mcpsdk.ToolAnnotations{
				ReadOnlyHint:    true,
				DestructiveHint: &falsep,
				OpenWorldHint:   &falsep,
			},
		}, s.toolHandler(entry.WidgetID, logicFn))

		s.mcp.AddResource(&mcpsdk.Resource{
			URI:         widget.TemplateURI(entry.WidgetID),
			Name:        entry.Title,
			Title:       entry.Title,
			Description: entry.Title + " widget markup",
			MIMEType:    MIMEType,
		}, s.resourceHandler(entry.WidgetID))
	}

	return s, nil
}

// Register mounts the MCP endpoint and the static artifact surface on mux.
// publicPath is the URL prefix the artifacts are addressed under (it must
// match the prefix artifacts were built with).
func (s *Server) Register(mux *http.ServeMux, publicPath string) {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(*http.Request) *mcpsdk.Server { return s.mcp },
		&mcpsdk.StreamableHTTPOptions{Stateless: true},
	)
	mux.Handle("/mcp", handler)
	mux.Handle("/"+publicPath+"/",
		http.StripPrefix("/"+publicPath+"/", StaticHandler(s.outputDir)))
}

// toolHandler returns the MCP handler for one widget's tool. The widget is
// re-resolved on every call so responses always reference the currently
// published generation.
func (s *Server) toolHandler(widgetID string, logicFn LogicFunc) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		ctx, span := observe.StartSpan(ctx, "tool.call")
		defer span.End()
		start := time.Now()

		result, err := s.handleCall(ctx, widgetID, logicFn, req)

		if s.metrics != nil {
			status := "ok"
			if err != nil || (result != nil && result.IsError) {
				status = "error"
			}
			s.metrics.RecordToolCall(ctx, req.Params.Name, status, time.Since(start).Seconds())
		}
		return result, err
	}
}

func (s *Server) handleCall(ctx context.Context, widgetID string, logicFn LogicFunc, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	args, err := decodeArgs(req.Params.Arguments)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	// Widget domain logic is external to the envelope contract; its failure
	// is reported to the caller, never masked as an empty success.
	res, err := logicFn(ctx, args)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	entry, err := s.registry.Resolve(widgetID)
	if err != nil {
		// Configuration error: the tool exists but its widget is gone from
		// the source set. Fail the call rather than return a partial
		// envelope.
		observe.Logger(ctx).Error("widget resolution failed", "widget", widgetID, "err", err)
		return errorResult(fmt.Sprintf("widget %q is not available: %v", widgetID, err)), nil
	}

	return s.assembleResult(entry, res)
}

// assembleResult builds the full response envelope from the resolved
// registry entry and the domain logic's output.
func (s *Server) assembleResult(entry widget.Entry, res *LogicResult) (*mcpsdk.CallToolResult, error) {
	html, err := s.readMarkup(entry)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	meta := invocationMeta(entry)
	meta["openai.com/widget"] = map[string]any{
		"type": "resource",
		"resource": map[string]any{
			"uri":      widget.TemplateURI(entry.WidgetID),
			"mimeType": MIMEType,
			"title":    entry.Title,
			"text":     string(html),
		},
	}
	meta["orrery/markupUrl"] = s.resolver.Absolute(entry.Markup)
	meta["orrery/generation"] = entry.Generation

	return &mcpsdk.CallToolResult{
		Content:           []mcpsdk.Content{&mcpsdk.TextContent{Text: res.Text}},
		StructuredContent: res.Structured,
		Meta:              meta,
	}, nil
}

// resourceHandler serves the widget's template URI over MCP resources/read,
// returning the current generation's markup.
func (s *Server) resourceHandler(widgetID string) mcpsdk.ResourceHandler {
	return func(ctx context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
		entry, err := s.registry.Resolve(widgetID)
		if err != nil {
			return nil, fmt.Errorf("read resource %q: %w", req.Params.URI, err)
		}
		html, err := s.readMarkup(entry)
		if err != nil {
			return nil, err
		}
		return &mcpsdk.ReadResourceResult{
			Contents: []*mcpsdk.ResourceContents{{
				URI:      widget.TemplateURI(entry.WidgetID),
				MIMEType: MIMEType,
				Text:     string(html),
			}},
		}, nil
	}
}

// readMarkup loads the entry's markup artifact from the output directory.
func (s *Server) readMarkup(entry widget.Entry) ([]byte, error) {
	name := path.Base(entry.Markup)
	data, err := os.ReadFile(filepath.Join(s.outputDir, name))
	if err != nil {
		return nil, fmt.Errorf("server: read markup artifact %q: %w", name, err)
	}
	return data, nil
}

// invocationMeta builds the Apps-SDK metadata block shared by the tool
// definition and every call result. The output template identifier is the
// widget's stable template URI.
func invocationMeta(entry widget.Entry) mcpsdk.Meta {
	return mcpsdk.Meta{
		"openai/outputTemplate":          widget.TemplateURI(entry.WidgetID),
		"openai/toolInvocation/invoking": entry.Tool.Invoking,
		"openai/toolInvocation/invoked":  entry.Tool.Invoked,
		"openai/widgetAccessible":        true,
		"openai/resultCanProduceWidget":  true,
	}
}

// errorResult wraps a message as a failed tool result. Tool failures are
// application-level: they ride back in the result envelope instead of
// aborting the protocol exchange.
func errorResult(msg string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: msg}},
		IsError: true,
	}
}

// toolInputSchema decodes a descriptor's raw input schema. Empty means an
// unconstrained object.
func toolInputSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return &jsonschema.Schema{Type: "object"}, nil
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode tool input schema: %w", err)
	}
	return &schema, nil
}

// decodeArgs normalises the SDK's argument payload into a plain map.
func decodeArgs(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
