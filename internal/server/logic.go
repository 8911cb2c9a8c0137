package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// LogicResult is what a widget's domain logic produces for one tool call:
// a human-readable summary and the structured payload the widget renders.
type LogicResult struct {
	Text       string
	Structured map[string]any
}

// LogicFunc executes a widget's domain logic. args is the decoded tool-call
// argument object (already schema-validated). A returned error becomes a
// failed tool result for the caller; it never crashes the server.
type LogicFunc func(ctx context.Context, args map[string]any) (*LogicResult, error)

// DefaultHandlerName is the logic handler used when a widget descriptor does
// not name one.
const DefaultHandlerName = "echo"

// LogicRegistry maps handler names (as referenced by widget descriptors) to
// [LogicFunc] implementations. Safe for concurrent use; registration
// normally happens once at startup.
type LogicRegistry struct {
	mu sync.RWMutex
	m  map[string]LogicFunc
}

// NewLogicRegistry returns a registry preloaded with the default echo
// handler.
func NewLogicRegistry() *LogicRegistry {
	r := &LogicRegistry{m: make(map[string]LogicFunc)}
	r.Register(DefaultHandlerName, EchoLogic)
	return r
}

// Register binds a handler name. Registering an existing name replaces it.
func (r *LogicRegistry) Register(name string, fn LogicFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[name] = fn
}

// Get returns the handler for name. An empty name selects the default.
func (r *LogicRegistry) Get(name string) (LogicFunc, error) {
	if name == "" {
		name = DefaultHandlerName
	}
	r.mu.RLock()
	fn, ok := r.m[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("server: logic handler %q is not registered (known: %v)", name, r.names())
	}
	return fn, nil
}

func (r *LogicRegistry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.m))
	for name := range r.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EchoLogic is the default domain logic: it reflects the validated arguments
// back as the structured payload. Widgets that are pure renderings of their
// input need nothing more.
func EchoLogic(_ context.Context, args map[string]any) (*LogicResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	return &LogicResult{
		Text:       "Rendered the widget.",
		Structured: args,
	}, nil
}
