package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// DefaultHandoffPrefix marks tools whose invocation means "transfer
// this call", not "run this function".
const DefaultHandoffPrefix = "transfer_to_"

// HandoffTarget reports whether name is a handoff under prefix and, if
// so, the target it names. An empty prefix disables handoff detection.
func HandoffTarget(name, prefix string) (string, bool) {
	if prefix == "" || !strings.HasPrefix(name, prefix) {
		return "", false
	}
	target := strings.TrimPrefix(name, prefix)
	if target == "" {
		return "", false
	}
	return target, true
}

// Definition is the wire-neutral description of one tool, ready to be
// converted into a session's tool list.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Registry maps tool names to tools. Registration happens at startup;
// dispatch is safe for concurrent calls.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds tools, rejecting duplicate names.
func (r *Registry) Register(tools ...*Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tool := range tools {
		if _, exists := r.tools[tool.name]; exists {
			return fmt.Errorf("toolkit: duplicate tool %q", tool.name)
		}
		r.tools[tool.name] = tool
	}
	return nil
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions renders all tools for a session's tool list, sorted by
// name so session updates are deterministic.
func (r *Registry) Definitions() ([]Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, tool := range r.tools {
		params, err := schemaMap(tool.schema)
		if err != nil {
			return nil, fmt.Errorf("toolkit: render %s: %w", tool.name, err)
		}
		defs = append(defs, Definition{
			Name:        tool.name,
			Description: tool.description,
			Parameters:  params,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// Dispatch runs the named tool. The returned output is always usable
// as a function call result; failures additionally return the error
// for logging.
func (r *Registry) Dispatch(ctx context.Context, name, argsJSON string) (string, error) {
	tool, ok := r.Lookup(name)
	if !ok {
		err := fmt.Errorf("toolkit: unknown tool %q", name)
		return errorOutput(err), err
	}
	return tool.call(ctx, argsJSON)
}

// schemaMap converts a schema to the plain-map form wire payloads
// embed. A nil schema becomes a bare object schema.
func schemaMap(s *jsonschema.Schema) (map[string]any, error) {
	if s == nil {
		return map[string]any{"type": "object"}, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		// A trivial schema can marshal to a bare boolean.
		return map[string]any{"type": "object"}, nil
	}
	return m, nil
}
