package toolkit

import (
	"fmt"
	"os"

	"github.com/google/jsonschema-go/jsonschema"
	"gopkg.in/yaml.v3"
)

// Manifest is the operator-facing tool configuration: per-tool
// description and transform overrides, disables, and handoff
// declarations. It is applied on top of the tools registered in code.
type Manifest struct {
	// HandoffPrefix overrides DefaultHandoffPrefix for declared
	// handoffs.
	HandoffPrefix string `yaml:"handoff_prefix"`

	// Tools overrides registered tools by name. Referencing a tool
	// that is not registered is an error; a silently ignored override
	// is worse than a failed start.
	Tools map[string]ToolOverride `yaml:"tools"`

	// Handoffs declares transfer targets exposed to the model.
	Handoffs []Handoff `yaml:"handoffs"`
}

// ToolOverride shapes one registered tool.
type ToolOverride struct {
	Description string  `yaml:"description"`
	Transform   *JQExpr `yaml:"transform"`
	Disabled    bool    `yaml:"disabled"`
}

// Handoff declares one transfer target.
type Handoff struct {
	Target      string `yaml:"target"`
	Description string `yaml:"description"`
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("toolkit: read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("toolkit: manifest %s: %w", path, err)
	}
	return m, nil
}

// ParseManifest parses manifest YAML. jq expressions are parsed here,
// so configuration errors surface at load.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Prefix returns the effective handoff prefix.
func (m *Manifest) Prefix() string {
	if m == nil || m.HandoffPrefix == "" {
		return DefaultHandoffPrefix
	}
	return m.HandoffPrefix
}

// Apply writes the manifest onto the registry.
func (m *Manifest) Apply(reg *Registry) error {
	if m == nil {
		return nil
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	for name, ov := range m.Tools {
		tool, ok := reg.tools[name]
		if !ok {
			return fmt.Errorf("toolkit: manifest references unknown tool %q", name)
		}
		if ov.Disabled {
			delete(reg.tools, name)
			continue
		}
		if ov.Description != "" {
			tool.description = ov.Description
		}
		if ov.Transform != nil && ov.Transform.Query != nil {
			tool.transform = ov.Transform
		}
	}

	prefix := m.Prefix()
	for _, h := range m.Handoffs {
		if h.Target == "" {
			return fmt.Errorf("toolkit: handoff with empty target")
		}
		name := prefix + h.Target
		if _, exists := reg.tools[name]; exists {
			return fmt.Errorf("toolkit: duplicate tool %q", name)
		}
		desc := h.Description
		if desc == "" {
			desc = fmt.Sprintf("Transfer the caller to %s.", h.Target)
		}
		reg.tools[name] = Declare(name, desc, handoffSchema())
	}

	return nil
}

type handoffArgs struct {
	Reason string `json:"reason,omitempty" jsonschema:"why the caller is being transferred"`
}

func handoffSchema() *jsonschema.Schema {
	schema, err := jsonschema.For[handoffArgs](nil)
	if err != nil {
		return nil
	}
	return schema
}
