package cli

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/ringlet-ai/ringlet/pkg/jsontime"
	"github.com/ringlet-ai/ringlet/pkg/toolkit"
)

// Agent is the operator-authored agent definition: the model's
// instructions and voice, the scripted greeting, call pacing knobs, and
// the tool manifest. One file describes one answering agent.
type Agent struct {
	// Instructions is the system prompt for the realtime session
	Instructions string `yaml:"instructions"`

	// Greeting is the scripted opening line spoken after connect
	Greeting string `yaml:"greeting,omitempty"`

	// Voice selects the model voice (optional)
	Voice string `yaml:"voice,omitempty"`

	// DisableFillerTone turns off the comfort tone played while the
	// caller waits for the first response
	DisableFillerTone bool `yaml:"disable_filler_tone,omitempty"`

	// FlushInterval overrides outbound audio coalescing (optional)
	FlushInterval *jsontime.Duration `yaml:"flush_interval,omitempty"`

	// IdleTimeout ends calls with no traffic in either direction
	// (optional, zero disables the watchdog)
	IdleTimeout *jsontime.Duration `yaml:"idle_timeout,omitempty"`

	// Tools is the tool manifest section of the same file:
	// handoff_prefix, tools, handoffs
	Tools *toolkit.Manifest `yaml:"-"`
}

// LoadAgent reads and parses an agent definition file.
func LoadAgent(path string) (*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent file: %w", err)
	}
	a, err := ParseAgent(data)
	if err != nil {
		return nil, fmt.Errorf("agent file %s: %w", path, err)
	}
	return a, nil
}

// ParseAgent parses agent definition YAML. The toolkit manifest keys
// are decoded by toolkit itself so jq expressions fail here, at load,
// rather than mid-call.
func ParseAgent(data []byte) (*Agent, error) {
	var a Agent
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse agent definition: %w", err)
	}
	if a.Instructions == "" {
		return nil, fmt.Errorf("agent definition has no instructions")
	}

	m, err := toolkit.ParseManifest(data)
	if err != nil {
		return nil, err
	}
	a.Tools = m

	return &a, nil
}
