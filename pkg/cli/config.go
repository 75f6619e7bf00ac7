package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is the base configuration directory name
	DefaultBaseDir = ".ringlet"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.yaml"
)

// Config represents the on-disk CLI configuration: named deployment
// contexts plus the one currently in use.
type Config struct {
	// CurrentContext is the name of the currently active context
	CurrentContext string `yaml:"current_context,omitempty"`

	// Contexts is a map of context name to context configuration
	Contexts map[string]*Context `yaml:"contexts,omitempty"`

	// configPath is the path to the config file
	configPath string
}

// Context holds everything one deployment of the bridge needs:
// telephony and model credentials, public addressing, and the storage
// locations for recordings and the call log.
type Context struct {
	// Name is the context name
	Name string `yaml:"name"`

	// TwilioAccountSID identifies the Twilio account for caller lookups
	TwilioAccountSID string `yaml:"twilio_account_sid,omitempty"`

	// TwilioAuthToken authenticates Twilio REST requests
	TwilioAuthToken string `yaml:"twilio_auth_token,omitempty"`

	// OpenAIKey authenticates the realtime session
	OpenAIKey string `yaml:"openai_api_key,omitempty"`

	// RealtimeModel overrides the default realtime model (optional)
	RealtimeModel string `yaml:"realtime_model,omitempty"`

	// PublicHost is the externally reachable host placed in TwiML
	// stream URLs (e.g. "bridge.example.com")
	PublicHost string `yaml:"public_host,omitempty"`

	// ListenAddr is the local listen address for the stream server
	// (optional, defaults to ":8080")
	ListenAddr string `yaml:"listen_addr,omitempty"`

	// AnalyticsKey is the Segment write key; empty disables tracking
	AnalyticsKey string `yaml:"analytics_key,omitempty"`

	// Storage selects the recording archive backend
	Storage *StorageConfig `yaml:"storage,omitempty"`

	// Summary configures post-call summarization; nil disables it
	Summary *SummaryConfig `yaml:"summary,omitempty"`

	// DataDir overrides the default call log database directory
	DataDir string `yaml:"data_dir,omitempty"`

	// AgentFile is the path to the agent definition file
	AgentFile string `yaml:"agent_file,omitempty"`
}

// SummaryConfig selects the post-call summarization backend.
type SummaryConfig struct {
	// Backend is "openai" or "gemini"
	Backend string `yaml:"backend"`

	// APIKey authenticates the backend; the OpenAI backend falls back
	// to the context's openai_api_key when empty
	APIKey string `yaml:"api_key,omitempty"`

	// Model overrides the backend's default model (optional)
	Model string `yaml:"model,omitempty"`
}

// StorageConfig selects where recordings are archived: a local
// directory, or an S3 bucket when Bucket is set.
type StorageConfig struct {
	// Dir is a local directory root
	Dir string `yaml:"dir,omitempty"`

	// Bucket is an S3 bucket name; takes precedence over Dir
	Bucket string `yaml:"bucket,omitempty"`

	// Prefix is the key prefix within the bucket
	Prefix string `yaml:"prefix,omitempty"`

	// Region is the bucket region (optional)
	Region string `yaml:"region,omitempty"`
}

// LoadConfig loads or creates the configuration at the default path
func LoadConfig() (*Config, error) {
	return LoadConfigWithPath("")
}

// LoadConfigWithPath loads configuration from a custom path
func LoadConfigWithPath(customPath string) (*Config, error) {
	var configPath string

	if customPath != "" {
		configPath = customPath
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, DefaultBaseDir, DefaultConfigFile)
	}

	// Ensure config directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := &Config{
		Contexts:   make(map[string]*Context),
		configPath: configPath,
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Create empty config file
			return cfg, cfg.Save()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Ensure contexts map is initialized
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}

	cfg.configPath = configPath

	return cfg, nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Path returns the config file path
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the config directory path
func (c *Config) Dir() string {
	return filepath.Dir(c.configPath)
}

// AddContext adds a new context
func (c *Config) AddContext(name string, ctx *Context) error {
	ctx.Name = name
	c.Contexts[name] = ctx
	return c.Save()
}

// DeleteContext removes a context
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext sets the current context
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns a specific context
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return ctx, nil
}

// GetCurrentContext returns the current context
func (c *Config) GetCurrentContext() (*Context, error) {
	if c.CurrentContext == "" {
		return nil, fmt.Errorf("no current context set")
	}
	return c.GetContext(c.CurrentContext)
}

// ResolveContext returns the context by name, or current context if name is empty
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name == "" {
		return c.GetCurrentContext()
	}
	return c.GetContext(name)
}

// ListContexts returns all context names, sorted
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// MaskAPIKey masks the API key for display
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
