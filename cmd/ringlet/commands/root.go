package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ringlet-ai/ringlet/pkg/cli"
)

var (
	// Global flags
	cfgFile     string
	contextName string
	verbose     bool

	// Global configuration (loaded at init time)
	globalConfig *cli.Config
)

var rootCmd = &cobra.Command{
	Use:   "ringlet",
	Short: "Telephony bridge for realtime voice agents",
	Long: `ringlet - answer phone calls with a realtime voice agent.

The serve command hosts the provider-facing endpoints (answer webhook
and media stream WebSocket) and bridges each call with an OpenAI
Realtime session: caller audio up, agent speech down, with barge-in,
function tools and optional call recording.

Configuration is stored in ~/.ringlet/config.yaml and supports multiple
contexts, similar to kubectl.

Examples:
  # Create a context and make it current
  ringlet config add-context prod \
    --openai-key $OPENAI_API_KEY \
    --public-host bridge.example.com \
    --agent-file ./support-agent.yaml
  ringlet config use-context prod

  # Run the bridge
  ringlet serve

  # Inspect handled calls
  ringlet calls list
  ringlet calls show 7d8f --output json --jq .transcript`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.ringlet/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// configLoadErr stores the error from config loading for deferred reporting.
var configLoadErr error

func initConfig() {
	cfg, err := cli.LoadConfigWithPath(cfgFile)
	if err != nil {
		// Commands that need config get a clear error via getConfig().
		// This avoids failing commands like 'ringlet version'.
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// getConfig returns the global configuration.
func getConfig() (*cli.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := cli.LoadConfigWithPath(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// getContext returns the deployment context to use.
func getContext() (*cli.Context, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}

	ctx, err := cfg.ResolveContext(contextName)
	if err != nil {
		if contextName == "" {
			return nil, fmt.Errorf("no context specified: use -c or set one with 'ringlet config use-context'")
		}
		return nil, err
	}

	return ctx, nil
}

// isVerbose returns whether verbose mode is enabled.
func isVerbose() bool {
	return verbose
}
