package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ringlet-ai/ringlet/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration and contexts.

Contexts hold everything one deployment needs: telephony and model
credentials, the public host, and storage locations. They work like
kubectl contexts.

Configuration is stored in ~/.ringlet/config.yaml`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add a new context",
	Long: `Add a new context with the specified name.

Example:
  ringlet config add-context prod \
    --openai-key $OPENAI_API_KEY \
    --twilio-account-sid ACxxxx --twilio-auth-token xxxx \
    --public-host bridge.example.com \
    --agent-file ./support-agent.yaml \
    --s3-bucket call-recordings --s3-prefix prod`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		openAIKey, err := cmd.Flags().GetString("openai-key")
		if err != nil {
			return fmt.Errorf("failed to read 'openai-key' flag: %w", err)
		}
		if openAIKey == "" {
			return fmt.Errorf("--openai-key is required")
		}

		ctx := &cli.Context{
			OpenAIKey: openAIKey,
		}
		ctx.TwilioAccountSID, _ = cmd.Flags().GetString("twilio-account-sid")
		ctx.TwilioAuthToken, _ = cmd.Flags().GetString("twilio-auth-token")
		ctx.RealtimeModel, _ = cmd.Flags().GetString("model")
		ctx.PublicHost, _ = cmd.Flags().GetString("public-host")
		ctx.ListenAddr, _ = cmd.Flags().GetString("listen-addr")
		ctx.AnalyticsKey, _ = cmd.Flags().GetString("analytics-key")
		ctx.DataDir, _ = cmd.Flags().GetString("data-dir")
		ctx.AgentFile, _ = cmd.Flags().GetString("agent-file")

		dir, _ := cmd.Flags().GetString("storage-dir")
		bucket, _ := cmd.Flags().GetString("s3-bucket")
		prefix, _ := cmd.Flags().GetString("s3-prefix")
		region, _ := cmd.Flags().GetString("s3-region")
		if dir != "" || bucket != "" {
			ctx.Storage = &cli.StorageConfig{
				Dir:    dir,
				Bucket: bucket,
				Prefix: prefix,
				Region: region,
			}
		}

		backend, _ := cmd.Flags().GetString("summary-backend")
		if backend != "" {
			summaryKey, _ := cmd.Flags().GetString("summary-key")
			summaryModel, _ := cmd.Flags().GetString("summary-model")
			ctx.Summary = &cli.SummaryConfig{
				Backend: backend,
				APIKey:  summaryKey,
				Model:   summaryModel,
			}
		}

		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.AddContext(name, ctx); err != nil {
			return err
		}

		cli.PrintSuccess("Context %q added successfully", name)
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(name); err != nil {
			return err
		}

		cli.PrintSuccess("Context %q deleted", name)
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(name); err != nil {
			return err
		}

		cli.PrintSuccess("Switched to context %q", name)
		return nil
	},
}

var configCurrentContextCmd = &cobra.Command{
	Use:     "current-context",
	Aliases: []string{"get-context"},
	Short:   "Display the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}

		if cfg.CurrentContext == "" {
			fmt.Println("No current context set")
			return nil
		}

		fmt.Println(cfg.CurrentContext)
		return nil
	},
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"get-contexts"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}

		if len(cfg.Contexts) == 0 {
			fmt.Println("No contexts configured")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tPUBLIC_HOST\tAGENT")

		for _, name := range cfg.ListContexts() {
			ctx := cfg.Contexts[name]
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			host := ctx.PublicHost
			if host == "" {
				host = "(webhook host)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", current, name, host, ctx.AgentFile)
		}

		w.Flush()
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Config file: %s\n", cfg.Path())
		fmt.Printf("Current context: %s\n", cfg.CurrentContext)
		fmt.Printf("Contexts: %d\n", len(cfg.Contexts))

		if len(cfg.Contexts) > 0 {
			fmt.Println("\nContext details:")
			for _, name := range cfg.ListContexts() {
				ctx := cfg.Contexts[name]
				fmt.Printf("\n  %s:\n", name)
				fmt.Printf("    OpenAI Key: %s\n", cli.MaskAPIKey(ctx.OpenAIKey))
				if ctx.TwilioAccountSID != "" {
					fmt.Printf("    Twilio Account: %s\n", ctx.TwilioAccountSID)
					fmt.Printf("    Twilio Token: %s\n", cli.MaskAPIKey(ctx.TwilioAuthToken))
				}
				if ctx.RealtimeModel != "" {
					fmt.Printf("    Model: %s\n", ctx.RealtimeModel)
				}
				if ctx.PublicHost != "" {
					fmt.Printf("    Public Host: %s\n", ctx.PublicHost)
				}
				if ctx.ListenAddr != "" {
					fmt.Printf("    Listen: %s\n", ctx.ListenAddr)
				}
				if ctx.AgentFile != "" {
					fmt.Printf("    Agent File: %s\n", ctx.AgentFile)
				}
				if ctx.Storage != nil {
					if ctx.Storage.Bucket != "" {
						fmt.Printf("    Recordings: s3://%s/%s\n", ctx.Storage.Bucket, ctx.Storage.Prefix)
					} else {
						fmt.Printf("    Recordings: %s\n", ctx.Storage.Dir)
					}
				}
				if ctx.Summary != nil {
					fmt.Printf("    Summary: %s\n", ctx.Summary.Backend)
				}
			}
		}

		return nil
	},
}

func init() {
	// add-context flags
	configAddContextCmd.Flags().String("openai-key", "", "OpenAI API key (required)")
	configAddContextCmd.Flags().String("twilio-account-sid", "", "Twilio account SID for caller lookups")
	configAddContextCmd.Flags().String("twilio-auth-token", "", "Twilio auth token")
	configAddContextCmd.Flags().String("model", "", "Realtime model override")
	configAddContextCmd.Flags().String("public-host", "", "Externally reachable host for TwiML stream URLs")
	configAddContextCmd.Flags().String("listen-addr", "", "Listen address (default :8080)")
	configAddContextCmd.Flags().String("analytics-key", "", "Segment write key")
	configAddContextCmd.Flags().String("data-dir", "", "Call log database directory")
	configAddContextCmd.Flags().String("agent-file", "", "Agent definition file")
	configAddContextCmd.Flags().String("storage-dir", "", "Local recordings directory")
	configAddContextCmd.Flags().String("s3-bucket", "", "Recordings S3 bucket")
	configAddContextCmd.Flags().String("s3-prefix", "", "Recordings S3 key prefix")
	configAddContextCmd.Flags().String("s3-region", "", "Recordings S3 region")
	configAddContextCmd.Flags().String("summary-backend", "", "Post-call summary backend (openai, gemini)")
	configAddContextCmd.Flags().String("summary-key", "", "Summary backend API key")
	configAddContextCmd.Flags().String("summary-model", "", "Summary model override")

	// Add subcommands
	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configCurrentContextCmd)
	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configViewCmd)

	rootCmd.AddCommand(configCmd)
}
