// Package cli provides common utilities for the ringlet command-line
// tools.
//
// This package includes:
//   - Configuration management (deployment contexts)
//   - Agent definition loading
//   - Output formatting (YAML, JSON, jq filtering)
//   - Terminal status display
//
// Configuration is stored in ~/.ringlet/, supporting multiple contexts
// similar to kubectl.
//
// Example usage:
//
//	// Load the configuration
//	cfg, err := cli.LoadConfig()
//
//	// Get current context
//	ctx, err := cfg.GetCurrentContext()
//
//	// Output result
//	cli.Output(result, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    Query:  ".calls[].call_id",
//	})
package cli
