// Package main is the entry point for the ringlet CLI.
//
// Usage:
//
//	ringlet [flags] <command> [subcommand] [args]
//
// Commands:
//
//	serve      - Run the telephony bridge service
//	calls      - Inspect handled calls (list, show, delete)
//	config     - Configuration management (contexts)
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/ringlet-ai/ringlet/cmd/ringlet/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
