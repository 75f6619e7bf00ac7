package commands

import "github.com/spf13/cobra"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "ringsim",
	Short: "Phone-call simulator for the ringlet bridge",
	Long: `ringsim pretends to be the telephony provider so a running bridge
can be exercised without PSTN access.

It dials the stream WebSocket, sends connected and start frames, streams
caller audio as real-time 20 ms µ-law media frames, echoes mark
acknowledgements after a playback delay, and shows the agent audio
coming back.

Examples:
  ringsim
  ringsim call ws://localhost:9000/voice/stream --wav hello.wav
  ringsim call --save reply.wav --linger 30s`,
	// Place a call with defaults when invoked bare.
	RunE:          runCall,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
