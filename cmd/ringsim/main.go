// ringsim drives a running ringlet bridge as if it were the telephony
// provider.
//
// It dials the stream WebSocket, plays a WAV file (or a generated tone)
// as real-time µ-law media frames, echoes mark acknowledgements after a
// playback delay, and shows the agent audio coming back.
//
// Usage:
//
//	ringsim                                          # call ws://localhost:8080/voice/stream
//	ringsim call ws://bridge:9000/voice/stream --wav hello.wav
//	ringsim call --save reply.wav
package main

import (
	"fmt"
	"os"

	"github.com/ringlet-ai/ringlet/cmd/ringsim/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
