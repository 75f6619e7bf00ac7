package voiceagent

import "fmt"

// Kind identifies a semantic session event.
type Kind int

const (
	KindUnknown Kind = iota

	// KindTurnStarted reports that the model began a response.
	KindTurnStarted

	// KindTurnEnded reports that the response finished, failed or was
	// cancelled.
	KindTurnEnded

	// KindSpeechChunk carries one chunk of assistant speech.
	KindSpeechChunk

	// KindSpeechInterrupted reports that the caller spoke over
	// unplayed assistant audio; pending playback should be discarded.
	KindSpeechInterrupted

	// KindToolStarted reports a function call about to be dispatched.
	KindToolStarted

	// KindToolEnded reports the outcome of a dispatched function call.
	KindToolEnded

	// KindHandoffRequested reports that the model invoked a transfer
	// tool. Transfer tools are never dispatched locally.
	KindHandoffRequested

	// KindSessionError reports a recoverable session error.
	KindSessionError
)

func (k Kind) String() string {
	switch k {
	case KindTurnStarted:
		return "turn_started"
	case KindTurnEnded:
		return "turn_ended"
	case KindSpeechChunk:
		return "speech_chunk"
	case KindSpeechInterrupted:
		return "speech_interrupted"
	case KindToolStarted:
		return "tool_started"
	case KindToolEnded:
		return "tool_ended"
	case KindHandoffRequested:
		return "handoff_requested"
	case KindSessionError:
		return "session_error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is one semantic event from the agent session. Which fields
// are set depends on Kind.
type Event struct {
	Kind Kind

	// UtteranceID names the assistant utterance a speech chunk
	// belongs to.
	UtteranceID string

	// ContentIndex is the content part within the utterance item.
	ContentIndex int

	// ContentOffset is the byte offset of Audio within the
	// utterance's speech.
	ContentOffset int

	// Audio is µ-law speech, 8 kHz mono.
	Audio []byte

	// Tool is the function name for tool and handoff events; ToolArgs
	// and ToolOutput hold the argument and result JSON.
	Tool       string
	ToolArgs   string
	ToolOutput string

	// Target is the handoff destination, the tool name with the
	// handoff prefix stripped.
	Target string

	// Err is set on session errors and failed tool dispatches.
	Err error
}
