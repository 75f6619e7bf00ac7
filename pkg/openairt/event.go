package openairt

import "fmt"

// Client event types.
const (
	EventTypeSessionUpdate = "session.update"

	EventTypeInputAudioBufferAppend = "input_audio_buffer.append"
	EventTypeInputAudioBufferCommit = "input_audio_buffer.commit"
	EventTypeInputAudioBufferClear  = "input_audio_buffer.clear"

	EventTypeConversationItemCreate   = "conversation.item.create"
	EventTypeConversationItemTruncate = "conversation.item.truncate"

	EventTypeResponseCreate = "response.create"
	EventTypeResponseCancel = "response.cancel"
)

// Server event types.
const (
	EventTypeError = "error"

	EventTypeSessionCreated = "session.created"
	EventTypeSessionUpdated = "session.updated"

	EventTypeConversationItemCreated                          = "conversation.item.created"
	EventTypeConversationItemTruncated                        = "conversation.item.truncated"
	EventTypeConversationItemInputAudioTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventTypeConversationItemInputAudioTranscriptionFailed    = "conversation.item.input_audio_transcription.failed"

	EventTypeInputAudioBufferCommitted     = "input_audio_buffer.committed"
	EventTypeInputAudioBufferCleared       = "input_audio_buffer.cleared"
	EventTypeInputAudioBufferSpeechStarted = "input_audio_buffer.speech_started"
	EventTypeInputAudioBufferSpeechStopped = "input_audio_buffer.speech_stopped"

	EventTypeResponseCreated          = "response.created"
	EventTypeResponseDone             = "response.done"
	EventTypeResponseOutputItemAdded  = "response.output_item.added"
	EventTypeResponseOutputItemDone   = "response.output_item.done"
	EventTypeResponseContentPartAdded = "response.content_part.added"
	EventTypeResponseContentPartDone  = "response.content_part.done"

	EventTypeResponseTextDelta = "response.text.delta"
	EventTypeResponseTextDone  = "response.text.done"

	EventTypeResponseAudioDelta = "response.audio.delta"
	EventTypeResponseAudioDone  = "response.audio.done"

	EventTypeResponseAudioTranscriptDelta = "response.audio_transcript.delta"
	EventTypeResponseAudioTranscriptDone  = "response.audio_transcript.done"

	EventTypeResponseFunctionCallArgumentsDelta = "response.function_call_arguments.delta"
	EventTypeResponseFunctionCallArgumentsDone  = "response.function_call_arguments.done"

	EventTypeRateLimitsUpdated = "rate_limits.updated"
)

// ServerEvent is one event from the server. Which fields are set
// depends on Type; Raw always holds the original JSON.
type ServerEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitzero"`

	// Session is set on session.created and session.updated.
	Session *SessionResource `json:"session,omitzero"`

	// Item is set on conversation.item.* events.
	Item *ConversationItem `json:"item,omitzero"`

	// ItemID and PreviousItemID identify conversation items on buffer
	// and truncation events.
	ItemID         string `json:"item_id,omitzero"`
	PreviousItemID string `json:"previous_item_id,omitzero"`

	// AudioStartMs and AudioEndMs locate speech within the input
	// buffer on speech_started / speech_stopped.
	AudioStartMs int `json:"audio_start_ms,omitzero"`
	AudioEndMs   int `json:"audio_end_ms,omitzero"`

	// Transcript is the completed transcription text.
	Transcript   string `json:"transcript,omitzero"`
	ContentIndex int    `json:"content_index,omitzero"`

	// Response is set on response.created and response.done.
	Response   *ResponseResource `json:"response,omitzero"`
	ResponseID string            `json:"response_id,omitzero"`

	// OutputIndex and Part locate streaming content within a response.
	OutputIndex int          `json:"output_index,omitzero"`
	Part        *ContentPart `json:"part,omitzero"`

	// Delta is the increment for *.delta events. For audio deltas it
	// is base64; Audio holds the decoded bytes.
	Delta string `json:"delta,omitzero"`
	Audio []byte `json:"-"`

	// CallID, Name and Arguments describe a function call on
	// function_call_arguments.done.
	CallID    string `json:"call_id,omitzero"`
	Name      string `json:"name,omitzero"`
	Arguments string `json:"arguments,omitzero"`

	// ErrorDetail is set on error events.
	ErrorDetail *EventError `json:"error,omitzero"`

	// Raw is the undecoded message.
	Raw []byte `json:"-"`
}

// Error is an API error, from the handshake or from an error event.
type Error struct {
	Type    string `json:"type,omitzero"`
	Code    string `json:"code,omitzero"`
	Message string `json:"message,omitzero"`
	Param   string `json:"param,omitzero"`
	EventID string `json:"event_id,omitzero"`

	// HTTPStatus is set for handshake failures.
	HTTPStatus int `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("openairt: %s: %s", e.Code, e.Message)
	case e.Type != "":
		return fmt.Sprintf("openairt: %s: %s", e.Type, e.Message)
	default:
		return fmt.Sprintf("openairt: %s", e.Message)
	}
}

// EventError is the error payload inside an error event.
type EventError struct {
	Type    string `json:"type,omitzero"`
	Code    string `json:"code,omitzero"`
	Message string `json:"message,omitzero"`
	Param   string `json:"param,omitzero"`
	EventID string `json:"event_id,omitzero"`
}

// ToError converts the payload to an *Error.
func (e *EventError) ToError() *Error {
	return &Error{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Param:   e.Param,
		EventID: e.EventID,
	}
}
