package openairt

import "encoding/json"

// Realtime-capable models.
const (
	ModelGPTRealtime              = "gpt-realtime"
	ModelGPTRealtimeMini          = "gpt-realtime-mini"
	ModelGPT4oRealtimePreview     = "gpt-4o-realtime-preview"
	ModelGPT4oMiniRealtimePreview = "gpt-4o-mini-realtime-preview"
)

// Audio formats. Telephony uses the G.711 formats at 8 kHz; pcm16 is
// 24 kHz mono little-endian.
const (
	AudioFormatPCM16    = "pcm16"
	AudioFormatG711ULaw = "g711_ulaw"
	AudioFormatG711ALaw = "g711_alaw"
)

// Voices for audio output.
const (
	VoiceAlloy   = "alloy"
	VoiceAsh     = "ash"
	VoiceBallad  = "ballad"
	VoiceCedar   = "cedar"
	VoiceCoral   = "coral"
	VoiceEcho    = "echo"
	VoiceMarin   = "marin"
	VoiceSage    = "sage"
	VoiceShimmer = "shimmer"
	VoiceVerse   = "verse"
)

// Turn detection modes.
const (
	VADServer   = "server_vad"
	VADSemantic = "semantic_vad"
)

// Tool choice strings. An object form selecting one function is also
// accepted by the API; pass it through ToolChoice as a map.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
)

// SessionConfig is the session.update payload.
type SessionConfig struct {
	// Modalities defaults to ["text", "audio"] server side.
	Modalities []string `json:"modalities,omitzero"`

	// Instructions is the system prompt.
	Instructions string `json:"instructions,omitzero"`

	Voice string `json:"voice,omitzero"`

	InputAudioFormat  string `json:"input_audio_format,omitzero"`
	OutputAudioFormat string `json:"output_audio_format,omitzero"`

	// InputAudioTranscription enables caller-side transcripts.
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitzero"`

	// TurnDetection configures voice activity detection. nil keeps the
	// server default; to disable VAD entirely set TurnDetectionDisabled.
	TurnDetection *TurnDetection `json:"turn_detection,omitzero"`

	// TurnDetectionDisabled sends "turn_detection": null, switching the
	// session to manual commit mode.
	TurnDetectionDisabled bool `json:"-"`

	// Tools the model may call.
	Tools []Tool `json:"tools,omitzero"`

	// ToolChoice is a string ("auto", "none", "required") or an object
	// selecting a single function.
	ToolChoice any `json:"tool_choice,omitzero"`

	Temperature *float64 `json:"temperature,omitzero"`

	MaxResponseOutputTokens *int `json:"max_response_output_tokens,omitzero"`
}

// MarshalJSON emits an explicit "turn_detection": null when
// TurnDetectionDisabled is set; omitzero would drop the key and the
// server would keep its default VAD.
func (s SessionConfig) MarshalJSON() ([]byte, error) {
	type alias SessionConfig
	data, err := json.Marshal(alias(s))
	if err != nil || !s.TurnDetectionDisabled {
		return data, err
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m["turn_detection"] = json.RawMessage("null")
	return json.Marshal(m)
}

// TranscriptionConfig selects the input transcription model.
type TranscriptionConfig struct {
	// Model defaults to whisper-1.
	Model string `json:"model,omitzero"`
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	// Type is "server_vad" or "semantic_vad".
	Type string `json:"type,omitzero"`

	// Threshold is the activation level, 0.0 to 1.0 (server_vad).
	Threshold float64 `json:"threshold,omitzero"`

	// PrefixPaddingMs of audio kept before detected speech.
	PrefixPaddingMs int `json:"prefix_padding_ms,omitzero"`

	// SilenceDurationMs of quiet that ends a turn.
	SilenceDurationMs int `json:"silence_duration_ms,omitzero"`

	// CreateResponse controls whether end of speech triggers a
	// response automatically. Defaults to true.
	CreateResponse *bool `json:"create_response,omitzero"`

	// InterruptResponse controls whether caller speech interrupts an
	// in-progress response. Defaults to true.
	InterruptResponse *bool `json:"interrupt_response,omitzero"`

	// Eagerness tunes semantic_vad: "low", "medium" or "high".
	Eagerness string `json:"eagerness,omitzero"`
}

// Tool declares one callable function.
type Tool struct {
	// Type is always "function".
	Type string `json:"type"`

	Name        string `json:"name"`
	Description string `json:"description,omitzero"`

	// Parameters is the JSON Schema of the arguments object.
	Parameters map[string]any `json:"parameters,omitzero"`
}

// ResponseCreateOptions overrides session settings for one response.
type ResponseCreateOptions struct {
	Modalities        []string `json:"modalities,omitzero"`
	Instructions      string   `json:"instructions,omitzero"`
	Voice             string   `json:"voice,omitzero"`
	OutputAudioFormat string   `json:"output_audio_format,omitzero"`
	Tools             []Tool   `json:"tools,omitzero"`
	ToolChoice        any      `json:"tool_choice,omitzero"`
	Temperature       *float64 `json:"temperature,omitzero"`
	MaxOutputTokens   *int     `json:"max_output_tokens,omitzero"`
}

// SessionResource is the server's view of the session, carried by
// session.created and session.updated.
type SessionResource struct {
	ID                      string               `json:"id,omitzero"`
	Model                   string               `json:"model,omitzero"`
	ExpiresAt               int64                `json:"expires_at,omitzero"`
	Modalities              []string             `json:"modalities,omitzero"`
	Instructions            string               `json:"instructions,omitzero"`
	Voice                   string               `json:"voice,omitzero"`
	InputAudioFormat        string               `json:"input_audio_format,omitzero"`
	OutputAudioFormat       string               `json:"output_audio_format,omitzero"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitzero"`
	TurnDetection           *TurnDetection       `json:"turn_detection,omitzero"`
	Tools                   []Tool               `json:"tools,omitzero"`
	Temperature             float64              `json:"temperature,omitzero"`
}

// ConversationItem is one entry in the conversation: a message, a
// function call, or a function call output.
type ConversationItem struct {
	ID        string        `json:"id,omitzero"`
	Type      string        `json:"type,omitzero"`
	Status    string        `json:"status,omitzero"`
	Role      string        `json:"role,omitzero"`
	Content   []ContentPart `json:"content,omitzero"`
	CallID    string        `json:"call_id,omitzero"`
	Name      string        `json:"name,omitzero"`
	Arguments string        `json:"arguments,omitzero"`
	Output    string        `json:"output,omitzero"`
}

// ContentPart is one part of a message's content.
type ContentPart struct {
	Type       string `json:"type,omitzero"`
	Text       string `json:"text,omitzero"`
	Audio      string `json:"audio,omitzero"`
	Transcript string `json:"transcript,omitzero"`
}

// ResponseResource describes one model response, carried by
// response.created and response.done.
type ResponseResource struct {
	ID            string             `json:"id,omitzero"`
	Status        string             `json:"status,omitzero"`
	StatusDetails *StatusDetails     `json:"status_details,omitzero"`
	Output        []ConversationItem `json:"output,omitzero"`
	Usage         *Usage             `json:"usage,omitzero"`
}

// StatusDetails explains why a response ended early.
type StatusDetails struct {
	Type   string `json:"type,omitzero"`
	Reason string `json:"reason,omitzero"`
	Error  *Error `json:"error,omitzero"`
}

// Usage is the token accounting for one response.
type Usage struct {
	TotalTokens  int `json:"total_tokens,omitzero"`
	InputTokens  int `json:"input_tokens,omitzero"`
	OutputTokens int `json:"output_tokens,omitzero"`
}
