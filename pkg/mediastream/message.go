// Package mediastream speaks the Twilio Media Streams protocol: JSON
// frames over a persistent WebSocket carrying bidirectional G.711 audio
// for one phone call.
//
// The package has three parts: the Message model for inbound and
// outbound frames, Conn wrapping one call's WebSocket, and Server
// hosting the answer webhook plus the stream endpoint.
package mediastream

import "github.com/ringlet-ai/ringlet/pkg/encoding"

// Inbound and outbound event kinds.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventDTMF      = "dtmf"
	EventStop      = "stop"
	EventClear     = "clear"
)

// Message is a single Media Streams frame. Exactly one payload field is
// set, matching Event; unknown event kinds decode into the bare
// envelope so callers can log and skip them.
type Message struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSID      string        `json:"streamSid,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Mark           *MarkPayload  `json:"mark,omitempty"`
	DTMF           *DTMFPayload  `json:"dtmf,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
}

// StartPayload announces the stream: identifiers for the call and the
// format of the media that will follow.
type StartPayload struct {
	StreamSID        string            `json:"streamSid"`
	AccountSID       string            `json:"accountSid"`
	CallSID          string            `json:"callSid"`
	Tracks           []string          `json:"tracks,omitempty"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// MediaFormat describes the audio encoding of a stream. Telephony
// streams carry audio/x-mulaw at 8000 Hz mono.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries one chunk of audio. Payload is base64 on the
// wire; a frame with undecodable base64 fails at unmarshal like any
// other malformed frame. Track, Chunk and Timestamp are only present
// inbound.
type MediaPayload struct {
	Track     string                 `json:"track,omitempty"`
	Chunk     string                 `json:"chunk,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
	Payload   encoding.StdBase64Data `json:"payload"`
}

// MarkPayload acknowledges (inbound) or requests (outbound) a playback
// position marker.
type MarkPayload struct {
	Name string `json:"name"`
}

// DTMFPayload reports a key press on the caller's keypad.
type DTMFPayload struct {
	Track string `json:"track,omitempty"`
	Digit string `json:"digit"`
}

// StopPayload ends the stream; the call has been disconnected.
type StopPayload struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}
