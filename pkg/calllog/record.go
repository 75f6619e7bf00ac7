package calllog

import (
	"time"

	"github.com/google/uuid"

	"github.com/ringlet-ai/ringlet/pkg/jsontime"
	"github.com/ringlet-ai/ringlet/pkg/summary"
)

// Turn is one utterance in the call transcript.
type Turn struct {
	Role string    `json:"role" msgpack:"role"`
	Text string    `json:"text" msgpack:"text"`
	At   time.Time `json:"at" msgpack:"at"`
}

// ToolCall records one function-tool invocation during the call.
type ToolCall struct {
	Name  string    `json:"name" msgpack:"name"`
	Error string    `json:"error,omitempty" msgpack:"error,omitempty"`
	At    time.Time `json:"at" msgpack:"at"`
}

// Record is the persisted outcome of a single call.
type Record struct {
	ID         string               `json:"id" msgpack:"id"`
	StreamID   string               `json:"stream_id" msgpack:"stream_id"`
	CallID     string               `json:"call_id" msgpack:"call_id"`
	Caller     string               `json:"caller,omitempty" msgpack:"caller,omitempty"`
	StartedAt  time.Time            `json:"started_at" msgpack:"started_at"`
	EndedAt    time.Time            `json:"ended_at,omitzero" msgpack:"ended_at"`
	Duration   jsontime.Duration    `json:"duration" msgpack:"duration"`
	Tools      []ToolCall           `json:"tools,omitempty" msgpack:"tools,omitempty"`
	Transcript []Turn               `json:"transcript,omitempty" msgpack:"transcript,omitempty"`
	Summary    *summary.CallSummary `json:"summary,omitempty" msgpack:"summary,omitempty"`
	Recordings []string             `json:"recordings,omitempty" msgpack:"recordings,omitempty"`
}

// NewRecord starts a record for a call that just went active.
func NewRecord(streamID, callID, caller string) *Record {
	return &Record{
		ID:        uuid.NewString(),
		StreamID:  streamID,
		CallID:    callID,
		Caller:    caller,
		StartedAt: time.Now().UTC(),
	}
}

// AddTool appends a tool invocation outcome.
func (r *Record) AddTool(name string, callErr error) {
	tc := ToolCall{Name: name, At: time.Now().UTC()}
	if callErr != nil {
		tc.Error = callErr.Error()
	}
	r.Tools = append(r.Tools, tc)
}

// Finish stamps the end time and computes the call duration.
func (r *Record) Finish(endedAt time.Time) {
	r.EndedAt = endedAt.UTC()
	r.Duration = jsontime.Duration(endedAt.Sub(r.StartedAt))
}
