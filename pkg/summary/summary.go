// Package summary produces structured post-call summaries from call
// transcripts. Two backends ship, OpenAI chat completions and Google
// Gemini, both constrained to the same output schema.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// CallSummary is the structured summary stored on the call record.
type CallSummary struct {
	Synopsis       string `json:"synopsis" msgpack:"synopsis" jsonschema:"two or three sentences recounting the call"`
	CallerIntent   string `json:"caller_intent" msgpack:"caller_intent" jsonschema:"what the caller wanted"`
	Outcome        string `json:"outcome" msgpack:"outcome" jsonschema:"how the call concluded"`
	FollowUpNeeded bool   `json:"follow_up_needed" msgpack:"follow_up_needed" jsonschema:"whether a human should follow up"`
}

// Summarizer produces a summary from a formatted transcript, one
// "role: text" line per utterance.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (*CallSummary, error)
}

const systemPrompt = `You summarize transcripts of phone calls handled by a voice agent.
Reply with JSON matching the requested schema. Be factual; never invent
details that are not in the transcript.`

// summarySchema derives the output schema from CallSummary, with every
// field required and no extra properties, as strict structured output
// modes demand.
func summarySchema() (*jsonschema.Schema, error) {
	s, err := jsonschema.For[CallSummary](nil)
	if err != nil {
		return nil, fmt.Errorf("summary: derive schema: %w", err)
	}
	s.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
	s.Required = slices.Sorted(maps.Keys(s.Properties))
	return s, nil
}

// decodeSummary parses model output, repairing common JSON damage
// (truncation, trailing prose) before giving up.
func decodeSummary(text string) (*CallSummary, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("summary: empty model output")
	}
	var cs CallSummary
	if err := json.Unmarshal([]byte(text), &cs); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(text)
		if rerr != nil {
			return nil, fmt.Errorf("summary: decode model output: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &cs); err != nil {
			return nil, fmt.Errorf("summary: decode model output: %w", err)
		}
	}
	if cs.Synopsis == "" {
		return nil, errors.New("summary: model output missing synopsis")
	}
	return &cs, nil
}
