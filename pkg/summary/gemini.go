package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

// DefaultGeminiModel balances cost and quality for summarization.
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini summarizes via GenerateContent with a response schema.
type Gemini struct {
	client *genai.Client
	model  string
	schema *genai.Schema
}

// GeminiOption configures the Gemini summarizer.
type GeminiOption func(*geminiSettings)

type geminiSettings struct {
	model   string
	baseURL string
}

// WithGeminiModel overrides the model.
func WithGeminiModel(model string) GeminiOption {
	return func(s *geminiSettings) { s.model = model }
}

// WithGeminiBaseURL overrides the API endpoint, for tests.
func WithGeminiBaseURL(u string) GeminiOption {
	return func(s *geminiSettings) { s.baseURL = u }
}

// NewGemini creates a summarizer using the given API key.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*Gemini, error) {
	settings := geminiSettings{model: DefaultGeminiModel}
	for _, opt := range opts {
		opt(&settings)
	}
	schema, err := summarySchema()
	if err != nil {
		return nil, err
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if settings.baseURL != "" {
		cfg.HTTPOptions.BaseURL = settings.baseURL
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("summary: gemini client: %w", err)
	}
	return &Gemini{
		client: client,
		model:  settings.model,
		schema: toGenaiSchema(schema),
	}, nil
}

func (s *Gemini) Summarize(ctx context.Context, transcript string) (*CallSummary, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(systemPrompt)},
		},
		ResponseMIMEType: "application/json",
		ResponseSchema:   s.schema,
	}
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{genai.NewPartFromText(transcript)},
	}}
	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, cfg)
	if err != nil {
		if e, ok := err.(*apierror.APIError); ok {
			err = e.Unwrap()
		}
		return nil, fmt.Errorf("summary: gemini: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, errors.New("summary: gemini: no candidates")
	}
	cand := resp.Candidates[0]
	if cand.FinishReason != genai.FinishReasonStop {
		return nil, fmt.Errorf("summary: gemini finish reason %s", cand.FinishReason)
	}
	var sb strings.Builder
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	return decodeSummary(sb.String())
}

// toGenaiSchema converts the derived JSON schema to the genai schema
// model. Only the shapes CallSummary produces are handled.
func toGenaiSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}
	gs := genai.Schema{
		Description: schema.Description,
		Items:       toGenaiSchema(schema.Items),
		Required:    schema.Required,
	}
	if n := len(schema.Properties); n > 0 {
		gs.Properties = make(map[string]*genai.Schema, n)
		for k, prop := range schema.Properties {
			gs.Properties[k] = toGenaiSchema(prop)
		}
	}
	switch schema.Type {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return &gs
}
