package summary

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// DefaultOpenAIModel balances cost and quality for summarization.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI summarizes via chat completions with a strict JSON schema
// response format.
type OpenAI struct {
	client openai.Client
	model  string
	schema *jsonschema.Schema
}

// OpenAIOption configures the OpenAI summarizer.
type OpenAIOption func(*openAISettings)

type openAISettings struct {
	model   string
	baseURL string
}

// WithOpenAIModel overrides the model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(s *openAISettings) { s.model = model }
}

// WithOpenAIBaseURL overrides the API endpoint, for tests and proxies.
func WithOpenAIBaseURL(u string) OpenAIOption {
	return func(s *openAISettings) { s.baseURL = u }
}

// NewOpenAI creates a summarizer using the given API key.
func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAI, error) {
	settings := openAISettings{model: DefaultOpenAIModel}
	for _, opt := range opts {
		opt(&settings)
	}
	schema, err := summarySchema()
	if err != nil {
		return nil, err
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if settings.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(settings.baseURL))
	}
	return &OpenAI{
		client: openai.NewClient(clientOpts...),
		model:  settings.model,
		schema: schema,
	}, nil
}

func (s *OpenAI) Summarize(ctx context.Context, transcript string) (*CallSummary, error) {
	params := openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(transcript),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "call_summary",
					Description: param.NewOpt("Structured summary of one phone call."),
					Schema:      any(s.schema),
					Strict:      param.NewOpt(true),
				},
			},
		},
	}
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("summary: openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("summary: openai: no choices")
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("summary: openai refused: %s", choice.Message.Refusal)
	}
	if choice.FinishReason != "stop" {
		return nil, fmt.Errorf("summary: openai finish reason %s", choice.FinishReason)
	}
	return decodeSummary(choice.Message.Content)
}
