package triage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AnthropicTriager analyzes transcripts using the Anthropic Messages API.
type AnthropicTriager struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// AnthropicConfig holds configuration for the Anthropic triager.
type AnthropicConfig struct {
	// BaseURL overrides the API endpoint (empty: SDK default).
	BaseURL string
	// APIKey is the API key.
	APIKey string
	// Model is the model name.
	Model string
	// MaxTokens is the maximum number of output tokens.
	MaxTokens int64
}

// NewAnthropicTriager creates a new Anthropic triager.
func NewAnthropicTriager(cfg AnthropicConfig) *AnthropicTriager {
	var opts []option.RequestOption

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	client := anthropic.NewClient(opts...)

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &AnthropicTriager{
		client:    client,
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

// Provider returns "anthropic".
func (t *AnthropicTriager) Provider() string {
	return "anthropic"
}

// Model returns the model name.
func (t *AnthropicTriager) Model() string {
	return t.model
}

var triageTracer = otel.Tracer("consoledrive/triage")

// Analyze sends the rendered transcript to the Anthropic API and returns
// the diagnosis.
func (t *AnthropicTriager) Analyze(ctx context.Context, rendered string) (*Verdict, error) {
	userMessage := UserPromptTemplate + rendered

	// GenAI generation span per the OTel GenAI semantic conventions.
	// Span name: "{operation} {model}".
	ctx, span := triageTracer.Start(ctx, "chat "+t.model,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "chat"),
			attribute.String("gen_ai.provider.name", "anthropic"),
			attribute.String("gen_ai.request.model", t.model),
			attribute.Int64("gen_ai.request.max_tokens", t.maxTokens),
		),
	)
	defer span.End()

	resp, err := t.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(t.model),
		MaxTokens: t.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(userMessage),
			),
		},
	})
	if err != nil {
		span.SetAttributes(attribute.String("error.type", "api_error"))
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	if len(resp.Content) == 0 {
		span.SetAttributes(attribute.String("error.type", "empty_response"))
		return nil, fmt.Errorf("anthropic API returned empty response")
	}

	text := stripMarkdownFences(resp.Content[0].Text)

	span.SetAttributes(
		attribute.String("gen_ai.response.model", t.model),
		attribute.Int64("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int64("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
	)
	if string(resp.StopReason) != "" {
		span.SetAttributes(attribute.StringSlice("gen_ai.response.finish_reasons", []string{string(resp.StopReason)}))
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(text), &verdict); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response as JSON: %w\nraw response: %s", err, text)
	}

	verdict.Usage = TokenUsage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}

	return &verdict, nil
}
