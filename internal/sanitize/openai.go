package sanitize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAISanitizer redacts via an OpenAI-compatible chat model. It exists
// for setups without a PII-Shield deployment; the model is instructed to
// answer with the same JSON contract the shield speaks, and the response
// goes through the same normalization.
type OpenAISanitizer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

const openaiRedactionPrompt = `You are a PII redaction engine. Replace every secret, credential, API key, person name, email address, or phone number in the user's text with a token of the form [HIDDEN:<short-id>], using the same token for repeated occurrences. Preserve all other bytes exactly, including line breaks. If the input is JSON, the output must remain JSON with an identical structure.

Respond with ONLY a JSON object:
{"sanitized_text": "<the redacted text>", "changed": <bool>, "redaction_count": <int>, "redactions_by_type": {"<type>": <int>}, "method": "provider_native", "status": "<sanitized|none>"}`

// NewOpenAISanitizer creates an OpenAI-backed sanitizer
func NewOpenAISanitizer(config Config, logger *slog.Logger) (*OpenAISanitizer, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.Endpoint != "" {
		clientConfig.BaseURL = config.Endpoint
	}

	modelName := config.Model
	if modelName == "" {
		modelName = openai.GPT4oMini
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 5
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAISanitizer{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   modelName,
		timeout: timeout,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}, nil
}

// Name returns the engine name
func (s *OpenAISanitizer) Name() string {
	return "openai-redactor"
}

// Sanitize redacts text via a chat completion and normalizes the reply
func (s *OpenAISanitizer) Sanitize(ctx context.Context, text string, opts Options) (*Result, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &CallError{Engine: s.Name(), Err: err}
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctxWithTimeout, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: openaiRedactionPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, &CallError{Engine: s.Name(), Err: fmt.Errorf("OpenAI API error: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return nil, &CallError{Engine: s.Name(), Err: fmt.Errorf("no response from OpenAI")}
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Message.Content)), &body); err != nil {
		return nil, &CallError{Engine: s.Name(), Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if _, ok := body["engine_version"]; !ok {
		body["engine_version"] = resp.Model
	}

	return Normalize(body, text, s.Name(), s.logger), nil
}

// stripFences removes a markdown code fence wrapper, which some
// OpenAI-compatible servers add even in JSON mode.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
