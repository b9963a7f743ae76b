package sanitize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/guardspine/docsync/internal/model"
)

// ShieldSanitizer talks to a PII-Shield HTTP endpoint
type ShieldSanitizer struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// shieldRequest is the wire payload. Deterministic redaction and stable
// line numbers are always requested so evidence line references survive
// sanitization.
type shieldRequest struct {
	Text                string `json:"text"`
	InputFormat         string `json:"input_format"`
	Purpose             string `json:"purpose"`
	Deterministic       bool   `json:"deterministic"`
	PreserveLineNumbers bool   `json:"preserve_line_numbers"`
	IncludeFindings     bool   `json:"include_findings"`
}

// NewShieldSanitizer creates a PII-Shield client. An empty endpoint is a
// configuration error under fail-closed; under fail-open the client is
// built anyway and every call passes the text through untouched.
func NewShieldSanitizer(config Config, logger *slog.Logger) (*ShieldSanitizer, error) {
	endpoint := strings.TrimSpace(config.Endpoint)
	if endpoint == "" && config.FailClosed {
		return nil, fmt.Errorf("PII-Shield endpoint is required in fail-closed mode")
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 5 * time.Second
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

	return &ShieldSanitizer{
		endpoint: endpoint,
		apiKey:   config.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: newProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
			},
		},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}, nil
}

// Name returns the engine name
func (s *ShieldSanitizer) Name() string {
	return "pii-shield"
}

// Sanitize redacts text via the PII-Shield endpoint and normalizes the
// response.
func (s *ShieldSanitizer) Sanitize(ctx context.Context, text string, opts Options) (*Result, error) {
	if s.endpoint == "" {
		return Passthrough(text, model.SanitizationNone), nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &CallError{Engine: s.Name(), Err: err}
	}

	body, err := s.makeRequest(ctx, shieldRequest{
		Text:                text,
		InputFormat:         defaultString(opts.InputFormat, "text"),
		Purpose:             defaultString(opts.Purpose, "docsync_pack"),
		Deterministic:       true,
		PreserveLineNumbers: true,
		IncludeFindings:     opts.IncludeFindings,
	})
	if err != nil {
		return nil, &CallError{Engine: s.Name(), Err: err}
	}

	return Normalize(body, text, s.Name(), s.logger), nil
}

// makeRequest makes an HTTP request to the PII-Shield API
func (s *ShieldSanitizer) makeRequest(ctx context.Context, apiReq shieldRequest) (map[string]any, error) {
	payload, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (%d): %s", httpResp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return map[string]any{}, nil
	}

	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	body, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("response must be a JSON object, got %T", parsed)
	}

	return body, nil
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
