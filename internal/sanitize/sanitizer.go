// Package sanitize drives an external redaction capability over claim
// text before a pack is frozen. The capability is one polymorphic
// operation; everything else here is normalization of its loosely-typed
// responses and the policy layer that keeps a bad response from ever
// corrupting a pack.
package sanitize

import (
	"context"
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/guardspine/docsync/internal/model"
)

// Sanitizer is the redaction capability. Implementations normalize
// their raw responses before returning, so callers only ever see the
// closed vocabulary in Result. Test doubles substitute deterministic
// behavior without network access.
type Sanitizer interface {
	// Name returns the engine name
	Name() string

	// Sanitize redacts text and returns normalized metadata. A transport
	// failure, timeout, or malformed top-level response returns an error
	// (usually a *CallError); the caller's fail-open/fail-closed policy
	// decides what happens next.
	Sanitize(ctx context.Context, text string, opts Options) (*Result, error)
}

// Options describes one sanitize call to the capability.
type Options struct {
	// InputFormat is "text", "json", or "diff"
	InputFormat string

	// Purpose tags the request for the engine's audit log
	Purpose string

	// IncludeFindings asks the engine to return per-redaction findings
	IncludeFindings bool
}

// Result is the normalized response of one sanitize call.
type Result struct {
	SanitizedText    string
	Changed          bool
	RedactionCount   int
	RedactionsByType map[string]int
	EngineName       string
	EngineVersion    string
	Method           string
	Status           model.SanitizationStatus
	InputHash        string
	OutputHash       string
}

// Config holds sanitizer configuration. Endpoint, credentials, and
// timeout travel here explicitly; nothing is read from process-wide
// state.
type Config struct {
	// Engine name: "shield", "openai", "none", ""
	Engine string

	// Endpoint for the PII-Shield HTTP API (or a custom OpenAI base URL)
	Endpoint string

	// APIKey sent as a bearer token when set
	APIKey string

	// Model name for LLM-backed engines
	Model string

	// Timeout for sanitize calls
	Timeout int // seconds

	// FailClosed aborts a document's run when a call fails; the default
	// fail-open degrades to the original text instead
	FailClosed bool

	// SaltFingerprint labels the redaction salt; normalized to
	// sha256:<hex> before it reaches a pack
	SaltFingerprint string

	// RequestsPerSecond limits outbound calls; 0 means unlimited
	RequestsPerSecond float64

	// Burst for the rate limiter
	Burst int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Engine:            "", // Disabled by default
		Timeout:           5,
		FailClosed:        false,
		RequestsPerSecond: 2,
		Burst:             5,
	}
}

// CallError reports a failed capability call: transport error, timeout,
// or a response too malformed to normalize.
type CallError struct {
	Engine string
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("sanitizer %s: %v", e.Engine, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Passthrough returns a no-op result for text, with hashes computed so
// the response contract stays total even when nothing ran.
func Passthrough(text string, status model.SanitizationStatus) *Result {
	d := TextHash(text)
	return &Result{
		SanitizedText:    text,
		Changed:          false,
		RedactionCount:   0,
		RedactionsByType: map[string]int{},
		EngineName:       "pii-shield",
		EngineVersion:    "unknown",
		Method:           model.MethodProviderNative,
		Status:           status,
		InputHash:        d,
		OutputHash:       d,
	}
}

// TextHash digests text into the sha256:<hex> form used everywhere in
// the pack.
func TextHash(text string) string {
	return digest.FromString(text).String()
}
