package sanitize

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"

	"github.com/guardspine/docsync/internal/chain"
	"github.com/guardspine/docsync/internal/model"
)

const fixtureSecret = "SECRET_KEY_1234567890"

// fakeSanitizer substitutes deterministic behavior for the capability
type fakeSanitizer struct {
	name string
	fn   func(text string, opts Options) (*Result, error)
}

func (f *fakeSanitizer) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeSanitizer) Sanitize(_ context.Context, text string, opts Options) (*Result, error) {
	return f.fn(text, opts)
}

// replacing mimics a well-behaved engine that swaps secret for token in
// any text it is given.
func replacing(secret, token string) *fakeSanitizer {
	return &fakeSanitizer{fn: func(text string, _ Options) (*Result, error) {
		sanitized := strings.ReplaceAll(text, secret, token)
		changed := sanitized != text
		count := 0
		if changed {
			count = 1
		}
		status := model.SanitizationNone
		if changed {
			status = model.SanitizationSanitized
		}
		return &Result{
			SanitizedText:    sanitized,
			Changed:          changed,
			RedactionCount:   count,
			RedactionsByType: map[string]int{"api_key": count},
			EngineName:       "pii-shield",
			EngineVersion:    "1.1.0",
			Method:           model.MethodProviderNative,
			Status:           status,
			InputHash:        TextHash(text),
			OutputHash:       TextHash(sanitized),
		}, nil
	}}
}

func secretResults() []model.ClaimResult {
	return []model.ClaimResult{{
		ClaimID:   "SEC-001",
		ClaimText: "Secrets must not be hardcoded",
		Status:    model.StatusPass,
		Evidence: []model.EvidenceRef{{
			SourceType: "code",
			Path:       "src/app.py",
			Line:       1,
			Snippet:    `API_KEY = "` + fixtureSecret + `"`,
			Matched:    true,
		}},
		Message: "1/1 evidence found",
	}}
}

func newTestCoordinator(s Sanitizer, config Config) (*Coordinator, *bytes.Buffer) {
	logBuffer := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logBuffer, nil))
	return NewCoordinator(s, config, logger), logBuffer
}

func canonicalOf(t *testing.T, results []model.ClaimResult) string {
	t.Helper()
	data, err := chain.Canonical(results)
	if err != nil {
		t.Fatalf("Expected canonicalization to succeed, got %v", err)
	}
	return string(data)
}

func TestApply_DisabledWithoutSanitizer(t *testing.T) {
	c, _ := newTestCoordinator(nil, DefaultConfig())
	results := secretResults()
	before := canonicalOf(t, results)

	summary, err := c.Apply(context.Background(), results)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if summary != nil {
		t.Errorf("Expected no summary when disabled, got %+v", summary)
	}
	if canonicalOf(t, results) != before {
		t.Error("Expected results untouched when disabled")
	}
}

func TestApply_BulkRedactsEvidenceSnippets(t *testing.T) {
	config := DefaultConfig()
	config.SaltFingerprint = "sha256:deadbeef"
	c, _ := newTestCoordinator(replacing(fixtureSecret, "[HIDDEN:a1b2c3]"), config)

	results := secretResults()
	summary, err := c.Apply(context.Background(), results)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !strings.Contains(results[0].Evidence[0].Snippet, "[HIDDEN:a1b2c3]") {
		t.Errorf("Expected snippet redacted via the bulk pass, got %q", results[0].Evidence[0].Snippet)
	}
	if strings.Contains(canonicalOf(t, results), fixtureSecret) {
		t.Error("Expected no literal secret anywhere in the serialized results")
	}

	if summary.Status != model.SanitizationSanitized {
		t.Errorf("Expected status sanitized, got %q", summary.Status)
	}
	if summary.RedactionCount < 1 {
		t.Errorf("Expected at least one redaction, got %d", summary.RedactionCount)
	}
	if summary.EngineName != "pii-shield" || summary.EngineVersion != "1.1.0" {
		t.Errorf("Expected engine identity from the capability, got %q %q", summary.EngineName, summary.EngineVersion)
	}
	if summary.SaltFingerprint != "sha256:deadbeef" {
		t.Errorf("Expected conforming fingerprint preserved, got %q", summary.SaltFingerprint)
	}

	found := false
	for _, stage := range summary.AppliedTo {
		if stage == StageBulk {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected applied_to to record the bulk stage, got %v", summary.AppliedTo)
	}

	if summary.InputHash == summary.OutputHash {
		t.Error("Expected input and output hashes to differ after redaction")
	}
	if summary.OutputHash != digest.FromString(canonicalOf(t, results)).String() {
		t.Error("Expected output hash to digest the final canonical results")
	}
}

func TestApply_PerFieldRedactsClaimText(t *testing.T) {
	c, _ := newTestCoordinator(replacing("PII_NAME", "[HIDDEN:name1]"), DefaultConfig())

	results := []model.ClaimResult{{
		ClaimID:   "PII-001",
		ClaimText: "Contact PII_NAME for details",
		Status:    model.StatusPass,
		Evidence:  []model.EvidenceRef{},
		Message:   "1/1 evidence found",
	}}

	summary, err := c.Apply(context.Background(), results)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if strings.Contains(results[0].ClaimText, "PII_NAME") {
		t.Errorf("Expected claim text redacted, got %q", results[0].ClaimText)
	}
	if !strings.Contains(results[0].ClaimText, "[HIDDEN:name1]") {
		t.Errorf("Expected replacement token in claim text, got %q", results[0].ClaimText)
	}

	if summary.Status != model.SanitizationSanitized {
		t.Errorf("Expected status sanitized, got %q", summary.Status)
	}
	if len(summary.AppliedTo) != 1 || summary.AppliedTo[0] != StageClaimText {
		t.Errorf("Expected only the claim_text stage applied, got %v", summary.AppliedTo)
	}
}

func TestApply_BrokenBulkDegradesToPartial(t *testing.T) {
	// Claims a change on every call but returns garbage, like a broken
	// engine would.
	broken := &fakeSanitizer{fn: func(text string, _ Options) (*Result, error) {
		return &Result{
			SanitizedText:    "{not-json",
			Changed:          true,
			RedactionCount:   1,
			RedactionsByType: map[string]int{"api_key": 1},
			EngineName:       "pii-shield",
			EngineVersion:    "1.1.0",
			Method:           model.MethodProviderNative,
			Status:           model.SanitizationSanitized,
		}, nil
	}}
	c, logBuffer := newTestCoordinator(broken, DefaultConfig())

	results := secretResults()
	summary, err := c.Apply(context.Background(), results)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if summary.Status != model.SanitizationPartial {
		t.Errorf("Expected status partial after structural discard, got %q", summary.Status)
	}
	if !strings.Contains(results[0].Evidence[0].Snippet, fixtureSecret) {
		t.Error("Expected original snippet retained after bulk discard")
	}
	for _, stage := range summary.AppliedTo {
		if stage == StageBulk {
			t.Errorf("Expected bulk stage not recorded as applied, got %v", summary.AppliedTo)
		}
	}
	if !strings.Contains(logBuffer.String(), "PII sanitizer returned invalid response") {
		t.Errorf("Expected the invalid-response warning, got %q", logBuffer.String())
	}
}

func TestApply_MalformedBulkKeepsOriginalsVerbatim(t *testing.T) {
	tests := []struct {
		desc string
		bulk string
	}{
		{"not valid JSON", "{not-json"},
		{"not an array", `{"a": 1}`},
		{"length mismatch", "[]"},
		{"element fails strict decode", `[{"claim_text": "missing id"}]`},
	}

	for _, tt := range tests {
		// Leaves plain text alone; mangles only the bulk JSON pass.
		fake := &fakeSanitizer{fn: func(text string, opts Options) (*Result, error) {
			if opts.InputFormat != "json" {
				return Passthrough(text, model.SanitizationNone), nil
			}
			return &Result{
				SanitizedText:    tt.bulk,
				Changed:          true,
				RedactionsByType: map[string]int{},
				EngineName:       "pii-shield",
				EngineVersion:    "1.1.0",
				Method:           model.MethodProviderNative,
				Status:           model.SanitizationSanitized,
			}, nil
		}}
		c, logBuffer := newTestCoordinator(fake, DefaultConfig())

		results := secretResults()
		before := canonicalOf(t, results)

		summary, err := c.Apply(context.Background(), results)
		if err != nil {
			t.Fatalf("%s: expected no error, got %v", tt.desc, err)
		}

		if summary.Status != model.SanitizationPartial {
			t.Errorf("%s: expected status partial, got %q", tt.desc, summary.Status)
		}
		if canonicalOf(t, results) != before {
			t.Errorf("%s: expected results byte-for-byte identical after discard", tt.desc)
		}
		if !strings.Contains(logBuffer.String(), "PII sanitizer returned invalid response") {
			t.Errorf("%s: expected the invalid-response warning", tt.desc)
		}
	}
}

func TestApply_FailOpenSynthesizesErrorSummary(t *testing.T) {
	raising := &fakeSanitizer{fn: func(string, Options) (*Result, error) {
		return nil, &CallError{Engine: "fake", Err: errors.New("sanitizer exploded")}
	}}
	c, logBuffer := newTestCoordinator(raising, DefaultConfig())

	results := secretResults()
	before := canonicalOf(t, results)

	summary, err := c.Apply(context.Background(), results)
	if err != nil {
		t.Fatalf("Expected fail-open to recover, got %v", err)
	}

	if summary.Status != model.SanitizationError {
		t.Errorf("Expected status error, got %q", summary.Status)
	}
	if summary.RedactionCount != 0 {
		t.Errorf("Expected zero redactions, got %d", summary.RedactionCount)
	}
	if len(summary.AppliedTo) != 0 {
		t.Errorf("Expected empty applied_to, got %v", summary.AppliedTo)
	}
	if summary.EngineName != "fake" {
		t.Errorf("Expected fallback engine name, got %q", summary.EngineName)
	}
	if canonicalOf(t, results) != before {
		t.Error("Expected original results retained")
	}

	logged := logBuffer.String()
	if !strings.Contains(logged, "PII sanitizer call failed") {
		t.Errorf("Expected the call-failed warning, got %q", logged)
	}
	if !strings.Contains(logged, "errorString") {
		t.Errorf("Expected the underlying error type in the warning, got %q", logged)
	}
}

func TestApply_FailClosedPropagates(t *testing.T) {
	raising := &fakeSanitizer{fn: func(string, Options) (*Result, error) {
		return nil, &CallError{Engine: "fake", Err: errors.New("sanitizer exploded")}
	}}
	config := DefaultConfig()
	config.FailClosed = true
	c, _ := newTestCoordinator(raising, config)

	summary, err := c.Apply(context.Background(), secretResults())
	if err == nil {
		t.Fatal("Expected fail-closed to propagate the failure")
	}
	if summary != nil {
		t.Errorf("Expected no summary on abort, got %+v", summary)
	}
	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Errorf("Expected *CallError in the chain, got %v", err)
	}
}

func TestApply_MixedFailureAndSuccessIsPartial(t *testing.T) {
	calls := 0
	flaky := &fakeSanitizer{fn: func(text string, opts Options) (*Result, error) {
		calls++
		if calls == 2 {
			return nil, &CallError{Engine: "fake", Err: errors.New("transient")}
		}
		return Passthrough(text, model.SanitizationNone), nil
	}}
	c, logBuffer := newTestCoordinator(flaky, DefaultConfig())

	summary, err := c.Apply(context.Background(), secretResults())
	if err != nil {
		t.Fatalf("Expected fail-open to recover, got %v", err)
	}
	if summary.Status != model.SanitizationPartial {
		t.Errorf("Expected partial when some calls failed, got %q", summary.Status)
	}
	if !strings.Contains(logBuffer.String(), "PII sanitizer call failed") {
		t.Error("Expected the call-failed warning")
	}
}

func TestApply_NoChangesReportsNone(t *testing.T) {
	c, _ := newTestCoordinator(replacing("NOT_PRESENT", "[HIDDEN:x]"), DefaultConfig())

	results := secretResults()
	summary, err := c.Apply(context.Background(), results)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if summary.Status != model.SanitizationNone {
		t.Errorf("Expected status none, got %q", summary.Status)
	}
	if len(summary.AppliedTo) != 0 {
		t.Errorf("Expected no applied stages, got %v", summary.AppliedTo)
	}
	if summary.InputHash != summary.OutputHash {
		t.Error("Expected identical input and output hashes")
	}
	if summary.TokenFormat != model.DefaultTokenFormat {
		t.Errorf("Expected default token format, got %q", summary.TokenFormat)
	}
}

func TestNormalizeFingerprint(t *testing.T) {
	tests := []struct {
		desc  string
		label string
		want  string
	}{
		{"empty stays empty", "", ""},
		{"conforming label kept", "sha256:deadbeef", "sha256:deadbeef"},
		{"uppercase hex is not conforming", "sha256:DEADBEEF", digest.FromString("sha256:DEADBEEF").String()},
		{"arbitrary label derives", "invalid fingerprint", digest.FromString("invalid fingerprint").String()},
	}

	for _, tt := range tests {
		got := NormalizeFingerprint(tt.label)
		if got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.desc, tt.want, got)
		}
		if tt.label != "" && !strings.HasPrefix(got, "sha256:") {
			t.Errorf("%s: expected canonical sha256: shape, got %q", tt.desc, got)
		}
	}
}
