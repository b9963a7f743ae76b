package sanitize

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"

	"github.com/guardspine/docsync/internal/model"
)

func parseBody(t *testing.T, raw string) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("Expected valid fixture JSON, got %v", err)
	}
	return body
}

func TestNormalize_SnakeCaseResponse(t *testing.T) {
	body := parseBody(t, `{
		"sanitized_text": "[HIDDEN:a1b2c3]",
		"changed": true,
		"redaction_count": 2,
		"redactions_by_type": {"api_key": 2},
		"engine_name": "pii-shield",
		"engine_version": "1.1.0",
		"method": "deterministic_hmac",
		"status": "sanitized",
		"input_hash": "sha256:aaaa",
		"output_hash": "sha256:bbbb"
	}`)

	res := Normalize(body, "SECRET", "pii-shield", nil)

	if res.SanitizedText != "[HIDDEN:a1b2c3]" {
		t.Errorf("Expected sanitized text substituted, got %q", res.SanitizedText)
	}
	if !res.Changed {
		t.Error("Expected changed true")
	}
	if res.RedactionCount != 2 {
		t.Errorf("Expected count 2, got %d", res.RedactionCount)
	}
	if res.RedactionsByType["api_key"] != 2 {
		t.Errorf("Expected api_key count 2, got %v", res.RedactionsByType)
	}
	if res.EngineName != "pii-shield" || res.EngineVersion != "1.1.0" {
		t.Errorf("Expected engine identity preserved, got %q %q", res.EngineName, res.EngineVersion)
	}
	if res.Method != model.MethodDeterministicHMAC {
		t.Errorf("Expected method kept, got %q", res.Method)
	}
	if res.Status != model.SanitizationSanitized {
		t.Errorf("Expected status sanitized, got %q", res.Status)
	}
	if res.InputHash != "sha256:aaaa" || res.OutputHash != "sha256:bbbb" {
		t.Errorf("Expected response hashes kept, got %q %q", res.InputHash, res.OutputHash)
	}
}

func TestNormalize_CamelCaseResponse(t *testing.T) {
	body := parseBody(t, `{
		"sanitizedText": "[HIDDEN:x]",
		"redactionCount": 1,
		"redactionsByType": {"email": 1},
		"engineName": "shield-ng",
		"engineVersion": "2.0"
	}`)

	res := Normalize(body, "me@example.com", "pii-shield", nil)

	if res.SanitizedText != "[HIDDEN:x]" {
		t.Errorf("Expected camelCase text key honored, got %q", res.SanitizedText)
	}
	if res.RedactionCount != 1 || res.RedactionsByType["email"] != 1 {
		t.Errorf("Expected camelCase counts honored, got %d %v", res.RedactionCount, res.RedactionsByType)
	}
	if res.EngineName != "shield-ng" || res.EngineVersion != "2.0" {
		t.Errorf("Expected camelCase engine keys honored, got %q %q", res.EngineName, res.EngineVersion)
	}
}

func TestNormalize_PresenceSemantics(t *testing.T) {
	tests := []struct {
		desc string
		body string
		want string
	}{
		{"null falls through to next spelling", `{"sanitized_text": null, "redacted_text": "clean"}`, "clean"},
		{"empty string counts as present", `{"sanitized_text": "", "redacted_text": "clean"}`, ""},
		{"text key as fallback spelling", `{"text": "clean"}`, "clean"},
		{"output key as last spelling", `{"output": "clean"}`, "clean"},
		{"all spellings absent keeps original", `{}`, "original"},
	}

	for _, tt := range tests {
		res := Normalize(parseBody(t, tt.body), "original", "pii-shield", nil)
		if res.SanitizedText != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.desc, tt.want, res.SanitizedText)
		}
	}
}

func TestNormalize_ChangedDerivedFromText(t *testing.T) {
	res := Normalize(parseBody(t, `{"sanitized_text": "other"}`), "original", "pii-shield", nil)
	if !res.Changed {
		t.Error("Expected changed derived true when text differs")
	}

	res = Normalize(parseBody(t, `{"sanitized_text": "same"}`), "same", "pii-shield", nil)
	if res.Changed {
		t.Error("Expected changed derived false when text matches")
	}

	// An explicit flag wins over the derived value.
	res = Normalize(parseBody(t, `{"sanitized_text": "other", "changed": false}`), "original", "pii-shield", nil)
	if res.Changed {
		t.Error("Expected explicit changed=false to win")
	}
}

func TestNormalize_ClosedVocabularies(t *testing.T) {
	tests := []struct {
		desc       string
		body       string
		wantMethod string
		wantStatus model.SanitizationStatus
	}{
		{"unrecognized method coerces", `{"method": "quantum", "status": "partial"}`, model.MethodProviderNative, model.SanitizationPartial},
		{"entropy method kept", `{"method": "entropy+hmac", "status": "error"}`, model.MethodEntropyHMAC, model.SanitizationError},
		{"unrecognized status derives from changed", `{"sanitized_text": "other", "status": "redacted-ish"}`, model.MethodProviderNative, model.SanitizationSanitized},
		{"absent status derives none when unchanged", `{}`, model.MethodProviderNative, model.SanitizationNone},
	}

	for _, tt := range tests {
		res := Normalize(parseBody(t, tt.body), "original", "pii-shield", nil)
		if res.Method != tt.wantMethod {
			t.Errorf("%s: expected method %q, got %q", tt.desc, tt.wantMethod, res.Method)
		}
		if res.Status != tt.wantStatus {
			t.Errorf("%s: expected status %q, got %q", tt.desc, tt.wantStatus, res.Status)
		}
	}
}

func TestNormalize_CountCoercion(t *testing.T) {
	var logBuffer bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuffer, nil))

	res := Normalize(parseBody(t, `{"redaction_count": -3}`), "x", "pii-shield", logger)
	if res.RedactionCount != 0 {
		t.Errorf("Expected negative count clamped to 0, got %d", res.RedactionCount)
	}

	res = Normalize(parseBody(t, `{"redaction_count": "three", "redactions_by_type": {"name": 2}}`), "x", "pii-shield", logger)
	if res.RedactionCount != 2 {
		t.Errorf("Expected non-numeric count replaced by type sum, got %d", res.RedactionCount)
	}
	if !strings.Contains(logBuffer.String(), "count is not numeric") {
		t.Error("Expected a warning for the non-numeric count")
	}

	logBuffer.Reset()
	res = Normalize(parseBody(t, `{"redactions_by_type": {"name": "two", "email": 1}}`), "x", "pii-shield", logger)
	if res.RedactionsByType["name"] != 0 || res.RedactionsByType["email"] != 1 {
		t.Errorf("Expected non-numeric type count coerced to 0, got %v", res.RedactionsByType)
	}
	if !strings.Contains(logBuffer.String(), "count is not numeric") {
		t.Error("Expected a warning for the non-numeric type count")
	}
}

func TestNormalize_CountInferredFromFindings(t *testing.T) {
	body := parseBody(t, `{
		"redactions": [
			{"type": "api_key", "start": 10},
			{"category": "email"},
			{"label": "email"},
			{"start": 99},
			"opaque"
		]
	}`)

	res := Normalize(body, "x", "pii-shield", nil)

	if res.RedactionCount != 5 {
		t.Errorf("Expected count inferred from findings list, got %d", res.RedactionCount)
	}
	if res.RedactionsByType["api_key"] != 1 {
		t.Errorf("Expected api_key inferred from type, got %v", res.RedactionsByType)
	}
	if res.RedactionsByType["email"] != 2 {
		t.Errorf("Expected email inferred from category and label, got %v", res.RedactionsByType)
	}
	if res.RedactionsByType["unknown"] != 2 {
		t.Errorf("Expected unlabeled findings counted as unknown, got %v", res.RedactionsByType)
	}
}

func TestNormalize_HashesComputedLocally(t *testing.T) {
	res := Normalize(parseBody(t, `{"sanitized_text": "clean"}`), "dirty", "pii-shield", nil)

	if res.InputHash != digest.FromString("dirty").String() {
		t.Errorf("Expected input hash computed from original, got %q", res.InputHash)
	}
	if res.OutputHash != digest.FromString("clean").String() {
		t.Errorf("Expected output hash computed from sanitized text, got %q", res.OutputHash)
	}
}
