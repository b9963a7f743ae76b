package sanitize

import (
	"fmt"
	"log/slog"

	"github.com/guardspine/docsync/internal/model"
)

// Field spellings accepted from the capability, first-present wins.
// Presence is structural: a key set to JSON null counts as absent, an
// empty string counts as present.
var (
	textKeys          = []string{"sanitized_text", "sanitizedText", "redacted_text", "redactedText", "text", "output"}
	countKeys         = []string{"redaction_count", "redactionCount"}
	byTypeKeys        = []string{"redactions_by_type", "redactionsByType"}
	engineNameKeys    = []string{"engine_name", "engineName"}
	engineVersionKeys = []string{"engine_version", "engineVersion", "version", "schema_version", "schemaVersion"}
	inputHashKeys     = []string{"input_hash", "inputHash"}
	outputHashKeys    = []string{"output_hash", "outputHash"}
)

// Normalize collapses a loosely-typed capability response into the
// closed Result vocabulary. It is total: any JSON object normalizes to
// something usable, with unusable fields coerced to safe defaults and
// logged rather than trusted.
func Normalize(body map[string]any, original, engine string, logger *slog.Logger) *Result {
	if logger == nil {
		logger = slog.Default()
	}

	sanitized := stringField(body, original, textKeys...)

	changed := sanitized != original
	if raw, ok := firstPresent(body, "changed"); ok {
		if b, isBool := raw.(bool); isBool {
			changed = b
		}
	}

	byType := redactionsByType(body, logger)
	count := redactionCount(body, byType, logger)

	return &Result{
		SanitizedText:    sanitized,
		Changed:          changed,
		RedactionCount:   count,
		RedactionsByType: byType,
		EngineName:       stringField(body, engine, engineNameKeys...),
		EngineVersion:    stringField(body, "unknown", engineVersionKeys...),
		Method:           normalizeMethod(body),
		Status:           normalizeStatus(body, changed),
		InputHash:        stringField(body, TextHash(original), inputHashKeys...),
		OutputHash:       stringField(body, TextHash(sanitized), outputHashKeys...),
	}
}

// firstPresent returns the first key that exists with a non-null value
func firstPresent(body map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if raw, ok := body[key]; ok && raw != nil {
			return raw, true
		}
	}
	return nil, false
}

func stringField(body map[string]any, fallback string, keys ...string) string {
	raw, ok := firstPresent(body, keys...)
	if !ok {
		return fallback
	}
	if s, isString := raw.(string); isString {
		return s
	}
	return fmt.Sprintf("%v", raw)
}

// asCount coerces a JSON value to a non-negative int. The second return
// is false for non-numeric input.
func asCount(raw any) (int, bool) {
	switch n := raw.(type) {
	case float64:
		return max(int(n), 0), true
	case int:
		return max(n, 0), true
	default:
		return 0, false
	}
}

func redactionsByType(body map[string]any, logger *slog.Logger) map[string]int {
	if raw, ok := firstPresent(body, byTypeKeys...); ok {
		if mapping, isMap := raw.(map[string]any); isMap {
			clean := make(map[string]int, len(mapping))
			for key, value := range mapping {
				n, numeric := asCount(value)
				if !numeric {
					logger.Warn("sanitizer response count is not numeric",
						"field", "redactions_by_type."+key, "got", fmt.Sprintf("%T", value))
				}
				clean[key] = n
			}
			return clean
		}
	}

	// No by-type mapping; infer one from a findings list if present.
	findings, ok := firstPresent(body, "redactions")
	if !ok {
		return map[string]int{}
	}
	list, isList := findings.([]any)
	if !isList {
		return map[string]int{}
	}

	inferred := map[string]int{}
	for _, item := range list {
		label := "unknown"
		if obj, isObj := item.(map[string]any); isObj {
			label = stringField(obj, "unknown", "type", "category", "label")
		}
		inferred[label]++
	}
	return inferred
}

func redactionCount(body map[string]any, byType map[string]int, logger *slog.Logger) int {
	if raw, ok := firstPresent(body, countKeys...); ok {
		if n, numeric := asCount(raw); numeric {
			return n
		}
		logger.Warn("sanitizer response count is not numeric",
			"field", "redaction_count", "got", fmt.Sprintf("%T", raw))
	}

	total := 0
	for _, n := range byType {
		total += n
	}
	if total > 0 {
		return total
	}
	if findings, ok := firstPresent(body, "redactions"); ok {
		if list, isList := findings.([]any); isList {
			return len(list)
		}
	}
	return 0
}

func normalizeMethod(body map[string]any) string {
	switch m := stringField(body, model.MethodProviderNative, "method"); m {
	case model.MethodDeterministicHMAC, model.MethodProviderNative, model.MethodEntropyHMAC:
		return m
	default:
		return model.MethodProviderNative
	}
}

func normalizeStatus(body map[string]any, changed bool) model.SanitizationStatus {
	derived := model.SanitizationNone
	if changed {
		derived = model.SanitizationSanitized
	}
	switch s := model.SanitizationStatus(stringField(body, string(derived), "status")); s {
	case model.SanitizationSanitized, model.SanitizationNone, model.SanitizationPartial, model.SanitizationError:
		return s
	default:
		return derived
	}
}
