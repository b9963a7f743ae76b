package model

import "fmt"

// DecodeError reports structurally invalid pack or result content. The
// verify path depends on malformed input being rejected loudly, so this
// error is never downgraded or auto-repaired.
type DecodeError struct {
	Field  string // Offending key or path, when known
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("structural decode: %s: %s", e.Field, e.Reason)
	}
	return "structural decode: " + e.Reason
}

func decodeErrf(field, format string, args ...any) *DecodeError {
	return &DecodeError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DecodeClaimResult rebuilds a ClaimResult from untrusted, already-parsed
// JSON. It fails when required keys are absent, when evidence is not a
// list of objects, or when any field carries the wrong type. It never
// coerces malformed input into a plausible-looking result.
//
// One deliberate leniency, kept from the original tool: an unrecognized
// status value decodes to "skip" rather than failing, so a pack written
// by a newer runner with an extra status still round-trips.
func DecodeClaimResult(raw any) (ClaimResult, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return ClaimResult{}, decodeErrf("", "claim result must be an object, got %T", raw)
	}

	claimID, err := requiredString(obj, "claim_id")
	if err != nil {
		return ClaimResult{}, err
	}
	claimText, err := requiredString(obj, "claim_text")
	if err != nil {
		return ClaimResult{}, err
	}

	evidence, err := decodeEvidence(obj["evidence"])
	if err != nil {
		return ClaimResult{}, err
	}

	message, err := optionalString(obj, "message")
	if err != nil {
		return ClaimResult{}, err
	}

	return ClaimResult{
		ClaimID:   claimID,
		ClaimText: claimText,
		Status:    decodeStatus(obj["status"]),
		Evidence:  evidence,
		Message:   message,
	}, nil
}

func decodeEvidence(raw any) ([]EvidenceRef, error) {
	if raw == nil {
		return []EvidenceRef{}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, decodeErrf("evidence", "'evidence' must be a list, got %T", raw)
	}

	refs := make([]EvidenceRef, 0, len(list))
	for i, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, decodeErrf("evidence", "each evidence entry must be an object, entry %d is %T", i, entry)
		}
		ref, err := decodeEvidenceRef(obj, i)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func decodeEvidenceRef(obj map[string]any, idx int) (EvidenceRef, error) {
	field := func(name string) string { return fmt.Sprintf("evidence[%d].%s", idx, name) }

	str := func(name string) (string, error) {
		raw, ok := obj[name]
		if !ok || raw == nil {
			return "", nil
		}
		s, ok := raw.(string)
		if !ok {
			return "", decodeErrf(field(name), "must be a string, got %T", raw)
		}
		return s, nil
	}

	sourceType, err := str("source_type")
	if err != nil {
		return EvidenceRef{}, err
	}
	path, err := str("path")
	if err != nil {
		return EvidenceRef{}, err
	}
	snippet, err := str("snippet")
	if err != nil {
		return EvidenceRef{}, err
	}

	line := 0
	if raw, ok := obj["line"]; ok && raw != nil {
		num, ok := raw.(float64)
		if !ok {
			return EvidenceRef{}, decodeErrf(field("line"), "must be a number, got %T", raw)
		}
		line = int(num)
	}

	matched := false
	if raw, ok := obj["matched"]; ok && raw != nil {
		b, ok := raw.(bool)
		if !ok {
			return EvidenceRef{}, decodeErrf(field("matched"), "must be a boolean, got %T", raw)
		}
		matched = b
	}

	return EvidenceRef{
		SourceType: sourceType,
		Path:       path,
		Line:       line,
		Snippet:    truncateSnippet(snippet),
		Matched:    matched,
	}, nil
}

func decodeStatus(raw any) ClaimStatus {
	s, ok := raw.(string)
	if !ok {
		return StatusSkip
	}
	switch ClaimStatus(s) {
	case StatusPass, StatusFail, StatusSkip:
		return ClaimStatus(s)
	default:
		return StatusSkip
	}
}

func requiredString(obj map[string]any, key string) (string, error) {
	raw, ok := obj[key]
	if !ok {
		return "", decodeErrf(key, "missing required key '%s'", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", decodeErrf(key, "must be a string, got %T", raw)
	}
	return s, nil
}

func optionalString(obj map[string]any, key string) (string, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", decodeErrf(key, "must be a string, got %T", raw)
	}
	return s, nil
}
