package model

// MaxSnippetLen caps evidence snippets so packs stay reviewable and no
// adapter can smuggle a whole file into the artifact.
const MaxSnippetLen = 120

// ClaimStatus is the outcome of checking a single claim
type ClaimStatus string

const (
	StatusPass ClaimStatus = "pass" // At least one evidence ref matched
	StatusFail ClaimStatus = "fail" // Evidence was searched for but none matched
	StatusSkip ClaimStatus = "skip" // Claim declares no evidence specs
)

// EvidenceRef points at a piece of evidence found in the inspected tree.
// Refs are produced read-only by search adapters and never mutated after
// construction.
type EvidenceRef struct {
	SourceType string `json:"source_type"` // Producing adapter: "code" or "markdown"
	Path       string `json:"path"`        // File path relative to the repo root, slash-separated
	Line       int    `json:"line"`        // 1-based line number (0 = not applicable)
	Snippet    string `json:"snippet"`     // Excerpt of the matching line, at most MaxSnippetLen chars
	Matched    bool   `json:"matched"`     // Whether the evidence confirms the claim
}

// NewEvidenceRef builds a ref, truncating the snippet at construction so
// oversized excerpts never reach serialization.
func NewEvidenceRef(sourceType, path string, line int, snippet string, matched bool) EvidenceRef {
	return EvidenceRef{
		SourceType: sourceType,
		Path:       path,
		Line:       line,
		Snippet:    truncateSnippet(snippet),
		Matched:    matched,
	}
}

// ClaimResult is the verdict for one claim from the manifest.
//
// ClaimText and Message may be rewritten in place, at most once, by the
// sanitization coordinator before the pack's chain is built; after that
// the result is frozen.
type ClaimResult struct {
	ClaimID   string        `json:"claim_id"`   // Unique within a document
	ClaimText string        `json:"claim_text"` // The documentation assertion being checked
	Status    ClaimStatus   `json:"status"`
	Evidence  []EvidenceRef `json:"evidence"`
	Message   string        `json:"message"` // Human-readable explanation of the verdict
}

func truncateSnippet(s string) string {
	if len(s) > MaxSnippetLen {
		return s[:MaxSnippetLen]
	}
	return s
}
