package model

import "time"

// Runner identity stamped into every pack
const (
	RunnerName    = "rlm-docsync"
	RunnerVersion = "0.1.0"
)

// ChainLink binds one claim result to its predecessor in the hash chain.
// All fields are plain values (no maps) so json.Marshal field order is
// deterministic and the link itself can be hashed reproducibly.
type ChainLink struct {
	Sequence     int    `json:"sequence"`      // 0-based position in the chain
	ItemID       string `json:"item_id"`       // "claim-<sequence>"
	ContentType  string `json:"content_type"`  // e.g. "claim_result"
	ContentHash  string `json:"content_hash"`  // sha256:<hex> of the canonical result JSON
	PreviousHash string `json:"previous_hash"` // Prior link's chain_hash; genesis sentinel for link 0
	ChainHash    string `json:"chain_hash"`    // sha256:<hex> over (sequence|item_id|content_type|content_hash|previous_hash)
}

// PackItem is the richer per-item envelope entry: the full result content
// travels next to its own content hash so a consumer can re-check any
// single item without the flat view.
type PackItem struct {
	ItemID      string      `json:"item_id"`
	Sequence    int         `json:"sequence"`
	ContentType string      `json:"content_type"`
	Content     ClaimResult `json:"content"`
	ContentHash string      `json:"content_hash"`
}

// ImmutabilityProof is the structured integrity section of the envelope.
type ImmutabilityProof struct {
	HashChain []ChainLink `json:"hash_chain"`
	RootHash  string      `json:"root_hash"`
}

// SanitizationStatus reports how far redaction got for a document
type SanitizationStatus string

const (
	SanitizationSanitized SanitizationStatus = "sanitized" // Every pass succeeded and bulk content was verified and substituted
	SanitizationNone      SanitizationStatus = "none"      // Sanitizer ran but changed nothing
	SanitizationPartial   SanitizationStatus = "partial"   // Some passes applied, or bulk content was discarded as unsafe
	SanitizationError     SanitizationStatus = "error"     // All sanitizer calls failed; originals retained
)

// Redaction methods the summary may report
const (
	MethodDeterministicHMAC = "deterministic_hmac"
	MethodProviderNative    = "provider_native"
	MethodEntropyHMAC       = "entropy+hmac"
)

// DefaultTokenFormat is the replacement-token shape engines are expected
// to emit unless they report their own.
const DefaultTokenFormat = "[HIDDEN:<id>]"

// SanitizationSummary records what the redaction capability did to one
// document's results. A status of "sanitized" is a trust statement: no
// literal original secret survives anywhere in the serialized pack.
type SanitizationSummary struct {
	EngineName       string             `json:"engine_name"`
	EngineVersion    string             `json:"engine_version"`
	Method           string             `json:"method"`
	TokenFormat      string             `json:"token_format"`
	SaltFingerprint  string             `json:"salt_fingerprint,omitempty"` // sha256:<hex>, comparable across packs without revealing the salt
	RedactionCount   int                `json:"redaction_count"`
	RedactionsByType map[string]int     `json:"redactions_by_type"`
	InputHash        string             `json:"input_hash"`  // Digest of the canonical results array before sanitization
	OutputHash       string             `json:"output_hash"` // Digest of the canonical results array after sanitization
	AppliedTo        []string           `json:"applied_to"`  // Stage names that actually substituted content, sorted
	Status           SanitizationStatus `json:"status"`
}

// EvidencePack is the in-memory artifact of one document's run. The
// envelope codec reads and writes both schema generations from this one
// representation.
//
// A pack becomes immutable once its chain is built; mutating Results
// afterwards invalidates verification by construction.
type EvidencePack struct {
	ManifestHash   string
	Runner         string
	RunnerVersion  string
	Timestamp      string
	ChainAlgorithm string
	Results        []ClaimResult
	Chain          []ChainLink // Structured proof view
	HashChain      []string    // Flat chain_hash view; same chain, legacy shape
	RootHash       string
	Sanitization   *SanitizationSummary
}

// NewEvidencePack returns a pack stamped with the current runner identity
// and a second-precision UTC timestamp.
func NewEvidencePack(manifestHash string) *EvidencePack {
	return &EvidencePack{
		ManifestHash:  manifestHash,
		Runner:        RunnerName,
		RunnerVersion: RunnerVersion,
		Timestamp:     time.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
	}
}
