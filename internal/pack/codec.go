// Package pack reads and writes the evidence-pack envelope. One in-memory
// representation (model.EvidencePack) backs two schema generations: the
// legacy flat results/hash_chain shape and the richer items/proof shape.
// Writing always emits the superset; reading picks a strategy by field
// presence and rejects structurally invalid input outright.
package pack

import (
	"encoding/json"
	"strings"

	"github.com/guardspine/docsync/internal/chain"
	"github.com/guardspine/docsync/internal/model"
)

// Envelope format versions. The sanitized variant signals that a
// sanitization summary is present.
const (
	FormatVersion          = "0.2.0"
	FormatVersionSanitized = "0.2.1"
)

type envelope struct {
	Version        string                     `json:"version"`
	ManifestHash   string                     `json:"manifest_hash"`
	Runner         string                     `json:"runner"`
	RunnerVersion  string                     `json:"runner_version"`
	Timestamp      string                     `json:"timestamp"`
	ChainAlgorithm string                     `json:"chain_algorithm,omitempty"`
	Items          []model.PackItem           `json:"items"`
	Proof          *model.ImmutabilityProof   `json:"immutability_proof,omitempty"`
	Results        []model.ClaimResult        `json:"results"`
	HashChain      []string                   `json:"hash_chain"`
	Sanitization   *model.SanitizationSummary `json:"sanitization,omitempty"`
}

// Encode serializes p as an indented JSON envelope. An unsealed v2 pack
// with results is sealed first, mirroring how the artifact is always
// written chain-complete; a decoded v1 pack passes through untouched so
// re-encoding never silently re-chains an old artifact.
func Encode(p *model.EvidencePack) ([]byte, error) {
	if len(p.Chain) == 0 && len(p.Results) > 0 && p.ChainAlgorithm != chain.AlgorithmV1 {
		if err := chain.Seal(p); err != nil {
			return nil, err
		}
	}

	version := FormatVersion
	if p.Sanitization != nil {
		version = FormatVersionSanitized
	}
	algorithm := p.ChainAlgorithm
	if algorithm == "" {
		algorithm = chain.AlgorithmV2
	}

	items := make([]model.PackItem, len(p.Chain))
	for i, link := range p.Chain {
		items[i] = model.PackItem{
			ItemID:      link.ItemID,
			Sequence:    link.Sequence,
			ContentType: link.ContentType,
			Content:     p.Results[i],
			ContentHash: link.ContentHash,
		}
	}

	results := p.Results
	if results == nil {
		results = []model.ClaimResult{}
	}
	flat := p.HashChain
	if flat == nil {
		flat = []string{}
	}

	var proof *model.ImmutabilityProof
	if algorithm != chain.AlgorithmV1 {
		proof = &model.ImmutabilityProof{HashChain: p.Chain, RootHash: p.RootHash}
	}

	env := envelope{
		Version:        version,
		ManifestHash:   p.ManifestHash,
		Runner:         p.Runner,
		RunnerVersion:  p.RunnerVersion,
		Timestamp:      p.Timestamp,
		ChainAlgorithm: algorithm,
		Items:          items,
		Proof:          proof,
		Results:        results,
		HashChain:      flat,
		Sanitization:   p.Sanitization,
	}
	return json.MarshalIndent(env, "", "  ")
}

// decodeEnvelope keeps result content loosely typed so it can be pushed
// through the strict decoder instead of silently coerced by struct tags.
type decodeEnvelope struct {
	Version        string                     `json:"version"`
	ManifestHash   *string                    `json:"manifest_hash"`
	Runner         string                     `json:"runner"`
	RunnerVersion  string                     `json:"runner_version"`
	Timestamp      string                     `json:"timestamp"`
	ChainAlgorithm string                     `json:"chain_algorithm"`
	Items          []decodeItem               `json:"items"`
	Proof          *model.ImmutabilityProof   `json:"immutability_proof"`
	Results        []any                      `json:"results"`
	HashChain      []string                   `json:"hash_chain"`
	Sanitization   *model.SanitizationSummary `json:"sanitization"`
}

type decodeItem struct {
	ItemID      string `json:"item_id"`
	Sequence    int    `json:"sequence"`
	ContentType string `json:"content_type"`
	Content     any    `json:"content"`
	ContentHash string `json:"content_hash"`
}

// Decode parses an envelope of either schema generation. Results come
// from the flat array when it is non-empty, otherwise from the per-item
// content; either way every result passes the strict decoder. The flat
// chain view is rebuilt from the proof when the legacy field is absent so
// verification always has both representations.
func Decode(data []byte) (*model.EvidencePack, error) {
	var env decodeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &model.DecodeError{Reason: "invalid pack JSON: " + err.Error()}
	}
	if env.ManifestHash == nil {
		return nil, &model.DecodeError{Field: "manifest_hash", Reason: "missing required key 'manifest_hash'"}
	}

	results, err := decodeResults(env)
	if err != nil {
		return nil, err
	}

	flat := env.HashChain
	var links []model.ChainLink
	rootHash := ""
	if env.Proof != nil {
		links = env.Proof.HashChain
		rootHash = env.Proof.RootHash
		if len(flat) == 0 {
			flat = chain.FlatView(links)
		}
	}

	p := &model.EvidencePack{
		ManifestHash:   *env.ManifestHash,
		Runner:         env.Runner,
		RunnerVersion:  env.RunnerVersion,
		Timestamp:      env.Timestamp,
		ChainAlgorithm: inferAlgorithm(env),
		Results:        results,
		Chain:          links,
		HashChain:      flat,
		RootHash:       rootHash,
		Sanitization:   env.Sanitization,
	}
	if p.Runner == "" {
		p.Runner = model.RunnerName
	}
	if p.RunnerVersion == "" {
		p.RunnerVersion = model.RunnerVersion
	}
	return p, nil
}

func decodeResults(env decodeEnvelope) ([]model.ClaimResult, error) {
	if len(env.Results) > 0 {
		results := make([]model.ClaimResult, 0, len(env.Results))
		for _, raw := range env.Results {
			result, err := model.DecodeClaimResult(raw)
			if err != nil {
				return nil, err
			}
			results = append(results, result)
		}
		return results, nil
	}

	results := make([]model.ClaimResult, 0, len(env.Items))
	for _, item := range env.Items {
		result, err := model.DecodeClaimResult(item.Content)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// inferAlgorithm pins untagged artifacts to the algorithm of their era:
// any versioned envelope is genesis-seeded, a version-less one predates
// the proof section and verifies under the manifest-seeded convention.
func inferAlgorithm(env decodeEnvelope) string {
	if env.ChainAlgorithm != "" {
		return env.ChainAlgorithm
	}
	if strings.TrimSpace(env.Version) != "" || env.Proof != nil || len(env.Items) > 0 {
		return chain.AlgorithmV2
	}
	return chain.AlgorithmV1
}
