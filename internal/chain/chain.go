package chain

import (
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/guardspine/docsync/internal/model"
)

// Genesis seeds the first link of a v2 chain. It is a fixed sentinel, not
// a hash, so link 0 is verifiable without any out-of-band input.
const Genesis = "genesis"

// ContentTypeClaimResult tags chain links over claim results
const ContentTypeClaimResult = "claim_result"

// Chain algorithm identifiers pinned into every envelope. v1 seeded the
// chain with the manifest hash and hashed whole spaced-JSON entries; v2
// is the genesis-seeded link scheme below. Old artifacts stay verifiable
// under their pinned algorithm.
const (
	AlgorithmV1 = "v1"
	AlgorithmV2 = "v2"
)

// IntegrityError reports a failed chain verification. Index is -1 for
// failures that are not tied to a single link (length or root mismatch).
type IntegrityError struct {
	Index    int
	Expected string
	Actual   string
	Reason   string
}

func (e *IntegrityError) Error() string { return e.Reason }

func lengthMismatch(chainLen, resultsLen int) *IntegrityError {
	return &IntegrityError{
		Index:  -1,
		Reason: fmt.Sprintf("chain length (%d) != results length (%d)", chainLen, resultsLen),
	}
}

func hashMismatch(index int, expected, actual string) *IntegrityError {
	return &IntegrityError{
		Index:    index,
		Expected: expected,
		Actual:   actual,
		Reason:   fmt.Sprintf("hash mismatch at index %d: expected %s, got %s", index, expected, actual),
	}
}

// Build computes the v2 chain over results in order and returns the links
// plus the root hash. For each index i the result content is canonicalized
// and hashed, then the link hash covers
// (i | claim-<i> | content_type | content_hash | previous_hash), where
// link 0's previous hash is the genesis sentinel. The root is the digest
// of all link hashes concatenated in order; zero results yield an empty
// chain and the digest of the empty string.
func Build(results []model.ClaimResult) ([]model.ChainLink, string, error) {
	links := make([]model.ChainLink, 0, len(results))
	prev := Genesis
	var concat strings.Builder

	for i, result := range results {
		canon, err := Canonical(result)
		if err != nil {
			return nil, "", fmt.Errorf("chain build at index %d: %w", i, err)
		}
		contentHash := digest.FromBytes(canon).String()
		itemID := fmt.Sprintf("claim-%d", i)
		material := fmt.Sprintf("%d|%s|%s|%s|%s", i, itemID, ContentTypeClaimResult, contentHash, prev)
		chainHash := digest.FromString(material).String()

		links = append(links, model.ChainLink{
			Sequence:     i,
			ItemID:       itemID,
			ContentType:  ContentTypeClaimResult,
			ContentHash:  contentHash,
			PreviousHash: prev,
			ChainHash:    chainHash,
		})
		concat.WriteString(chainHash)
		prev = chainHash
	}

	root := digest.FromString(concat.String()).String()
	return links, root, nil
}

// BuildLegacy computes a v1 flat chain: each entry hashes the previous
// link (manifest hash for the first) joined with the spaced sorted-key
// JSON of the result. Kept only so artifacts written under the old
// convention remain verifiable.
func BuildLegacy(manifestHash string, results []model.ClaimResult) ([]string, error) {
	chain := make([]string, 0, len(results))
	prev := manifestHash
	for i, result := range results {
		entry, err := LegacyJSON(result)
		if err != nil {
			return nil, fmt.Errorf("legacy chain build at index %d: %w", i, err)
		}
		link := digest.FromString(prev + "|" + string(entry)).String()
		chain = append(chain, link)
		prev = link
	}
	return chain, nil
}

// FlatView projects the structured links onto the legacy flat shape
func FlatView(links []model.ChainLink) []string {
	flat := make([]string, len(links))
	for i, link := range links {
		flat[i] = link.ChainHash
	}
	return flat
}

// Seal freezes p: it builds the v2 chain over p.Results and attaches both
// views plus the root hash. Results must not be mutated afterwards.
func Seal(p *model.EvidencePack) error {
	links, root, err := Build(p.Results)
	if err != nil {
		return err
	}
	p.Chain = links
	p.HashChain = FlatView(links)
	p.RootHash = root
	p.ChainAlgorithm = AlgorithmV2
	return nil
}

// Verify recomputes p's chain independently from its results and compares
// it against every stored view. It returns (true, "ok") on success or
// (false, reason) naming the first divergence. Verification is pure: the
// pack is never mutated.
func Verify(p *model.EvidencePack) (bool, string) {
	if err := Check(p); err != nil {
		return false, err.Error()
	}
	return true, "ok"
}

// Check is Verify with a typed error: nil on success, *IntegrityError on
// the first divergence.
func Check(p *model.EvidencePack) error {
	switch p.ChainAlgorithm {
	case AlgorithmV1:
		return checkV1(p)
	case "", AlgorithmV2:
		return checkV2(p)
	default:
		return &IntegrityError{
			Index:  -1,
			Reason: fmt.Sprintf("unknown chain algorithm %q", p.ChainAlgorithm),
		}
	}
}

func checkV2(p *model.EvidencePack) error {
	// Zero results with no stored chain verifies trivially.
	if len(p.Results) == 0 && len(p.HashChain) == 0 && len(p.Chain) == 0 {
		return nil
	}

	recomputed, root, err := Build(p.Results)
	if err != nil {
		return &IntegrityError{Index: -1, Reason: err.Error()}
	}

	flat := p.HashChain
	if len(flat) == 0 && len(p.Chain) > 0 {
		flat = FlatView(p.Chain)
	}
	if len(flat) != len(p.Results) {
		return lengthMismatch(len(flat), len(p.Results))
	}
	for i := range p.Results {
		if flat[i] != recomputed[i].ChainHash {
			return hashMismatch(i, recomputed[i].ChainHash, flat[i])
		}
	}

	if len(p.Chain) > 0 {
		if len(p.Chain) != len(p.Results) {
			return lengthMismatch(len(p.Chain), len(p.Results))
		}
		for i, link := range p.Chain {
			want := recomputed[i]
			if link.ContentHash != want.ContentHash {
				return &IntegrityError{
					Index:    i,
					Expected: want.ContentHash,
					Actual:   link.ContentHash,
					Reason:   fmt.Sprintf("content hash mismatch at index %d: expected %s, got %s", i, want.ContentHash, link.ContentHash),
				}
			}
			if link.PreviousHash != want.PreviousHash {
				if i == 0 {
					return &IntegrityError{
						Index:    0,
						Expected: Genesis,
						Actual:   link.PreviousHash,
						Reason:   "chain link 0: previous hash is not the genesis sentinel",
					}
				}
				return &IntegrityError{
					Index:    i,
					Expected: want.PreviousHash,
					Actual:   link.PreviousHash,
					Reason:   fmt.Sprintf("chain link %d: broken previous hash linkage", i),
				}
			}
			if link.ChainHash != want.ChainHash {
				return hashMismatch(i, want.ChainHash, link.ChainHash)
			}
		}
	}

	if p.RootHash != "" && p.RootHash != root {
		return &IntegrityError{
			Index:    -1,
			Expected: root,
			Actual:   p.RootHash,
			Reason:   fmt.Sprintf("root hash mismatch: expected %s, got %s", root, p.RootHash),
		}
	}
	return nil
}

func checkV1(p *model.EvidencePack) error {
	if len(p.HashChain) != len(p.Results) {
		return lengthMismatch(len(p.HashChain), len(p.Results))
	}
	recomputed, err := BuildLegacy(p.ManifestHash, p.Results)
	if err != nil {
		return &IntegrityError{Index: -1, Reason: err.Error()}
	}
	for i := range recomputed {
		if p.HashChain[i] != recomputed[i] {
			return hashMismatch(i, recomputed[i], p.HashChain[i])
		}
	}
	return nil
}
