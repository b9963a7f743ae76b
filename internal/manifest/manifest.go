// Package manifest loads and validates guardspine.docs.yaml, the file
// that registers documents and the claims they make about the code.
package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Sync modes decide which side is authoritative when a claim fails
const (
	ModeSpecFirst    = "spec-first"    // the document wins, code should change
	ModeRealityFirst = "reality-first" // the code wins, the document should change
)

// EvidenceSpec says where to look for evidence of a claim
type EvidenceSpec struct {
	Type    string `yaml:"type" json:"type"`                       // "code" | "markdown"
	Pattern string `yaml:"pattern" json:"pattern"`                 // regex or literal to search for
	Scope   string `yaml:"scope,omitempty" json:"scope,omitempty"` // directory or file scope (empty = whole repo)
}

// ClaimEntry is a claim declared in the manifest
type ClaimEntry struct {
	ID       string         `yaml:"id" json:"id"`
	Text     string         `yaml:"text" json:"text"`
	Evidence []EvidenceSpec `yaml:"evidence,omitempty" json:"evidence,omitempty"`
}

// DocEntry is a single document registered in the manifest
type DocEntry struct {
	Path   string       `yaml:"path" json:"path"`
	Mode   string       `yaml:"mode" json:"mode"`
	Claims []ClaimEntry `yaml:"claims,omitempty" json:"claims,omitempty"`
}

// DocManifest is the top-level manifest
type DocManifest struct {
	Version string     `yaml:"version" json:"version"`
	Docs    []DocEntry `yaml:"docs" json:"docs"`
}

// Parse decodes manifest text and fills in defaults. YAML is a superset
// of the JSON manifests the tool also accepts, so one decoder covers
// both formats.
func Parse(data []byte) (*DocManifest, error) {
	var m DocManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	applyDefaults(&m)
	return &m, nil
}

func applyDefaults(m *DocManifest) {
	if m.Version == "" {
		m.Version = "1.0"
	}
	for i := range m.Docs {
		doc := &m.Docs[i]
		if doc.Mode == "" {
			doc.Mode = ModeSpecFirst
		}
		for j := range doc.Claims {
			evidence := doc.Claims[j].Evidence
			for k := range evidence {
				if evidence[k].Type == "" {
					evidence[k].Type = "code"
				}
			}
		}
	}
}

// ValidationError reports an invalid manifest. Problems holds every
// issue Validate found, in document order, so callers can show the
// complete list instead of fixing one problem per run.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("manifest has %d validation problem(s)", len(e.Problems))
}

// Check validates the manifest and returns a *ValidationError when any
// problem is found.
func (m *DocManifest) Check() error {
	if problems := Validate(m); len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Validate returns every problem found in the manifest. An empty slice
// means the manifest is valid. Claim ids must be unique across the
// whole manifest, not just within one document.
func Validate(m *DocManifest) []string {
	var problems []string
	if m.Version == "" {
		problems = append(problems, "manifest.version is required")
	}
	if len(m.Docs) == 0 {
		problems = append(problems, "manifest.docs must contain at least one entry")
	}

	seen := make(map[string]bool)
	for _, doc := range m.Docs {
		if doc.Path == "" {
			problems = append(problems, "doc entry missing 'path'")
		}
		if doc.Mode != ModeSpecFirst && doc.Mode != ModeRealityFirst {
			problems = append(problems, fmt.Sprintf(
				"doc '%s': mode must be 'spec-first' or 'reality-first', got '%s'", doc.Path, doc.Mode))
		}
		for _, claim := range doc.Claims {
			switch {
			case claim.ID == "":
				problems = append(problems, fmt.Sprintf("doc '%s': claim missing 'id'", doc.Path))
			case seen[claim.ID]:
				problems = append(problems, fmt.Sprintf("duplicate claim id: %s", claim.ID))
			default:
				seen[claim.ID] = true
			}
			if claim.Text == "" {
				problems = append(problems, fmt.Sprintf("doc '%s': claim '%s' missing 'text'", doc.Path, claim.ID))
			}
		}
	}
	return problems
}

// ClaimCount returns the number of claims across all documents
func (m *DocManifest) ClaimCount() int {
	count := 0
	for _, doc := range m.Docs {
		count += len(doc.Claims)
	}
	return count
}
