// Package search locates evidence for claims by scanning the inspected
// repository. Adapters are read-only: they open files under the repo
// root and never write anything.
package search

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/guardspine/docsync/internal/model"
)

// maxPatternLen rejects oversized regex patterns to mitigate ReDoS
const maxPatternLen = 1000

// Searcher defines the interface for evidence source adapters
type Searcher interface {
	// Name returns the adapter name
	Name() string

	// CanHandle checks if this adapter serves the given evidence source type
	CanHandle(sourceType string) bool

	// Search returns refs for every location matching pattern under
	// scope, relative to the adapter's repo root
	Search(ctx context.Context, pattern, scope string) ([]model.EvidenceRef, error)
}

// Registry manages source adapters
type Registry struct {
	searchers []Searcher
}

// NewRegistry creates a registry with the built-in adapters for a repo root
func NewRegistry(root string) *Registry {
	registry := &Registry{}
	registry.Register(NewCodeSearcher(root))
	registry.Register(NewMarkdownSearcher(root))
	return registry
}

// Register registers an adapter
func (r *Registry) Register(s Searcher) {
	r.searchers = append(r.searchers, s)
}

// Find returns the adapter for a source type, or nil when no adapter
// handles it. An unrecognized evidence type simply yields no refs.
func (r *Registry) Find(sourceType string) Searcher {
	for _, s := range r.searchers {
		if s.CanHandle(sourceType) {
			return s
		}
	}
	return nil
}

// compilePattern compiles a search pattern, degrading to a literal
// match when the pattern is oversized or not a valid regex.
func compilePattern(pattern string) *regexp.Regexp {
	if len(pattern) > maxPatternLen {
		pattern = regexp.QuoteMeta(pattern[:maxPatternLen])
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		compiled = regexp.MustCompile(regexp.QuoteMeta(pattern))
	}
	return compiled
}

// forEachFile visits every file under repoRoot/scope whose extension is
// in exts. A missing scope root visits nothing; unreadable entries are
// skipped. Walk order is lexical, so results are deterministic.
func forEachFile(ctx context.Context, repoRoot, scope string, exts map[string]bool, visit func(path string)) error {
	root := repoRoot
	if scope != "" {
		root = filepath.Join(repoRoot, scope)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil
	}
	if !info.IsDir() {
		if exts[filepath.Ext(root)] {
			visit(root)
		}
		return nil
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.IsDir() && exts[filepath.Ext(path)] {
			visit(path)
		}
		return nil
	})
}

// scanLines greps the matching files line by line and returns one ref
// per matching line, 1-based.
func scanLines(ctx context.Context, repoRoot, scope, sourceType string, exts map[string]bool, compiled *regexp.Regexp) ([]model.EvidenceRef, error) {
	var refs []model.EvidenceRef
	err := forEachFile(ctx, repoRoot, scope, exts, func(path string) {
		refs = append(refs, scanFile(repoRoot, path, sourceType, compiled)...)
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func scanFile(repoRoot, path, sourceType string, compiled *regexp.Regexp) []model.EvidenceRef {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var refs []model.EvidenceRef
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if compiled.MatchString(line) {
			refs = append(refs, model.NewEvidenceRef(
				sourceType, relPath(repoRoot, path), i+1, strings.TrimSpace(line), true))
		}
	}
	return refs
}

// relPath makes path relative to root with forward slashes, so refs
// compare equal across platforms.
func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
