package search

import (
	"bytes"
	"context"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/guardspine/docsync/internal/model"
)

var (
	markdownExtensions = map[string]bool{".md": true, ".markdown": true, ".rst": true, ".txt": true}
	htmlExtensions     = map[string]bool{".html": true, ".htm": true}
)

// MarkdownSearcher greps documentation files for evidence patterns.
// Plain-text formats are scanned line by line; HTML documents are
// reduced to their visible text first, so markup never matches. For
// HTML refs the line number indexes visible text chunks, not raw
// source lines.
type MarkdownSearcher struct {
	root string
}

// NewMarkdownSearcher creates a docs adapter rooted at the repo root
func NewMarkdownSearcher(root string) *MarkdownSearcher {
	return &MarkdownSearcher{root: root}
}

// Name returns the adapter name
func (s *MarkdownSearcher) Name() string {
	return "markdown"
}

// CanHandle checks if this adapter serves the given source type
func (s *MarkdownSearcher) CanHandle(sourceType string) bool {
	return sourceType == "markdown"
}

// Search returns refs for doc content matching pattern under scope
func (s *MarkdownSearcher) Search(ctx context.Context, pattern, scope string) ([]model.EvidenceRef, error) {
	compiled := compilePattern(pattern)

	refs, err := scanLines(ctx, s.root, scope, "markdown", markdownExtensions, compiled)
	if err != nil {
		return nil, err
	}

	err = forEachFile(ctx, s.root, scope, htmlExtensions, func(path string) {
		refs = append(refs, s.scanHTML(path, compiled)...)
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func (s *MarkdownSearcher) scanHTML(path string, compiled *regexp.Regexp) []model.EvidenceRef {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	rel := relPath(s.root, path)
	var refs []model.EvidenceRef
	for i, chunk := range visibleChunks(doc) {
		if compiled.MatchString(chunk) {
			refs = append(refs, model.NewEvidenceRef("markdown", rel, i+1, chunk, true))
		}
	}
	return refs
}

// visibleChunks collects trimmed text nodes, skipping scripts/styles
func visibleChunks(n *html.Node) []string {
	var chunks []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}

		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				chunks = append(chunks, text)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return chunks
}
