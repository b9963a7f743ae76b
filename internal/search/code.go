package search

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"

	"github.com/guardspine/docsync/internal/model"
)

var codeExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".go": true, ".rs": true,
	".java": true, ".c": true, ".h": true, ".cpp": true,
}

// CodeSearcher greps source files for evidence patterns. When the line
// scan comes up empty it falls back to matching declared function and
// type names in Go sources, which catches claims phrased against an
// identifier rather than a line of text.
type CodeSearcher struct {
	root string
}

// NewCodeSearcher creates a code adapter rooted at the repo root
func NewCodeSearcher(root string) *CodeSearcher {
	return &CodeSearcher{root: root}
}

// Name returns the adapter name
func (s *CodeSearcher) Name() string {
	return "code"
}

// CanHandle checks if this adapter serves the given source type
func (s *CodeSearcher) CanHandle(sourceType string) bool {
	return sourceType == "code"
}

// Search returns refs for code lines matching pattern under scope
func (s *CodeSearcher) Search(ctx context.Context, pattern, scope string) ([]model.EvidenceRef, error) {
	compiled := compilePattern(pattern)

	refs, err := scanLines(ctx, s.root, scope, "code", codeExtensions, compiled)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return s.declSearch(ctx, scope, compiled)
	}
	return refs, nil
}

// declSearch matches declared func/type names in Go files
func (s *CodeSearcher) declSearch(ctx context.Context, scope string, compiled *regexp.Regexp) ([]model.EvidenceRef, error) {
	var refs []model.EvidenceRef
	err := forEachFile(ctx, s.root, scope, map[string]bool{".go": true}, func(path string) {
		refs = append(refs, s.declsInFile(path, compiled)...)
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func (s *CodeSearcher) declsInFile(path string, compiled *regexp.Regexp) []model.EvidenceRef {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return nil
	}

	rel := relPath(s.root, path)
	var refs []model.EvidenceRef
	ast.Inspect(file, func(n ast.Node) bool {
		var kind, name string
		var pos token.Pos
		switch decl := n.(type) {
		case *ast.FuncDecl:
			kind, name, pos = "func", decl.Name.Name, decl.Pos()
		case *ast.TypeSpec:
			kind, name, pos = "type", decl.Name.Name, decl.Pos()
		default:
			return true
		}
		if compiled.MatchString(name) {
			refs = append(refs, model.NewEvidenceRef(
				"code", rel, fset.Position(pos).Line, fmt.Sprintf("%s %s", kind, name), true))
		}
		return true
	})
	return refs
}
