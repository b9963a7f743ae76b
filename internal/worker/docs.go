package worker

import (
	"context"

	"github.com/guardspine/docsync/internal/manifest"
	"github.com/guardspine/docsync/internal/model"
)

// DocProcessor turns one manifest document into an evidence pack
type DocProcessor interface {
	ProcessDoc(ctx context.Context, doc manifest.DocEntry) (*model.EvidencePack, error)
}

// DocJob represents a single-document processing job
type DocJob struct {
	Doc       manifest.DocEntry
	Processor DocProcessor
}

// Execute executes the document job
func (j *DocJob) Execute(ctx context.Context) Result {
	pack, err := j.Processor.ProcessDoc(ctx, j.Doc)
	return &DocResult{
		Path:  j.Doc.Path,
		Pack:  pack,
		Error: err,
	}
}

// DocResult represents the outcome of processing one document
type DocResult struct {
	Path  string
	Pack  *model.EvidencePack
	Error error
}

// GetError returns the error from the document result
func (r *DocResult) GetError() error {
	return r.Error
}

// ProcessDocs processes manifest documents concurrently and returns
// their results in manifest order, one per document.
func ProcessDocs(ctx context.Context, processor DocProcessor, docs []manifest.DocEntry, concurrency int) []*DocResult {
	if len(docs) == 0 {
		return []*DocResult{}
	}

	pool := NewPool(ctx, concurrency)
	pool.Start()

	for _, doc := range docs {
		pool.Submit(&DocJob{
			Doc:       doc,
			Processor: processor,
		})
	}

	results := pool.Wait()

	docResults := make([]*DocResult, len(results))
	for i, result := range results {
		if result == nil {
			// The context cancelled this job before a worker got to it
			docResults[i] = &DocResult{Path: docs[i].Path, Error: ctx.Err()}
			continue
		}
		docResults[i] = result.(*DocResult)
	}

	return docResults
}
