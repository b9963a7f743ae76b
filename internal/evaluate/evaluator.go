// Package evaluate turns manifest claims into verdicts by searching the
// inspected repository for the evidence each claim declares.
package evaluate

import (
	"context"
	"fmt"
	"sync"

	"github.com/guardspine/docsync/internal/manifest"
	"github.com/guardspine/docsync/internal/model"
	"github.com/guardspine/docsync/internal/search"
)

// Evaluator checks claims concurrently against evidence adapters
type Evaluator struct {
	registry   *search.Registry
	maxWorkers int
}

// NewEvaluator creates a new evaluator
func NewEvaluator(registry *search.Registry, maxWorkers int) *Evaluator {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Evaluator{
		registry:   registry,
		maxWorkers: maxWorkers,
	}
}

// EvaluateClaims evaluates all claims of one document concurrently.
// Results come back in manifest order regardless of completion order,
// so the evidence pack sequence is stable across runs.
func (e *Evaluator) EvaluateClaims(ctx context.Context, claims []manifest.ClaimEntry) []model.ClaimResult {
	if len(claims) == 0 {
		return []model.ClaimResult{}
	}

	results := make([]model.ClaimResult, len(claims))
	var wg sync.WaitGroup

	// Semaphore limits concurrent file scans
	semaphore := make(chan struct{}, e.maxWorkers)

	for i, claim := range claims {
		wg.Add(1)
		go func(idx int, c manifest.ClaimEntry) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				results[idx] = skippedResult(c, "context cancelled")
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			results[idx] = e.evaluateClaim(ctx, c)
		}(i, claim)
	}

	wg.Wait()

	return results
}

// evaluateClaim gathers refs from every evidence spec of the claim and
// aggregates them into a verdict. A claim with no specs is skipped; a
// claim whose specs found nothing fails.
func (e *Evaluator) evaluateClaim(ctx context.Context, claim manifest.ClaimEntry) model.ClaimResult {
	refs := []model.EvidenceRef{}
	for _, spec := range claim.Evidence {
		searcher := e.registry.Find(spec.Type)
		if searcher == nil {
			// Unknown evidence type contributes no refs
			continue
		}
		found, err := searcher.Search(ctx, spec.Pattern, spec.Scope)
		if err != nil {
			return skippedResult(claim, fmt.Sprintf("evidence search failed: %v", err))
		}
		refs = append(refs, found...)
	}

	matched := 0
	for _, ref := range refs {
		if ref.Matched {
			matched++
		}
	}

	var status model.ClaimStatus
	var message string
	switch {
	case len(claim.Evidence) == 0:
		status = model.StatusSkip
		message = "no evidence specs defined"
	case matched > 0:
		status = model.StatusPass
		message = fmt.Sprintf("%d/%d evidence found", matched, len(refs))
	default:
		status = model.StatusFail
		message = "no matching evidence found"
	}

	return model.ClaimResult{
		ClaimID:   claim.ID,
		ClaimText: claim.Text,
		Status:    status,
		Evidence:  refs,
		Message:   message,
	}
}

func skippedResult(claim manifest.ClaimEntry, message string) model.ClaimResult {
	return model.ClaimResult{
		ClaimID:   claim.ID,
		ClaimText: claim.Text,
		Status:    model.StatusSkip,
		Evidence:  []model.EvidenceRef{},
		Message:   message,
	}
}
