// Package runner orchestrates a full doc-sync run: evaluate every claim
// in the manifest, sanitize the results, and seal one evidence pack per
// document.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/guardspine/docsync/internal/cache"
	"github.com/guardspine/docsync/internal/chain"
	"github.com/guardspine/docsync/internal/evaluate"
	"github.com/guardspine/docsync/internal/manifest"
	"github.com/guardspine/docsync/internal/model"
	"github.com/guardspine/docsync/internal/sanitize"
	"github.com/guardspine/docsync/internal/search"
	"github.com/guardspine/docsync/internal/worker"
)

// Config holds runner settings
type Config struct {
	RepoRoot     string
	ManifestText []byte // raw manifest bytes, hashed into every pack
	DocWorkers   int    // concurrent documents (default 4)
	ClaimWorkers int    // concurrent claim evaluations per document (default 8)

	Sanitize sanitize.Config
	// Sanitizer overrides the engine Sanitize would build. Tests inject
	// fakes through it.
	Sanitizer sanitize.Sanitizer

	// SearchCache memoizes adapter results between runs over an
	// unchanged tree. Nil disables caching.
	SearchCache cache.Cache
	CacheTTL    time.Duration
}

// Runner walks a manifest and produces evidence packs
type Runner struct {
	evaluator    *evaluate.Evaluator
	coordinator  *sanitize.Coordinator
	manifestHash string
	docWorkers   int
	logger       *slog.Logger
}

// New creates a runner over one repository tree. The manifest text is
// bound at construction: its digest stamps every pack the runner seals.
func New(cfg Config, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DocWorkers <= 0 {
		cfg.DocWorkers = 4
	}

	var registry *search.Registry
	if cfg.SearchCache != nil {
		registry = search.NewCachedRegistry(cfg.RepoRoot, cfg.SearchCache, cfg.CacheTTL)
	} else {
		registry = search.NewRegistry(cfg.RepoRoot)
	}

	sanitizer := cfg.Sanitizer
	if sanitizer == nil {
		var err error
		sanitizer, err = sanitize.New(cfg.Sanitize, logger)
		if err != nil {
			return nil, fmt.Errorf("configuring sanitizer: %w", err)
		}
	}
	var coordinator *sanitize.Coordinator
	if sanitizer != nil {
		coordinator = sanitize.NewCoordinator(sanitizer, cfg.Sanitize, logger)
	}

	return &Runner{
		evaluator:    evaluate.NewEvaluator(registry, cfg.ClaimWorkers),
		coordinator:  coordinator,
		manifestHash: digest.FromBytes(cfg.ManifestText).String(),
		docWorkers:   cfg.DocWorkers,
		logger:       logger,
	}, nil
}

// Run evaluates every document in the manifest and returns one sealed
// pack per document, in manifest order. A fail-closed sanitization
// error aborts the whole run.
func (r *Runner) Run(ctx context.Context, m *manifest.DocManifest) ([]*model.EvidencePack, error) {
	start := time.Now()
	r.logger.Info("starting doc-sync run",
		"docs", len(m.Docs),
		"claims", m.ClaimCount(),
	)

	results := worker.ProcessDocs(ctx, r, m.Docs, r.docWorkers)

	packs := make([]*model.EvidencePack, 0, len(results))
	for _, result := range results {
		if result.Error != nil {
			return nil, fmt.Errorf("processing %s: %w", result.Path, result.Error)
		}
		packs = append(packs, result.Pack)
	}

	r.logger.Info("run complete",
		"packs", len(packs),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return packs, nil
}

// ProcessDoc runs the pipeline for a single document. Sanitization
// happens before sealing so the chain covers the redacted content, never
// the originals.
func (r *Runner) ProcessDoc(ctx context.Context, doc manifest.DocEntry) (*model.EvidencePack, error) {
	results := r.evaluator.EvaluateClaims(ctx, doc.Claims)

	pack := model.NewEvidencePack(r.manifestHash)

	if r.coordinator != nil {
		summary, err := r.coordinator.Apply(ctx, results)
		if err != nil {
			return nil, err
		}
		pack.Sanitization = summary
	}

	pack.Results = results
	if err := chain.Seal(pack); err != nil {
		return nil, fmt.Errorf("sealing %s: %w", doc.Path, err)
	}

	r.logger.Debug("document processed",
		"doc", doc.Path,
		"claims", len(results),
	)
	return pack, nil
}
