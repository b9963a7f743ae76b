package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/guardspine/docsync/internal/cache"
	"github.com/guardspine/docsync/internal/model"
	"github.com/guardspine/docsync/internal/runner"
	"github.com/guardspine/docsync/internal/sanitize"
	"github.com/guardspine/docsync/internal/watch"
)

var debounce time.Duration

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run verification whenever the repository changes",
	Long: `Watch monitors the repository and re-runs verification after each burst
of file changes settles. The manifest is re-read on every run, so edits
to it take effect immediately. The search cache is flushed on change so
results always reflect the tree on disk.

Writes under the output directory are ignored; a run never triggers the
next one.

Example:
  docsync watch
  docsync watch --debounce 2s --output ./packs`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	// Input flags
	watchCmd.Flags().StringVar(&manifestPath, "manifest", "guardspine.docs.yaml", "claims manifest path")
	watchCmd.Flags().StringVar(&repoRoot, "repo", ".", "repository root to verify against")
	watchCmd.Flags().StringVar(&outputDir, "output", ".", "evidence pack output directory")
	watchCmd.Flags().DurationVar(&runTimeout, "timeout", 2*time.Minute, "timeout for each verification run")
	watchCmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before a re-run")

	// Concurrency flags
	watchCmd.Flags().IntVar(&docWorkers, "doc-workers", 4, "concurrent documents")
	watchCmd.Flags().IntVar(&claimWorkers, "claim-workers", 8, "concurrent claim evaluations per document")

	// Sanitizer flags
	watchCmd.Flags().StringVar(&sanitizeEngine, "sanitize", "", "PII sanitizer engine (shield, openai, none)")
	watchCmd.Flags().StringVar(&sanitizeEndpoint, "sanitize-endpoint", "", "PII-Shield endpoint URL")
	watchCmd.Flags().StringVar(&sanitizeModel, "sanitize-model", "gpt-4o-mini", "model name for the openai engine")
	watchCmd.Flags().BoolVar(&failClosed, "fail-closed", false, "abort a document's run when sanitization fails")
	watchCmd.Flags().StringVar(&saltFingerprint, "salt-fingerprint", "", "redaction salt fingerprint recorded in packs")
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg := buildConfig(cmd)
	if cmd.Flags().Changed("debounce") {
		cfg.Watch.Debounce = debounce
	}
	if err := resolveAPIKey(&cfg.Sanitize); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Shared across runs so identical queries over an unchanged tree hit
	// the cache; flushed whenever the tree changes
	store := cache.NewMemoryCache(cfg.Watch.CacheTTL, cfg.Watch.CacheTTL)

	absOutput, err := filepath.Abs(cfg.Run.Output)
	if err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}

	w, err := watch.New(repoRoot, []string{absOutput}, cfg.Watch.Debounce, logger)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Close()
	w.Start(ctx)

	fmt.Fprintf(os.Stderr, "Watching %s (debounce %v, Ctrl+C to stop)\n", repoRoot, cfg.Watch.Debounce)

	// Failing claims and manifest problems are already reported; the
	// watch stays alive so the next edit gets a fresh verdict
	runAndReport := func() {
		err := watchRunOnce(ctx, cfg, store, logger)
		switch {
		case err == nil, errors.Is(err, ErrSilent):
		case ctx.Err() != nil:
			// Shutdown raced the run
		default:
			logger.Error("verification run failed", "error", err)
		}
	}

	runAndReport()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "Stopping watch")
			return nil
		case <-w.Changes():
			logger.Info("change detected, re-running verification")
			if err := store.Clear(); err != nil {
				logger.Warn("failed to flush search cache", "error", err)
			}
			runAndReport()
		}
	}
}

// watchRunOnce performs a single verification pass against the current
// tree, re-reading the manifest first
func watchRunOnce(ctx context.Context, cfg *model.Config, store cache.Cache, logger *slog.Logger) error {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	m, manifestText, err := loadManifest(manifestPath)
	if err != nil {
		return err
	}

	r, err := runner.New(runner.Config{
		RepoRoot:     repoRoot,
		ManifestText: manifestText,
		DocWorkers:   cfg.Run.DocWorkers,
		ClaimWorkers: cfg.Run.ClaimWorkers,
		Sanitize:     sanitize.ConfigFromModel(cfg.Sanitize),
		SearchCache:  store,
		CacheTTL:     cfg.Watch.CacheTTL,
	}, logger)
	if err != nil {
		return err
	}

	packs, err := r.Run(runCtx, m)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	return writePacks(packs, cfg.Run.Output)
}
