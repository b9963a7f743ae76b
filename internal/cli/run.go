package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/guardspine/docsync/internal/manifest"
	"github.com/guardspine/docsync/internal/model"
	"github.com/guardspine/docsync/internal/pack"
	"github.com/guardspine/docsync/internal/runner"
	"github.com/guardspine/docsync/internal/sanitize"
)

var (
	manifestPath     string
	repoRoot         string
	outputDir        string
	runTimeout       time.Duration
	docWorkers       int
	claimWorkers     int
	sanitizeEngine   string
	sanitizeEndpoint string
	sanitizeModel    string
	failClosed       bool
	saltFingerprint  string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Verify manifest claims and write sealed evidence packs",
	Long: `Run verifies every claim in the manifest against the repository:
- Search source and documentation files for declared evidence
- Redact PII from findings when a sanitizer engine is configured
- Seal per-document results into hash-chained evidence packs

Example:
  docsync run
  docsync run --manifest guardspine.docs.yaml --repo . --output ./packs
  docsync run --sanitize shield --sanitize-endpoint http://localhost:8787
  docsync run --sanitize openai --fail-closed`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Input flags
	runCmd.Flags().StringVar(&manifestPath, "manifest", "guardspine.docs.yaml", "claims manifest path")
	runCmd.Flags().StringVar(&repoRoot, "repo", ".", "repository root to verify against")
	runCmd.Flags().StringVar(&outputDir, "output", ".", "evidence pack output directory")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 2*time.Minute, "overall run timeout")

	// Concurrency flags
	runCmd.Flags().IntVar(&docWorkers, "doc-workers", 4, "concurrent documents")
	runCmd.Flags().IntVar(&claimWorkers, "claim-workers", 8, "concurrent claim evaluations per document")

	// Sanitizer flags
	runCmd.Flags().StringVar(&sanitizeEngine, "sanitize", "", "PII sanitizer engine (shield, openai, none)")
	runCmd.Flags().StringVar(&sanitizeEndpoint, "sanitize-endpoint", "", "PII-Shield endpoint URL")
	runCmd.Flags().StringVar(&sanitizeModel, "sanitize-model", "gpt-4o-mini", "model name for the openai engine")
	runCmd.Flags().BoolVar(&failClosed, "fail-closed", false, "abort a document's run when sanitization fails")
	runCmd.Flags().StringVar(&saltFingerprint, "salt-fingerprint", "", "redaction salt fingerprint recorded in packs")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	logger := newLogger()

	m, manifestText, err := loadManifest(manifestPath)
	if err != nil {
		return err
	}

	cfg := buildConfig(cmd)
	if err := resolveAPIKey(&cfg.Sanitize); err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Repository: %s\n", repoRoot)
		fmt.Fprintf(os.Stderr, "Manifest:   %s (%d claims)\n", manifestPath, m.ClaimCount())
		if engine := cfg.Sanitize.Engine; engine != "" && engine != "none" {
			fmt.Fprintf(os.Stderr, "Sanitizer:  %s\n", engine)
		}
		fmt.Fprintln(os.Stderr)
	}

	r, err := runner.New(runner.Config{
		RepoRoot:     repoRoot,
		ManifestText: manifestText,
		DocWorkers:   cfg.Run.DocWorkers,
		ClaimWorkers: cfg.Run.ClaimWorkers,
		Sanitize:     sanitize.ConfigFromModel(cfg.Sanitize),
	}, logger)
	if err != nil {
		return err
	}

	packs, err := r.Run(ctx, m)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	return writePacks(packs, cfg.Run.Output)
}

// loadManifest reads, parses, and validates the manifest, reporting
// problems on stderr itself. Callers pass the returned error up
// unchanged.
func loadManifest(path string) (*manifest.DocManifest, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "ERROR: manifest not found: %s\n", path)
			return nil, nil, ErrSilent
		}
		return nil, nil, fmt.Errorf("read manifest: %w", err)
	}

	m, err := manifest.Parse(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR: manifest must be valid JSON or YAML")
		return nil, nil, ErrSilent
	}

	if err := m.Check(); err != nil {
		var vErr *manifest.ValidationError
		if errors.As(err, &vErr) {
			fmt.Fprintln(os.Stderr, "Manifest validation errors:")
			for _, problem := range vErr.Problems {
				fmt.Fprintf(os.Stderr, "  - %s\n", problem)
			}
			return nil, nil, ErrSilent
		}
		return nil, nil, err
	}

	return m, data, nil
}

// buildConfig assembles the effective configuration: defaults, then
// config file and environment, then explicitly changed flags.
func buildConfig(cmd *cobra.Command) *model.Config {
	cfg := model.DefaultConfig()
	configOverrides(cfg)

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Run.Output = outputDir
	}
	if flags.Changed("doc-workers") {
		cfg.Run.DocWorkers = docWorkers
	}
	if flags.Changed("claim-workers") {
		cfg.Run.ClaimWorkers = claimWorkers
	}
	if flags.Changed("sanitize") {
		cfg.Sanitize.Engine = sanitizeEngine
	}
	if flags.Changed("sanitize-endpoint") {
		cfg.Sanitize.Endpoint = sanitizeEndpoint
	}
	if flags.Changed("sanitize-model") {
		cfg.Sanitize.Model = sanitizeModel
	}
	if flags.Changed("fail-closed") {
		cfg.Sanitize.FailClosed = failClosed
	}
	if flags.Changed("salt-fingerprint") {
		cfg.Sanitize.SaltFingerprint = saltFingerprint
	}
	return cfg
}

// resolveAPIKey fills the engine credential from the environment. The
// openai engine requires one; PII-Shield instances often run without
// authentication, so its key stays optional.
func resolveAPIKey(cfg *model.SanitizeConfig) error {
	switch strings.ToLower(cfg.Engine) {
	case "shield", "pii-shield":
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("SHIELD_API_KEY")
		}
	case "openai":
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	return nil
}

// writePacks encodes each pack to evidence-pack-<i>.json under dir and
// prints the claim totals. Any failing claim makes the command exit
// nonzero.
func writePacks(packs []*model.EvidencePack, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	var passed, failed, skipped int
	for i, p := range packs {
		data, err := pack.Encode(p)
		if err != nil {
			return fmt.Errorf("encoding pack %d: %w", i, err)
		}

		outPath := filepath.Join(dir, fmt.Sprintf("evidence-pack-%d.json", i))
		if err := os.WriteFile(outPath, data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		fmt.Printf("Wrote %s\n", outPath)

		for _, result := range p.Results {
			switch result.Status {
			case model.StatusPass:
				passed++
			case model.StatusFail:
				failed++
			case model.StatusSkip:
				skipped++
			}
		}
	}

	fmt.Printf("\nResults: %d pass, %d fail, %d skip\n", passed, failed, skipped)
	if failed > 0 {
		return ErrSilent
	}
	return nil
}
