package sanitize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	"github.com/opencontainers/go-digest"

	"github.com/guardspine/docsync/internal/chain"
	"github.com/guardspine/docsync/internal/model"
)

// Stage names recorded in a summary's applied_to list
const (
	StageClaimText = "claim_text"
	StageMessage   = "message"
	StageBulk      = "docsync_pack"
)

// Coordinator runs the two sanitization passes over one document's
// results and reduces the per-call outcomes into a single summary. It
// owns the fail-open/fail-closed policy; engines just report errors.
type Coordinator struct {
	sanitizer       Sanitizer
	failClosed      bool
	saltFingerprint string
	logger          *slog.Logger
}

// NewCoordinator creates a coordinator around a sanitizer. A nil
// sanitizer disables sanitization entirely.
func NewCoordinator(sanitizer Sanitizer, config Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		sanitizer:       sanitizer,
		failClosed:      config.FailClosed,
		saltFingerprint: config.SaltFingerprint,
		logger:          logger,
	}
}

// Apply rewrites results in place and returns the summary, or (nil, nil)
// when sanitization is disabled. Must run before the document's chain is
// frozen. A non-nil error means a fail-closed abort: the document gets
// no pack.
//
// Pass one sanitizes each result's claim_text and message as plain text.
// Pass two sanitizes the canonical JSON array of all results as one
// unit, which is the only pass that can reach evidence snippets; its
// output replaces the originals only after the structural-safety checks
// in decodeBulk hold.
func (c *Coordinator) Apply(ctx context.Context, results []model.ClaimResult) (*model.SanitizationSummary, error) {
	if c.sanitizer == nil {
		return nil, nil
	}

	inputHash, err := resultsHash(results)
	if err != nil {
		return nil, err
	}

	state := newRunState()

	for i := range results {
		if err := c.sanitizeField(ctx, &results[i].ClaimText, StageClaimText, state); err != nil {
			return nil, err
		}
		if err := c.sanitizeField(ctx, &results[i].Message, StageMessage, state); err != nil {
			return nil, err
		}
	}

	if err := c.sanitizeBulk(ctx, results, state); err != nil {
		return nil, err
	}

	outputHash, err := resultsHash(results)
	if err != nil {
		return nil, err
	}

	engineName, engineVersion, method := state.engineIdentity(c.sanitizer.Name())
	return &model.SanitizationSummary{
		EngineName:       engineName,
		EngineVersion:    engineVersion,
		Method:           method,
		TokenFormat:      model.DefaultTokenFormat,
		SaltFingerprint:  NormalizeFingerprint(c.saltFingerprint),
		RedactionCount:   state.count,
		RedactionsByType: state.byType,
		InputHash:        inputHash,
		OutputHash:       outputHash,
		AppliedTo:        state.appliedStages(),
		Status:           state.status(),
	}, nil
}

// sanitizeField runs the per-field pass on one text field. Plain-text
// substitution, no structural requirement.
func (c *Coordinator) sanitizeField(ctx context.Context, field *string, stage string, state *runState) error {
	res, err := c.sanitizer.Sanitize(ctx, *field, Options{InputFormat: "text", Purpose: "docsync_pack"})
	if err != nil {
		return c.handleCallError(err, stage, state)
	}

	state.recordSuccess(res)
	if res.Changed {
		*field = res.SanitizedText
		state.applied[stage] = true
		state.anyChanged = true
	}
	return nil
}

// sanitizeBulk runs the bulk pass over the canonical array of results.
// The sanitized content replaces the originals only if it parses back
// into the exact same shape; anything less discards it wholesale.
func (c *Coordinator) sanitizeBulk(ctx context.Context, results []model.ClaimResult, state *runState) error {
	payload, err := chain.Canonical(results)
	if err != nil {
		return err
	}

	res, err := c.sanitizer.Sanitize(ctx, string(payload), Options{
		InputFormat:     "json",
		Purpose:         "docsync_pack",
		IncludeFindings: true,
	})
	if err != nil {
		return c.handleCallError(err, StageBulk, state)
	}

	state.recordSuccess(res)
	if !res.Changed {
		return nil
	}

	replacement, err := decodeBulk(res.SanitizedText, len(results))
	if err != nil {
		// External data that fails verification is discarded, never
		// patched up, and never silently.
		c.logger.Warn("PII sanitizer returned invalid response", "stage", StageBulk, "error", err)
		state.discarded = true
		return nil
	}

	copy(results, replacement)
	state.applied[StageBulk] = true
	state.anyChanged = true
	return nil
}

// handleCallError applies the failure policy to one failed call
func (c *Coordinator) handleCallError(err error, stage string, state *runState) error {
	if c.failClosed {
		return fmt.Errorf("sanitizing %s: %w", stage, err)
	}
	c.logger.Warn("PII sanitizer call failed", "stage", stage, "error_type", errorType(err), "error", err)
	state.anyFailed = true
	return nil
}

// decodeBulk re-verifies sanitized bulk content: valid JSON, an array,
// the original element count, and every element strictly decodable.
func decodeBulk(text string, want int) ([]model.ClaimResult, error) {
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("bulk response is not valid JSON: %w", err)
	}
	list, ok := parsed.([]any)
	if !ok {
		return nil, fmt.Errorf("bulk response must be a JSON array, got %T", parsed)
	}
	if len(list) != want {
		return nil, fmt.Errorf("bulk response has %d results, want %d", len(list), want)
	}

	out := make([]model.ClaimResult, len(list))
	for i, raw := range list {
		result, err := model.DecodeClaimResult(raw)
		if err != nil {
			return nil, fmt.Errorf("bulk response result %d: %w", i, err)
		}
		out[i] = result
	}
	return out, nil
}

// runState accumulates per-call outcomes across both passes
type runState struct {
	anyChanged   bool
	anyFailed    bool
	anySucceeded bool
	discarded    bool
	count        int
	byType       map[string]int
	applied      map[string]bool

	engineName    string
	engineVersion string
	method        string
}

func newRunState() *runState {
	return &runState{
		byType:  map[string]int{},
		applied: map[string]bool{},
	}
}

func (st *runState) recordSuccess(res *Result) {
	st.anySucceeded = true
	st.count += res.RedactionCount
	for key, n := range res.RedactionsByType {
		st.byType[key] += n
	}
	if st.engineName == "" {
		st.engineName = res.EngineName
		st.engineVersion = res.EngineVersion
		st.method = res.Method
	}
}

func (st *runState) engineIdentity(fallback string) (name, version, method string) {
	if st.engineName != "" {
		return st.engineName, st.engineVersion, st.method
	}
	return fallback, "unknown", model.MethodProviderNative
}

func (st *runState) appliedStages() []string {
	stages := make([]string, 0, len(st.applied))
	for stage := range st.applied {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	return stages
}

// status reduces the pass outcomes to the summary status. "sanitized"
// is only reachable when every call succeeded and nothing external was
// discarded: it is the summary's trust statement that no literal
// original secret survives in the serialized pack.
func (st *runState) status() model.SanitizationStatus {
	switch {
	case st.anyFailed && !st.anySucceeded:
		return model.SanitizationError
	case st.discarded || st.anyFailed:
		return model.SanitizationPartial
	case st.anyChanged:
		return model.SanitizationSanitized
	default:
		return model.SanitizationNone
	}
}

var fingerprintPattern = regexp.MustCompile(`^sha256:[0-9a-f]+$`)

// NormalizeFingerprint canonicalizes a salt label to sha256:<hex>. A
// label already in that shape passes through; anything else is replaced
// by the digest of the label, so packs stay comparable for same-salt
// without the salt itself ever appearing.
func NormalizeFingerprint(label string) string {
	if label == "" {
		return ""
	}
	if fingerprintPattern.MatchString(label) {
		return label
	}
	return digest.FromString(label).String()
}

func resultsHash(results []model.ClaimResult) (string, error) {
	payload, err := chain.Canonical(results)
	if err != nil {
		return "", err
	}
	return digest.FromBytes(payload).String(), nil
}

func errorType(err error) string {
	var callErr *CallError
	if errors.As(err, &callErr) && callErr.Err != nil {
		return fmt.Sprintf("%T", callErr.Err)
	}
	return fmt.Sprintf("%T", err)
}
