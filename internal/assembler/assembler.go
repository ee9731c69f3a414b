// Package assembler collects candidate context fragments for a step's
// prompt and fits them into a token budget, degrading lossily by priority
// when the budget is tight.
package assembler

import (
	"context"
	"strings"

	"github.com/ShayCichocki/weave/internal/chunk"
	"github.com/ShayCichocki/weave/pkg/models"
)

// Summarizer is the abstractive-summary collaborator. It may be absent,
// in which case the assembler falls back to hard truncation.
type Summarizer interface {
	// Summarize compresses text to approximately targetTokens.
	Summarize(ctx context.Context, text string, targetTokens int) (string, error)
}

// DefaultLargeFragmentTokens is the estimated-token threshold above which
// a single fragment is pre-chunked and filtered for relevance before
// budget fitting.
const DefaultLargeFragmentTokens = 15000

// ContextBlock is one candidate fragment of text considered for inclusion
// in a step's prompt. Blocks are built fresh for each assembly and
// discarded after rendering.
type ContextBlock struct {
	// Source identifies where the text came from.
	Source models.ContextSource
	// StepID is the originating step, when Source is a step.
	StepID string
	// Section tags the block in the rendered output.
	Section string
	// Text is the fragment content.
	Text string
	// Tokens is the estimated token count of Text.
	Tokens int
	// Priority is 1 (critical) through 4 (low).
	Priority int
	// Mode is the requested inclusion mode.
	Mode models.InclusionMode
}

// Result is the rendered context plus bookkeeping about what survived.
type Result struct {
	// Text is the rendered context, empty when no blocks survived.
	Text string
	// Tokens is the estimated token count of Text.
	Tokens int
	// Overflowed is true when critical content was included over budget
	// because no degradation could make it fit.
	Overflowed bool
	// Dropped lists the sections of low-priority blocks dropped entirely.
	Dropped []string
}

// Assembler turns injection rules and an execution context into a single
// budget-constrained context string. Assembly is a pure function of its
// inputs (given deterministic collaborators).
type Assembler struct {
	summarizer          Summarizer
	splitter            *chunk.Splitter
	scorer              chunk.Scorer
	fallbackScorer      chunk.Scorer
	largeFragmentTokens int
	log                 func(format string, args ...interface{})
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithSummarizer sets the abstractive-summary collaborator.
func WithSummarizer(s Summarizer) Option {
	return func(a *Assembler) { a.summarizer = s }
}

// WithScorer sets the relevance scorer used for pre-chunked fragments,
// typically an embedding-backed scorer.
func WithScorer(s chunk.Scorer) Option {
	return func(a *Assembler) {
		if s != nil {
			a.scorer = s
		}
	}
}

// WithSplitter overrides the chunk splitter.
func WithSplitter(s *chunk.Splitter) Option {
	return func(a *Assembler) {
		if s != nil {
			a.splitter = s
		}
	}
}

// WithLargeFragmentThreshold overrides the pre-chunking threshold.
func WithLargeFragmentThreshold(tokens int) Option {
	return func(a *Assembler) {
		if tokens > 0 {
			a.largeFragmentTokens = tokens
		}
	}
}

// WithLogger sets the debug log function.
func WithLogger(fn func(format string, args ...interface{})) Option {
	return func(a *Assembler) {
		if fn != nil {
			a.log = fn
		}
	}
}

// New creates an Assembler. Without options it has no summarizer (hard
// truncation only) and scores chunks with the keyword heuristic.
func New(opts ...Option) *Assembler {
	a := &Assembler{
		splitter:            chunk.NewSplitter(0, 0),
		fallbackScorer:      chunk.NewKeywordScorer(),
		largeFragmentTokens: DefaultLargeFragmentTokens,
		log:                 func(format string, args ...interface{}) {},
	}
	a.scorer = a.fallbackScorer
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Options are the per-assembly parameters.
type Options struct {
	// Budget is the maximum estimated token count for fragment content.
	// Section framing added by rendering sits outside the budget.
	// Zero or negative means unlimited.
	Budget int
	// Format selects the output shape (tagged or markdown).
	Format Format
	// FileContext is externally supplied file content for "file" rules.
	FileContext string
}

// Assemble resolves rules against the execution context, fits the
// resulting blocks into the budget, and renders them.
func (a *Assembler) Assemble(ctx context.Context, rules []models.InjectionRule, ec models.ExecutionContext, opts Options) Result {
	blocks := a.resolveBlocks(ctx, rules, ec, opts)
	if len(blocks) == 0 {
		return Result{}
	}

	fitted, overflowed, dropped := a.fit(ctx, blocks, opts.Budget)
	text := render(fitted, opts.Format)

	return Result{
		Text:       text,
		Tokens:     EstimateTokens(text),
		Overflowed: overflowed,
		Dropped:    dropped,
	}
}

// resolveBlocks turns each rule into a context block with raw text,
// applying pre-chunking to oversized fragments and up-front summarization
// for summary/key-points inclusion modes.
func (a *Assembler) resolveBlocks(ctx context.Context, rules []models.InjectionRule, ec models.ExecutionContext, opts Options) []ContextBlock {
	var blocks []ContextBlock
	for _, rule := range rules {
		if rule.Mode == models.IncludeNone {
			continue
		}

		text := resolveSource(rule, ec, opts.FileContext)
		if strings.TrimSpace(text) == "" {
			continue
		}

		block := ContextBlock{
			Source:   rule.Source,
			StepID:   rule.StepID,
			Section:  rule.Section,
			Text:     text,
			Priority: clampPriority(rule.Priority),
			Mode:     rule.Mode,
		}
		block.Tokens = EstimateTokens(block.Text)

		if block.Tokens > a.largeFragmentTokens {
			block = a.prechunk(ctx, block, ec.Prompt, opts.Budget)
		}

		if (block.Mode == models.IncludeSummary || block.Mode == models.IncludeKeyPoints) && a.summarizer != nil {
			block = a.presummarize(ctx, block, opts.Budget)
		}

		blocks = append(blocks, block)
	}
	return blocks
}

// resolveSource maps a rule's source to raw text.
func resolveSource(rule models.InjectionRule, ec models.ExecutionContext, fileContext string) string {
	switch rule.Source {
	case models.SourceTask:
		return ec.Prompt
	case models.SourceStep:
		if result, ok := ec.Result(rule.StepID); ok {
			return result.Output
		}
		return ""
	case models.SourceSteps:
		results := ec.CompletedResults()
		parts := make([]string, 0, len(results))
		for _, r := range results {
			if r.Output != "" {
				parts = append(parts, r.Output)
			}
		}
		return strings.Join(parts, "\n\n")
	case models.SourceFile:
		return fileContext
	default:
		return ""
	}
}

// prechunk splits an oversized fragment into boundary-aware overlapping
// segments and keeps only the most relevant ones for the budget.
func (a *Assembler) prechunk(ctx context.Context, block ContextBlock, task string, budget int) ContextBlock {
	chunks, err := a.splitter.Split(block.Text)
	if err != nil || len(chunks) <= 1 {
		return block
	}

	scores, err := a.scorer.Score(ctx, task, chunks)
	if err != nil {
		// Embedding collaborator unavailable or failing: fall back to the
		// keyword heuristic.
		a.log("[assembler] chunk scoring failed, using keyword fallback: %v", err)
		scores, err = a.fallbackScorer.Score(ctx, task, chunks)
		if err != nil {
			return block
		}
	}

	limit := budget
	if limit <= 0 {
		limit = a.largeFragmentTokens
	}
	selected := chunk.Select(chunks, scores, limit)
	if len(selected) == 0 {
		return block
	}

	parts := make([]string, len(selected))
	for i, c := range selected {
		parts[i] = c.Text
	}
	block.Text = strings.Join(parts, "\n\n")
	block.Tokens = EstimateTokens(block.Text)
	a.log("[assembler] prechunked %s fragment: %d/%d segments kept", block.Source, len(selected), len(chunks))
	return block
}

// presummarize honors an explicit summary/key-points inclusion mode by
// compressing the fragment before budget fitting.
func (a *Assembler) presummarize(ctx context.Context, block ContextBlock, budget int) ContextBlock {
	target := block.Tokens / 4
	if budget > 0 && budget/4 < target {
		target = budget / 4
	}
	if target < 64 {
		target = 64
	}

	text := block.Text
	if block.Mode == models.IncludeKeyPoints {
		text = "List the key points of the following.\n\n" + text
	}

	summary, err := a.summarizer.Summarize(ctx, text, target)
	if err != nil || strings.TrimSpace(summary) == "" {
		return block
	}
	block.Text = summary
	block.Tokens = EstimateTokens(summary)
	return block
}

// clampPriority normalizes a rule priority into the 1..4 range.
// The zero value maps to medium.
func clampPriority(p int) int {
	if p == 0 {
		return models.PriorityMedium
	}
	if p < models.PriorityCritical {
		return models.PriorityCritical
	}
	if p > models.PriorityLow {
		return models.PriorityLow
	}
	return p
}
