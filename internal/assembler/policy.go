package assembler

import (
	"context"
	"strings"

	"github.com/ShayCichocki/weave/pkg/models"
)

// truncationMarker is appended to hard-truncated fragments so the backend
// can tell the content is incomplete.
const truncationMarker = "\n[...truncated]"

// degradeAction selects what happens to a fragment that does not fit the
// remaining budget.
type degradeAction int

const (
	// degradeCompress summarizes the fragment, then hard-truncates if the
	// summary still exceeds the remaining budget.
	degradeCompress degradeAction = iota
	// degradeDrop excludes the fragment entirely; no partial inclusion.
	degradeDrop
)

// degradationPolicies is the ordered policy table consulted by priority.
// New tiers or strategies extend the table without touching the fit loop.
var degradationPolicies = []struct {
	maxPriority int
	action      degradeAction
}{
	{maxPriority: models.PriorityHigh, action: degradeCompress},
	{maxPriority: models.PriorityLow, action: degradeDrop},
}

// policyFor returns the degradation action for a priority tier.
func policyFor(priority int) degradeAction {
	for _, p := range degradationPolicies {
		if priority <= p.maxPriority {
			return p.action
		}
	}
	return degradeDrop
}

// fit accumulates blocks into the budget. When everything fits, all blocks
// are included unmodified. Otherwise blocks are visited in ascending
// priority order (stable, so plan order breaks ties) and degraded per the
// policy table. Critical content that cannot fit at all is included over
// budget and flagged rather than silently dropped.
func (a *Assembler) fit(ctx context.Context, blocks []ContextBlock, budget int) (fitted []ContextBlock, overflowed bool, dropped []string) {
	if budget <= 0 {
		return blocks, false, nil
	}

	total := 0
	for _, b := range blocks {
		total += b.Tokens
	}
	if total <= budget {
		return blocks, false, nil
	}

	ordered := make([]ContextBlock, len(blocks))
	copy(ordered, blocks)
	stableSortByPriority(ordered)

	remaining := budget
	for _, block := range ordered {
		if block.Tokens <= remaining {
			fitted = append(fitted, block)
			remaining -= block.Tokens
			continue
		}

		switch policyFor(block.Priority) {
		case degradeCompress:
			compressed, over := a.compress(ctx, block, remaining)
			if over {
				a.log("[assembler] budget overflow: including %d-token %s block over a %d-token remainder",
					block.Tokens, block.Source, remaining)
				overflowed = true
			}
			fitted = append(fitted, compressed)
			remaining -= compressed.Tokens
			if remaining < 0 {
				remaining = 0
			}
		case degradeDrop:
			a.log("[assembler] dropped %s block (%d tokens over %d remaining)", block.Source, block.Tokens, remaining)
			dropped = append(dropped, sectionLabel(block))
		}
	}

	return fitted, overflowed, dropped
}

// compress shrinks a critical block to the remaining budget: abstractive
// summary first, hard truncation second. Returns overflowed=true when the
// remainder is too small for any meaningful compression, in which case the
// block is returned unmodified (included over budget).
func (a *Assembler) compress(ctx context.Context, block ContextBlock, remaining int) (ContextBlock, bool) {
	minUseful := EstimateTokens(truncationMarker) + 1
	if remaining < minUseful {
		return block, true
	}

	text := block.Text
	if a.summarizer != nil {
		summary, err := a.summarizer.Summarize(ctx, block.Text, remaining)
		if err == nil && strings.TrimSpace(summary) != "" {
			if EstimateTokens(summary) <= remaining {
				block.Text = summary
				block.Tokens = EstimateTokens(summary)
				return block, false
			}
			// Summary still too large: truncate the summary, not the raw text.
			text = summary
		}
	}

	limit := remaining*charsPerToken - len(truncationMarker)
	if limit <= 0 {
		return block, true
	}
	if limit < len(text) {
		text = text[:limit]
	}
	block.Text = text + truncationMarker
	block.Tokens = EstimateTokens(block.Text)
	return block, false
}

// stableSortByPriority orders blocks ascending by priority while keeping
// the original order within a tier.
func stableSortByPriority(blocks []ContextBlock) {
	// Insertion sort: block counts are small and stability matters.
	for i := 1; i < len(blocks); i++ {
		for j := i; j > 0 && blocks[j].Priority < blocks[j-1].Priority; j-- {
			blocks[j], blocks[j-1] = blocks[j-1], blocks[j]
		}
	}
}
