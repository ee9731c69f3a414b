package agent

import (
	"context"
	"fmt"
	"strings"
)

// AgentSummarizer compresses text through a backend, satisfying the
// assembler's Summarizer contract. Any Agent can serve; in practice a
// cheap, fast model is configured.
type AgentSummarizer struct {
	agent Agent
	model string
}

// NewAgentSummarizer wraps a backend as a summarizer. The model may be
// empty to use the backend's default.
func NewAgentSummarizer(a Agent, model string) *AgentSummarizer {
	return &AgentSummarizer{agent: a, model: model}
}

// Summarize asks the backend for a summary of approximately targetTokens.
func (s *AgentSummarizer) Summarize(ctx context.Context, text string, targetTokens int) (string, error) {
	// Tokens-to-words is roughly 4:3 for English prose.
	words := targetTokens * 3 / 4
	if words < 20 {
		words = 20
	}

	prompt := fmt.Sprintf(
		"Summarize the following in at most %d words. Preserve concrete identifiers, file names, and conclusions. Output only the summary.\n\n%s",
		words, text,
	)

	result, err := s.agent.Run(ctx, prompt, &RunOptions{Model: s.model})
	if err != nil {
		return "", fmt.Errorf("summarize via %s: %w", s.agent.Name(), err)
	}
	return strings.TrimSpace(result.Content), nil
}
