package assembler

// charsPerToken is the fixed character-to-token ratio used for estimation.
// Real tokenizers vary by model and content; the engine only needs a
// stable, cheap approximation for budget fitting, so the ratio is
// deliberately approximate rather than exact.
const charsPerToken = 4

// EstimateTokens returns the estimated token count for text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}
