// Package chunk splits oversized text into overlapping, boundary-aware
// segments ("scaffolds") and scores them for relevance, so that budget
// fitting can retain only the segments that matter for the current task.
package chunk

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// charsPerToken mirrors the assembler's estimation ratio.
	charsPerToken = 4

	// DefaultChunkTokens is the target segment size.
	DefaultChunkTokens = 1024
	// DefaultOverlapTokens is the overlap carried between adjacent segments.
	DefaultOverlapTokens = 128
)

// boundarySeparators orders split points by preference: code-fence end,
// heading, paragraph, sentence, then word as a last resort.
var boundarySeparators = []string{"```\n", "\n## ", "\n\n", ". ", " "}

// Chunk is one segment of a split text.
type Chunk struct {
	// Index is the segment's position in the original text.
	Index int
	// Text is the segment content.
	Text string
	// Tokens is the estimated token count.
	Tokens int
}

// Splitter produces fixed-size overlapping chunks along natural boundaries.
type Splitter struct {
	inner textsplitter.RecursiveCharacter
}

// NewSplitter creates a Splitter targeting the given chunk and overlap
// sizes in estimated tokens. Zero values select the defaults.
func NewSplitter(chunkTokens, overlapTokens int) *Splitter {
	if chunkTokens <= 0 {
		chunkTokens = DefaultChunkTokens
	}
	if overlapTokens < 0 {
		overlapTokens = DefaultOverlapTokens
	}

	return &Splitter{
		inner: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkTokens*charsPerToken),
			textsplitter.WithChunkOverlap(overlapTokens*charsPerToken),
			textsplitter.WithSeparators(boundarySeparators),
		),
	}
}

// Split divides text into overlapping boundary-aware chunks.
func (s *Splitter) Split(text string) ([]Chunk, error) {
	parts, err := s.inner.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	chunks := make([]Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, Chunk{
			Index:  i,
			Text:   part,
			Tokens: (len(part) + charsPerToken - 1) / charsPerToken,
		})
	}
	return chunks, nil
}
