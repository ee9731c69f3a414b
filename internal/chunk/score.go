package chunk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
)

// Scorer assigns a relevance score to each chunk for a given query.
// Higher is more relevant.
type Scorer interface {
	Score(ctx context.Context, query string, chunks []Chunk) ([]float64, error)
}

// EmbeddingScorer scores chunks by cosine similarity between their
// embeddings and the query embedding.
type EmbeddingScorer struct {
	embedder embeddings.Embedder
}

// NewEmbeddingScorer wraps an embeddings collaborator.
func NewEmbeddingScorer(embedder embeddings.Embedder) *EmbeddingScorer {
	return &EmbeddingScorer{embedder: embedder}
}

// Score embeds the query and all chunk texts, returning cosine similarities.
func (s *EmbeddingScorer) Score(ctx context.Context, query string, chunks []Chunk) ([]float64, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	scores := make([]float64, len(chunks))
	for i, vec := range vecs {
		scores[i] = cosine(queryVec, vec)
	}
	return scores, nil
}

// cosine returns the cosine similarity between two vectors.
// Mismatched or zero-magnitude vectors score zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// KeywordScorer is the fallback used when no embedding collaborator is
// configured: keyword overlap with the query plus a small recency bonus
// favoring later chunks.
type KeywordScorer struct{}

// NewKeywordScorer creates the heuristic scorer.
func NewKeywordScorer() *KeywordScorer {
	return &KeywordScorer{}
}

// Score computes keyword-overlap scores. Never returns an error.
func (s *KeywordScorer) Score(_ context.Context, query string, chunks []Chunk) ([]float64, error) {
	queryWords := keywords(query)

	scores := make([]float64, len(chunks))
	for i, c := range chunks {
		scores[i] = overlapScore(queryWords, keywords(c.Text))
		if len(chunks) > 1 {
			// Recency bonus: later chunks reflect more recent content.
			scores[i] += 0.1 * float64(c.Index) / float64(len(chunks)-1)
		}
	}
	return scores, nil
}

// keywords lowercases and extracts words of at least three characters.
func keywords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(w) >= 3 {
			words[w] = true
		}
	}
	return words
}

// overlapScore returns the fraction of query keywords present in the chunk.
func overlapScore(query, chunk map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	var hits int
	for w := range query {
		if chunk[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// Select returns the highest-scoring chunks whose combined estimated token
// count fits budgetTokens, reordered back into original text order so the
// surviving segments read coherently.
func Select(chunks []Chunk, scores []float64, budgetTokens int) []Chunk {
	if len(chunks) == 0 || len(scores) != len(chunks) {
		return nil
	}

	byScore := make([]int, len(chunks))
	for i := range byScore {
		byScore[i] = i
	}
	sort.SliceStable(byScore, func(a, b int) bool {
		return scores[byScore[a]] > scores[byScore[b]]
	})

	var picked []Chunk
	remaining := budgetTokens
	for _, idx := range byScore {
		c := chunks[idx]
		if c.Tokens > remaining {
			continue
		}
		picked = append(picked, c)
		remaining -= c.Tokens
	}

	sort.Slice(picked, func(a, b int) bool {
		return picked[a].Index < picked[b].Index
	})
	return picked
}
