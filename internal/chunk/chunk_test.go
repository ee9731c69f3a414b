package chunk

import (
	"context"
	"strings"
	"testing"
)

func TestSplitterProducesOverlappingChunks(t *testing.T) {
	s := NewSplitter(50, 10)

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("The quick brown fox jumps over the lazy dog once more.\n\n")
	}

	chunks, err := s.Split(sb.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.Tokens <= 0 {
			t.Errorf("chunk %d has no token estimate", i)
		}
	}
}

func TestSplitterShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(0, 0)

	chunks, err := s.Split("just a short note")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestKeywordScorerFavorsRelevantChunk(t *testing.T) {
	scorer := NewKeywordScorer()
	chunks := []Chunk{
		{Index: 0, Text: "notes about database migrations and schema versioning", Tokens: 10},
		{Index: 1, Text: "the weather today is sunny with light clouds", Tokens: 10},
	}

	scores, err := scorer.Score(context.Background(), "database schema migrations", chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores[0] <= scores[1] {
		t.Errorf("expected chunk 0 to outrank chunk 1, got %v", scores)
	}
}

func TestKeywordScorerRecencyBreaksTies(t *testing.T) {
	scorer := NewKeywordScorer()
	chunks := []Chunk{
		{Index: 0, Text: "identical filler text", Tokens: 5},
		{Index: 1, Text: "identical filler text", Tokens: 5},
	}

	scores, err := scorer.Score(context.Background(), "unrelated query terms", chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores[1] <= scores[0] {
		t.Errorf("expected later chunk to get recency bonus, got %v", scores)
	}
}

// stubEmbedder returns fixed vectors keyed by text.
type stubEmbedder struct {
	vectors map[string][]float32
	query   []float32
}

func (e *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vectors[text]
	}
	return out, nil
}

func (e *stubEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return e.query, nil
}

func TestEmbeddingScorerCosine(t *testing.T) {
	embedder := &stubEmbedder{
		query: []float32{1, 0},
		vectors: map[string][]float32{
			"aligned":    {1, 0},
			"orthogonal": {0, 1},
		},
	}
	scorer := NewEmbeddingScorer(embedder)

	chunks := []Chunk{
		{Index: 0, Text: "aligned"},
		{Index: 1, Text: "orthogonal"},
	}
	scores, err := scorer.Score(context.Background(), "query", chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores[0] < 0.99 {
		t.Errorf("aligned vector should score ~1, got %f", scores[0])
	}
	if scores[1] > 0.01 {
		t.Errorf("orthogonal vector should score ~0, got %f", scores[1])
	}
}

func TestSelectRespectsBudgetAndRestoresOrder(t *testing.T) {
	chunks := []Chunk{
		{Index: 0, Text: "a", Tokens: 40},
		{Index: 1, Text: "b", Tokens: 40},
		{Index: 2, Text: "c", Tokens: 40},
	}
	scores := []float64{0.2, 0.9, 0.8}

	picked := Select(chunks, scores, 80)
	if len(picked) != 2 {
		t.Fatalf("expected 2 chunks within budget, got %d", len(picked))
	}
	// Highest scorers are b and c; restored to original order.
	if picked[0].Index != 1 || picked[1].Index != 2 {
		t.Errorf("unexpected selection: %+v", picked)
	}
}
