package retrieval

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawi-voice/rawi/pkg/knowledge"
)

// fakeEmbedder embeds by exact-match lookup, falling back to a zero vector.
type fakeEmbedder struct {
	vectors map[string][]float32
	block   bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0}, nil
}

func buildStore(t *testing.T, chunks []knowledge.Chunk) *knowledge.Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "index")
	w, err := knowledge.CreateIndex(context.Background(), dir, 3)
	require.NoError(t, err)
	for i, chunk := range chunks {
		require.NoError(t, w.AppendChunk(context.Background(), chunk, i))
	}
	require.NoError(t, w.Close())

	store, err := knowledge.Open(context.Background(), dir)
	require.NoError(t, err)
	return store
}

func TestRetrieve_CairoChunkRankedFirst(t *testing.T) {
	store := buildStore(t, []knowledge.Chunk{
		{ID: "cairo", DocumentID: "geo", Text: "القاهرة هي عاصمة جمهورية مصر العربية وأكبر مدنها.", Embedding: []float32{0.95, 0.05, 0}},
		{ID: "rabat", DocumentID: "geo", Text: "الرباط هي عاصمة المملكة المغربية.", Embedding: []float32{0.1, 0.9, 0}},
		{ID: "andalus", DocumentID: "hist", Text: "الأندلس حقبة تاريخية في شبه الجزيرة الإيبيرية.", Embedding: []float32{0, 0.2, 0.9}},
	})

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"ما هي عاصمة مصر؟": {1, 0.1, 0},
	}}
	engine, err := NewEngine(embedder, store, Options{})
	require.NoError(t, err)

	passages, err := engine.Retrieve(context.Background(), "ما هي عاصمة مصر؟")
	require.NoError(t, err)
	require.NotEmpty(t, passages)
	assert.Contains(t, passages[0].Text, "القاهرة")
}

func TestRetrieve_AtMostFiveSortedDescending(t *testing.T) {
	chunks := make([]knowledge.Chunk, 0, 8)
	for i := 0; i < 8; i++ {
		chunks = append(chunks, knowledge.Chunk{
			ID:         string(rune('a' + i)),
			DocumentID: "doc",
			Text:       "passage",
			Embedding:  []float32{1, float32(i) * 0.1, 0},
		})
	}
	store := buildStore(t, chunks)

	embedder := &fakeEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	engine, err := NewEngine(embedder, store, Options{TopK: 5})
	require.NoError(t, err)

	passages, err := engine.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(passages), 5)
	for i := 1; i < len(passages); i++ {
		assert.GreaterOrEqual(t, passages[i-1].Score, passages[i].Score)
	}
}

func TestRetrieve_EmptyQueryIsEmbeddingError(t *testing.T) {
	store := buildStore(t, []knowledge.Chunk{
		{ID: "a", DocumentID: "doc", Text: "x", Embedding: []float32{1, 0, 0}},
	})
	engine, err := NewEngine(&fakeEmbedder{}, store, Options{})
	require.NoError(t, err)

	_, err = engine.Retrieve(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmbedding)
}

func TestRetrieve_TimeoutIsNonFatalSentinel(t *testing.T) {
	store := buildStore(t, []knowledge.Chunk{
		{ID: "a", DocumentID: "doc", Text: "x", Embedding: []float32{1, 0, 0}},
	})
	engine, err := NewEngine(&fakeEmbedder{block: true}, store, Options{Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = engine.Retrieve(context.Background(), "q")
	require.ErrorIs(t, err, ErrTimeout)
}

func TestRetrieve_MinScoreFiltersWeakHits(t *testing.T) {
	store := buildStore(t, []knowledge.Chunk{
		{ID: "strong", DocumentID: "doc", Text: "strong", Embedding: []float32{1, 0, 0}},
		{ID: "weak", DocumentID: "doc", Text: "weak", Embedding: []float32{0, 1, 0}},
	})

	embedder := &fakeEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	engine, err := NewEngine(embedder, store, Options{MinScore: 0.5})
	require.NoError(t, err)

	passages, err := engine.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "strong", passages[0].Text)
}
