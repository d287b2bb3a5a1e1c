package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqua777/scico/embedding"
	"github.com/aqua777/scico/internal/bibitem"
	"github.com/aqua777/scico/internal/vectorstore"
)

func seedStore(t *testing.T) *vectorstore.Store {
	t.Helper()
	embedder := &embedding.MockEmbeddingModel{
		Embeddings: [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	}
	store, err := vectorstore.New("", "retriever-test", embedder)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Add(ctx, []bibitem.Chunk{
		{ChunkUID: "c1", ItemID: "item-1", SplitID: 0, Content: "apple"},
		{ChunkUID: "c2", ItemID: "item-2", SplitID: 0, Content: "car"},
		{ChunkUID: "c3", ItemID: "item-1", SplitID: 1, Content: "banana"},
	})
	require.NoError(t, err)
	return store
}

func TestRetriever_Semantic(t *testing.T) {
	store := seedStore(t)
	r := New(store, &embedding.MockEmbeddingModel{Embedding: []float64{1, 0, 0}})

	chunks, err := r.Semantic(context.Background(), "fruit", 1)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "c1", chunks[0].ChunkUID)
}

func TestRetriever_ByItem(t *testing.T) {
	store := seedStore(t)
	r := New(store, &embedding.MockEmbeddingModel{Embedding: []float64{1, 0, 0}})

	chunks, err := r.ByItem(context.Background(), "item-1", "fruit", 5)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Equal(t, "item-1", c.ItemID)
	}
}

func TestRetriever_MultiQuery_Dedup(t *testing.T) {
	store := seedStore(t)
	r := New(store, &embedding.MockEmbeddingModel{Embedding: []float64{1, 0, 0}})

	chunks, err := r.MultiQuery(context.Background(), []string{"fruit", "vehicle"}, 10)
	require.NoError(t, err)
	// Both queries hit the same deterministic mock embedding, so the same
	// 3 chunks are returned each time; dedup by (item_id, split_id) must
	// collapse them to 3, not 6.
	assert.Len(t, chunks, 3)
}

func TestRetriever_ListIndexed(t *testing.T) {
	store := seedStore(t)
	r := New(store, &embedding.MockEmbeddingModel{Embedding: []float64{1, 0, 0}})

	stats := r.ListIndexed()
	assert.Equal(t, 3, stats.TotalChunks)
}
