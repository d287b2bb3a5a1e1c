package vectorstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqua777/scico/embedding"
	"github.com/aqua777/scico/internal/bibitem"
)

func testChunks() []bibitem.Chunk {
	return []bibitem.Chunk{
		{
			ChunkUID:    "c1",
			ItemID:      "item-1",
			StorageKey:  "storage-1",
			CitationKey: "doe2020fruit",
			Title:       "On Fruit",
			Content:     "Apple is a fruit.",
		},
		{
			ChunkUID:    "c2",
			ItemID:      "item-2",
			StorageKey:  "storage-2",
			CitationKey: "doe2020vehicle",
			Title:       "On Vehicles",
			Content:     "Car is a vehicle.",
		},
	}
}

func TestStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	embedder := &embedding.MockEmbeddingModel{
		Embeddings: [][]float64{{1, 0, 0}, {0, 1, 0}},
	}

	store, err := New("", "test-collection", embedder)
	require.NoError(t, err)

	ids, err := store.Add(ctx, testChunks())
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	results, err := store.Search(ctx, []float64{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkUID)
	assert.InDelta(t, 0.0, results[0].Distance, 0.0001)
}

func TestStore_SearchWithFilter(t *testing.T) {
	ctx := context.Background()
	embedder := &embedding.MockEmbeddingModel{
		Embeddings: [][]float64{{1, 0, 0}, {0.9, 0.1, 0}},
	}

	store, err := New("", "filtered-collection", embedder)
	require.NoError(t, err)

	_, err = store.Add(ctx, testChunks())
	require.NoError(t, err)

	filter := NewFilter(Condition{Key: "item_id", Operator: OpEq, Value: "item-2"})
	results, err := store.Search(ctx, []float64{1, 0, 0}, 5, filter)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "item-2", results[0].ItemID)
}

func TestStore_DeleteByItem(t *testing.T) {
	ctx := context.Background()
	embedder := &embedding.MockEmbeddingModel{
		Embeddings: [][]float64{{1, 0, 0}, {0, 1, 0}},
	}

	store, err := New("", "delete-collection", embedder)
	require.NoError(t, err)

	_, err = store.Add(ctx, testChunks())
	require.NoError(t, err)

	removed, err := store.DeleteByItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Empty(t, store.UIDsForItem("item-1"))
	assert.Len(t, store.UIDsForItem("item-2"), 1)
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	embedder := &embedding.MockEmbeddingModel{
		Embeddings: [][]float64{{1, 0, 0}, {0, 1, 0}},
	}

	store, err := New("", "stats-collection", embedder)
	require.NoError(t, err)

	_, err = store.Add(ctx, testChunks())
	require.NoError(t, err)

	stats := store.Stats()
	assert.Equal(t, 2, stats.TotalChunks)
	assert.Equal(t, "On Fruit", stats.Items["item-1"].Title)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	embedder := &embedding.MockEmbeddingModel{
		Embeddings: [][]float64{{1, 0, 0}, {0, 1, 0}},
	}

	store, err := New("", "clear-collection", embedder)
	require.NoError(t, err)

	_, err = store.Add(ctx, testChunks())
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx))
	assert.Equal(t, 0, store.Stats().TotalChunks)
}

func TestStore_Persistence(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "vectorstore_test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()
	embedder := &embedding.MockEmbeddingModel{Embedding: []float64{0.5}}

	store, err := New(tmpDir, "persist-collection", embedder)
	require.NoError(t, err)

	_, err = store.Add(ctx, []bibitem.Chunk{{ChunkUID: "p1", ItemID: "item-1", Content: "Alpha"}})
	require.NoError(t, err)

	results, err := store.Search(ctx, []float64{0.5}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].ChunkUID)

	// Re-open against the same directory, simulating a fresh CLI process.
	store2, err := New(tmpDir, "persist-collection", embedder)
	require.NoError(t, err)

	resultsReopen, err := store2.Search(ctx, []float64{0.5}, 1, nil)
	require.NoError(t, err)
	require.Len(t, resultsReopen, 1)
	assert.Equal(t, "p1", resultsReopen[0].ChunkUID)
	assert.Equal(t, 1, store2.Stats().TotalChunks)
}
