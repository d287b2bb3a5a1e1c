package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbeddingModel(t *testing.T) {
	m := NewMockEmbeddingModel([]float64{0.1, 0.2, 0.3})

	got, err := m.GetTextEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got)

	got, err = m.GetQueryEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got)
}

func TestMockEmbeddingModel_Error(t *testing.T) {
	m := NewMockEmbeddingModelWithError(ErrMultiModalNotSupported)

	_, err := m.GetTextEmbedding(context.Background(), "hello")
	assert.Error(t, err)
}

func TestMockEmbeddingModel_Batch(t *testing.T) {
	m := &MockEmbeddingModel{Embedding: []float64{1, 2}}

	var progressed int
	results, err := m.GetTextEmbeddingsBatch(context.Background(), []string{"a", "b", "c"}, func(done, total int) {
		progressed = done
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 3, progressed)
}

func TestMockEmbeddingModel_ImageNotSupported(t *testing.T) {
	m := &MockEmbeddingModel{Embedding: []float64{1}}

	_, err := m.GetImageEmbedding(context.Background(), NewImageFromURL("http://example.com/x.png"))
	assert.ErrorIs(t, err, ErrMultiModalNotSupported)
}

func TestOllamaEmbedding_GetTextEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "hello world", req.Prompt)

		_ = json.NewEncoder(w).Encode(ollamaEmbeddingResponse{Embedding: []float64{1, 2, 3}})
	}))
	defer server.Close()

	e := NewOllamaEmbedding(
		WithOllamaEmbeddingBaseURL(server.URL),
		WithOllamaEmbeddingModel(OllamaNomicEmbedText),
	)

	got, err := e.GetTextEmbedding(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got)
}

func TestOllamaEmbedding_Info(t *testing.T) {
	e := NewOllamaEmbedding(WithOllamaEmbeddingModel(OllamaMxbaiEmbedLarge))
	info := e.Info()
	assert.Equal(t, 1024, info.Dimensions)

	e = NewOllamaEmbedding(WithOllamaEmbeddingModel("unknown-model"))
	info = e.Info()
	assert.Equal(t, DefaultEmbeddingInfo("unknown-model"), info)
}

func TestOllamaEmbedding_NotMultiModal(t *testing.T) {
	e := NewOllamaEmbedding()
	assert.False(t, e.SupportsMultiModal())
	_, err := e.GetImageEmbedding(context.Background(), NewImageFromURL("http://example.com/x.png"))
	assert.Error(t, err)
}

func TestOllamaEmbedding_Batch(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(ollamaEmbeddingResponse{Embedding: []float64{float64(calls)}})
	}))
	defer server.Close()

	e := NewOllamaEmbedding(WithOllamaEmbeddingBaseURL(server.URL))

	results, err := e.GetTextEmbeddingsBatch(context.Background(), []string{"a", "b"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, calls)
}

func TestOpenAIEmbedding_GetTextEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.EmbeddingResponse{
			Data: []openai.Embedding{
				{Embedding: []float32{0.5, 0.6}, Index: 0},
			},
			Model: openai.SmallEmbedding3,
			Usage: openai.Usage{PromptTokens: 2, TotalTokens: 2},
		})
	}))
	defer server.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = server.URL
	client := openai.NewClientWithConfig(cfg)
	e := NewOpenAIEmbeddingWithClient(client, "text-embedding-3-small")

	got, err := e.GetTextEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.6}, got, 1e-6)
}
