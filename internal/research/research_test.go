package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqua777/scico/embedding"
	"github.com/aqua777/scico/internal/bibitem"
	"github.com/aqua777/scico/internal/vectorstore"
	"github.com/aqua777/scico/llm"

	"github.com/aqua777/scico/internal/retriever"
)

// scriptedLLM returns Responses in call order, one per Chat invocation;
// it never advertises structured-output support, exercising the
// teacher-style callWithCompletion fallback path.
type scriptedLLM struct {
	Responses []string
	calls     int
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return "", nil
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []llm.ChatMessage) (string, error) {
	if s.calls >= len(s.Responses) {
		return "", assert.AnError
	}
	r := s.Responses[s.calls]
	s.calls++
	return r, nil
}

func (s *scriptedLLM) Stream(ctx context.Context, prompt string) (<-chan string, error) {
	ch := make(chan string)
	close(ch)
	return ch, nil
}

func newTestRetriever(t *testing.T) *retriever.Retriever {
	t.Helper()
	embedder := &embedding.MockEmbeddingModel{Embeddings: [][]float64{{1, 0, 0}, {0, 1, 0}}}
	store, err := vectorstore.New("", "research-test", embedder)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Add(ctx, []bibitem.Chunk{
		{ChunkUID: "c1", ItemID: "item-1", Title: "Apples", SplitID: 0, Content: "apples are a fruit"},
		{ChunkUID: "c2", ItemID: "item-2", Title: "Cars", SplitID: 0, Content: "cars have wheels"},
	})
	require.NoError(t, err)

	return retriever.New(store, &embedding.MockEmbeddingModel{Embedding: []float64{1, 0, 0}})
}

func TestLoop_Run_FullRound(t *testing.T) {
	r := newTestRetriever(t)
	model := &scriptedLLM{Responses: []string{
		`{"query":"more about apples"}`,
		`{"relevant_sources":[{"key":"c1","info":"apple info"}],"synthesis_text":"apples are nice"}`,
		`{"stop":true,"reasoning":"enough found"}`,
		`{"final_answer":"Apples are a fruit.","answer_evaluation":"solid","suggestions":["explore oranges"],"title":"Fruit Research"}`,
	}}

	loop := New(r, model, 5, 10, false)
	state, err := loop.Run(context.Background(), "what are apples?")
	require.NoError(t, err)

	assert.True(t, state.Done)
	assert.Equal(t, 1, state.SearchLoopCount)
	assert.Len(t, state.SearchQueries, 2)
	assert.Len(t, state.KnowledgeStrings, 2)
	assert.Len(t, state.AssessmentStrings, 2)
	assert.Contains(t, state.FinalResponse, "Fruit Research")
	assert.Contains(t, state.FinalResponse, "Apples are a fruit.")
}

func TestLoop_Run_EmptyQueryWithoutProvider(t *testing.T) {
	r := newTestRetriever(t)
	model := &scriptedLLM{}
	loop := New(r, model, 5, 10, false)

	state, err := loop.Run(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, state.Done)
	assert.Contains(t, state.FinalResponse, "Insufficient information")
}

func TestLoop_Run_ChatFailureDegradesFinalize(t *testing.T) {
	r := newTestRetriever(t)
	model := &scriptedLLM{Responses: []string{}} // every call fails immediately

	loop := New(r, model, 1, 10, false)
	state, err := loop.Run(context.Background(), "what are apples?")
	require.NoError(t, err)

	assert.True(t, state.Done)
	assert.Contains(t, state.FinalResponse, "Insufficient information")
}

func TestLoop_Run_MaxSearchDepthStopsLoop(t *testing.T) {
	r := newTestRetriever(t)
	model := &scriptedLLM{Responses: []string{
		`{"query":"q1"}`,
		`{"relevant_sources":[],"synthesis_text":"k1"}`,
		`{"stop":false,"reasoning":"keep going"}`,
		`{"final_answer":"done","answer_evaluation":"ok","suggestions":[],"title":"T"}`,
	}}

	loop := New(r, model, 1, 10, false)
	state, err := loop.Run(context.Background(), "what are apples?")
	require.NoError(t, err)

	assert.True(t, state.Done)
	assert.Equal(t, 1, state.SearchLoopCount)
	assert.Contains(t, state.FinalResponse, "done")
}

func TestDeepestLevel_FiltersReferences(t *testing.T) {
	chunks := []bibitem.Chunk{
		{ChunkUID: "a", ItemID: "i", SplitID: 0, Levels: bibitem.Levels{"level1": "Introduction"}},
		{ChunkUID: "b", ItemID: "i", SplitID: 1, Levels: bibitem.Levels{"level1": "References"}},
	}
	out := filterReferences(chunks)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ChunkUID)
}
