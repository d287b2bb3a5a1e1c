package llm

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

func TestMockLLM(t *testing.T) {
	m := NewMockLLM("hello")

	got, err := m.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	got, err = m.Chat(context.Background(), []ChatMessage{NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	ch, err := m.Stream(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "hello", <-ch)
}

func TestMockLLM_Error(t *testing.T) {
	m := NewMockLLMWithError(assertErr)

	_, err := m.Complete(context.Background(), "prompt")
	assert.ErrorIs(t, err, assertErr)
}

func TestMockLLM_Metadata(t *testing.T) {
	m := NewMockLLM("hi")
	meta := m.Metadata()
	assert.Equal(t, "mock-model", meta.ModelName)

	custom := GPT4oMetadata()
	m.ModelMetadata = &custom
	assert.Equal(t, custom, m.Metadata())
}

func TestMockLLM_ChatWithFormat(t *testing.T) {
	m := &MockLLM{Response: "{}", StructuredOutputSupported: true}
	assert.True(t, m.SupportsStructuredOutput())

	got, err := m.ChatWithFormat(context.Background(), []ChatMessage{NewUserMessage("hi")}, NewJSONResponseFormat())
	require.NoError(t, err)
	assert.Equal(t, "{}", got)
}

var assertErr = &mockError{"boom"}

type mockError struct{ msg string }

func (e *mockError) Error() string { return e.msg }

func TestOllamaLLM_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaMessage{Role: "assistant", Content: "hi there"},
			Done:    true,
		})
	}))
	defer server.Close()

	o := NewOllamaLLM(
		WithOllamaBaseURL(server.URL),
		WithOllamaModel(OllamaLlama31),
	)

	got, err := o.Chat(context.Background(), []ChatMessage{NewUserMessage("hello")})
	require.NoError(t, err)
	assert.Equal(t, "hi there", got)
}

func TestOllamaLLM_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "generated", Done: true})
	}))
	defer server.Close()

	o := NewOllamaLLM(WithOllamaBaseURL(server.URL))

	got, err := o.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "generated", got)
}

func TestOllamaLLM_Metadata(t *testing.T) {
	o := NewOllamaLLM(WithOllamaModel(OllamaLlama31))
	meta := o.Metadata()
	assert.Equal(t, 128000, meta.ContextWindow)
}

func TestOllamaLLM_ChatWithFormat(t *testing.T) {
	var gotSystem string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotSystem = req.Messages[0].Content
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaMessage{Content: "{}"}, Done: true})
	}))
	defer server.Close()

	o := NewOllamaLLM(WithOllamaBaseURL(server.URL))
	assert.True(t, o.SupportsStructuredOutput())

	_, err := o.ChatWithFormat(context.Background(), []ChatMessage{NewUserMessage("question")}, NewJSONResponseFormat())
	require.NoError(t, err)
	assert.Contains(t, gotSystem, "valid JSON")
}

func TestOpenAILLM_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: "assistant", Content: "reply"}},
			},
		})
	}))
	defer server.Close()

	o := NewOpenAILLM(server.URL, "gpt-3.5-turbo", "test-key")

	got, err := o.Chat(context.Background(), []ChatMessage{NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "reply", got)
}
