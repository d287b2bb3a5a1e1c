package main

import (
	"fmt"

	"github.com/aqua777/scico/embedding"
	"github.com/aqua777/scico/internal/config"
	"github.com/aqua777/scico/llm"
)

// newEmbedder selects a concrete embedding.EmbeddingModel per cfg's
// EmbeddingAPI {local, remote}, mirroring the teacher's
// NewRAGCommand's hard-wired Ollama embedder generalized to a
// config-driven choice (SPEC_FULL.md §6's `embedding_api` enum).
func newEmbedder(cfg config.Config) (embedding.EmbeddingModel, error) {
	switch cfg.EmbeddingAPI {
	case "local", "":
		return embedding.NewOllamaEmbedding(
			embedding.WithOllamaEmbeddingModel(cfg.EmbeddingModel),
		), nil
	case "remote":
		return embedding.NewOpenAIEmbedding("", cfg.EmbeddingModel), nil
	default:
		return nil, fmt.Errorf("config: unknown embedding_api %q", cfg.EmbeddingAPI)
	}
}

// newChatModel selects a concrete llm.LLM per cfg's ChatAPI {local,
// remote}.
func newChatModel(cfg config.Config) (llm.LLM, error) {
	switch cfg.ChatAPI {
	case "local", "":
		temp := float32(cfg.ChatTemperature)
		return llm.NewOllamaLLM(
			llm.WithOllamaModel(cfg.ChatName),
			llm.WithOllamaTemperature(temp),
		), nil
	case "remote":
		return llm.NewOpenAILLM("", cfg.ChatName, ""), nil
	default:
		return nil, fmt.Errorf("config: unknown chat_api %q", cfg.ChatAPI)
	}
}
