package chunker

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer measures the size of text for chunk_size/chunk_overlap
// accounting. Two implementations: RuneTokenizer (used when
// embedding_model isn't tiktoken-compatible) and TikTokenTokenizer (used
// when it is) — grounded on the teacher's
// textsplitter.SimpleTokenizer/TikTokenTokenizer
// (textsplitter/tokenizer.go, textsplitter/tokenizer_tiktoken.go), with
// Encode's []string token list collapsed to a single Size(text) int since
// the Chunker only ever needs a length, never the tokens themselves.
type Tokenizer interface {
	Size(text string) int
}

// RuneTokenizer counts runes. The chunk-size-accounting default when no
// tiktoken-compatible model is configured.
type RuneTokenizer struct{}

func NewRuneTokenizer() RuneTokenizer { return RuneTokenizer{} }

func (RuneTokenizer) Size(text string) int { return len([]rune(text)) }

// TikTokenTokenizer counts tokens using OpenAI's tiktoken encoding for
// the given model, mirroring the teacher's TikTokenTokenizer.
type TikTokenTokenizer struct {
	encoding *tiktoken.Tiktoken
}

// NewTikTokenTokenizer resolves the tiktoken encoding for model. Falls
// back to "gpt-3.5-turbo"'s encoding if model is empty, per teacher
// convention.
func NewTikTokenTokenizer(model string) (*TikTokenTokenizer, error) {
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("chunker: resolve tiktoken encoding for %s: %w", model, err)
	}
	return &TikTokenTokenizer{encoding: enc}, nil
}

func (t *TikTokenTokenizer) Size(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}
