package llm

import "context"

// MockLLM is a mock implementation of the LLM interface.
// It can be configured to return specific responses or errors.
type MockLLM struct {
	// Response is the text response to return.
	Response string
	// Err is the error to return (if any).
	Err error
	// ModelMetadata is the metadata to return.
	ModelMetadata *LLMMetadata
	// StructuredOutputSupported indicates if structured output is supported.
	StructuredOutputSupported bool
}

// NewMockLLM creates a new MockLLM with a simple response.
func NewMockLLM(response string) *MockLLM {
	return &MockLLM{Response: response}
}

// NewMockLLMWithError creates a new MockLLM that returns an error.
func NewMockLLMWithError(err error) *MockLLM {
	return &MockLLM{Err: err}
}

func (m *MockLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return m.Response, m.Err
}

func (m *MockLLM) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	return m.Response, m.Err
}

func (m *MockLLM) Stream(ctx context.Context, prompt string) (<-chan string, error) {
	ch := make(chan string, 1)
	if m.Err != nil {
		close(ch)
		return ch, m.Err
	}
	ch <- m.Response
	close(ch)
	return ch, nil
}

// Metadata returns the mock model metadata.
func (m *MockLLM) Metadata() LLMMetadata {
	if m.ModelMetadata != nil {
		return *m.ModelMetadata
	}
	return DefaultLLMMetadata("mock-model")
}

// SupportsStructuredOutput returns whether structured output is supported.
func (m *MockLLM) SupportsStructuredOutput() bool {
	return m.StructuredOutputSupported
}

// ChatWithFormat returns a mock response in the specified format.
func (m *MockLLM) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (string, error) {
	return m.Response, m.Err
}
