package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aqua777/scico/llm"
)

// chatRetryAttempts and chatRetryBaseDelay implement spec.md §4.G.3's
// "retried with a bounded policy (3 attempts, exponential back-off)".
const (
	chatRetryAttempts  = 3
	chatRetryBaseDelay = 250 * time.Millisecond
)

// chatWithRetry calls chat, retrying transient failures with exponential
// back-off, and returns the last error if every attempt fails.
func chatWithRetry(ctx context.Context, chat func(context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt < chatRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(chatRetryBaseDelay * time.Duration(1<<uint(attempt-1))):
			}
		}
		out, err := chat(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("chat call failed after %d attempts: %w", chatRetryAttempts, lastErr)
}

// chatStructured requests a JSON response from model for messages and
// unmarshals it into target. If model supports structured output
// (llm.LLMWithStructuredOutput) the request uses a JSON response
// format; otherwise it falls back to a plain chat completion, relying
// on the prompt's own formatting instructions, mirroring the teacher's
// callWithStructuredOutput/callWithCompletion split.
//
// Per spec.md §7's "Model/schema failure" policy, a response that
// fails to parse is retried once with a stricter prompt appended
// before giving up.
func chatStructured(ctx context.Context, model llm.LLM, messages []llm.ChatMessage, target interface{}) error {
	raw, err := chatWithRetry(ctx, func(ctx context.Context) (string, error) {
		return callChat(ctx, model, messages)
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(extractJSON(raw)), target); err == nil {
		return nil
	}

	strict := append(append([]llm.ChatMessage{}, messages...), llm.NewUserMessage(
		"Your previous reply was not valid JSON matching the requested schema. Reply with ONLY the JSON object, no prose, no markdown fences."))
	raw, err = chatWithRetry(ctx, func(ctx context.Context) (string, error) {
		return callChat(ctx, model, strict)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), target); err != nil {
		return fmt.Errorf("model returned unparseable structured output: %w", err)
	}
	return nil
}

func callChat(ctx context.Context, model llm.LLM, messages []llm.ChatMessage) (string, error) {
	if structured, ok := model.(llm.LLMWithStructuredOutput); ok && structured.SupportsStructuredOutput() {
		return structured.ChatWithFormat(ctx, messages, llm.NewJSONResponseFormat())
	}
	return model.Chat(ctx, messages)
}

// extractJSON strips a leading/trailing markdown code fence, if present,
// since several providers wrap JSON responses in ```json ... ``` even
// when asked not to.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
