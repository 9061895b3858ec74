// Package llm defines the Provider interface for the language-model backends
// that rewrite transcripts.
//
// A provider wraps a remote or local chat-completion API (OpenAI, Anthropic,
// a local Ollama instance, ...) behind a uniform single-shot interface. The
// enhancement layer builds a system prompt from the active mode and context
// snapshot and sends the transcript as the sole user message.
//
// Implementations must be safe for concurrent use and must wrap HTTP-level
// failures into types.StatusError so that credential rotation can classify
// them.
package llm

import (
	"context"

	"github.com/sussurro/sussurro/pkg/types"
)

// Usage holds token accounting information returned by the LLM backend.
// Counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages
	// and system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Some providers return
	// it directly rather than computing it from the parts.
	TotalTokens int
}

// CompletionRequest carries everything one enhancement call needs.
type CompletionRequest struct {
	// SystemPrompt is the high-priority instruction injected before the
	// conversation. Providers that have no dedicated system slot prepend it
	// as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation. For enhancement this is a
	// single "user" message holding the transcript.
	Messages []types.Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use
	// the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the full model reply.
type CompletionResponse struct {
	// Content is the text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
//
// Implementations must propagate context cancellation promptly: when ctx is
// cancelled, Complete must return as quickly as possible.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier this provider was configured with.
	Model() string
}
