// Package llm defines the Provider interface for text-generation backends.
//
// The assistant answers most utterances from deterministic templates and only
// escalates to a model when phrasing matters or when templates keep missing.
// A Provider wraps whatever produces that text: a hosted API (OpenAI,
// Anthropic, Gemini, ...), a local server (Ollama, llama.cpp), or the offline
// keyword model in package canned.
//
// Implementors must be safe for concurrent use: a single Provider instance is
// shared by every live conversation session.
package llm

import "context"

// Message roles understood by all providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in the prompt sent to the model.
type Message struct {
	// Role is one of RoleSystem, RoleUser, or RoleAssistant.
	Role string

	// Content is the text of the turn.
	Content string
}

// Usage holds token accounting information returned by the backend.
// Counts are in the model's native token unit.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction placed before
	// Messages. Providers without a dedicated system field prepend it as a
	// RoleSystem message.
	SystemPrompt string

	// Messages is the ordered prompt. The last message is the user's turn.
	Messages []Message

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int

	// Temperature controls output randomness in the range [0.0, 2.0].
	// Zero means provider default.
	Temperature float64
}

// CompletionResponse is the full reply to a CompletionRequest.
type CompletionResponse struct {
	// Content is the text of the reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Capabilities describes static limits of the underlying model.
type Capabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum number of tokens generated in one reply.
	MaxOutputTokens int
}

// Provider is the abstraction over any text-generation backend.
//
// Complete must honour ctx cancellation promptly: callers put a hard deadline
// on every generation and rely on the provider to return once it passes.
type Provider interface {
	// Complete sends req to the model and waits for the full reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the model. The result is
	// constant for the lifetime of the Provider.
	Capabilities() Capabilities
}
