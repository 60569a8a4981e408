// Package providers implements the Model Gateway's backend adapters
// (remote and local chat-completion APIs) plus the router, retry helper,
// and budget ledger that sit in front of them.
package providers

import "context"

// Provider is the interface both the remote and local model backends
// implement. The gateway only ever needs a single request/response
// call, with no streaming or tool-calling: the pipeline nodes are not a
// ReAct loop, so there is nothing here to stream into.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	DefaultModel() string
	HighCapModel() string
	Name() string
}

// ChatRequest is the input to a single model call.
type ChatRequest struct {
	System         string
	Messages       []Message
	Model          string
	MaxTokens      int
	EnableThinking bool
}

// Message is one turn of a chat-completion request.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatResponse is the result of a model call.
type ChatResponse struct {
	Content      string
	Thinking     string
	FinishReason string
	Usage        Usage
}

// Usage tracks token consumption, including a model's extended-thinking
// tokens — separate from completion tokens because they're billed and
// capped differently.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	ThinkingTokens   int
}
