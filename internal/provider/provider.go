// Package provider abstracts the external completion service. The
// orchestrator only ever sees this interface; which model actually answers
// (ark, an OpenAI-compatible endpoint, or the offline echo stub) is a
// construction-time decision.
package provider

import (
	"context"

	"github.com/parleyhq/parley/internal/model/chat"
)

// TokenUsage carries the provider's token accounting for one completion.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Completion is the provider's reply to one turn.
type Completion struct {
	Content string
	Usage   TokenUsage
}

// Provider produces a reply from ordered conversation context. The last
// entry of history is always the current user message.
type Provider interface {
	// Name identifies the implementation ("ark", "openai", "echo").
	Name() string

	// Model returns the configured model identifier.
	Model() string

	// Complete returns the full reply in one call.
	Complete(ctx context.Context, history []chat.Message) (Completion, error)

	// Stream sends reply fragments to chunks as they arrive and returns
	// the assembled completion. The channel is not closed by the provider.
	Stream(ctx context.Context, history []chat.Message, chunks chan<- string) (Completion, error)
}
