package guardowl

import "context"

// ChatFn produces a free-text completion given a system prompt, prior
// conversation context and the current user message.
type ChatFn func(ctx context.Context, systemPrompt string, history []HistoryMessage, userMessage string) (string, error)

// ChatJSONFn produces a JSON completion and unmarshals it into result.
// Implementations must return an error for unparsable output so callers
// can retry.
type ChatJSONFn func(ctx context.Context, systemPrompt, userMessage string, result any) error

// EmbedFn computes a vector embedding for the given text.
type EmbedFn func(ctx context.Context, text string) ([]float32, error)

// LLMClient bundles the language-model functions the service depends on.
// Providers fill in what they support; Embed may be nil for providers
// without an embeddings API, in which case semantic search needs a
// separate embedder.
type LLMClient struct {
	Chat     ChatFn
	ChatJSON ChatJSONFn
	Embed    EmbedFn
}
