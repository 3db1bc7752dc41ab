package ai

import "context"

// TextGenerator generates text from a system prompt and user prompt.
// The chat-completion call is treated as opaque; any OpenAI-compatible
// endpoint implements this.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
