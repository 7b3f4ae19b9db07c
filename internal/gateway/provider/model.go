// Package provider wraps the LLM invocation boundary. The consensus layer
// treats providers as opaque text functions that may fail or time out.
package provider

import "context"

// ModelProvider is one chat-completion backend.
type ModelProvider interface {
	ID() string
	Enabled() bool
	Call(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
