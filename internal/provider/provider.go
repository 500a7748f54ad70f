// Package provider defines the language-generation boundary consumed by the
// dialogue controller.
package provider

import "context"

// Message is a role-tagged context entry for a generation call.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces a single agent utterance from an ordered list of
// role-tagged context entries. Calls are synchronous and may fail; the caller
// decides the user-facing fallback.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}
