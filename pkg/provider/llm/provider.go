// Package llm defines the Generator interface for Large Language Model backends.
//
// A generator wraps one vendor's HTTP API (OpenAI, Anthropic, Google, Groq,
// Mistral, …) and exposes a single blocking Generate call that the Quorum
// orchestrator uses for every pipeline stage. Credentials travel with each
// request rather than with the generator: one user's API key bundle is scoped
// to one orchestrator invocation, so a generator instance is shared across
// users and must not cache keys beyond connection reuse.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly: when ctx is cancelled, Generate must return as soon
// as the underlying HTTP request can be abandoned.
package llm

import (
	"context"
	"strings"
)

// DefaultProvider is the provider assumed when a model identifier carries no
// "<provider>:" prefix.
const DefaultProvider = "openai"

// Request carries everything one generation call needs. All fields except
// MaxTokens are required; a zero MaxTokens means the vendor default applies.
type Request struct {
	// APIKey authenticates this single call. Generators must not persist it.
	APIKey string

	// Model is the vendor-native model identifier (e.g., "gpt-4o-mini"),
	// without the "<provider>:" prefix.
	Model string

	// System is the stage's system prompt.
	System string

	// User is the assembled user prompt for this stage.
	User string

	// MaxTokens caps the number of output tokens. Zero means vendor default.
	MaxTokens int
}

// Result is the normalized response from one generation call.
type Result struct {
	// Text is the model's reply, whitespace-trimmed.
	Text string

	// Provider is the name of the backend that produced the result
	// (e.g., "openai"). Matches the registry key, not the vendor SDK name.
	Provider string

	// Model is the model identifier the call was made with.
	Model string

	// InputTokens is the prompt token count as reported by the vendor.
	InputTokens int

	// OutputTokens is the completion token count as reported by the vendor.
	OutputTokens int

	// CostUSD is the vendor-reported cost of the call. Most vendors do not
	// report cost, in which case this is 0 and the caller imputes it from a
	// pricing table.
	CostUSD float64
}

// Generator is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Generator interface {
	// Generate sends one system+user prompt pair to the model and waits for
	// the full response. It returns an error on network, protocol, or quota
	// failures, or when ctx is cancelled before the response arrives.
	Generate(ctx context.Context, req Request) (*Result, error)

	// Name returns the registry name of this backend (e.g., "anthropic").
	Name() string
}

// SplitModel splits a "<provider>:<model>" identifier into its parts.
// An identifier without a colon is treated as a bare model name on the
// [DefaultProvider].
func SplitModel(full string) (provider, model string) {
	if p, m, ok := strings.Cut(full, ":"); ok {
		return p, m
	}
	return DefaultProvider, full
}
