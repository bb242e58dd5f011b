// Package anyllm provides an [llm.Generator] backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider client that
// supports OpenAI, Anthropic, Gemini, Groq, Mistral, and more.
//
// Quorum registers one Generator per provider name it recognises
// ("anthropic", "google", "groq", "mistral"); the "google" name maps to the
// library's "gemini" backend. Because API keys arrive per request rather than
// at construction time, the generator keeps a small cache of underlying
// clients keyed by API key so repeated calls from the same user reuse one
// client.
package anyllm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/daybreakhan/quorum/pkg/provider/llm"
)

// backendNames maps Quorum provider names to any-llm-go backend names where
// the two differ.
var backendNames = map[string]string{
	"google": "gemini",
}

// Generator implements [llm.Generator] by wrapping any-llm-go.
type Generator struct {
	provider string // registry name, e.g. "google"
	backend  string // any-llm-go backend name, e.g. "gemini"

	mu      sync.Mutex
	clients map[string]anyllmlib.Provider // keyed by API key
}

// Compile-time interface assertion.
var _ llm.Generator = (*Generator)(nil)

// New creates a Generator for the given Quorum provider name.
//
// providerName is one of "openai", "anthropic", "google", "groq", "mistral",
// or any other backend name any-llm-go understands directly.
func New(providerName string) (*Generator, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	backend := providerName
	if mapped, ok := backendNames[providerName]; ok {
		backend = mapped
	}
	// Fail fast on names the library does not know instead of deferring the
	// error to the first Generate call.
	if !supportedBackend(backend) {
		return nil, fmt.Errorf("anyllm: unsupported backend %q; supported: openai, anthropic, gemini, groq, mistral", backend)
	}
	return &Generator{
		provider: providerName,
		backend:  backend,
		clients:  make(map[string]anyllmlib.Provider),
	}, nil
}

// Name implements llm.Generator.
func (g *Generator) Name() string { return g.provider }

// Generate implements llm.Generator.
func (g *Generator) Generate(ctx context.Context, req llm.Request) (*llm.Result, error) {
	client, err := g.client(req.APIKey)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", g.provider, err)
	}

	params := anyllmlib.CompletionParams{
		Model: req.Model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: req.System},
			{Role: anyllmlib.RoleUser, Content: req.User},
		},
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}

	resp, err := client.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", g.provider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s: empty choices in response", g.provider)
	}

	result := &llm.Result{
		Text:     strings.TrimSpace(resp.Choices[0].Message.ContentString()),
		Provider: g.provider,
		Model:    req.Model,
	}
	if resp.Usage != nil {
		result.InputTokens = resp.Usage.PromptTokens
		result.OutputTokens = resp.Usage.CompletionTokens
	}
	return result, nil
}

// client returns the cached any-llm-go client for apiKey, creating it on
// first use.
func (g *Generator) client(apiKey string) (anyllmlib.Provider, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[apiKey]; ok {
		return c, nil
	}
	c, err := createBackend(g.backend, anyllmlib.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	g.clients[apiKey] = c
	return c, nil
}

// supportedBackend reports whether backend is one of the vendors this
// package wires up.
func supportedBackend(backend string) bool {
	switch strings.ToLower(backend) {
	case "openai", "anthropic", "gemini", "groq", "mistral":
		return true
	}
	return false
}

// createBackend creates the underlying any-llm-go provider for backend.
func createBackend(backend string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(backend) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported backend %q; supported: openai, anthropic, gemini, groq, mistral", backend)
	}
}
