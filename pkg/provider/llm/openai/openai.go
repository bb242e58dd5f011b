// Package openai provides an [llm.Generator] backed by the official OpenAI
// Go SDK. It is the default backend for the "openai" provider name; the
// remaining vendors go through the any-llm-go generator.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/daybreakhan/quorum/pkg/provider/llm"
)

// Generator implements [llm.Generator] using the OpenAI Chat Completions API.
// Because credentials arrive per request, the SDK client is constructed per
// call; the underlying HTTP transport is shared so connections are reused.
type Generator struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ llm.Generator = (*Generator)(nil)

// Option is a functional option for Generator.
type Option func(*Generator)

// WithBaseURL overrides the default OpenAI API base URL. Useful for proxies
// and for pointing tests at an httptest server.
func WithBaseURL(url string) Option {
	return func(g *Generator) { g.baseURL = url }
}

// WithHTTPClient overrides the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Generator) { g.httpClient = c }
}

// New constructs an OpenAI Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Name implements llm.Generator.
func (g *Generator) Name() string { return "openai" }

// Generate implements llm.Generator.
func (g *Generator) Generate(ctx context.Context, req llm.Request) (*llm.Result, error) {
	if req.APIKey == "" {
		return nil, fmt.Errorf("openai: API key must not be empty")
	}
	if req.Model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(req.APIKey),
		option.WithHTTPClient(g.httpClient),
	}
	if g.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(g.baseURL))
	}
	client := oai.NewClient(reqOpts...)

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(req.System),
			oai.UserMessage(req.User),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	return &llm.Result{
		Text:         strings.TrimSpace(resp.Choices[0].Message.Content),
		Provider:     "openai",
		Model:        req.Model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}
