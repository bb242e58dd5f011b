// Package mock provides a test double for the llm.Generator interface.
//
// Use Generator in unit tests to verify the prompts the orchestrator sends
// and to feed controlled responses without a live LLM backend. Configure the
// response fields before first use; call records can be read back after the
// code under test has finished.
//
// Example:
//
//	g := &mock.Generator{
//	    Result: &llm.Result{Text: "direct answer", Provider: "openai"},
//	}
//	res, err := g.Generate(ctx, req)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/daybreakhan/quorum/pkg/provider/llm"
)

// Call records a single invocation of Generate.
type Call struct {
	// Ctx is the context passed to Generate.
	Ctx context.Context
	// Req is the request passed to Generate.
	Req llm.Request
}

// Step is one scripted outcome for a Generate call. Exactly one of Result
// and Err should be set.
type Step struct {
	Result *llm.Result
	Err    error
}

// Generator is a mock implementation of llm.Generator.
//
// When Script is non-empty, the n-th Generate call returns the n-th step;
// calls beyond the script length repeat the last step. Otherwise every call
// returns Result, Err.
type Generator struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// NameValue is returned by Name. Defaults to "mock".
	NameValue string

	// Result is returned by Generate when Script is empty.
	Result *llm.Result

	// Err, if non-nil, is returned by Generate when Script is empty.
	Err error

	// Script is an optional per-call sequence of outcomes.
	Script []Step

	// Delay, if positive, makes Generate block for the given duration (or
	// until ctx is cancelled) before returning. Used to exercise timeouts.
	Delay time.Duration

	// --- Call records (read after test) ---

	// Calls records every invocation of Generate in order.
	Calls []Call
}

// Compile-time interface assertion.
var _ llm.Generator = (*Generator)(nil)

// Name implements llm.Generator.
func (g *Generator) Name() string {
	if g.NameValue == "" {
		return "mock"
	}
	return g.NameValue
}

// Generate records the call and returns the configured outcome.
func (g *Generator) Generate(ctx context.Context, req llm.Request) (*llm.Result, error) {
	g.mu.Lock()
	n := len(g.Calls)
	g.Calls = append(g.Calls, Call{Ctx: ctx, Req: req})
	delay := g.Delay
	step := Step{Result: g.Result, Err: g.Err}
	if len(g.Script) > 0 {
		if n >= len(g.Script) {
			n = len(g.Script) - 1
		}
		step = g.Script[n]
	}
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return step.Result, step.Err
}

// CallCount returns the number of Generate invocations so far. Thread-safe.
func (g *Generator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls)
}

// LastCall returns the most recent call record, or a zero Call when Generate
// has not been invoked.
func (g *Generator) LastCall() Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Calls) == 0 {
		return Call{}
	}
	return g.Calls[len(g.Calls)-1]
}

// Reset clears all recorded calls. Thread-safe.
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = nil
}
