// Package orchestrator runs a user-configured multi-stage LLM pipeline over a
// single question: gate, dependency-aware parallel stage execution, synthesis,
// and a heuristic quality pass with optional one-shot refinement.
//
// Run never returns an error. Every failure mode folds into the [Result]: a
// placeholder final answer, a degraded stage output, or a failed usage record.
// The caller always has something to show the user and something to bill.
package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daybreakhan/quorum/internal/resilience"
	"github.com/daybreakhan/quorum/pkg/provider/llm"
)

// Reserved usage-map keys. Stage names must not collide with them.
const (
	usageKeySynth  = "synth"
	usageKeyRefine = "quality_refine"
)

// Telemetry receives one record per finished provider call. Implementations
// must be safe for concurrent use.
type Telemetry interface {
	RecordCall(ctx context.Context, stage, provider, model, status string, latency time.Duration, inputTokens, outputTokens int, costUSD float64)
}

// PipelineTelemetry is optionally implemented by Telemetry sinks that also
// track whole-invocation outcomes.
type PipelineTelemetry interface {
	RecordPipeline(ctx context.Context, decision string, latency time.Duration, budgetTripped bool)
}

// Orchestrator executes pipeline invocations against a set of registered
// provider backends. It is stateless across invocations and safe for
// concurrent use.
type Orchestrator struct {
	registry  *llm.Registry
	msgs      Messages
	pricing   PricingTable
	telemetry Telemetry
	log       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMessages overrides the user-facing placeholder strings. Empty fields
// keep their defaults.
func WithMessages(m Messages) Option {
	return func(o *Orchestrator) { o.msgs = m.fill() }
}

// WithPricing overrides the cost-imputation table.
func WithPricing(t PricingTable) Option {
	return func(o *Orchestrator) {
		if len(t) > 0 {
			o.pricing = t
		}
	}
}

// WithTelemetry attaches a per-call metrics sink.
func WithTelemetry(t Telemetry) Option {
	return func(o *Orchestrator) { o.telemetry = t }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// New builds an Orchestrator over registry.
func New(registry *llm.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		msgs:     DefaultMessages(),
		pricing:  DefaultPricing(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the mutable state of one invocation.
type run struct {
	req    Request
	result Result

	firstProvider string
	firstKey      string

	// failed marks an invocation whose final is a failure placeholder. A
	// placeholder must reach the user verbatim; refinement never runs on it.
	failed bool
}

// Run executes one pipeline invocation and always returns a usable Result.
func (o *Orchestrator) Run(ctx context.Context, req Request) Result {
	r := &run{
		req: req,
		result: Result{
			Decision: DecisionMulti,
			Usage:    make(map[string]UsagePayload),
			Monitoring: Monitoring{
				StageMetrics: make(map[string]StageMetric),
			},
		},
	}

	if msg, ok := o.validate(r); !ok {
		r.result.Final = msg
		return r.result
	}

	decision, reason := ruleGate(req.Question)
	if req.UseLLMGate {
		decision, reason = o.llmGate(ctx, req, decision, reason)
	}
	r.result.Decision = decision
	r.result.Monitoring.DecisionReason = reason

	if decision == DecisionSimple || len(req.Stages) == 1 {
		o.runFastPath(ctx, r)
	} else {
		o.runPipeline(ctx, r)
	}

	o.runQuality(ctx, r)

	if pt, ok := o.telemetry.(PipelineTelemetry); ok {
		pt.RecordPipeline(ctx, string(r.result.Decision),
			time.Duration(r.result.Monitoring.TotalLatencyMS)*time.Millisecond,
			r.result.Monitoring.BudgetGuardTriggered)
	}

	o.log.Info("pipeline finished",
		"decision", r.result.Decision,
		"stages", len(r.result.Stages),
		"cost_usd", r.result.Monitoring.TotalCostUSD,
		"latency_ms", r.result.Monitoring.TotalLatencyMS,
		"budget_guard", r.result.Monitoring.BudgetGuardTriggered,
		"quality_overall", r.result.Quality.Overall,
	)
	return r.result
}

// validate checks the invocation's static preconditions. On failure it returns
// the user-facing message and false.
func (o *Orchestrator) validate(r *run) (string, bool) {
	req := r.req
	if len(req.Stages) == 0 {
		return o.msgs.NoStages, false
	}

	seen := make(map[string]bool, len(req.Stages))
	for _, s := range req.Stages {
		if s.Name == usageKeySynth || s.Name == usageKeyRefine {
			return format(o.msgs.ReservedStageName, s.Name), false
		}
		if seen[s.Name] {
			return format(o.msgs.DuplicateStageName, s.Name), false
		}
		seen[s.Name] = true
	}

	provider, _ := llm.SplitModel(req.Stages[0].Model)
	if _, ok := o.registry.Lookup(provider); !ok {
		return format(o.msgs.UnknownProvider, provider), false
	}
	key := req.APIKeys[provider]
	if key == "" {
		return format(o.msgs.MissingAPIKey, provider), false
	}
	r.firstProvider = provider
	r.firstKey = key
	return "", true
}

// resolve maps a "<provider>:<model>" identifier to a generator and key,
// falling back to the first stage's provider for unknown prefixes and to the
// first stage's key when the resolved provider has none registered.
func (o *Orchestrator) resolve(r *run, modelID string) (llm.Generator, string, string, string) {
	provider, model := llm.SplitModel(modelID)
	gen, ok := o.registry.Lookup(provider)
	if !ok {
		provider = r.firstProvider
		gen, _ = o.registry.Lookup(provider)
	}
	key := r.req.APIKeys[provider]
	if key == "" {
		key = r.firstKey
	}
	return gen, provider, model, key
}

// callResult bundles everything one provider call produced.
type callResult struct {
	text    string
	payload UsagePayload
	metric  StageMetric
}

// call runs one resilient provider call and converts the outcome into a usage
// payload and stage metric. Failed calls carry zero tokens and cost.
func (o *Orchestrator) call(ctx context.Context, r *run, modelID, system, user string, maxTokens int) callResult {
	gen, provider, model, key := o.resolve(r, modelID)

	res, rt := resilience.Call(ctx, resilience.Policy{
		Attempts:       r.req.Exec.RetriesPerStage + 1,
		AttemptTimeout: r.req.Exec.StageTimeout,
	}, gen, llm.Request{
		APIKey:    key,
		Model:     model,
		System:    system,
		User:      user,
		MaxTokens: maxTokens,
	})

	out := callResult{
		payload: UsagePayload{
			Provider:  provider,
			Model:     model,
			LatencyMS: rt.LatencyMS,
			Retries:   rt.Retries,
			Status:    rt.Status,
		},
		metric: StageMetric{
			LatencyMS: rt.LatencyMS,
			Retries:   rt.Retries,
			Status:    rt.Status,
			Err:       rt.Err,
		},
	}
	if rt.Status == resilience.StatusOK {
		out.text = res.Text
		out.payload.Text = res.Text
		out.payload.InputTokens = res.InputTokens
		out.payload.OutputTokens = res.OutputTokens
		out.payload.CostUSD = res.CostUSD
		if out.payload.CostUSD == 0 {
			out.payload.CostUSD = o.pricing.costOf(provider, res.InputTokens, res.OutputTokens)
		}
	}
	return out
}

// record merges one finished call into the invocation's usage map and
// monitoring totals.
func (o *Orchestrator) record(ctx context.Context, r *run, key string, c callResult) {
	r.result.Usage[key] = c.payload
	r.result.Monitoring.StageMetrics[key] = c.metric
	r.result.Monitoring.TotalLatencyMS += c.payload.LatencyMS
	r.result.Monitoring.TotalCostUSD = round6(r.result.Monitoring.TotalCostUSD + c.payload.CostUSD)
	r.result.Monitoring.TotalInputTokens += c.payload.InputTokens
	r.result.Monitoring.TotalOutputTokens += c.payload.OutputTokens

	if o.telemetry != nil {
		o.telemetry.RecordCall(ctx, key, c.payload.Provider, c.payload.Model, c.payload.Status,
			time.Duration(c.payload.LatencyMS)*time.Millisecond,
			c.payload.InputTokens, c.payload.OutputTokens, c.payload.CostUSD)
	}
}

// runFastPath answers with the first stage alone: no graph, no synthesis.
func (o *Orchestrator) runFastPath(ctx context.Context, r *run) {
	stage := r.req.Stages[0]
	r.result.Monitoring.GraphLevels = [][]int{{0}}

	c := o.call(ctx, r, stage.Model,
		stage.System,
		firstStagePrompt(r.req.ThreadSummary, r.req.Question),
		r.req.Budget.MaxTokensPerStage)
	o.record(ctx, r, stage.Name, c)

	if c.metric.Status != resilience.StatusOK {
		o.log.Warn("fast path stage failed", "stage", stage.Name, "error", c.metric.Err)
		r.result.Final = format(o.msgs.FirstStageFailed, c.metric.Err)
		r.failed = true
		return
	}
	r.result.Stages = append(r.result.Stages, StageResult{Name: stage.Name, Text: c.text})
	r.result.Final = c.text
}

// runPipeline executes the full multi-stage path: infer the graph, run each
// level in parallel, stop early when the budget is exhausted, then synthesize.
func (o *Orchestrator) runPipeline(ctx context.Context, r *run) {
	req := r.req
	n := len(req.Stages)

	var deps map[int][]int
	if req.Exec.EnableDynamicGraph {
		deps = inferDependencies(req.Stages)
	} else {
		deps = linearChain(n)
	}
	lvls := levels(n, deps)
	r.result.Monitoring.GraphLevels = lvls

	outputs := make(map[int]StageResult, n)

	for _, level := range lvls {
		results := make([]callResult, len(level))

		g, gctx := errgroup.WithContext(ctx)
		for slot, idx := range level {
			slot, idx := slot, idx
			stage := req.Stages[idx]
			g.Go(func() error {
				prompt := o.stageUserPrompt(r, idx, deps[idx], outputs)
				results[slot] = o.call(gctx, r, stage.Model, stage.System, prompt, req.Budget.MaxTokensPerStage)
				return nil
			})
		}
		_ = g.Wait()

		for slot, idx := range level {
			stage := req.Stages[idx]
			c := results[slot]
			o.record(ctx, r, stage.Name, c)

			text := c.text
			if c.metric.Status != resilience.StatusOK {
				o.log.Warn("stage degraded", "stage", stage.Name, "error", c.metric.Err)
				text = "[" + stage.Name + " skipped due to transient failure]\nReason: " + c.metric.Err
			}
			outputs[idx] = StageResult{Name: stage.Name, Text: text}
		}

		if req.Budget.MaxUSD > 0 && r.result.Monitoring.TotalCostUSD >= req.Budget.MaxUSD {
			o.log.Warn("budget guard triggered",
				"cost_usd", r.result.Monitoring.TotalCostUSD,
				"max_usd", req.Budget.MaxUSD)
			r.result.Monitoring.BudgetGuardTriggered = true
			break
		}
	}

	indices := make([]int, 0, len(outputs))
	for i := range outputs {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	for _, i := range indices {
		r.result.Stages = append(r.result.Stages, outputs[i])
	}

	o.runSynthesis(ctx, r)
}

// stageUserPrompt assembles the user prompt for one stage. Only the first
// stage sees the thread context; an independent later stage gets the bare
// question, and dependent stages get the question plus each dependency's
// named output.
func (o *Orchestrator) stageUserPrompt(r *run, idx int, depIdxs []int, outputs map[int]StageResult) string {
	summary := ""
	if idx == 0 {
		summary = r.req.ThreadSummary
	}
	depResults := make([]StageResult, 0, len(depIdxs))
	for _, d := range depIdxs {
		if out, ok := outputs[d]; ok {
			depResults = append(depResults, out)
		}
	}
	if len(depResults) == 0 {
		return firstStagePrompt(summary, r.req.Question)
	}
	return stagePrompt(r.req.Question, depResults)
}

// runSynthesis merges the emitted stage outputs into the final answer. A
// failed synthesis yields a placeholder final; stage text is never passed off
// as a synthesized answer.
func (o *Orchestrator) runSynthesis(ctx context.Context, r *run) {
	model := r.req.SynthModel
	if model == "" {
		model = r.req.Stages[0].Model
	}

	c := o.call(ctx, r, model, SynthSystem,
		synthPrompt(r.req.Question, r.result.Stages),
		r.req.Budget.SynthMaxTokens)
	o.record(ctx, r, usageKeySynth, c)

	if c.metric.Status != resilience.StatusOK {
		o.log.Warn("synthesis failed", "error", c.metric.Err)
		r.result.Final = format(o.msgs.SynthFailed, c.metric.Err)
		r.failed = true
		return
	}
	r.result.Final = c.text
}

// runQuality scores the final answer and, when enabled and warranted, runs a
// single refine pass. Refined text is adopted only when it scores at least as
// well as the original; a failed refine call changes nothing.
func (o *Orchestrator) runQuality(ctx context.Context, r *run) {
	req := r.req
	r.result.Quality = scoreQuality(req.Question, r.result.Final, r.result.Stages)

	// A failure placeholder is the answer. Refining it would replace the
	// error report with ungrounded model output.
	if r.failed {
		return
	}
	if !req.Exec.EnableQualityMatrix || !req.Exec.AutoRefineOnce {
		return
	}
	if r.result.Quality.Min() >= req.Exec.QualityMinThreshold {
		return
	}

	model := req.SynthModel
	if model == "" {
		model = req.Stages[0].Model
	}

	c := o.call(ctx, r, model, QualityRefineSystem,
		refinePrompt(req.Question, r.result.Final, r.result.Quality),
		req.Budget.SynthMaxTokens)
	o.record(ctx, r, usageKeyRefine, c)

	if c.metric.Status != resilience.StatusOK {
		o.log.Debug("refine pass failed, keeping original answer", "error", c.metric.Err)
		return
	}

	refined := scoreQuality(req.Question, c.text, r.result.Stages)
	if refined.Overall >= r.result.Quality.Overall {
		refined.Refined = true
		r.result.Final = c.text
		r.result.Quality = refined
	}
}
