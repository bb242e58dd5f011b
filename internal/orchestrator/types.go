package orchestrator

import "time"

// Decision is the gate's verdict on a question.
type Decision string

const (
	// DecisionSimple routes the question to a single stage and skips the
	// synthesis step.
	DecisionSimple Decision = "SIMPLE"

	// DecisionMulti runs the full multi-stage pipeline.
	DecisionMulti Decision = "MULTI"
)

// StageSpec describes one pipeline stage: an independent LLM invocation with
// its own system prompt and backend.
type StageSpec struct {
	// Name is the stage's display name. Non-empty; used as the key in usage
	// maps, as the heading in downstream prompts, and as the role label when
	// the caller persists messages.
	Name string

	// System is the stage's system prompt.
	System string

	// Model is a "<provider>:<model-id>" identifier. Without a colon, the
	// provider defaults to openai.
	Model string
}

// Budget bounds the cost and size of one pipeline run. It is immutable for
// the duration of the invocation.
type Budget struct {
	// MaxUSD is the cumulative cost ceiling. Zero or negative disables the
	// budget guard.
	MaxUSD float64

	// MaxTokensPerStage caps the output of each non-synthesis stage call.
	MaxTokensPerStage int

	// SynthMaxTokens caps the output of the synthesis and refine calls.
	SynthMaxTokens int
}

// ExecConfig carries the pipeline's execution tunables.
type ExecConfig struct {
	// RetriesPerStage is the number of retries after the first attempt;
	// total attempts per call is RetriesPerStage+1.
	RetriesPerStage int

	// StageTimeout is the wall-clock cap on one attempt of one call.
	StageTimeout time.Duration

	// EnableDynamicGraph turns on prose-driven dependency inference. When
	// false the stages form a strict linear chain.
	EnableDynamicGraph bool

	// EnableQualityMatrix enables the quality control loop. The heuristic
	// report itself is always computed; this flag gates refinement.
	EnableQualityMatrix bool

	// QualityMinThreshold is the per-axis score, in [0, 5], below which a
	// refine pass is considered.
	QualityMinThreshold float64

	// AutoRefineOnce permits a single refine call when quality falls below
	// the threshold.
	AutoRefineOnce bool
}

// Request is one orchestrator invocation: a single question answered by a
// user-configured pipeline.
type Request struct {
	// Question is the user's question text.
	Question string

	// ThreadSummary is the rolling summary of prior conversation. May be
	// empty.
	ThreadSummary string

	// APIKeys maps provider name to API key for this invocation.
	APIKeys map[string]string

	// Stages is the ordered pipeline. Index order is insertion order and the
	// scheduling tie-breaker.
	Stages []StageSpec

	// SynthModel is the "<provider>:<model>" identifier for the synthesis
	// (and refine) calls.
	SynthModel string

	// Budget bounds this invocation.
	Budget Budget

	// UseLLMGate asks a model to confirm the rule-based gate decision.
	UseLLMGate bool

	// GateModel is the "<provider>:<model>" identifier for the LLM gate.
	// Empty means the default gate model.
	GateModel string

	// Exec carries the execution tunables.
	Exec ExecConfig
}

// StageResult is one stage's emitted output.
type StageResult struct {
	// Name is the stage's display name.
	Name string

	// Text is the stage's output, or the degraded placeholder when the stage
	// exhausted its retries.
	Text string
}

// UsagePayload is the per-call usage record keyed by stage name (plus the
// reserved "synth" and "quality_refine" keys) in [Result.Usage].
type UsagePayload struct {
	Text         string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int

	// CostUSD is the vendor-reported cost, or the imputed cost when the
	// vendor reported none.
	CostUSD float64

	LatencyMS int64
	Retries   int

	// Status is "ok" or "failed".
	Status string
}

// StageMetric is the per-call runtime record in [Monitoring.StageMetrics].
type StageMetric struct {
	LatencyMS int64
	Retries   int
	Status    string

	// Err is the last observed error string when Status is "failed".
	Err string
}

// Monitoring aggregates what the pipeline actually did.
type Monitoring struct {
	// DecisionReason explains the gate verdict.
	DecisionReason string

	// GraphLevels lists the parallel execution levels by stage index.
	GraphLevels [][]int

	TotalLatencyMS    int64
	TotalCostUSD      float64
	TotalInputTokens  int
	TotalOutputTokens int

	// StageMetrics maps stage name (and "synth"/"quality_refine") to its
	// runtime record.
	StageMetrics map[string]StageMetric

	// BudgetGuardTriggered is set when cumulative cost reached the ceiling
	// and remaining levels were skipped.
	BudgetGuardTriggered bool
}

// Quality is the four-axis heuristic score of the final answer.
type Quality struct {
	// Accuracy, Completeness, Consistency, and Format are each clamped to
	// [0, 5] and rounded to one decimal.
	Accuracy     float64
	Completeness float64
	Consistency  float64
	Format       float64

	// Overall is the arithmetic mean of the four axes, to two decimals.
	Overall float64

	// Refined is true when a refine pass ran and its output was adopted.
	Refined bool
}

// Min returns the lowest of the four axis scores.
func (q Quality) Min() float64 {
	m := q.Accuracy
	for _, v := range []float64{q.Completeness, q.Consistency, q.Format} {
		if v < m {
			m = v
		}
	}
	return m
}

// Result is the orchestrator's complete answer to one invocation. Run never
// fails with an error; when processing cannot continue, Final carries a
// human-readable explanation and the remaining fields describe whatever work
// was done.
type Result struct {
	// Final is the answer text delivered to the user.
	Final string

	// Decision is the gate verdict for this invocation.
	Decision Decision

	// Stages holds the emitted stage outputs in ascending input-index order.
	Stages []StageResult

	// Usage maps stage name (plus "synth" and optionally "quality_refine")
	// to its usage payload. Callers must not rely on iteration order.
	Usage map[string]UsagePayload

	// Quality is the heuristic score of Final.
	Quality Quality

	// Monitoring aggregates runtime telemetry for this invocation.
	Monitoring Monitoring
}
