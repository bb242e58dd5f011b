package orchestrator

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/daybreakhan/quorum/internal/resilience"
	"github.com/daybreakhan/quorum/pkg/provider/llm"
)

// simpleMaxLen is the question length (in runes) at or above which the
// rule-based gate always answers MULTI, regardless of content.
const simpleMaxLen = 20

// defaultGateModel is used when the caller enables the LLM gate without
// naming a model.
const defaultGateModel = "openai:gpt-4o-mini"

// greetingPatterns match greetings and small talk in English and Korean.
// They are anchored to the whole trimmed question so that a greeting embedded
// in a real question does not short-circuit the pipeline.
var greetingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(hi|hello|hey|yo|sup|howdy|good (morning|afternoon|evening|night))[!.?~\s]*$`),
	regexp.MustCompile(`(?i)^(thanks|thank you|thx|ty|ok(ay)?|bye|goodbye|see you|good)[!.?~\s]*$`),
	regexp.MustCompile(`^(안녕(하세요)?|하이|반가워(요)?|고마워(요)?|감사(합니다|해요)?|ㅎㅇ|ㅇㅋ|잘가(요)?|잘자(요)?)[!.?~\s]*$`),
}

// ruleGate classifies question without any model call. It answers SIMPLE only
// for short greetings and small talk; everything else gets the full pipeline.
func ruleGate(question string) (Decision, string) {
	q := strings.TrimSpace(question)
	if utf8.RuneCountInString(q) < simpleMaxLen {
		for _, re := range greetingPatterns {
			if re.MatchString(q) {
				return DecisionSimple, "rule: short greeting/small talk"
			}
		}
	}
	return DecisionMulti, "rule: non-trivial question"
}

// llmGate asks a small model to confirm or override the rule-based decision.
// Any failure keeps the rule-based verdict: the gate is a cost optimisation,
// never a point of failure.
func (o *Orchestrator) llmGate(ctx context.Context, req Request, ruled Decision, ruledReason string) (Decision, string) {
	gateModel := req.GateModel
	if gateModel == "" {
		gateModel = defaultGateModel
	}
	provider, model := llm.SplitModel(gateModel)

	key := req.APIKeys[provider]
	gen, ok := o.registry.Lookup(provider)
	if !ok || key == "" {
		return ruled, ruledReason
	}

	res, rt := resilience.Call(ctx, resilience.Policy{Attempts: 1, AttemptTimeout: req.Exec.StageTimeout}, gen, llm.Request{
		APIKey:    key,
		Model:     model,
		System:    GateSystem,
		User:      gatePrompt(req.ThreadSummary, req.Question),
		MaxTokens: 5,
	})
	if rt.Status != resilience.StatusOK {
		slog.Debug("llm gate unavailable, keeping rule-based decision", "error", rt.Err)
		return ruled, ruledReason
	}

	verdict := strings.ToUpper(res.Text)
	switch {
	case strings.Contains(verdict, string(DecisionMulti)):
		return DecisionMulti, "llm gate: " + string(DecisionMulti)
	case strings.Contains(verdict, string(DecisionSimple)):
		return DecisionSimple, "llm gate: " + string(DecisionSimple)
	}
	return ruled, ruledReason
}
