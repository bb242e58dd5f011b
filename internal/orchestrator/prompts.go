package orchestrator

import (
	"fmt"
	"strings"
)

// System prompts for the orchestrator's own calls. Stage system prompts come
// from the user's pipeline configuration.
const (
	// SynthSystem drives the synthesis stage that merges all stage outputs.
	SynthSystem = "You are Synthesizer. Produce a single final answer that addresses critiques. Be actionable. Mention uncertainty if needed. Always reply in the same language as the question."

	// QualityRefineSystem drives the optional one-shot refine call.
	QualityRefineSystem = "You are Quality Refiner. Improve answer quality using this matrix: accuracy, completeness, consistency, format. Keep the answer concise, faithful, and actionable. Always reply in the same language as the question."

	// GateSystem drives the optional LLM gate.
	GateSystem = "You are a cost-aware router. Decide whether this needs multi-model debate."
)

// firstStagePrompt builds the user prompt for the first stage in a chain:
// thread context (when present) followed by the question.
func firstStagePrompt(summary, question string) string {
	if summary == "" {
		return "Question: " + question
	}
	return fmt.Sprintf("Thread context:\n%s\n\nQuestion: %s", summary, question)
}

// stagePrompt builds the user prompt for a stage with dependencies: the
// question followed by each dependency's named output in dependency order.
func stagePrompt(question string, deps []StageResult) string {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\n")
	for i, d := range deps {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(d.Name)
		sb.WriteString(":\n")
		sb.WriteString(d.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// synthPrompt builds the synthesis user prompt from all emitted stage results
// in ascending index order, ending with the "Final answer:" sentinel.
func synthPrompt(question string, stages []StageResult) string {
	var sb strings.Builder
	sb.WriteString("Q: ")
	sb.WriteString(question)
	sb.WriteString("\n\n")
	for _, s := range stages {
		sb.WriteString(s.Name)
		sb.WriteString(":\n")
		sb.WriteString(s.Text)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Final answer:")
	return sb.String()
}

// gatePrompt builds the LLM gate's user prompt.
func gatePrompt(summary, question string) string {
	return fmt.Sprintf(
		"Thread summary:\n%s\n\nDecide whether this needs multi-model debate.\nReturn only one word: SIMPLE or MULTI.\n\nQuestion: %s\n",
		summary, question,
	)
}

// refinePrompt builds the refine user prompt: the question, the current
// answer, and the quality scores that triggered the pass.
func refinePrompt(question, final string, q Quality) string {
	return fmt.Sprintf(
		"Q: %s\n\nCurrent answer:\n%s\n\nQuality matrix: accuracy=%.1f, completeness=%.1f, consistency=%.1f, format=%.1f\n\nImproved answer:",
		question, final, q.Accuracy, q.Completeness, q.Consistency, q.Format,
	)
}
