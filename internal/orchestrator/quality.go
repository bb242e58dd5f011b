package orchestrator

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Heuristic quality scoring of the final answer. Four axes on a 0–5 scale,
// computed without any model call so the report is free and deterministic.

var contradictionMarkers = []string{
	"but also not", "yes and no", "모순", "상충", "contradiction", "inconsistent",
}

var uncertaintyMarkers = []string{"uncertain", "불확실"}

var checkerErrorMarkers = []string{"error", "모순", "inconsistent"}

// scoreQuality rates answer against question on accuracy, completeness,
// consistency, and format. Stage outputs feed the consistency axis: a stage
// whose name marks it as a checker and whose output flags problems lowers the
// score.
func scoreQuality(question, answer string, stages []StageResult) Quality {
	qWords := wordSet(question)
	aWords := wordSet(answer)

	inter := 0
	for w := range qWords {
		if aWords[w] {
			inter++
		}
	}
	overlap := float64(inter) / float64(max(1, len(qWords)))

	lowerAnswer := strings.ToLower(answer)

	accuracy := 2.5 + math.Min(2.0, 2.0*overlap)
	if containsAny(lowerAnswer, uncertaintyMarkers) {
		accuracy -= 0.5
	}

	completeness := 2.0
	if utf8.RuneCountInString(answer) >= 220 {
		completeness += 1.5
	}
	if overlap >= 0.25 {
		completeness += 1.0
	}
	if overlap >= 0.45 {
		completeness += 0.5
	}

	consistency := 4.0
	if containsAny(lowerAnswer, contradictionMarkers) {
		consistency -= 1.5
	}
	for _, s := range stages {
		if !strings.Contains(strings.ToLower(s.Name), "checker") {
			continue
		}
		if containsAny(strings.ToLower(s.Text), checkerErrorMarkers) {
			consistency -= 0.8
			break
		}
	}

	format := 2.5
	if strings.Contains(answer, "\n- ") || strings.Contains(answer, "\n1.") {
		format += 1.0
	}
	if trimmed := strings.TrimRight(answer, " \t\n\r"); trimmed != "" {
		last, _ := utf8.DecodeLastRuneInString(trimmed)
		switch last {
		case '.', '!', '?', '다', '요':
			format += 0.5
		}
	}
	if len(strings.Split(answer, "\n")) >= 3 {
		format += 0.5
	}

	q := Quality{
		Accuracy:     clampAxis(accuracy),
		Completeness: clampAxis(completeness),
		Consistency:  clampAxis(consistency),
		Format:       clampAxis(format),
	}
	q.Overall = round2((q.Accuracy + q.Completeness + q.Consistency + q.Format) / 4)
	return q
}

// wordSet tokenizes text into lowercased whitespace-separated words at least
// three runes long.
func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if utf8.RuneCountInString(w) >= 3 {
			set[w] = true
		}
	}
	return set
}

// clampAxis bounds an axis score to [0, 5] and rounds to one decimal.
func clampAxis(v float64) float64 {
	v = math.Max(0, math.Min(5, v))
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
