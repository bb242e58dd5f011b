package orchestrator

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Clarification is a pre-pipeline estimate of how ambiguous a question is.
// A high score means the pipeline would likely burn budget answering the
// wrong question; callers can surface the follow-up questions instead of
// running the full pipeline.
type Clarification struct {
	// Score is the ambiguity estimate in [0, 1].
	Score float64

	// Reasons explain what drove the score, at most three.
	Reasons []string

	// Questions are suggested follow-ups to ask the user, at most two.
	Questions []string
}

var (
	deicticPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(it|this|that|these|those)\b`),
		regexp.MustCompile(`(이거|그거|저거|이것|그것|저것|요거)`),
	}

	questionMarkPattern = regexp.MustCompile(`[?？]`)

	outputFormatPattern = regexp.MustCompile(`\b(json|table|markdown|코드|문서|요약|리스트)\b`)
)

var goalHints = []string{
	"implement", "fix", "compare", "plan", "design", "debug", "review",
	"구현", "수정", "비교", "계획", "설계", "디버그", "리뷰",
}

// AnalyzeClarity scores question for ambiguity using additive heuristics:
// short questions, multiple question marks, deictic references, a missing
// task verb, and a missing output format each push the score up.
func AnalyzeClarity(question string) Clarification {
	q := strings.TrimSpace(question)
	qLower := strings.ToLower(q)

	var (
		score   float64
		reasons []string
	)

	if utf8.RuneCountInString(q) < 20 {
		score += 0.35
		reasons = append(reasons, "요청이 짧아 목표/범위 해석 여지가 큽니다.")
	}
	if len(questionMarkPattern.FindAllString(q, -1)) >= 2 {
		score += 0.15
		reasons = append(reasons, "질문이 복수 개라 우선순위가 모호합니다.")
	}
	for _, p := range deicticPatterns {
		if p.MatchString(qLower) {
			score += 0.25
			reasons = append(reasons, "지시어(이거/that 등)가 있어 대상이 불명확할 수 있습니다.")
			break
		}
	}
	if !containsAny(qLower, goalHints) {
		score += 0.15
		reasons = append(reasons, "원하는 작업 유형(구현/비교/리뷰 등)이 명시되지 않았습니다.")
	}
	if !outputFormatPattern.MatchString(qLower) {
		score += 0.10
		reasons = append(reasons, "원하는 출력 형식이 명확하지 않습니다.")
	}

	score = math.Min(1.0, round2(score))

	if len(reasons) > 3 {
		reasons = reasons[:3]
	}
	return Clarification{
		Score:   score,
		Reasons: reasons,
		Questions: []string{
			"가장 중요한 목표 1가지를 먼저 알려주세요. (예: 속도 최적화, 정확도, 비용 절감)",
			"제약 조건을 알려주세요. (예: 시간, 예산, 기술 스택, 변경 가능 범위)",
		},
	}
}
