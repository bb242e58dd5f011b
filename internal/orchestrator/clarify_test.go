package orchestrator

import "testing"

func TestAnalyzeClarity_VagueShortQuestion(t *testing.T) {
	t.Parallel()

	c := AnalyzeClarity("fix this?")
	// Short, deictic, no output format: 0.35 + 0.25 + 0.10.
	if c.Score != 0.70 {
		t.Errorf("score: want 0.70, got %v", c.Score)
	}
	if len(c.Reasons) == 0 || len(c.Reasons) > 3 {
		t.Errorf("reasons: want 1..3 entries, got %d", len(c.Reasons))
	}
	if len(c.Questions) != 2 {
		t.Errorf("questions: want 2 follow-ups, got %d", len(c.Questions))
	}
}

func TestAnalyzeClarity_SpecificQuestionScoresLow(t *testing.T) {
	t.Parallel()

	c := AnalyzeClarity("compare pgbouncer vs odyssey for connection pooling and give me a markdown table of tradeoffs")
	if c.Score != 0 {
		t.Errorf("score: want 0, got %v", c.Score)
	}
}

func TestAnalyzeClarity_MultipleQuestionsPenalty(t *testing.T) {
	t.Parallel()

	one := AnalyzeClarity("how should I design the schema for the billing service markdown?")
	two := AnalyzeClarity("how should I design the schema? and what about the billing service markdown?")
	if two.Score <= one.Score {
		t.Errorf("multiple question marks should raise the score: %v vs %v", two.Score, one.Score)
	}
}

func TestAnalyzeClarity_ScoreCappedAtOne(t *testing.T) {
	t.Parallel()

	c := AnalyzeClarity("this??")
	if c.Score > 1.0 {
		t.Errorf("score must be capped at 1.0, got %v", c.Score)
	}
}

func TestAnalyzeClarity_KoreanDeictic(t *testing.T) {
	t.Parallel()

	c := AnalyzeClarity("이거 좀 고쳐줘")
	if c.Score < 0.60 {
		t.Errorf("short Korean deictic request should score high, got %v", c.Score)
	}
}
