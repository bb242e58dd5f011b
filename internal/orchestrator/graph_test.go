package orchestrator

import (
	"reflect"
	"testing"
)

func stagesNamed(prompts map[string]string, order ...string) []StageSpec {
	out := make([]StageSpec, 0, len(order))
	for _, name := range order {
		out = append(out, StageSpec{Name: name, System: prompts[name], Model: "openai:gpt-4o-mini"})
	}
	return out
}

func TestInferDependencies_ImplicitChain(t *testing.T) {
	t.Parallel()

	stages := stagesNamed(map[string]string{
		"Drafter":  "Write a first draft.",
		"Critic":   "Critique the draft carefully.",
		"Polisher": "Polish the text for tone.",
	}, "Drafter", "Critic", "Polisher")

	deps := inferDependencies(stages)
	if !reflect.DeepEqual(deps[1], []int{0}) {
		t.Errorf("stage 1 deps: want [0], got %v", deps[1])
	}
	if !reflect.DeepEqual(deps[2], []int{1}) {
		t.Errorf("stage 2 deps: want [1], got %v", deps[2])
	}
}

func TestInferDependencies_AllPreviousMarker(t *testing.T) {
	t.Parallel()

	stages := stagesNamed(map[string]string{
		"Drafter": "Write a first draft.",
		"Critic":  "Critique the draft.",
		"Judge":   "Weigh all previous outputs and pick the strongest points.",
	}, "Drafter", "Critic", "Judge")

	deps := inferDependencies(stages)
	if !reflect.DeepEqual(deps[2], []int{0, 1}) {
		t.Errorf("stage 2 deps: want [0 1], got %v", deps[2])
	}
}

func TestInferDependencies_NameReference(t *testing.T) {
	t.Parallel()

	stages := stagesNamed(map[string]string{
		"Drafter":  "Write a first draft.",
		"Critic":   "Critique independently, using the question only.",
		"Resolver": "Reconcile the Drafter output with the Critic notes.",
	}, "Drafter", "Critic", "Resolver")

	deps := inferDependencies(stages)
	if !reflect.DeepEqual(deps[2], []int{0, 1}) {
		t.Errorf("stage 2 deps: want [0 1], got %v", deps[2])
	}
}

func TestInferDependencies_IndependenceMarker(t *testing.T) {
	t.Parallel()

	stages := stagesNamed(map[string]string{
		"Drafter": "Write a first draft.",
		"Scout":   "Research the topic independently; do not assume prior context.",
	}, "Drafter", "Scout")

	deps := inferDependencies(stages)
	if len(deps[1]) != 0 {
		t.Errorf("stage 1 deps: want none, got %v", deps[1])
	}
}

func TestInferDependencies_KoreanMarkers(t *testing.T) {
	t.Parallel()

	stages := stagesNamed(map[string]string{
		"초안":  "질문에 대한 초안을 작성해줘.",
		"검증":  "질문만 보고 사실 여부를 검증해줘.",
		"종합가": "앞선 출력을 모두 종합해서 결론을 내줘.",
	}, "초안", "검증", "종합가")

	deps := inferDependencies(stages)
	if len(deps[1]) != 0 {
		t.Errorf("stage 1 deps: want none (독립 마커), got %v", deps[1])
	}
	if !reflect.DeepEqual(deps[2], []int{0, 1}) {
		t.Errorf("stage 2 deps: want [0 1], got %v", deps[2])
	}
}

func TestInferDependencies_ShortNamesIgnored(t *testing.T) {
	t.Parallel()

	// Two-rune names must not match as substrings of ordinary prose.
	stages := stagesNamed(map[string]string{
		"ab": "Write a draft.",
		"cd": "The word 'absolutely' contains ab but that is not a reference.",
	}, "ab", "cd")

	deps := inferDependencies(stages)
	if !reflect.DeepEqual(deps[1], []int{0}) {
		t.Errorf("stage 1 deps: want implicit [0], got %v", deps[1])
	}
}

func TestLinearChain(t *testing.T) {
	t.Parallel()

	deps := linearChain(3)
	if len(deps[0]) != 0 || !reflect.DeepEqual(deps[1], []int{0}) || !reflect.DeepEqual(deps[2], []int{1}) {
		t.Errorf("unexpected chain: %v", deps)
	}
}

func TestLevels_Partition(t *testing.T) {
	t.Parallel()

	// 0 and 1 independent, 2 depends on both.
	deps := map[int][]int{0: nil, 1: nil, 2: {0, 1}}
	got := levels(3, deps)
	want := [][]int{{0, 1}, {2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("levels: want %v, got %v", want, got)
	}
}

func TestLevels_Chain(t *testing.T) {
	t.Parallel()

	got := levels(3, linearChain(3))
	want := [][]int{{0}, {1}, {2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("levels: want %v, got %v", want, got)
	}
}

// TestLevels_CycleFallback verifies that a dependency cycle does not hang the
// scheduler: the lowest remaining index is forced through.
func TestLevels_CycleFallback(t *testing.T) {
	t.Parallel()

	deps := map[int][]int{0: {1}, 1: {0}}
	got := levels(2, deps)
	want := [][]int{{0}, {1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("levels: want %v, got %v", want, got)
	}
}

func TestLevels_EveryIndexExactlyOnce(t *testing.T) {
	t.Parallel()

	stages := stagesNamed(map[string]string{
		"a-stage": "Draft.",
		"b-stage": "Use all previous outputs.",
		"c-stage": "Work from the question only, standalone.",
		"d-stage": "Combine a-stage and c-stage results.",
	}, "a-stage", "b-stage", "c-stage", "d-stage")

	lvls := levels(len(stages), inferDependencies(stages))

	seen := make(map[int]int)
	for _, lvl := range lvls {
		for _, i := range lvl {
			seen[i]++
		}
	}
	for i := 0; i < len(stages); i++ {
		if seen[i] != 1 {
			t.Errorf("index %d scheduled %d times, want 1", i, seen[i])
		}
	}
}
