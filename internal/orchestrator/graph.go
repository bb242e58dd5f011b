package orchestrator

import (
	"sort"
	"strings"
)

// minNameRefLen is the minimum stage-name length considered for explicit
// name references. Shorter names would match inside unrelated words.
const minNameRefLen = 3

// allPrevMarkers are prompt phrases that declare a dependency on every
// earlier stage.
var allPrevMarkers = []string{
	"all previous", "all prior", "all outputs",
	"모든 이전", "앞선", "이전 단계 전체",
}

// independentMarkers are prompt phrases that declare a stage depends on
// nothing but the question.
var independentMarkers = []string{
	"independent", "standalone", "독립적으로", "질문만",
}

// inferDependencies derives the stage dependency map from declarative hints
// in each stage's system prompt. For stage i the rules are, in order:
//
//  1. An all-previous marker means deps = [0 .. i-1].
//  2. Any earlier stage whose (trimmed, lowercased) name of length ≥ 3
//     occurs in the prompt is an explicit dependency.
//  3. With no explicit references and no independence marker, the stage
//     implicitly chains onto its predecessor.
//  4. Otherwise the explicit set stands, possibly empty.
//
// Stage 0 never has dependencies.
func inferDependencies(stages []StageSpec) map[int][]int {
	deps := make(map[int][]int, len(stages))
	deps[0] = nil

	for i := 1; i < len(stages); i++ {
		prompt := strings.ToLower(stages[i].System)

		if containsAny(prompt, allPrevMarkers) {
			all := make([]int, i)
			for j := range all {
				all[j] = j
			}
			deps[i] = all
			continue
		}

		var explicit []int
		for j := 0; j < i; j++ {
			name := strings.ToLower(strings.TrimSpace(stages[j].Name))
			if len([]rune(name)) >= minNameRefLen && strings.Contains(prompt, name) {
				explicit = append(explicit, j)
			}
		}

		if len(explicit) == 0 && !containsAny(prompt, independentMarkers) {
			deps[i] = []int{i - 1}
			continue
		}
		deps[i] = explicit
	}
	return deps
}

// linearChain returns the strict chain deps[i] = [i-1], used when dynamic
// graph inference is disabled.
func linearChain(n int) map[int][]int {
	deps := make(map[int][]int, n)
	deps[0] = nil
	for i := 1; i < n; i++ {
		deps[i] = []int{i - 1}
	}
	return deps
}

// levels partitions stage indices {0..n-1} into parallel execution levels:
// every dependency of a stage in level k lives in a level strictly before k.
//
// Dependencies are inferred from prose and can form cycles; when no stage is
// ready the lowest remaining index is forced into the next level so the
// scheduler always terminates. Silently breaking the cycle beats refusing
// service on a malformed pipeline.
func levels(n int, deps map[int][]int) [][]int {
	remaining := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		remaining[i] = true
	}
	done := make(map[int]bool, n)

	var out [][]int
	for len(remaining) > 0 {
		var ready []int
		for i := range remaining {
			ok := true
			for _, d := range deps[i] {
				if !done[d] {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, i)
			}
		}

		if len(ready) == 0 {
			// Cycle guard: force the lowest remaining index.
			min := -1
			for i := range remaining {
				if min == -1 || i < min {
					min = i
				}
			}
			ready = []int{min}
		}

		sort.Ints(ready)
		out = append(out, ready)
		for _, i := range ready {
			delete(remaining, i)
			done[i] = true
		}
	}
	return out
}

// containsAny reports whether s contains any of the markers.
func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
