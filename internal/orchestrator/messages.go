package orchestrator

import "fmt"

// Messages holds the user-facing placeholder strings returned as [Result.Final]
// when a pipeline cannot run or cannot finish. They are injected rather than
// baked in so deployments can localize them; the defaults are Korean, matching
// the audience Quorum shipped to first.
//
// Strings containing %s are format templates.
type Messages struct {
	// NoStages is returned when the stage list is empty.
	NoStages string

	// MissingAPIKey names a provider with no registered key. Template: provider.
	MissingAPIKey string

	// UnknownProvider names an unrecognised first-stage provider. Template: provider.
	UnknownProvider string

	// DuplicateStageName rejects stage lists with repeated names. Template: name.
	DuplicateStageName string

	// ReservedStageName rejects stage names that collide with usage-map keys
	// the orchestrator reserves. Template: name.
	ReservedStageName string

	// FirstStageFailed is returned on the fast path when the only call
	// exhausted its retries. Template: error.
	FirstStageFailed string

	// SynthFailed is returned when the synthesis call exhausted its retries.
	// Template: error.
	SynthFailed string
}

// DefaultMessages returns the Korean defaults.
func DefaultMessages() Messages {
	return Messages{
		NoStages:           "파이프라인 스테이지가 없습니다. 웹앱에서 스테이지를 먼저 구성해줘.",
		MissingAPIKey:      "API Key가 없습니다: %s — 웹앱에서 먼저 등록해줘.",
		UnknownProvider:    "지원하지 않는 프로바이더입니다: %s",
		DuplicateStageName: "스테이지 이름이 중복됐어: %s",
		ReservedStageName:  "스테이지 이름으로 쓸 수 없어: %s",
		FirstStageFailed:   "답변 생성에 실패했어: %s",
		SynthFailed:        "최종 합성에 실패했어: %s",
	}
}

// fill replaces empty fields with the defaults so a partially configured
// Messages still covers every path.
func (m Messages) fill() Messages {
	d := DefaultMessages()
	if m.NoStages == "" {
		m.NoStages = d.NoStages
	}
	if m.MissingAPIKey == "" {
		m.MissingAPIKey = d.MissingAPIKey
	}
	if m.UnknownProvider == "" {
		m.UnknownProvider = d.UnknownProvider
	}
	if m.DuplicateStageName == "" {
		m.DuplicateStageName = d.DuplicateStageName
	}
	if m.ReservedStageName == "" {
		m.ReservedStageName = d.ReservedStageName
	}
	if m.FirstStageFailed == "" {
		m.FirstStageFailed = d.FirstStageFailed
	}
	if m.SynthFailed == "" {
		m.SynthFailed = d.SynthFailed
	}
	return m
}

// format applies one template argument to a message template.
func format(tmpl, arg string) string {
	return fmt.Sprintf(tmpl, arg)
}
