// Package store defines the persistence types shared by the Quorum service:
// users, Telegram chat links, single-use link codes, conversation threads with
// a rolling summary, pipeline preferences, and per-call usage events.
//
// The concrete PostgreSQL implementation lives in the postgres subpackage;
// consumers depend on the types here and declare the method subset they need
// as a local interface.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Link code lifecycle states.
const (
	LinkCodeActive   = "active"
	LinkCodeConsumed = "consumed"
)

// User is a webapp account.
type User struct {
	ID    int64
	Email string
}

// LinkCode is a short-lived code a user generates in the webapp and sends to
// the Telegram bot to bind their chat to their account.
type LinkCode struct {
	Code       string
	UserID     int64
	Status     string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// Expired reports whether the code's lifetime has passed at now.
func (c LinkCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Thread is one conversation, keyed by its transport ("telegram:<chat-id>").
// Summary is the rolling condensation of prior turns fed back into the first
// pipeline stage.
type Thread struct {
	ID        int64
	UserID    int64
	ThreadKey string
	Summary   string
	UpdatedAt time.Time
}

// Message is one stored turn of a thread.
type Message struct {
	ID        int64
	ThreadID  int64
	Role      string
	Content   string
	CreatedAt time.Time
}

// StageConfig is one pipeline stage as the user configured it in the webapp.
// It is stored as JSONB and mapped to an orchestrator stage spec at run time.
type StageConfig struct {
	Name   string `json:"name"`
	System string `json:"system"`
	Model  string `json:"model"`
}

// Preferences is a user's pipeline configuration.
type Preferences struct {
	UserID     int64
	Stages     []StageConfig
	SynthModel string
	UpdatedAt  time.Time
}

// UsageEvent is one billable provider call.
type UsageEvent struct {
	UserID       int64
	Stage        string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Status       string
}
