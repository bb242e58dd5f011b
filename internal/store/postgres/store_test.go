package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daybreakhan/quorum/internal/store"
	"github.com/daybreakhan/quorum/internal/store/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if QUORUM_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("QUORUM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QUORUM_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	_, err = pool.Exec(ctx, `
		DROP TABLE IF EXISTS usage_events, preferences, messages, threads,
		    link_codes, telegram_links, api_keys, users CASCADE`)
	if err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	st, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

func mustUser(t *testing.T, st *postgres.Store) *store.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), fmt.Sprintf("user-%d@example.com", time.Now().UnixNano()), "x")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestStore_APIKeyUpsert(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, st)

	if err := st.SaveAPIKey(ctx, u.ID, "openai", "enc-1"); err != nil {
		t.Fatalf("SaveAPIKey: %v", err)
	}
	if err := st.SaveAPIKey(ctx, u.ID, "openai", "enc-2"); err != nil {
		t.Fatalf("SaveAPIKey (update): %v", err)
	}
	if err := st.SaveAPIKey(ctx, u.ID, "anthropic", "enc-3"); err != nil {
		t.Fatalf("SaveAPIKey (second provider): %v", err)
	}

	keys, err := st.APIKeys(ctx, u.ID)
	if err != nil {
		t.Fatalf("APIKeys: %v", err)
	}
	if keys["openai"] != "enc-2" || keys["anthropic"] != "enc-3" || len(keys) != 2 {
		t.Errorf("keys: %v", keys)
	}
}

func TestStore_LinkCodeLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, st)

	if _, err := st.CreateLinkCode(ctx, u.ID, "ABC123", 5*time.Minute); err != nil {
		t.Fatalf("CreateLinkCode: %v", err)
	}

	lc, err := st.LinkCodeByCode(ctx, "ABC123")
	if err != nil {
		t.Fatalf("LinkCodeByCode: %v", err)
	}
	if lc.Status != store.LinkCodeActive || lc.UserID != u.ID {
		t.Errorf("fresh code: %+v", lc)
	}

	consumed, err := st.ConsumeLinkCode(ctx, "ABC123")
	if err != nil {
		t.Fatalf("ConsumeLinkCode: %v", err)
	}
	if consumed.UserID != u.ID {
		t.Errorf("consumed code user: %+v", consumed)
	}

	// Second consumption fails.
	if _, err := st.ConsumeLinkCode(ctx, "ABC123"); err != store.ErrNotFound {
		t.Errorf("double consume: want ErrNotFound, got %v", err)
	}

	// Expired codes cannot be consumed.
	if _, err := st.CreateLinkCode(ctx, u.ID, "EXPIRED1", -time.Minute); err != nil {
		t.Fatalf("CreateLinkCode (expired): %v", err)
	}
	if _, err := st.ConsumeLinkCode(ctx, "EXPIRED1"); err != store.ErrNotFound {
		t.Errorf("expired consume: want ErrNotFound, got %v", err)
	}

	if _, err := st.LinkCodeByCode(ctx, "NOPE"); err != store.ErrNotFound {
		t.Errorf("missing code: want ErrNotFound, got %v", err)
	}
}

func TestStore_ChatLinking(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, st)

	linked, err := st.ChatLinked(ctx, "chat-1")
	if err != nil || linked {
		t.Fatalf("fresh chat: linked=%v err=%v", linked, err)
	}
	if _, err := st.UserByChat(ctx, "chat-1"); err != store.ErrNotFound {
		t.Errorf("unlinked chat: want ErrNotFound, got %v", err)
	}

	if err := st.LinkChat(ctx, u.ID, "chat-1"); err != nil {
		t.Fatalf("LinkChat: %v", err)
	}

	linked, err = st.ChatLinked(ctx, "chat-1")
	if err != nil || !linked {
		t.Fatalf("after link: linked=%v err=%v", linked, err)
	}
	got, err := st.UserByChat(ctx, "chat-1")
	if err != nil || got.ID != u.ID {
		t.Errorf("UserByChat: got %+v err=%v", got, err)
	}
}

func TestStore_ThreadsAndMessages(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, st)

	t1, err := st.EnsureThread(ctx, u.ID, "telegram:42")
	if err != nil {
		t.Fatalf("EnsureThread: %v", err)
	}
	t2, err := st.EnsureThread(ctx, u.ID, "telegram:42")
	if err != nil {
		t.Fatalf("EnsureThread (again): %v", err)
	}
	if t1.ID != t2.ID {
		t.Errorf("get-or-create returned different threads: %d vs %d", t1.ID, t2.ID)
	}

	for i, turn := range []struct{ role, content string }{
		{"user", "first question"},
		{"assistant", "first answer"},
		{"user", "second question"},
	} {
		if err := st.AppendMessage(ctx, t1.ID, turn.role, turn.content); err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
	}

	msgs, err := st.RecentMessages(ctx, t1.ID, 2)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "first answer" || msgs[1].Content != "second question" {
		t.Errorf("recent messages: %+v", msgs)
	}

	if err := st.UpdateThreadSummary(ctx, t1.ID, "Q: first question\nA: first answer"); err != nil {
		t.Fatalf("UpdateThreadSummary: %v", err)
	}
	t3, _ := st.EnsureThread(ctx, u.ID, "telegram:42")
	if t3.Summary == "" {
		t.Error("summary not persisted")
	}
}

func TestStore_Preferences(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, st)

	// Unconfigured user gets empty preferences, not an error.
	p, err := st.PreferencesByUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("PreferencesByUser (fresh): %v", err)
	}
	if len(p.Stages) != 0 {
		t.Errorf("fresh preferences should be empty: %+v", p)
	}

	p.Stages = []store.StageConfig{
		{Name: "Drafter", System: "Draft an answer.", Model: "openai:gpt-4o-mini"},
		{Name: "Critic", System: "Critique the draft.", Model: "anthropic:claude-sonnet-4-5"},
	}
	p.SynthModel = "openai:gpt-4o"
	if err := st.SavePreferences(ctx, p); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}

	got, err := st.PreferencesByUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("PreferencesByUser: %v", err)
	}
	if len(got.Stages) != 2 || got.Stages[1].Model != "anthropic:claude-sonnet-4-5" || got.SynthModel != "openai:gpt-4o" {
		t.Errorf("round trip: %+v", got)
	}
}

func TestStore_RecordUsage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, st)

	events := []store.UsageEvent{
		{UserID: u.ID, Stage: "Drafter", Provider: "openai", Model: "gpt-4o-mini", InputTokens: 100, OutputTokens: 50, CostUSD: 0.000125, Status: "ok"},
		{UserID: u.ID, Stage: "synth", Provider: "openai", Model: "gpt-4o", InputTokens: 300, OutputTokens: 200, CostUSD: 0.00045, Status: "ok"},
		{UserID: u.ID, Stage: "Critic", Provider: "anthropic", Model: "claude-sonnet-4-5", Status: "failed"},
	}
	if err := st.RecordUsage(ctx, events); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	// Empty batch is a no-op.
	if err := st.RecordUsage(ctx, nil); err != nil {
		t.Fatalf("RecordUsage (empty): %v", err)
	}
}
