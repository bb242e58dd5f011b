// Package postgres is the pgx-backed implementation of the Quorum store:
// accounts, Telegram links, single-use link codes, threads with a rolling
// summary, pipeline preferences, and usage events.
//
// All operations share a single [pgxpool.Pool]. [Migrate] bootstraps the
// schema idempotently via CREATE TABLE IF NOT EXISTS.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL — accounts and Telegram linking
// ─────────────────────────────────────────────────────────────────────────────

const ddlAccounts = `
CREATE TABLE IF NOT EXISTS users (
    id            BIGSERIAL    PRIMARY KEY,
    email         TEXT         NOT NULL UNIQUE,
    password_hash TEXT         NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS api_keys (
    user_id       BIGINT       NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    provider      TEXT         NOT NULL,
    encrypted_key TEXT         NOT NULL,
    updated_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, provider)
);

CREATE TABLE IF NOT EXISTS telegram_links (
    chat_id    TEXT         PRIMARY KEY,
    user_id    BIGINT       NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    linked_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_telegram_links_user_id
    ON telegram_links (user_id);

CREATE TABLE IF NOT EXISTS link_codes (
    code        TEXT         PRIMARY KEY,
    user_id     BIGINT       NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    status      TEXT         NOT NULL DEFAULT 'active',
    expires_at  TIMESTAMPTZ  NOT NULL,
    consumed_at TIMESTAMPTZ,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_link_codes_user_id
    ON link_codes (user_id);

CREATE INDEX IF NOT EXISTS idx_link_codes_expires_at
    ON link_codes (expires_at);
`

// ─────────────────────────────────────────────────────────────────────────────
// DDL — conversations
// ─────────────────────────────────────────────────────────────────────────────

const ddlConversations = `
CREATE TABLE IF NOT EXISTS threads (
    id         BIGSERIAL    PRIMARY KEY,
    user_id    BIGINT       NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    thread_key TEXT         NOT NULL,
    summary    TEXT         NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (user_id, thread_key)
);

CREATE INDEX IF NOT EXISTS idx_threads_user_id
    ON threads (user_id);

CREATE TABLE IF NOT EXISTS messages (
    id         BIGSERIAL    PRIMARY KEY,
    thread_id  BIGINT       NOT NULL REFERENCES threads (id) ON DELETE CASCADE,
    role       TEXT         NOT NULL,
    content    TEXT         NOT NULL,
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_thread_created
    ON messages (thread_id, created_at);
`

// ─────────────────────────────────────────────────────────────────────────────
// DDL — pipeline preferences and usage accounting
// ─────────────────────────────────────────────────────────────────────────────

const ddlPipeline = `
CREATE TABLE IF NOT EXISTS preferences (
    user_id     BIGINT       PRIMARY KEY REFERENCES users (id) ON DELETE CASCADE,
    stages      JSONB        NOT NULL DEFAULT '[]',
    synth_model TEXT         NOT NULL DEFAULT '',
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS usage_events (
    id            BIGSERIAL    PRIMARY KEY,
    user_id       BIGINT       NOT NULL,
    stage         TEXT         NOT NULL DEFAULT '',
    provider      TEXT         NOT NULL,
    model         TEXT         NOT NULL,
    input_tokens  BIGINT       NOT NULL DEFAULT 0,
    output_tokens BIGINT       NOT NULL DEFAULT 0,
    cost_usd      NUMERIC(12,6) NOT NULL DEFAULT 0,
    status        TEXT         NOT NULL DEFAULT 'ok',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_usage_events_user_created
    ON usage_events (user_id, created_at);
`

// Migrate creates all tables and indexes if they do not exist. It is safe to
// run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlAccounts, ddlConversations, ddlPipeline} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres store: migrate: %w", err)
		}
	}
	return nil
}
