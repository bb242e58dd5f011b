package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daybreakhan/quorum/internal/store"
)

// Store is the PostgreSQL-backed persistence layer. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection, and
// bootstraps the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// Ping probes the underlying pool. It satisfies the health checker surface.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Accounts and API keys
// ─────────────────────────────────────────────────────────────────────────────

// CreateUser inserts a new account and returns it.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (*store.User, error) {
	const q = `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id`

	u := &store.User{Email: email}
	if err := s.pool.QueryRow(ctx, q, email, passwordHash).Scan(&u.ID); err != nil {
		return nil, fmt.Errorf("postgres store: create user: %w", err)
	}
	return u, nil
}

// UserByChat resolves the account bound to a Telegram chat. Returns
// [store.ErrNotFound] when the chat is not linked.
func (s *Store) UserByChat(ctx context.Context, chatID string) (*store.User, error) {
	const q = `
		SELECT u.id, u.email
		FROM   telegram_links l
		JOIN   users u ON u.id = l.user_id
		WHERE  l.chat_id = $1`

	u := &store.User{}
	err := s.pool.QueryRow(ctx, q, chatID).Scan(&u.ID, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: user by chat: %w", err)
	}
	return u, nil
}

// SaveAPIKey upserts the encrypted key for one (user, provider) pair.
func (s *Store) SaveAPIKey(ctx context.Context, userID int64, provider, encryptedKey string) error {
	const q = `
		INSERT INTO api_keys (user_id, provider, encrypted_key, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, provider)
		DO UPDATE SET encrypted_key = EXCLUDED.encrypted_key, updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, userID, provider, encryptedKey); err != nil {
		return fmt.Errorf("postgres store: save api key: %w", err)
	}
	return nil
}

// APIKeys returns all of a user's keys, still encrypted, keyed by provider.
func (s *Store) APIKeys(ctx context.Context, userID int64) (map[string]string, error) {
	const q = `
		SELECT provider, encrypted_key
		FROM   api_keys
		WHERE  user_id = $1`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: api keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]string)
	for rows.Next() {
		var provider, enc string
		if err := rows.Scan(&provider, &enc); err != nil {
			return nil, fmt.Errorf("postgres store: api keys: %w", err)
		}
		keys[provider] = enc
	}
	return keys, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Link codes and Telegram links
// ─────────────────────────────────────────────────────────────────────────────

// CreateLinkCode stores a fresh code for userID valid for ttl.
func (s *Store) CreateLinkCode(ctx context.Context, userID int64, code string, ttl time.Duration) (*store.LinkCode, error) {
	const q = `
		INSERT INTO link_codes (code, user_id, status, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING expires_at`

	lc := &store.LinkCode{Code: code, UserID: userID, Status: store.LinkCodeActive}
	expires := time.Now().Add(ttl)
	if err := s.pool.QueryRow(ctx, q, code, userID, store.LinkCodeActive, expires).Scan(&lc.ExpiresAt); err != nil {
		return nil, fmt.Errorf("postgres store: create link code: %w", err)
	}
	return lc, nil
}

// LinkCodeByCode looks up a code regardless of status. Returns
// [store.ErrNotFound] when no such code exists.
func (s *Store) LinkCodeByCode(ctx context.Context, code string) (*store.LinkCode, error) {
	const q = `
		SELECT code, user_id, status, expires_at, consumed_at
		FROM   link_codes
		WHERE  code = $1`

	lc := &store.LinkCode{}
	err := s.pool.QueryRow(ctx, q, code).Scan(&lc.Code, &lc.UserID, &lc.Status, &lc.ExpiresAt, &lc.ConsumedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: link code: %w", err)
	}
	return lc, nil
}

// ConsumeLinkCode atomically marks an active, unexpired code as consumed and
// returns it. Returns [store.ErrNotFound] when the code is missing, already
// consumed, or expired.
func (s *Store) ConsumeLinkCode(ctx context.Context, code string) (*store.LinkCode, error) {
	const q = `
		UPDATE link_codes
		SET    status = $2, consumed_at = now()
		WHERE  code = $1
		  AND  status = $3
		  AND  expires_at > now()
		RETURNING user_id, expires_at`

	lc := &store.LinkCode{Code: code, Status: store.LinkCodeConsumed}
	err := s.pool.QueryRow(ctx, q, code, store.LinkCodeConsumed, store.LinkCodeActive).
		Scan(&lc.UserID, &lc.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: consume link code: %w", err)
	}
	return lc, nil
}

// ChatLinked reports whether a Telegram chat is already bound to any account.
func (s *Store) ChatLinked(ctx context.Context, chatID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM telegram_links WHERE chat_id = $1)`

	var linked bool
	if err := s.pool.QueryRow(ctx, q, chatID).Scan(&linked); err != nil {
		return false, fmt.Errorf("postgres store: chat linked: %w", err)
	}
	return linked, nil
}

// LinkChat binds a Telegram chat to an account.
func (s *Store) LinkChat(ctx context.Context, userID int64, chatID string) error {
	const q = `
		INSERT INTO telegram_links (chat_id, user_id)
		VALUES ($1, $2)`

	if _, err := s.pool.Exec(ctx, q, chatID, userID); err != nil {
		return fmt.Errorf("postgres store: link chat: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Threads and messages
// ─────────────────────────────────────────────────────────────────────────────

// EnsureThread returns the thread for (userID, threadKey), creating it if it
// does not exist yet.
func (s *Store) EnsureThread(ctx context.Context, userID int64, threadKey string) (*store.Thread, error) {
	const q = `
		INSERT INTO threads (user_id, thread_key)
		VALUES ($1, $2)
		ON CONFLICT (user_id, thread_key)
		DO UPDATE SET thread_key = EXCLUDED.thread_key
		RETURNING id, summary, updated_at`

	t := &store.Thread{UserID: userID, ThreadKey: threadKey}
	if err := s.pool.QueryRow(ctx, q, userID, threadKey).Scan(&t.ID, &t.Summary, &t.UpdatedAt); err != nil {
		return nil, fmt.Errorf("postgres store: ensure thread: %w", err)
	}
	return t, nil
}

// AppendMessage stores one turn of a thread.
func (s *Store) AppendMessage(ctx context.Context, threadID int64, role, content string) error {
	const q = `
		INSERT INTO messages (thread_id, role, content)
		VALUES ($1, $2, $3)`

	if _, err := s.pool.Exec(ctx, q, threadID, role, content); err != nil {
		return fmt.Errorf("postgres store: append message: %w", err)
	}
	return nil
}

// RecentMessages returns the last limit messages of a thread in chronological
// order.
func (s *Store) RecentMessages(ctx context.Context, threadID int64, limit int) ([]store.Message, error) {
	const q = `
		SELECT id, thread_id, role, content, created_at
		FROM (
		    SELECT id, thread_id, role, content, created_at
		    FROM   messages
		    WHERE  thread_id = $1
		    ORDER  BY created_at DESC, id DESC
		    LIMIT  $2
		) recent
		ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, q, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: recent messages: %w", err)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres store: recent messages: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateThreadSummary replaces the rolling summary and bumps updated_at.
func (s *Store) UpdateThreadSummary(ctx context.Context, threadID int64, summary string) error {
	const q = `
		UPDATE threads
		SET    summary = $2, updated_at = now()
		WHERE  id = $1`

	if _, err := s.pool.Exec(ctx, q, threadID, summary); err != nil {
		return fmt.Errorf("postgres store: update summary: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Preferences and usage accounting
// ─────────────────────────────────────────────────────────────────────────────

// PreferencesByUser returns the user's pipeline configuration. A user who has
// never configured a pipeline gets empty preferences, not an error.
func (s *Store) PreferencesByUser(ctx context.Context, userID int64) (*store.Preferences, error) {
	const q = `
		SELECT stages, synth_model, updated_at
		FROM   preferences
		WHERE  user_id = $1`

	p := &store.Preferences{UserID: userID}
	var stagesJSON []byte
	err := s.pool.QueryRow(ctx, q, userID).Scan(&stagesJSON, &p.SynthModel, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: preferences: %w", err)
	}
	if err := json.Unmarshal(stagesJSON, &p.Stages); err != nil {
		return nil, fmt.Errorf("postgres store: decode stages: %w", err)
	}
	return p, nil
}

// SavePreferences upserts the user's pipeline configuration.
func (s *Store) SavePreferences(ctx context.Context, p *store.Preferences) error {
	stagesJSON, err := json.Marshal(p.Stages)
	if err != nil {
		return fmt.Errorf("postgres store: encode stages: %w", err)
	}

	const q = `
		INSERT INTO preferences (user_id, stages, synth_model, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id)
		DO UPDATE SET stages = EXCLUDED.stages, synth_model = EXCLUDED.synth_model, updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, p.UserID, stagesJSON, p.SynthModel); err != nil {
		return fmt.Errorf("postgres store: save preferences: %w", err)
	}
	return nil
}

// RecordUsage inserts one row per usage event in a single batch round trip.
func (s *Store) RecordUsage(ctx context.Context, events []store.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	const q = `
		INSERT INTO usage_events
		    (user_id, stage, provider, model, input_tokens, output_tokens, cost_usd, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(q, e.UserID, e.Stage, e.Provider, e.Model, e.InputTokens, e.OutputTokens, e.CostUSD, e.Status)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres store: record usage: %w", err)
		}
	}
	return nil
}
