/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

func MustOpen(ctx context.Context, dsn string) *pgxpool.Pool {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil { log.Fatal().Err(err).Msg("db pool") }
	if err := pool.Ping(ctx); err != nil { log.Fatal().Err(err).Msg("db ping") }
	return pool
}

type Repository struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Repository { return &Repository{db: db} }

const schema = `
CREATE TABLE IF NOT EXISTS api_cache (
	cache_key   text PRIMARY KEY,
	payload     jsonb NOT NULL,
	expires_at  timestamptz NOT NULL
);
CREATE TABLE IF NOT EXISTS llm_cache (
	prompt_hash text PRIMARY KEY,
	response    text NOT NULL,
	expires_at  timestamptz NOT NULL
);
CREATE TABLE IF NOT EXISTS user_directory (
	account_id   text PRIMARY KEY,
	username     text NOT NULL DEFAULT '',
	display_name text NOT NULL DEFAULT '',
	email        text NOT NULL DEFAULT '',
	avatar_url   text NOT NULL DEFAULT '',
	active       boolean NOT NULL DEFAULT true,
	last_updated timestamptz NOT NULL
);
CREATE TABLE IF NOT EXISTS user_tokens (
	user_id       text PRIMARY KEY,
	access_token  text NOT NULL,
	refresh_token text NOT NULL DEFAULT '',
	expires_at    timestamptz NOT NULL
);
CREATE TABLE IF NOT EXISTS reminders (
	id         bigserial PRIMARY KEY,
	user_id    text NOT NULL DEFAULT '',
	issue_key  text NOT NULL,
	due_at     timestamptz NOT NULL,
	message    text NOT NULL DEFAULT '',
	recurrence text NOT NULL DEFAULT '',
	sent       boolean NOT NULL DEFAULT false,
	last_sent  timestamptz
);
`

func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

// Cron jobs coordinate through advisory locks so only one replica runs a
// given job per tick.
func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var got bool
	err := r.db.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&got)
	return got, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) {
	if _, err := r.db.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key); err != nil {
		log.Warn().Err(err).Int64("key", key).Msg("advisory unlock failed")
	}
}

// --- API response cache ---

func (r *Repository) GetAPICache(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var payload json.RawMessage
	err := r.db.QueryRow(ctx,
		`SELECT payload FROM api_cache WHERE cache_key = $1 AND expires_at > now()`, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) { return nil, false, nil }
	if err != nil { return nil, false, err }
	return payload, true, nil
}

func (r *Repository) PutAPICache(ctx context.Context, key string, payload json.RawMessage, ttl time.Duration) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO api_cache (cache_key, payload, expires_at) VALUES ($1, $2, now() + $3)
		ON CONFLICT (cache_key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		key, payload, ttl)
	return err
}

func (r *Repository) PruneCaches(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM api_cache WHERE expires_at <= now()`); err != nil { return err }
	_, err := r.db.Exec(ctx, `DELETE FROM llm_cache WHERE expires_at <= now()`)
	return err
}

// --- LLM response cache ---

func (r *Repository) GetLLMCache(ctx context.Context, promptHash string) (string, bool, error) {
	var resp string
	err := r.db.QueryRow(ctx,
		`SELECT response FROM llm_cache WHERE prompt_hash = $1 AND expires_at > now()`, promptHash).Scan(&resp)
	if errors.Is(err, pgx.ErrNoRows) { return "", false, nil }
	if err != nil { return "", false, err }
	return resp, true, nil
}

func (r *Repository) PutLLMCache(ctx context.Context, promptHash, response string, ttl time.Duration) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO llm_cache (prompt_hash, response, expires_at) VALUES ($1, $2, now() + $3)
		ON CONFLICT (prompt_hash) DO UPDATE SET response = excluded.response, expires_at = excluded.expires_at`,
		promptHash, response, ttl)
	return err
}

// --- user directory ---

func (r *Repository) FindIdentity(ctx context.Context, reference string) (domain.IdentityRecord, bool, error) {
	ref := strings.ToLower(strings.TrimSpace(reference))
	var rec domain.IdentityRecord
	err := r.db.QueryRow(ctx, `
		SELECT account_id, username, display_name, email, avatar_url, active, last_updated
		FROM user_directory
		WHERE lower(username) = $1 OR lower(display_name) = $1 OR lower(email) = $1 OR account_id = $2
		LIMIT 1`, ref, reference).
		Scan(&rec.StableID, &rec.Username, &rec.DisplayName, &rec.Email, &rec.AvatarURL, &rec.Active, &rec.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) { return domain.IdentityRecord{}, false, nil }
	if err != nil { return domain.IdentityRecord{}, false, err }
	return rec, true, nil
}

func (r *Repository) UpsertIdentity(ctx context.Context, rec domain.IdentityRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_directory (account_id, username, display_name, email, avatar_url, active, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id) DO UPDATE SET
			username = excluded.username, display_name = excluded.display_name,
			email = excluded.email, avatar_url = excluded.avatar_url,
			active = excluded.active, last_updated = excluded.last_updated`,
		rec.StableID, rec.Username, rec.DisplayName, rec.Email, rec.AvatarURL, rec.Active, rec.LastUpdated)
	return err
}

// --- user tokens ---

func (r *Repository) Token(ctx context.Context, userID string) (domain.Token, bool, error) {
	tok := domain.Token{UserID: userID}
	err := r.db.QueryRow(ctx,
		`SELECT access_token, refresh_token, expires_at FROM user_tokens WHERE user_id = $1`, userID).
		Scan(&tok.Access, &tok.Refresh, &tok.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) { return domain.Token{}, false, nil }
	if err != nil { return domain.Token{}, false, err }
	return tok, true, nil
}

// TokenHolders lists users with a live token. The scheduler fans out over
// this set each tick.
func (r *Repository) TokenHolders(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM user_tokens WHERE expires_at > now() ORDER BY user_id`)
	if err != nil { return nil, err }
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil { return nil, err }
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- reminders ---

func (r *Repository) CreateReminder(ctx context.Context, rem domain.Reminder) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO reminders (user_id, issue_key, due_at, message, recurrence)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		rem.UserID, rem.IssueKey, rem.DueAt, rem.Message, rem.Recurrence).Scan(&id)
	return id, err
}

func (r *Repository) DueReminders(ctx context.Context, asOf time.Time) ([]domain.Reminder, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, issue_key, due_at, message, recurrence, sent, last_sent
		FROM reminders WHERE NOT sent AND due_at <= $1 ORDER BY due_at`, asOf)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []domain.Reminder
	for rows.Next() {
		var rem domain.Reminder
		if err := rows.Scan(&rem.ID, &rem.UserID, &rem.IssueKey, &rem.DueAt, &rem.Message, &rem.Recurrence, &rem.Sent, &rem.LastSent); err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	return out, rows.Err()
}

func (r *Repository) MarkReminderSent(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE reminders SET sent = true, last_sent = $2 WHERE id = $1`, id, at)
	return err
}

// SnoozeReminder pushes the due time forward and re-arms it.
func (r *Repository) SnoozeReminder(ctx context.Context, id int64, until time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE reminders SET due_at = $2, sent = false WHERE id = $1`, id, until)
	return err
}

func (r *Repository) DeleteReminder(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	return err
}

func (r *Repository) RemindersByIssue(ctx context.Context, issueKey string) ([]domain.Reminder, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, issue_key, due_at, message, recurrence, sent, last_sent
		FROM reminders WHERE issue_key = $1 ORDER BY due_at`, issueKey)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []domain.Reminder
	for rows.Next() {
		var rem domain.Reminder
		if err := rows.Scan(&rem.ID, &rem.UserID, &rem.IssueKey, &rem.DueAt, &rem.Message, &rem.Recurrence, &rem.Sent, &rem.LastSent); err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	return out, rows.Err()
}
