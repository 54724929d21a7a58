// Package persist stores coarse-grained board snapshots in Postgres. It is
// a sink, not a source of truth: the live state lives in the gateway
// replicas, and the only read path is the initial load after a restart.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrivano/boardsync/internal/models"
)

// ErrNoSnapshot means no snapshot has been saved for the session yet.
var ErrNoSnapshot = errors.New("no snapshot for session")

// Schema is the table the repository expects.
const Schema = `
CREATE TABLE IF NOT EXISTS board_snapshots (
    session_id TEXT PRIMARY KEY,
    viewport   JSONB NOT NULL,
    tokens     JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Repository reads and writes board snapshots.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a repository over a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the snapshot table if missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure snapshot schema: %w", err)
	}
	return nil
}

// SaveSnapshot upserts one session's board state.
func (r *Repository) SaveSnapshot(ctx context.Context, state models.BoardState) error {
	viewport, err := json.Marshal(state.Viewport)
	if err != nil {
		return fmt.Errorf("marshal viewport: %w", err)
	}
	tokens, err := json.Marshal(state.Tokens)
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO board_snapshots (session_id, viewport, tokens, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (session_id)
		DO UPDATE SET viewport = EXCLUDED.viewport, tokens = EXCLUDED.tokens, updated_at = now()`,
		state.SessionID, viewport, tokens)
	if err != nil {
		return fmt.Errorf("save snapshot for %s: %w", state.SessionID, err)
	}
	return nil
}

// LoadSnapshot returns the last saved state for a session.
func (r *Repository) LoadSnapshot(ctx context.Context, sessionID string) (models.BoardState, error) {
	var viewport, tokens []byte
	err := r.pool.QueryRow(ctx,
		`SELECT viewport, tokens FROM board_snapshots WHERE session_id = $1`,
		sessionID).Scan(&viewport, &tokens)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.BoardState{}, fmt.Errorf("%w: %s", ErrNoSnapshot, sessionID)
	}
	if err != nil {
		return models.BoardState{}, fmt.Errorf("load snapshot for %s: %w", sessionID, err)
	}

	state := models.BoardState{SessionID: sessionID}
	if err := json.Unmarshal(viewport, &state.Viewport); err != nil {
		return models.BoardState{}, fmt.Errorf("unmarshal viewport: %w", err)
	}
	if err := json.Unmarshal(tokens, &state.Tokens); err != nil {
		return models.BoardState{}, fmt.Errorf("unmarshal tokens: %w", err)
	}
	return state, nil
}

// DeleteSnapshot drops a session's saved state on teardown.
func (r *Repository) DeleteSnapshot(ctx context.Context, sessionID string) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM board_snapshots WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete snapshot for %s: %w", sessionID, err)
	}
	return nil
}
