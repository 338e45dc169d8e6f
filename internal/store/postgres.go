// Package store persists trivia session snapshots so games survive a restart.
package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/chotrivia/internal/domain"
	"github.com/victornm/chotrivia/internal/errors"
)

var ErrNotFound = errors.New(errors.CodeNotFound,
	errors.WithMessagef("store: snapshot not found"))

// Postgres keeps one snapshot per server in the active_games table.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// LoadIncomplete returns every snapshot not marked complete. Rows that fail to decode
// are logged and left out.
func (p *Postgres) LoadIncomplete(ctx context.Context) ([]domain.StoredSnapshot, error) {
	const stmt = `
SELECT server_id, game_state
FROM active_games
WHERE (game_state->>'complete')::boolean IS NOT TRUE
ORDER BY update_time;`

	rows, err := p.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("query active games: %w", err)
	}

	type row struct {
		serverID string
		state    []byte
	}

	raw, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (row, error) {
		var rr row
		err := r.Scan(&rr.serverID, &rr.state)
		return rr, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan active games: %w", err)
	}

	out := make([]domain.StoredSnapshot, 0, len(raw))
	for _, r := range raw {
		var snap domain.Snapshot
		if err := json.Unmarshal(r.state, &snap); err != nil {
			slog.ErrorContext(ctx, "store: decode game state failed, skipping",
				"server_id", r.serverID,
				"error", err,
			)
			continue
		}

		out = append(out, domain.StoredSnapshot{ServerID: r.serverID, Snapshot: snap})
	}

	return out, nil
}

func (p *Postgres) Load(ctx context.Context, serverID string) (domain.Snapshot, error) {
	const stmt = `SELECT game_state FROM active_games WHERE server_id = $1;`

	var state []byte
	err := p.db.QueryRow(ctx, stmt, serverID).Scan(&state)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Snapshot{}, fmt.Errorf("server %s: %w", serverID, ErrNotFound)
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load game state: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(state, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode game state: %w", err)
	}

	return snap, nil
}

// Save upserts the snapshot of the server.
func (p *Postgres) Save(ctx context.Context, serverID string, snap domain.Snapshot) error {
	const stmt = `
INSERT INTO active_games (server_id, game_state, update_time)
VALUES ($1, $2, $3)
ON CONFLICT (server_id) DO UPDATE
SET game_state = EXCLUDED.game_state, update_time = EXCLUDED.update_time;`

	state, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode game state: %w", err)
	}

	if _, err := p.db.Exec(ctx, stmt, serverID, state, time.Now()); err != nil {
		return fmt.Errorf("save game state: %w", err)
	}

	return nil
}

func (p *Postgres) Delete(ctx context.Context, serverID string) error {
	const stmt = `DELETE FROM active_games WHERE server_id = $1;`

	tag, err := p.db.Exec(ctx, stmt, serverID)
	if err != nil {
		return fmt.Errorf("delete game state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("server %s: %w", serverID, ErrNotFound)
	}

	return nil
}
