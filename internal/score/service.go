// Package score keeps the all-time scoreboard of every server.
package score

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/chotrivia/internal/domain"
	"github.com/victornm/chotrivia/internal/errors"
	"github.com/victornm/chotrivia/internal/session"
)

type Config struct {
	DB *pgxpool.Pool
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
	}
}

// Load returns the scoreboard of a server. A server that never finished a game has an empty one.
func (s *Service) Load(ctx context.Context, serverID string) (domain.Scoreboard, error) {
	const stmt = `SELECT scores FROM scoreboards WHERE server_id = $1;`

	var raw []byte
	err := s.db.QueryRow(ctx, stmt, serverID).Scan(&raw)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return make(domain.Scoreboard), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load scoreboard: %w", err)
	}

	board := make(domain.Scoreboard)
	if err := json.Unmarshal(raw, &board); err != nil {
		return nil, fmt.Errorf("decode scoreboard: %w", err)
	}

	return board, nil
}

// Save overwrites the scoreboard of a server.
func (s *Service) Save(ctx context.Context, serverID string, board domain.Scoreboard) error {
	const stmt = `
INSERT INTO scoreboards (server_id, scores, update_time)
VALUES ($1, $2, $3)
ON CONFLICT (server_id) DO UPDATE
SET scores = EXCLUDED.scores, update_time = EXCLUDED.update_time;`

	raw, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("encode scoreboard: %w", err)
	}

	if _, err := s.db.Exec(ctx, stmt, serverID, raw, time.Now()); err != nil {
		return fmt.Errorf("save scoreboard: %w", err)
	}

	return nil
}

type ListScoresRequest struct {
	ServerID string
	// Limit caps the number of entries, zero means all.
	Limit int
}

// ListScores returns the ranked scoreboard of a server.
func (s *Service) ListScores(ctx context.Context, req ListScoresRequest) (domain.Standings, error) {
	if req.Limit < 0 {
		return domain.Standings{}, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("limit must not be negative: %d", req.Limit))
	}

	board, err := s.Load(ctx, req.ServerID)
	if err != nil {
		return domain.Standings{}, err
	}

	st := session.Rank(board)
	if req.Limit > 0 && len(st.Entries) > req.Limit {
		st.Entries = st.Entries[:req.Limit]
		st.Ties = min(st.Ties, req.Limit-1)
	}

	return st, nil
}
