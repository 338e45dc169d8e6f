package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/chotrivia/internal/pgtest"
	"github.com/victornm/chotrivia/internal/store"
)

func TestPostgres(t *testing.T) {
	db := pgtest.New(t)
	s := store.NewPostgres(db)
	ctx := context.Background()

	t.Run("save and load", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "g1", snapshot))

		got, err := s.Load(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, snapshot, got)

		_, err = s.Load(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("save overwrites", func(t *testing.T) {
		next := snapshot
		next.CurrentQuestion = 2
		next.Complete = true

		require.NoError(t, s.Save(ctx, "g2", snapshot))
		require.NoError(t, s.Save(ctx, "g2", next))

		got, err := s.Load(ctx, "g2")
		require.NoError(t, err)
		assert.Equal(t, next, got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "g3", snapshot))
		require.NoError(t, s.Delete(ctx, "g3"))

		_, err := s.Load(ctx, "g3")
		require.ErrorIs(t, err, store.ErrNotFound)
		require.ErrorIs(t, s.Delete(ctx, "g3"), store.ErrNotFound)
	})

	t.Run("load incomplete", func(t *testing.T) {
		_, err := db.Exec(ctx, `TRUNCATE active_games;`)
		require.NoError(t, err)

		done := snapshot
		done.Complete = true

		require.NoError(t, s.Save(ctx, "running", snapshot))
		require.NoError(t, s.Save(ctx, "finished", done))

		// valid JSON that does not decode into a snapshot
		_, err = db.Exec(ctx,
			`INSERT INTO active_games (server_id, game_state, update_time) VALUES ($1, $2, now());`,
			"broken", []byte(`{"questions":"not a list"}`))
		require.NoError(t, err)

		// records written before the complete flag existed count as running
		_, err = db.Exec(ctx,
			`INSERT INTO active_games (server_id, game_state, update_time) VALUES ($1, $2, now());`,
			"legacy", []byte(`{"revision":0,"questions":[],"current_question":0,"scores":{},"channel_id":"c9"}`))
		require.NoError(t, err)

		got, err := s.LoadIncomplete(ctx)
		require.NoError(t, err)

		ids := make([]string, 0, len(got))
		for _, r := range got {
			ids = append(ids, r.ServerID)
		}
		assert.ElementsMatch(t, []string{"running", "legacy"}, ids)

		for _, r := range got {
			if r.ServerID == "running" {
				assert.Equal(t, snapshot, r.Snapshot)
			}
		}
	})
}
