package score_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/chotrivia/internal/domain"
	"github.com/victornm/chotrivia/internal/errors"
	"github.com/victornm/chotrivia/internal/pgtest"
	"github.com/victornm/chotrivia/internal/score"
)

func TestService_ListScores_NegativeLimit(t *testing.T) {
	s := score.NewService(score.Config{})

	_, err := s.ListScores(context.Background(), score.ListScoresRequest{ServerID: "g1", Limit: -1})

	var e *errors.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, errors.CodeInvalidArgument, e.Code)
}

func TestService_Postgres(t *testing.T) {
	s := score.NewService(score.Config{DB: pgtest.New(t)})
	ctx := context.Background()

	board := domain.Scoreboard{"p1": 3, "p2": 5, "p3": 5, "p4": 1}
	require.NoError(t, s.Save(ctx, "g1", board))

	tests := map[string]struct {
		req    score.ListScoresRequest
		assert func(t *testing.T, st domain.Standings, err error)
	}{
		"unknown server has an empty scoreboard": {
			req: score.ListScoresRequest{ServerID: "g2"},
			assert: func(t *testing.T, st domain.Standings, err error) {
				require.NoError(t, err)
				assert.True(t, st.Empty())
			},
		},

		"all entries ranked": {
			req: score.ListScoresRequest{ServerID: "g1"},
			assert: func(t *testing.T, st domain.Standings, err error) {
				require.NoError(t, err)
				require.Len(t, st.Entries, 4)
				assert.Equal(t, 1, st.Ties)
				assert.ElementsMatch(t, []string{"p2", "p3"}, []string{st.Entries[0].PlayerID, st.Entries[1].PlayerID})
				assert.Equal(t, domain.Standing{PlayerID: "p4", Score: 1, Rank: 4}, st.Entries[3])
			},
		},

		"limit cuts the ties too": {
			req: score.ListScoresRequest{ServerID: "g1", Limit: 1},
			assert: func(t *testing.T, st domain.Standings, err error) {
				require.NoError(t, err)
				require.Len(t, st.Entries, 1)
				assert.Equal(t, 0, st.Ties)
				assert.Len(t, st.Winners(), 1)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			st, err := s.ListScores(ctx, tt.req)
			tt.assert(t, st, err)
		})
	}

	t.Run("save overwrites and load round trips", func(t *testing.T) {
		board["p1"] = 10
		require.NoError(t, s.Save(ctx, "g1", board))

		got, err := s.Load(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, board, got)
	})
}
