package store_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/chotrivia/internal/domain"
	"github.com/victornm/chotrivia/internal/store"
)

var snapshot = domain.Snapshot{
	Questions: []domain.Question{
		{Text: "Where do the orcs originate from?", Answers: []string{"Draenor"}},
		{Text: "Who was Medivh's apprentice?", Answers: []string{"Khadgar"}},
	},
	CurrentQuestion: 1,
	Scores:          map[string]int{"p1": 1},
	ChannelID:       "c1",
}

func TestRedis_SaveLoad(t *testing.T) {
	s, _ := makeRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "g1", snapshot))

	got, err := s.Load(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, snapshot, got)

	_, err = s.Load(ctx, "g2")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedis_Delete(t *testing.T) {
	s, _ := makeRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "g1", snapshot))
	require.NoError(t, s.Delete(ctx, "g1"))

	_, err := s.Load(ctx, "g1")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, "g1"), store.ErrNotFound)
}

func TestRedis_TTL(t *testing.T) {
	s, rs := makeRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "g1", snapshot))
	assert.Equal(t, time.Hour, rs.TTL("test.games:g1"))

	rs.FastForward(2 * time.Hour)
	_, err := s.Load(ctx, "g1")
	require.ErrorIs(t, err, store.ErrNotFound, "abandoned snapshots expire")
}

func TestRedis_LoadIncomplete(t *testing.T) {
	s, rs := makeRedisStore(t)
	ctx := context.Background()

	done := snapshot
	done.Complete = true

	require.NoError(t, s.Save(ctx, "g1", snapshot))
	require.NoError(t, s.Save(ctx, "g2", done))
	require.NoError(t, s.Save(ctx, "g3", snapshot))
	require.NoError(t, rs.Set("test.games:g4", "{not json"))
	require.NoError(t, rs.Set("other:g5", "{}"))

	got, err := s.LoadIncomplete(ctx)
	require.NoError(t, err)

	sort.Slice(got, func(i, j int) bool { return got[i].ServerID < got[j].ServerID })
	assert.Equal(t, []domain.StoredSnapshot{
		{ServerID: "g1", Snapshot: snapshot},
		{ServerID: "g3", Snapshot: snapshot},
	}, got)
}

func makeRedisStore(t *testing.T) (*store.Redis, *miniredis.Miniredis) {
	t.Helper()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { rc.Close() })

	return store.NewRedis(store.RedisConfig{
		Redis:     rc,
		Namespace: "test.games",
		TTL:       time.Hour,
	}), rs
}
