package api_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/chotrivia/internal/api"
	"github.com/victornm/chotrivia/internal/domain"
	"github.com/victornm/chotrivia/internal/event"
)

func TestPublisher_SendText(t *testing.T) {
	p, rc, _ := makePublisher(t)
	msgs := subscribe(t, rc, "test:channel:c1")

	require.NoError(t, p.SendText(context.Background(), "c1", "Where do the orcs originate from?"))

	n := receive(t, msgs)
	assert.Equal(t, api.EventMessageSent, n.Event)
	assert.JSONEq(t, `{"channel_id":"c1","text":"Where do the orcs originate from?"}`, string(n.Data))
}

func TestPublisher_SessionEnded(t *testing.T) {
	_, rc, eb := makePublisher(t)
	msgs := subscribe(t, rc, "test:channel:c1")

	eb.Publish(context.Background(), domain.EventSessionEnded{
		ServerID:  "g1",
		ChannelID: "c1",
		SessionID: "s1",
		Scores:    map[string]int{"p1": 2, "p2": 2},
		Standings: domain.Standings{Ties: 1, Entries: []domain.Standing{
			{PlayerID: "p1", Score: 2, Rank: 1},
			{PlayerID: "p2", Score: 2, Rank: 1},
		}},
	})
	eb.Stop()

	n := receive(t, msgs)
	assert.Equal(t, domain.EventNameSessionEnded, n.Event)

	var st api.Standings
	require.NoError(t, json.Unmarshal(n.Data, &st))
	assert.Equal(t, api.Standings{
		ServerID:  "g1",
		SessionID: "s1",
		Ties:      1,
		Entries: []api.Standing{
			{PlayerID: "p1", Score: 2, Rank: 1},
			{PlayerID: "p2", Score: 2, Rank: 1},
		},
	}, st)
}

func TestPublisher_SessionLifecycle(t *testing.T) {
	tests := map[string]struct {
		event event.Event
		want  string
	}{
		"started": {
			event: domain.EventSessionStarted{ServerID: "g1", ChannelID: "c1", SessionID: "s1"},
			want:  domain.EventNameSessionStarted,
		},
		"stopped": {
			event: domain.EventSessionStopped{ServerID: "g1", ChannelID: "c1", SessionID: "s1"},
			want:  domain.EventNameSessionStopped,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, rc, eb := makePublisher(t)
			msgs := subscribe(t, rc, "test:channel:c1")

			eb.Publish(context.Background(), tt.event)
			eb.Stop()

			n := receive(t, msgs)
			assert.Equal(t, tt.want, n.Event)
			assert.JSONEq(t, `{"server_id":"g1","channel_id":"c1","session_id":"s1"}`, string(n.Data))
		})
	}
}

func TestPublisher_LeaderboardUpdated(t *testing.T) {
	p, rc, _ := makePublisher(t)
	p1 := subscribe(t, rc, "test:user:p1")
	p2 := subscribe(t, rc, "test:user:p2")

	err := p.PublishLeaderboardUpdated(context.Background(), domain.EventLeaderboardUpdated{
		Leaderboard: domain.Leaderboard{
			ServerID: "g1",
			Entries: []domain.LeaderboardEntry{
				{PlayerID: "p1", Score: 5},
				{PlayerID: "p2", Score: 1.5},
			},
		},
	})
	require.NoError(t, err)

	for _, msgs := range []<-chan *redis.Message{p1, p2} {
		n := receive(t, msgs)
		assert.Equal(t, domain.EventNameLeaderboardUpdated, n.Event)

		var l api.Leaderboard
		require.NoError(t, json.Unmarshal(n.Data, &l))
		assert.Equal(t, api.Leaderboard{
			ServerID: "g1",
			Entries: []api.LeaderboardEntry{
				{PlayerID: "p1", Score: "5"},
				{PlayerID: "p2", Score: "1.5"},
			},
		}, l)
	}
}

type notification struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func makePublisher(t *testing.T) (*api.Publisher, redis.UniversalClient, *event.Bus) {
	t.Helper()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { rc.Close() })

	eb := event.NewBus()
	p := api.NewPublisher(api.PublisherConfig{
		EventBus: eb,
		Redis:    rc,
		Prefix:   "test",
	})

	return p, rc, eb
}

func subscribe(t *testing.T, rc redis.UniversalClient, channel string) <-chan *redis.Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sub := rc.Subscribe(ctx, channel)
	t.Cleanup(func() { sub.Close() })

	// Wait for the subscription to be confirmed before publishing.
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	return sub.Channel()
}

func receive(t *testing.T, msgs <-chan *redis.Message) notification {
	t.Helper()

	select {
	case msg := <-msgs:
		var n notification
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no notification received")
		return notification{}
	}
}
