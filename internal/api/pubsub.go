package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/chotrivia/internal/domain"
	"github.com/victornm/chotrivia/internal/event"
)

const (
	maxConcurrent = 100

	EventMessageSent = "message.sent"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Message struct {
		ChannelID string `json:"channel_id"`
		Text      string `json:"text"`
	}

	SessionNotice struct {
		ServerID  string `json:"server_id"`
		ChannelID string `json:"channel_id"`
		SessionID string `json:"session_id"`
	}

	Standings struct {
		ServerID  string     `json:"server_id"`
		SessionID string     `json:"session_id"`
		Ties      int        `json:"ties"`
		Entries   []Standing `json:"entries"`
	}

	Standing struct {
		PlayerID string `json:"player_id"`
		Score    int    `json:"score"`
		Rank     int    `json:"rank"`
	}

	Leaderboard struct {
		ServerID string             `json:"server_id"`
		Entries  []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		PlayerID string `json:"player_id"`
		Score    string `json:"score"`
	}
)

func newLeaderboard(l domain.Leaderboard) Leaderboard {
	data := Leaderboard{
		ServerID: l.ServerID,
		Entries:  make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for _, entry := range l.Entries {
		data.Entries = append(data.Entries, LeaderboardEntry{
			PlayerID: entry.PlayerID,
			Score:    strconv.FormatFloat(entry.Score, 'f', -1, 64),
		})
	}

	return data
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type PublisherConfig struct {
	EventBus *event.Bus
	Redis    Redis
	Prefix   string
}

// Publisher delivers chat output over Redis pub/sub. Channel output goes to
// "<prefix>:channel:<channel id>", per player output to "<prefix>:user:<player id>".
type Publisher struct {
	redis  Redis
	prefix string
}

func NewPublisher(c PublisherConfig) *Publisher {
	p := &Publisher{
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameSessionStarted, func(ctx context.Context, e event.Event) error {
		started := e.(domain.EventSessionStarted)
		return p.PublishSessionNotice(ctx, started.Name(), SessionNotice{
			ServerID:  started.ServerID,
			ChannelID: started.ChannelID,
			SessionID: started.SessionID,
		})
	})
	c.EventBus.Subscribe(domain.EventNameSessionStopped, func(ctx context.Context, e event.Event) error {
		stopped := e.(domain.EventSessionStopped)
		return p.PublishSessionNotice(ctx, stopped.Name(), SessionNotice{
			ServerID:  stopped.ServerID,
			ChannelID: stopped.ChannelID,
			SessionID: stopped.SessionID,
		})
	})
	c.EventBus.Subscribe(domain.EventNameSessionEnded, func(ctx context.Context, e event.Event) error {
		return p.PublishSessionEnded(ctx, e.(domain.EventSessionEnded))
	})
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return p.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return p
}

// SendText publishes a chat line to a channel.
func (p *Publisher) SendText(ctx context.Context, channelID, text string) error {
	return p.publishNotification(ctx, p.channelKey(channelID), EventMessageSent, Message{
		ChannelID: channelID,
		Text:      text,
	})
}

// PublishSessionNotice tells the channel a game started or stopped, so gateways can
// track which channels are busy without parsing the chat text.
func (p *Publisher) PublishSessionNotice(ctx context.Context, event string, n SessionNotice) error {
	return p.publishNotification(ctx, p.channelKey(n.ChannelID), event, n)
}

// PublishSessionEnded publishes the structured final standings next to the text announcement.
func (p *Publisher) PublishSessionEnded(ctx context.Context, e domain.EventSessionEnded) error {
	data := Standings{
		ServerID:  e.ServerID,
		SessionID: e.SessionID,
		Ties:      e.Standings.Ties,
		Entries:   make([]Standing, 0, len(e.Standings.Entries)),
	}

	for _, s := range e.Standings.Entries {
		data.Entries = append(data.Entries, Standing{
			PlayerID: s.PlayerID,
			Score:    s.Score,
			Rank:     s.Rank,
		})
	}

	return p.publishNotification(ctx, p.channelKey(e.ChannelID), e.Name(), data)
}

// PublishLeaderboardUpdated sends the new leaderboard to every player on it.
func (p *Publisher) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := newLeaderboard(e.Leaderboard)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		eg.Go(func() error {
			return p.publishNotification(ctx, p.userKey(entry.PlayerID), e.Name(), data)
		})
	}

	return eg.Wait()
}

func (p *Publisher) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return p.redis.Publish(ctx, channel, b).Err()
}

func (p *Publisher) channelKey(channelID string) string {
	return fmt.Sprintf("%s:channel:%s", p.prefix, channelID)
}

func (p *Publisher) userKey(playerID string) string {
	return fmt.Sprintf("%s:user:%s", p.prefix, playerID)
}
