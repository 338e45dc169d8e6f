// Package leaderboard ranks players of a server by their all-time points in a Redis sorted set.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/chotrivia/internal/domain"
	"github.com/victornm/chotrivia/internal/errors"
	"github.com/victornm/chotrivia/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameSessionEnded, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventSessionEnded))
	})

	return s
}

type GetLeaderboardRequest struct {
	ServerID string
	// Limit caps the number of entries, zero means all.
	Limit int64
}

// GetLeaderboard returns the players of a server and their points, best first.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	stop := req.Limit - 1
	if req.Limit <= 0 {
		stop = -1
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.ServerID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: server=%s", req.ServerID))
	}

	scores := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		scores = append(scores, domain.LeaderboardEntry{
			PlayerID: z.Member.(string),
			Score:    z.Score,
		})
	}

	return &domain.Leaderboard{
		ServerID: req.ServerID,
		Entries:  scores,
	}, nil
}

// UpdateLeaderboard adds the points of a finished session to the server's leaderboard.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventSessionEnded) error {
	if len(e.Scores) == 0 {
		return nil
	}

	key := s.getLeaderboardKey(e.ServerID)

	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for player, n := range e.Scores {
			p.ZIncrBy(ctx, key, float64(n), player)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, e.ServerID)
}

// schedulePublishLeaderboard publishes the leaderboard at most once per interval and server.
// Several sessions of a server ending close together produce a single event.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, serverID string) error {
	// Guards against several instances publishing the same change, not against every race.
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(serverID), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, serverID)
}

func (s *Service) publishLeaderboard(ctx context.Context, serverID string) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		ServerID: serverID,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: server=%s: %w", serverID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return s.redis.Set(ctx, s.getLeaderboardTimeKey(serverID), time.Now().UnixMilli(), publishInterval).Err()
}

func (s *Service) getLeaderboardKey(serverID string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, serverID)
}

func (s *Service) getLeaderboardTimeKey(serverID string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, serverID)
}
