package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/chotrivia/internal/domain"
)

const (
	DefaultRedisNamespace = "chotrivia.games"
	DefaultRedisTTL       = 24 * time.Hour

	scanCount = 100
)

type RedisConfig struct {
	Redis     redis.UniversalClient
	Namespace string
	// TTL bounds how long an abandoned snapshot is kept, every save refreshes it.
	TTL time.Duration
}

// Redis keeps snapshots as JSON strings under "<namespace>:<server id>".
type Redis struct {
	rc        redis.UniversalClient
	namespace string
	ttl       time.Duration
}

func NewRedis(c RedisConfig) *Redis {
	r := &Redis{
		rc:        c.Redis,
		namespace: c.Namespace,
		ttl:       c.TTL,
	}
	if r.namespace == "" {
		r.namespace = DefaultRedisNamespace
	}
	if r.ttl <= 0 {
		r.ttl = DefaultRedisTTL
	}

	return r
}

func (r *Redis) LoadIncomplete(ctx context.Context) ([]domain.StoredSnapshot, error) {
	var (
		out    []domain.StoredSnapshot
		cursor uint64
	)

	for {
		keys, next, err := r.rc.Scan(ctx, cursor, r.namespace+":*", scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("scan snapshots: %w", err)
		}

		for _, key := range keys {
			serverID := strings.TrimPrefix(key, r.namespace+":")

			snap, err := r.get(ctx, key)
			if stderrors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				slog.ErrorContext(ctx, "store: read snapshot failed, skipping",
					"server_id", serverID,
					"error", err,
				)
				continue
			}

			if !snap.Complete {
				out = append(out, domain.StoredSnapshot{ServerID: serverID, Snapshot: snap})
			}
		}

		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

func (r *Redis) Load(ctx context.Context, serverID string) (domain.Snapshot, error) {
	snap, err := r.get(ctx, r.key(serverID))
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("server %s: %w", serverID, err)
	}

	return snap, nil
}

func (r *Redis) Save(ctx context.Context, serverID string, snap domain.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := r.rc.Set(ctx, r.key(serverID), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	return nil
}

func (r *Redis) Delete(ctx context.Context, serverID string) error {
	n, err := r.rc.Del(ctx, r.key(serverID)).Result()
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("server %s: %w", serverID, ErrNotFound)
	}

	return nil
}

func (r *Redis) get(ctx context.Context, key string) (domain.Snapshot, error) {
	b, err := r.rc.Get(ctx, key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return domain.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	return snap, nil
}

func (r *Redis) key(serverID string) string {
	return r.namespace + ":" + serverID
}
