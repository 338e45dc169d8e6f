// Package guild stores per-server bot settings and the bot-wide status line.
package guild

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/chotrivia/internal/domain"
	"github.com/victornm/chotrivia/internal/errors"
)

const (
	DefaultPrefix = "!"
	AllowedPrefix = "!&?|^%"

	statusKey = "cho:status"
)

var ErrInvalidPrefix = errors.New(errors.CodeInvalidArgument,
	errors.WithMessagef("guild: prefix must be one of %s", strings.Join(strings.Split(AllowedPrefix, ""), " ")))

type Config struct {
	DB    *pgxpool.Pool
	Redis redis.UniversalClient
}

type Service struct {
	db    *pgxpool.Pool
	redis redis.UniversalClient
}

func NewService(c Config) *Service {
	return &Service{
		db:    c.DB,
		redis: c.Redis,
	}
}

// ValidPrefix reports whether p is a single allowed prefix character.
func ValidPrefix(p string) bool {
	return len(p) == 1 && strings.Contains(AllowedPrefix, p)
}

// Prefix returns the command prefix of the config, falling back to the default one.
func Prefix(c domain.GuildConfig) string {
	if ValidPrefix(c.Prefix) {
		return c.Prefix
	}

	return DefaultPrefix
}

// Get returns the config of a server. Servers that never changed a setting get the zero config.
func (s *Service) Get(ctx context.Context, serverID string) (domain.GuildConfig, error) {
	const stmt = `SELECT config FROM guilds WHERE server_id = $1;`

	var raw []byte
	err := s.db.QueryRow(ctx, stmt, serverID).Scan(&raw)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.GuildConfig{}, nil
	}
	if err != nil {
		return domain.GuildConfig{}, fmt.Errorf("load guild config: %w", err)
	}

	var c domain.GuildConfig
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.GuildConfig{}, fmt.Errorf("decode guild config: %w", err)
	}

	return c, nil
}

func (s *Service) SaveConfig(ctx context.Context, serverID string, c domain.GuildConfig) error {
	if c.Prefix != "" && !ValidPrefix(c.Prefix) {
		return ErrInvalidPrefix
	}

	const stmt = `
INSERT INTO guilds (server_id, config, update_time)
VALUES ($1, $2, $3)
ON CONFLICT (server_id) DO UPDATE
SET config = EXCLUDED.config, update_time = EXCLUDED.update_time;`

	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode guild config: %w", err)
	}

	if _, err := s.db.Exec(ctx, stmt, serverID, raw, time.Now()); err != nil {
		return fmt.Errorf("save guild config: %w", err)
	}

	return nil
}

// Status returns the bot status line, empty when none was set.
func (s *Service) Status(ctx context.Context) (string, error) {
	st, err := s.redis.Get(ctx, statusKey).Result()
	if stderrors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get status: %w", err)
	}

	return st, nil
}

func (s *Service) SetStatus(ctx context.Context, status string) error {
	if err := s.redis.Set(ctx, statusKey, status, 0).Err(); err != nil {
		return fmt.Errorf("set status: %w", err)
	}

	return nil
}
