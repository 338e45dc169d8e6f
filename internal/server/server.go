package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/chotrivia/internal/api"
	"github.com/victornm/chotrivia/internal/command"
	"github.com/victornm/chotrivia/internal/domain"
	"github.com/victornm/chotrivia/internal/driver"
	"github.com/victornm/chotrivia/internal/event"
	"github.com/victornm/chotrivia/internal/fuzzy"
	"github.com/victornm/chotrivia/internal/guild"
	"github.com/victornm/chotrivia/internal/leaderboard"
	"github.com/victornm/chotrivia/internal/question"
	"github.com/victornm/chotrivia/internal/score"
	"github.com/victornm/chotrivia/internal/session"
	"github.com/victornm/chotrivia/internal/store"
	"github.com/victornm/chotrivia/internal/telemetry"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendRedis    = "redis"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Log struct {
		Level  string
		Format string
	}

	Game struct {
		QuestionWindow time.Duration
		QuestionPause  time.Duration
		StartDelay     time.Duration
		QuestionCount  int
		MatchThreshold float64
		// QuestionsFile replaces the built-in catalog when set.
		QuestionsFile string
	}

	// Owners may run bot-wide commands such as set-status.
	Owners []string

	Store struct {
		// Backend is where session snapshots live: postgres or redis.
		Backend   string
		Namespace string
		TTL       time.Duration
	}

	Redis struct {
		Data struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres Postgres
}

type Postgres struct {
	Addr string
	User string
	Pass string
	Name string
	// SSLMode is passed as is to the driver, empty leaves the driver default.
	SSLMode string
}

func (p Postgres) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Pass),
		Host:   p.Addr,
		Path:   p.Name,
	}

	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{p.SSLMode}}.Encode()
	}

	return u.String()
}

// DefaultConfig returns the settings used when the config file leaves them out.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Game.QuestionWindow = driver.DefaultQuestionWindow
	c.Game.QuestionPause = driver.DefaultQuestionPause
	c.Game.StartDelay = driver.DefaultStartDelay
	c.Game.QuestionCount = driver.DefaultQuestionCount
	c.Game.MatchThreshold = fuzzy.DefaultThreshold
	c.Store.Backend = StoreBackendPostgres
	c.Store.Namespace = store.DefaultRedisNamespace
	c.Store.TTL = store.DefaultRedisTTL
	c.Redis.Data.Prefix = "chotrivia"
	c.Redis.Pubsub.Prefix = "chotrivia"
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			data   redis.UniversalClient
			pubsub redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	service struct {
		registry    *session.Registry
		sessions    driver.SessionStore
		score       *score.Service
		guild       *guild.Service
		leaderboard *leaderboard.Service
		publisher   *api.Publisher
		driver      *driver.Driver
		commands    *command.Handler
	}

	api  *api.API
	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.data, err = connect(s.c.Redis.Data.Addrs, s.c.Redis.Data.Pass)
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(s.c.Postgres.URL())
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() error {
	questions, err := s.loadQuestions()
	if err != nil {
		return fmt.Errorf("questions: %w", err)
	}

	switch s.c.Store.Backend {
	case StoreBackendRedis:
		s.service.sessions = store.NewRedis(store.RedisConfig{
			Redis:     s.infra.redis.data,
			Namespace: s.c.Store.Namespace,
			TTL:       s.c.Store.TTL,
		})
	case StoreBackendPostgres, "":
		s.service.sessions = store.NewPostgres(s.infra.postgres)
	default:
		return fmt.Errorf("unknown store backend %q", s.c.Store.Backend)
	}

	s.service.registry = session.NewRegistry()

	s.service.score = score.NewService(score.Config{
		DB: s.infra.postgres,
	})

	s.service.guild = guild.NewService(guild.Config{
		DB:    s.infra.postgres,
		Redis: s.infra.redis.data,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.data,
		Prefix:   s.c.Redis.Data.Prefix,
	})

	s.service.publisher = api.NewPublisher(api.PublisherConfig{
		EventBus: s.eb,
		Redis:    s.infra.redis.pubsub,
		Prefix:   s.c.Redis.Pubsub.Prefix,
	})

	s.service.driver = driver.New(driver.Config{
		Registry:       s.service.registry,
		Store:          s.service.sessions,
		Scoreboard:     s.service.score,
		Broadcaster:    s.service.publisher,
		EventBus:       s.eb,
		Questions:      questions,
		QuestionCount:  s.c.Game.QuestionCount,
		QuestionWindow: s.c.Game.QuestionWindow,
		QuestionPause:  s.c.Game.QuestionPause,
		StartDelay:     s.c.Game.StartDelay,
		MatchThreshold: s.c.Game.MatchThreshold,
	})

	s.service.commands = command.NewHandler(command.Config{
		Driver:      s.service.driver,
		Guilds:      s.service.guild,
		Scoreboard:  s.service.score,
		Broadcaster: s.service.publisher,
		Owners:      s.c.Owners,
	})

	return nil
}

func (s *Server) loadQuestions() ([]domain.Question, error) {
	if s.c.Game.QuestionsFile == "" {
		return question.Default(), nil
	}

	qs, err := question.LoadFile(s.c.Game.QuestionsFile)
	if err != nil {
		return nil, err
	}

	slog.Info(fmt.Sprintf("server: loaded %d questions from %s", len(qs), s.c.Game.QuestionsFile))
	return qs, nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())

	s.api = api.New(api.Config{
		Router:      e,
		GRPC:        s.grpc,
		Driver:      s.service.driver,
		Commands:    s.service.commands,
		Registry:    s.service.registry,
		Sessions:    s.service.sessions,
		Scoreboard:  s.service.score,
		Leaderboard: s.service.leaderboard,
		Status:      s.service.guild,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	// Games interrupted by the previous process continue where they stopped.
	n, err := s.service.driver.Resume(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "server: resume sessions failed", "error", err)
	} else {
		slog.InfoContext(ctx, fmt.Sprintf("server: resumed %d sessions", n))
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	s.api.SetServing(true)

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.api.SetServing(false)

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	// Running games stay persisted and are resumed by the next process.
	s.service.driver.Shutdown()
	s.eb.Stop()

	s.infra.postgres.Close()
	for _, r := range []redis.UniversalClient{s.infra.redis.data, s.infra.redis.pubsub} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
