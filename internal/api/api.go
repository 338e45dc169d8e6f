package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/chotrivia/internal/command"
	"github.com/victornm/chotrivia/internal/domain"
	"github.com/victornm/chotrivia/internal/errors"
	"github.com/victornm/chotrivia/internal/leaderboard"
	"github.com/victornm/chotrivia/internal/score"
	"github.com/victornm/chotrivia/internal/session"
)

type Config struct {
	Router gin.IRouter
	GRPC   *grpc.Server

	Driver      command.Driver
	Commands    Commands
	Registry    Registry
	Sessions    Sessions
	Scoreboard  command.Scoreboard
	Leaderboard LeaderboardService
	Status      StatusService
}

type Commands interface {
	Handle(ctx context.Context, m command.Message) error
}

type Registry interface {
	Get(serverID string) (*session.Session, error)
}

type Sessions interface {
	Delete(ctx context.Context, serverID string) error
}

type LeaderboardService interface {
	GetLeaderboard(ctx context.Context, req leaderboard.GetLeaderboardRequest) (*domain.Leaderboard, error)
}

type StatusService interface {
	Status(ctx context.Context) (string, error)
}

type API struct {
	driver   command.Driver
	commands Commands
	registry Registry
	sessions Sessions
	scores   command.Scoreboard
	ls       LeaderboardService
	status   StatusService

	health *health.Server
}

func New(c Config) *API {
	a := &API{
		driver:   c.Driver,
		commands: c.Commands,
		registry: c.Registry,
		sessions: c.Sessions,
		scores:   c.Scoreboard,
		ls:       c.Leaderboard,
		status:   c.Status,
		health:   health.NewServer(),
	}

	// HTTP APIs
	v1 := c.Router.Group("/v1")
	v1.POST("/messages", a.HandleMessage)
	v1.GET("/status", a.GetStatus)

	servers := v1.Group("/servers/:server_id")
	servers.POST("/start", a.StartSession)
	servers.POST("/stop", a.StopSession)
	servers.POST("/answers", a.SubmitAnswer)
	servers.GET("/session", a.GetSession)
	servers.DELETE("/session", a.DeleteSession)
	servers.GET("/scoreboard", a.GetScoreboard)
	servers.GET("/leaderboard", a.GetLeaderboard)

	// gRPC APIs
	if c.GRPC != nil {
		healthpb.RegisterHealthServer(c.GRPC, a.health)
	}

	return a
}

// SetServing flips the gRPC health status reported for every service.
func (a *API) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}

	a.health.SetServingStatus("", st)
}

func (a *API) HandleMessage(c *gin.Context) {
	var m command.Message
	if err := c.ShouldBindJSON(&m); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid message: %v", err)))
		return
	}

	if err := a.commands.Handle(c.Request.Context(), m); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

type StatusResponse struct {
	Status string `json:"status"`
}

// GetStatus returns the status line set by the bot owners, for the chat gateway to display.
func (a *API) GetStatus(c *gin.Context) {
	st, err := a.status.Status(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{Status: st})
}

type StartSessionRequest struct {
	ChannelID string `json:"channel_id" binding:"required"`
}

type Session struct {
	SessionID     string         `json:"session_id"`
	ServerID      string         `json:"server_id"`
	ChannelID     string         `json:"channel_id"`
	QuestionCount int            `json:"question_count"`
	Current       int            `json:"current_question"`
	Awaiting      bool           `json:"awaiting_answer"`
	Scores        map[string]int `json:"scores"`
}

func newSession(s *session.Session) Session {
	return Session{
		SessionID:     s.ID(),
		ServerID:      s.ServerID(),
		ChannelID:     s.ChannelID(),
		QuestionCount: s.QuestionCount(),
		Current:       s.CurrentIndex(),
		Awaiting:      s.Awaiting(),
		Scores:        s.Scores(),
	}
}

func (a *API) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request: %v", err)))
		return
	}

	s, err := a.driver.Start(c.Request.Context(), c.Param("server_id"), req.ChannelID)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, newSession(s))
}

func (a *API) StopSession(c *gin.Context) {
	if err := a.driver.Stop(c.Request.Context(), c.Param("server_id")); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type SubmitAnswerRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
	Answer   string `json:"answer"`
}

type SubmitAnswerResponse struct {
	Correct bool `json:"correct"`
}

func (a *API) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request: %v", err)))
		return
	}

	ok, err := a.driver.Answer(c.Request.Context(), c.Param("server_id"), req.PlayerID, req.Answer)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, SubmitAnswerResponse{Correct: ok})
}

func (a *API) GetSession(c *gin.Context) {
	s, err := a.registry.Get(c.Param("server_id"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newSession(s))
}

// DeleteSession drops the persisted snapshot of a server, for records that can no
// longer be resumed. Active sessions must be stopped first.
func (a *API) DeleteSession(c *gin.Context) {
	serverID := c.Param("server_id")

	if _, err := a.registry.Get(serverID); err == nil {
		abort(c, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("server %s has an active game, stop it first", serverID)))
		return
	}

	if err := a.sessions.Delete(c.Request.Context(), serverID); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) GetScoreboard(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		abort(c, err)
		return
	}

	st, err := a.scores.ListScores(c.Request.Context(), score.ListScoresRequest{
		ServerID: c.Param("server_id"),
		Limit:    limit,
	})
	if err != nil {
		abort(c, err)
		return
	}

	if st.Entries == nil {
		st.Entries = []domain.Standing{}
	}

	c.JSON(http.StatusOK, st)
}

func (a *API) GetLeaderboard(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		abort(c, err)
		return
	}

	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		ServerID: c.Param("server_id"),
		Limit:    int64(limit),
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newLeaderboard(*l))
}

func queryLimit(c *gin.Context) (int, error) {
	q := c.Query("limit")
	if q == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(q)
	if err != nil || n < 0 {
		return 0, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid limit: %q", q))
	}

	return n, nil
}

func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
