// Package driver runs trivia sessions: it asks questions on a timer, takes answers and
// announces the results. One goroutine drives every active session.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/victornm/chotrivia/internal/domain"
	"github.com/victornm/chotrivia/internal/event"
	"github.com/victornm/chotrivia/internal/fuzzy"
	"github.com/victornm/chotrivia/internal/question"
	"github.com/victornm/chotrivia/internal/session"
	"github.com/victornm/chotrivia/internal/telemetry"
)

const (
	DefaultQuestionWindow = 30 * time.Second
	DefaultQuestionPause  = 5 * time.Second
	DefaultStartDelay     = 5 * time.Second
	DefaultQuestionCount  = 10
)

// SessionStore persists session snapshots by server.
type SessionStore interface {
	LoadIncomplete(ctx context.Context) ([]domain.StoredSnapshot, error)
	Load(ctx context.Context, serverID string) (domain.Snapshot, error)
	Save(ctx context.Context, serverID string, snap domain.Snapshot) error
	Delete(ctx context.Context, serverID string) error
}

// ScoreboardStore persists the all-time scores of a server.
type ScoreboardStore interface {
	Load(ctx context.Context, serverID string) (domain.Scoreboard, error)
	Save(ctx context.Context, serverID string, scores domain.Scoreboard) error
}

// Broadcaster delivers plain text to a chat channel.
type Broadcaster interface {
	SendText(ctx context.Context, channelID, text string) error
}

// Registry tracks the active session of each server.
type Registry interface {
	TryCreate(serverID string, factory func() (*session.Session, error)) (*session.Session, error)
	Get(serverID string) (*session.Session, error)
	RemoveSession(serverID, sessionID string) bool
	IsSameSession(serverID, sessionID string) bool
}

type Config struct {
	Registry    Registry
	Store       SessionStore
	Scoreboard  ScoreboardStore
	Broadcaster Broadcaster
	EventBus    *event.Bus

	// Questions is the pool sessions draw from, defaults to the built-in catalog.
	Questions      []domain.Question
	QuestionCount  int
	QuestionWindow time.Duration
	QuestionPause  time.Duration
	StartDelay     time.Duration
	MatchThreshold float64

	Rand      *rand.Rand
	AfterFunc func(d time.Duration) <-chan time.Time
}

type Driver struct {
	c Config

	after func(d time.Duration) <-chan time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(c Config) *Driver {
	if len(c.Questions) == 0 {
		c.Questions = question.Default()
	}
	if c.QuestionCount <= 0 {
		c.QuestionCount = min(DefaultQuestionCount, len(c.Questions))
	}
	if c.QuestionWindow <= 0 {
		c.QuestionWindow = DefaultQuestionWindow
	}
	if c.QuestionPause <= 0 {
		c.QuestionPause = DefaultQuestionPause
	}
	if c.MatchThreshold <= 0 {
		c.MatchThreshold = fuzzy.DefaultThreshold
	}
	if c.EventBus == nil {
		c.EventBus = event.NewBus()
	}

	d := &Driver{
		c:     c,
		after: c.AfterFunc,
		rng:   c.Rand,
	}
	if d.after == nil {
		d.after = time.After
	}
	if d.rng == nil {
		d.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	// Loops outlive the requests that start them, they stop on Shutdown only.
	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d
}

func (d *Driver) options() session.Options {
	o := session.Options{Threshold: d.c.MatchThreshold}
	if d.c.Store != nil {
		o.Store = d.c.Store
	}
	return o
}

// Start creates a session for the server and begins asking questions after the start delay.
func (d *Driver) Start(ctx context.Context, serverID, channelID string) (*session.Session, error) {
	s, err := d.c.Registry.TryCreate(serverID, func() (*session.Session, error) {
		d.rngMu.Lock()
		defer d.rngMu.Unlock()

		return session.New(ctx, session.Config{
			Options:   d.options(),
			ServerID:  serverID,
			ChannelID: channelID,
			Pool:      d.c.Questions,
			Count:     d.c.QuestionCount,
			Rand:      d.rng,
		})
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "driver: session started",
		"server_id", serverID,
		"channel_id", channelID,
		"session_id", s.ID(),
	)
	telemetry.SessionsStarted.Inc()
	d.c.EventBus.Publish(ctx, domain.EventSessionStarted{
		ServerID:  serverID,
		ChannelID: channelID,
		SessionID: s.ID(),
	})

	d.spawn(s, d.c.StartDelay)
	return s, nil
}

// Stop ends the server's session immediately. Its loop notices at the next check.
func (d *Driver) Stop(ctx context.Context, serverID string) error {
	s, err := d.c.Registry.Get(serverID)
	if err != nil {
		return err
	}

	// Persist before freeing the slot: a game started after the removal owns the record.
	s.Stop(ctx)
	if !d.c.Registry.RemoveSession(serverID, s.ID()) {
		return fmt.Errorf("server %s: %w", serverID, session.ErrNotFound)
	}

	slog.InfoContext(ctx, "driver: session stopped",
		"server_id", serverID,
		"session_id", s.ID(),
	)
	telemetry.SessionsEnded.WithLabelValues("stopped").Inc()
	d.c.EventBus.Publish(ctx, domain.EventSessionStopped{
		ServerID:  serverID,
		ChannelID: s.ChannelID(),
		SessionID: s.ID(),
	})

	return nil
}

// Answer handles a message sent while a session may be waiting for an answer. It reports
// whether the message was the first correct answer to the current question. Wrong and
// late answers are ignored silently.
func (d *Driver) Answer(ctx context.Context, serverID, playerID, text string) (bool, error) {
	s, err := d.c.Registry.Get(serverID)
	if err != nil {
		return false, err
	}

	q, ok := s.TryAnswer(ctx, playerID, text)
	if !ok {
		slog.DebugContext(ctx, "driver: answer ignored",
			"server_id", serverID,
			"player_id", playerID,
		)
		return false, nil
	}

	telemetry.QuestionsOutcome.WithLabelValues("answered").Inc()
	d.send(ctx, s, correctMessage(playerID, q))
	return true, nil
}

// Resume restarts the loops of every session left incomplete by a previous process.
// Records that cannot be restored are logged and skipped.
func (d *Driver) Resume(ctx context.Context) (int, error) {
	if d.c.Store == nil {
		return 0, nil
	}

	snaps, err := d.c.Store.LoadIncomplete(ctx)
	if err != nil {
		return 0, fmt.Errorf("load incomplete sessions: %w", err)
	}

	slog.InfoContext(ctx, fmt.Sprintf("driver: found %d incomplete sessions that need to be resumed", len(snaps)))

	resumed := 0
	for _, ss := range snaps {
		s, err := session.Restore(ss.ServerID, ss.Snapshot, d.options())
		if err != nil {
			slog.ErrorContext(ctx, "driver: restore session failed, skipping",
				"server_id", ss.ServerID,
				"error", err,
			)
			continue
		}

		if _, err := d.c.Registry.TryCreate(ss.ServerID, func() (*session.Session, error) { return s, nil }); err != nil {
			slog.ErrorContext(ctx, "driver: register restored session failed, skipping",
				"server_id", ss.ServerID,
				"error", err,
			)
			continue
		}

		telemetry.SessionsRecovered.Inc()
		d.spawn(s, 0)
		resumed++
	}

	return resumed, nil
}

// Shutdown stops every loop and waits for them to return. Sessions stay persisted and
// are resumed by the next process.
func (d *Driver) Shutdown() {
	d.cancel()
	d.wg.Wait()
}

// Wait blocks until every loop has returned.
func (d *Driver) Wait() {
	d.wg.Wait()
}

func (d *Driver) spawn(s *session.Session, delay time.Duration) {
	d.wg.Add(1)
	telemetry.ActiveSessions.Inc()

	go func() {
		defer func() {
			telemetry.ActiveSessions.Dec()
			d.wg.Done()
		}()

		ctx := d.ctx
		if !d.sleep(ctx, s, delay) {
			return
		}

		d.run(ctx, s)
	}()
}

func (d *Driver) run(ctx context.Context, s *session.Session) {
	for {
		if !d.current(s) {
			return
		}

		if s.Complete() {
			d.finish(ctx, s)
			return
		}

		if !d.ask(ctx, s) {
			return
		}

		if !d.sleep(ctx, s, d.c.QuestionPause) {
			return
		}
	}
}

// ask broadcasts the current question and waits for the window to close, either by a
// correct answer or by the timeout. It returns false when the loop must stop.
func (d *Driver) ask(ctx context.Context, s *session.Session) bool {
	q, err := s.CurrentQuestion()
	if err != nil {
		return true
	}

	before, open := s.OpenWindow()
	if !open {
		return true
	}

	d.send(ctx, s, q.Text)
	telemetry.QuestionsAsked.Inc()

	select {
	case <-d.after(d.c.QuestionWindow):
	case <-s.Answered():
	case <-s.Done():
	case <-ctx.Done():
		return false
	}

	// The session may have been stopped or replaced while waiting.
	if !d.current(s) {
		return false
	}

	if s.CloseWindow(before) {
		telemetry.QuestionsOutcome.WithLabelValues("timeout").Inc()
		d.send(ctx, s, timeoutMessage(q))
		s.Advance(ctx)
	}

	return true
}

func (d *Driver) finish(ctx context.Context, s *session.Session) {
	if !s.ClaimFinish() {
		return
	}

	standings := s.FinalStandings()
	scores := s.Scores()

	d.send(ctx, s, standingsMessage(standings))

	if len(scores) > 0 {
		if err := d.mergeScoreboard(ctx, s.ServerID(), scores); err != nil {
			slog.ErrorContext(ctx, "driver: update scoreboard failed",
				"server_id", s.ServerID(),
				"error", err,
			)
		}
	}

	if !d.c.Registry.RemoveSession(s.ServerID(), s.ID()) {
		return
	}

	slog.InfoContext(ctx, "driver: session finished",
		"server_id", s.ServerID(),
		"session_id", s.ID(),
		"players", len(standings.Entries),
	)
	telemetry.SessionsEnded.WithLabelValues("finished").Inc()
	d.c.EventBus.Publish(ctx, domain.EventSessionEnded{
		ServerID:  s.ServerID(),
		ChannelID: s.ChannelID(),
		SessionID: s.ID(),
		Scores:    scores,
		Standings: standings,
	})
}

func (d *Driver) mergeScoreboard(ctx context.Context, serverID string, scores map[string]int) error {
	if d.c.Scoreboard == nil {
		return nil
	}

	board, err := d.c.Scoreboard.Load(ctx, serverID)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if board == nil {
		board = make(domain.Scoreboard)
	}

	board.Merge(scores)
	if err := d.c.Scoreboard.Save(ctx, serverID, board); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	return nil
}

// current reports whether s is still the active session of its server.
func (d *Driver) current(s *session.Session) bool {
	return d.c.Registry.IsSameSession(s.ServerID(), s.ID())
}

// sleep suspends the loop for dur. It returns early when the session is stopped and
// returns false only when the driver shuts down.
func (d *Driver) sleep(ctx context.Context, s *session.Session, dur time.Duration) bool {
	if dur <= 0 {
		return ctx.Err() == nil
	}

	select {
	case <-d.after(dur):
		return true
	case <-s.Done():
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *Driver) send(ctx context.Context, s *session.Session, text string) {
	if err := d.c.Broadcaster.SendText(ctx, s.ChannelID(), text); err != nil {
		slog.WarnContext(ctx, "driver: broadcast failed",
			"server_id", s.ServerID(),
			"channel_id", s.ChannelID(),
			"error", err,
		)
	}
}
