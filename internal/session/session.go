package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/chotrivia/internal/domain"
	"github.com/victornm/chotrivia/internal/errors"
	"github.com/victornm/chotrivia/internal/fuzzy"
	"github.com/victornm/chotrivia/internal/question"
	"github.com/victornm/chotrivia/internal/telemetry"
)

// CurrentRevision is the snapshot layout version written by this package. Snapshots
// with any other revision are refused rather than migrated.
const CurrentRevision = 0

var (
	ErrRevisionMismatch = errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("session: snapshot revision mismatch"))
	ErrCorruptSnapshot = errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("session: corrupt snapshot"))
	ErrOutOfRange = errors.New(errors.CodeOutOfRange,
		errors.WithMessagef("session: no question left"))
)

type Verdict int

const (
	Incorrect Verdict = iota
	Correct
)

func (v Verdict) String() string {
	if v == Correct {
		return "correct"
	}
	return "incorrect"
}

// Store persists session snapshots. Failures are logged and never abort the session.
type Store interface {
	Save(ctx context.Context, serverID string, snap domain.Snapshot) error
}

type Options struct {
	// Store is optional, a nil store disables persistence.
	Store Store
	// Threshold is the minimum fuzzy similarity of a correct answer, defaults to fuzzy.DefaultThreshold.
	Threshold float64
}

type Config struct {
	Options

	ServerID  string
	ChannelID string
	Pool      []domain.Question
	Count     int
	Rand      *rand.Rand
}

// Session is a single trivia game running in a server.
type Session struct {
	id        string
	serverID  string
	channelID string
	questions []domain.Question
	store     Store
	threshold float64

	mu           sync.Mutex
	current      int
	scores       map[string]int
	correctTotal int
	awaiting     bool
	complete     bool
	stopped      bool
	finished     bool

	answered chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a session with questions sampled from the pool and saves its initial snapshot.
func New(ctx context.Context, c Config) (*Session, error) {
	rng := c.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	qs, err := question.Sample(rng, c.Pool, c.Count)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}

	s, err := newSession(c.ServerID, c.ChannelID, qs, c.Options)
	if err != nil {
		return nil, err
	}
	s.complete = len(qs) == 0

	s.mu.Lock()
	s.persistLocked(ctx)
	s.mu.Unlock()

	return s, nil
}

// Restore rebuilds a session from a persisted snapshot. The restored session gets a new ID.
func Restore(serverID string, snap domain.Snapshot, opts Options) (*Session, error) {
	if snap.Revision != CurrentRevision {
		return nil, fmt.Errorf("server %s: got revision %d, want %d: %w",
			serverID, snap.Revision, CurrentRevision, ErrRevisionMismatch)
	}

	if snap.CurrentQuestion < 0 || snap.CurrentQuestion > len(snap.Questions) {
		return nil, fmt.Errorf("server %s: question pointer %d outside [0, %d]: %w",
			serverID, snap.CurrentQuestion, len(snap.Questions), ErrCorruptSnapshot)
	}

	for i, q := range snap.Questions {
		if len(q.Answers) == 0 {
			return nil, fmt.Errorf("server %s: question %d has no answers: %w", serverID, i, ErrCorruptSnapshot)
		}
	}

	for p, n := range snap.Scores {
		if n < 0 {
			return nil, fmt.Errorf("server %s: negative score for %s: %w", serverID, p, ErrCorruptSnapshot)
		}
	}

	s, err := newSession(serverID, snap.ChannelID, question.Clone(snap.Questions), opts)
	if err != nil {
		return nil, err
	}

	s.current = snap.CurrentQuestion
	s.complete = snap.Complete || snap.CurrentQuestion >= len(snap.Questions)
	for p, n := range snap.Scores {
		s.scores[p] = n
	}

	return s, nil
}

func newSession(serverID, channelID string, qs []domain.Question, opts Options) (*Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = fuzzy.DefaultThreshold
	}

	return &Session{
		id:        id.String(),
		serverID:  serverID,
		channelID: channelID,
		questions: qs,
		store:     opts.Store,
		threshold: threshold,
		scores:    make(map[string]int),
		answered:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

func (s *Session) ID() string        { return s.id }
func (s *Session) ServerID() string  { return s.serverID }
func (s *Session) ChannelID() string { return s.channelID }

// QuestionCount returns the number of questions drawn for the session.
func (s *Session) QuestionCount() int { return len(s.questions) }

func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

func (s *Session) Awaiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaiting
}

// CorrectTotal is the number of correct answers given during the session.
func (s *Session) CorrectTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.correctTotal
}

func (s *Session) Scores() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyScores(s.scores)
}

// CurrentQuestion returns the question being asked. Callers should check Complete first.
func (s *Session) CurrentQuestion() (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Session) currentLocked() (domain.Question, error) {
	if s.current >= len(s.questions) {
		return domain.Question{}, fmt.Errorf("question %d of %d: %w", s.current, len(s.questions), ErrOutOfRange)
	}

	return s.questions[s.current], nil
}

// SubmitAnswer only evaluates text against the current question, it never changes state.
func (s *Session) SubmitAnswer(playerID, text string) Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evaluateLocked(text)
}

func (s *Session) evaluateLocked(text string) Verdict {
	q, err := s.currentLocked()
	if err != nil {
		return Incorrect
	}

	if fuzzy.IsMatch(text, q.Answers, s.threshold) {
		return Correct
	}

	return Incorrect
}

// AwardPoint gives a player one point.
func (s *Session) AwardPoint(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awardLocked(playerID)
}

func (s *Session) awardLocked(playerID string) {
	s.scores[playerID]++
	s.correctTotal++
}

// Advance moves to the next question and completes the session after the last one.
// Every call skips a question, so it must run exactly once per transition.
func (s *Session) Advance(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked(ctx)
}

func (s *Session) advanceLocked(ctx context.Context) {
	if s.complete {
		return
	}

	s.current++
	if s.current >= len(s.questions) {
		s.complete = true
		s.awaiting = false
	}

	s.persistLocked(ctx)
}

// Stop completes the session regardless of the remaining questions. Stopping a session
// whose results were already claimed by ClaimFinish has no effect on its state.
func (s *Session) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.finished {
		s.complete = true
		s.awaiting = false
		s.stopped = true
		s.persistLocked(ctx)
	}
	s.mu.Unlock()

	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// ClaimFinish reports whether the caller should announce the results: the session ran
// out of questions, was not stopped, and nobody claimed it before.
func (s *Session) ClaimFinish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.complete || s.stopped || s.finished {
		return false
	}

	s.finished = true
	return true
}

// OpenWindow starts accepting answers for the current question and returns the number
// of correct answers given so far. It returns false if the session is already complete.
func (s *Session) OpenWindow() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.complete {
		return s.correctTotal, false
	}

	// Drop a wake-up left over from an answer that raced the previous timeout.
	select {
	case <-s.answered:
	default:
	}

	s.awaiting = true
	return s.correctTotal, true
}

// CloseWindow claims a window that timed out. It succeeds only while answers are still
// being accepted and nobody answered correctly since before, the caller must then Advance.
func (s *Session) CloseWindow(before int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.awaiting || s.correctTotal != before {
		return false
	}

	s.awaiting = false
	return true
}

// TryAnswer accepts the first correct answer to the current question: it closes the
// window, awards the point and advances in one step. The answered question is returned.
// Answers arriving while no window is open are ignored.
func (s *Session) TryAnswer(ctx context.Context, playerID, text string) (domain.Question, bool) {
	s.mu.Lock()

	if !s.awaiting {
		s.mu.Unlock()
		return domain.Question{}, false
	}

	if s.evaluateLocked(text) != Correct {
		s.mu.Unlock()
		return domain.Question{}, false
	}

	q := s.questions[s.current]
	s.awaiting = false
	s.awardLocked(playerID)
	s.advanceLocked(ctx)
	s.mu.Unlock()

	select {
	case s.answered <- struct{}{}:
	default:
	}

	return q, true
}

// Answered receives a value whenever TryAnswer accepts an answer.
func (s *Session) Answered() <-chan struct{} { return s.answered }

// Done is closed once the session is stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// FinalStandings sorts the scores in descending order. Players with the same score are
// ordered by ID and share a rank. An empty result means nobody scored.
func (s *Session) FinalStandings() domain.Standings {
	s.mu.Lock()
	scores := copyScores(s.scores)
	s.mu.Unlock()

	return Rank(scores)
}

// Rank turns a score map into standings.
func Rank(scores map[string]int) domain.Standings {
	if len(scores) == 0 {
		return domain.Standings{}
	}

	entries := make([]domain.Standing, 0, len(scores))
	for p, n := range scores {
		entries = append(entries, domain.Standing{PlayerID: p, Score: n})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})

	top := entries[0].Score
	ties := -1
	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}

		if entries[i].Score == top {
			ties++
		}
	}

	return domain.Standings{Entries: entries, Ties: ties}
}

// Snapshot returns the persistable state of the session.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() domain.Snapshot {
	return domain.Snapshot{
		Revision:        CurrentRevision,
		Questions:       question.Clone(s.questions),
		CurrentQuestion: s.current,
		Complete:        s.complete,
		Scores:          copyScores(s.scores),
		ChannelID:       s.channelID,
	}
}

func (s *Session) persistLocked(ctx context.Context) {
	if s.store == nil {
		return
	}

	if err := s.store.Save(ctx, s.serverID, s.snapshotLocked()); err != nil {
		telemetry.SnapshotSaveFailures.Inc()
		slog.WarnContext(ctx, "session: save snapshot failed, continuing in memory",
			"server_id", s.serverID,
			"session_id", s.id,
			"error", err,
		)
	}
}

func copyScores(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
