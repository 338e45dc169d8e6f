package domain

const (
	EventNameSessionStarted     = "session.started"
	EventNameSessionEnded       = "session.ended"
	EventNameSessionStopped     = "session.stopped"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventSessionStarted struct {
	ServerID  string
	ChannelID string
	SessionID string
}

func (EventSessionStarted) Name() string { return EventNameSessionStarted }

// EventSessionEnded is published once a session ran out of questions.
type EventSessionEnded struct {
	ServerID  string
	ChannelID string
	SessionID string
	Scores    map[string]int
	Standings Standings
}

func (EventSessionEnded) Name() string { return EventNameSessionEnded }

type EventSessionStopped struct {
	ServerID  string
	ChannelID string
	SessionID string
}

func (EventSessionStopped) Name() string { return EventNameSessionStopped }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
