package domain

// Question is a trivia prompt and the answers accepted for it. The first answer
// is the one shown to players.
type Question struct {
	Text    string   `json:"text"`
	Answers []string `json:"answers"`
}

// Canonical returns the answer displayed when revealing the question.
func (q Question) Canonical() string {
	if len(q.Answers) == 0 {
		return ""
	}

	return q.Answers[0]
}

// Snapshot is the persisted form of a trivia session. The JSON layout is what
// ends up in the active_games.game_state column and in Redis.
type Snapshot struct {
	Revision        int            `json:"revision"`
	Questions       []Question     `json:"questions"`
	CurrentQuestion int            `json:"current_question"`
	Complete        bool           `json:"complete"`
	Scores          map[string]int `json:"scores"`
	ChannelID       string         `json:"channel_id"`
}

// StoredSnapshot pairs a snapshot with the server it belongs to.
type StoredSnapshot struct {
	ServerID string
	Snapshot Snapshot
}

// Standing is a single player's final position in a session.
type Standing struct {
	PlayerID string `json:"player_id"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// Standings is the result of a finished session, sorted by score in descending order.
// Ties is the number of players sharing the top score besides the nominal winner.
type Standings struct {
	Entries []Standing `json:"entries"`
	Ties    int        `json:"ties"`
}

func (s Standings) Empty() bool { return len(s.Entries) == 0 }

// Winners returns the entries holding the top score.
func (s Standings) Winners() []Standing {
	if s.Empty() {
		return nil
	}

	return s.Entries[:s.Ties+1]
}

// Scoreboard maps a player to the points accumulated across every session of a server.
type Scoreboard map[string]int

// Merge adds the given session scores into the scoreboard.
func (b Scoreboard) Merge(scores map[string]int) {
	for p, n := range scores {
		b[p] += n
	}
}

// GuildConfig is the per-server bot configuration.
type GuildConfig struct {
	Prefix        string `json:"prefix,omitempty"`
	TriviaChannel string `json:"trivia_channel,omitempty"`
}

// Leaderboard is the server-wide ranking of players, sorted by score in descending order.
type Leaderboard struct {
	ServerID string
	Entries  []LeaderboardEntry
}

type LeaderboardEntry struct {
	PlayerID string
	Score    float64
}
