// Package command handles chat messages: "<prefix>cho <command>" invocations and
// answers to the running trivia question.
package command

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/google/shlex"

	"github.com/victornm/chotrivia/internal/domain"
	"github.com/victornm/chotrivia/internal/driver"
	"github.com/victornm/chotrivia/internal/guild"
	"github.com/victornm/chotrivia/internal/score"
	"github.com/victornm/chotrivia/internal/session"
)

const (
	CmdHelp       = "help"
	CmdStart      = "start"
	CmdStop       = "stop"
	CmdScoreboard = "scoreboard"
	CmdSetChannel = "set-channel"
	CmdSetPrefix  = "set-prefix"
	CmdSetStatus  = "set-status"

	defaultTriviaChannel = "trivia"
)

var channelMention = regexp.MustCompile(`^<#([0-9]+)>$`)

// Message is a chat message received on a server.
type Message struct {
	ServerID    string `json:"server_id"`
	ChannelID   string `json:"channel_id" binding:"required"`
	ChannelName string `json:"channel_name"`
	AuthorID    string `json:"author_id" binding:"required"`
	Content     string `json:"content"`
	// Admin is set when the author administers the server.
	Admin bool `json:"admin"`
}

type Driver interface {
	Start(ctx context.Context, serverID, channelID string) (*session.Session, error)
	Stop(ctx context.Context, serverID string) error
	Answer(ctx context.Context, serverID, playerID, text string) (bool, error)
}

type Guilds interface {
	Get(ctx context.Context, serverID string) (domain.GuildConfig, error)
	SaveConfig(ctx context.Context, serverID string, c domain.GuildConfig) error
	SetStatus(ctx context.Context, status string) error
}

type Scoreboard interface {
	ListScores(ctx context.Context, req score.ListScoresRequest) (domain.Standings, error)
}

type Config struct {
	Driver      Driver
	Guilds      Guilds
	Scoreboard  Scoreboard
	Broadcaster driver.Broadcaster
	// Owners are the players allowed to run bot-wide commands.
	Owners []string
}

type Handler struct {
	c Config
}

func NewHandler(c Config) *Handler {
	return &Handler{c: c}
}

type command struct {
	name  string
	fn    func(ctx context.Context, m Message, args []string, cfg domain.GuildConfig) error
	check func(m Message) string
}

func (h *Handler) globalCommands() []command {
	return []command{
		{name: CmdHelp, fn: h.help},
		{name: CmdSetChannel, fn: h.setChannel, check: adminOnly},
		{name: CmdSetPrefix, fn: h.setPrefix, check: adminOnly},
		{name: CmdSetStatus, fn: h.setStatus, check: h.ownerOnly},
	}
}

func (h *Handler) channelCommands() []command {
	return []command{
		{name: CmdStart, fn: h.start},
		{name: CmdStop, fn: h.stop},
		{name: CmdScoreboard, fn: h.scoreboard},
	}
}

// Handle processes a message. User mistakes are answered in chat, only failures of
// the bot's own dependencies are returned.
func (h *Handler) Handle(ctx context.Context, m Message) error {
	if m.ServerID == "" {
		return h.reply(ctx, m, "Oh hello there, I don't currently do private trivia sessions. "+
			"If you want to start a game, call for me in a server.")
	}

	cfg, err := h.c.Guilds.Get(ctx, m.ServerID)
	if err != nil {
		return fmt.Errorf("get guild config: %w", err)
	}

	if IsCommand(m.Content, guild.Prefix(cfg)) {
		return h.handleCommand(ctx, m, cfg)
	}

	if !inTriviaChannel(m, cfg) {
		return nil
	}

	_, err = h.c.Driver.Answer(ctx, m.ServerID, m.AuthorID, m.Content)
	if stderrors.Is(err, session.ErrNotFound) {
		return nil
	}

	return err
}

func (h *Handler) handleCommand(ctx context.Context, m Message, cfg domain.GuildConfig) error {
	args, err := shlex.Split(m.Content)
	if err != nil {
		return h.reply(ctx, m, "I couldn't make sense of that, check your quotes and try again.")
	}

	if len(args) < 2 {
		return h.reply(ctx, m, `You didn't specify a command. If you want to start a game use the "start" command.`)
	}

	name := strings.ToLower(args[1])

	slog.DebugContext(ctx, "command: received",
		"server_id", m.ServerID,
		"author_id", m.AuthorID,
		"command", name,
	)

	if c, ok := find(h.globalCommands(), name); ok {
		return h.run(ctx, c, m, args, cfg)
	}

	if !inTriviaChannel(m, cfg) {
		return h.reply(ctx, m, "Sorry, I can't be summoned into this channel. Please go to the trivia channel for this server.")
	}

	if c, ok := find(h.channelCommands(), name); ok {
		return h.run(ctx, c, m, args, cfg)
	}

	return h.reply(ctx, m, `I'm afraid I don't know that command. If you want to start a game use the "start" command.`)
}

func (h *Handler) run(ctx context.Context, c command, m Message, args []string, cfg domain.GuildConfig) error {
	if c.check != nil {
		if denied := c.check(m); denied != "" {
			return h.reply(ctx, m, denied)
		}
	}

	return c.fn(ctx, m, args, cfg)
}

func (h *Handler) help(ctx context.Context, m Message, _ []string, cfg domain.GuildConfig) error {
	p := guild.Prefix(cfg)

	var b strings.Builder
	fmt.Fprintf(&b, "Nice to meet you, %s. Here's all of the things you can ask me to do!\n", m.AuthorID)
	fmt.Fprintf(&b, "Commands are typed as such: %scho <command>\n\n", p)
	fmt.Fprintf(&b, "%s: Shows the help information, you know, the stuff you're currently reading.\n", CmdHelp)
	fmt.Fprintf(&b, "%s: Starts a new trivia game.\n", CmdStart)
	fmt.Fprintf(&b, "%s: Stops the currently running trivia game.\n", CmdStop)
	fmt.Fprintf(&b, "%s: Shows the server's scoreboard which shows all points earned by members of the server.\n", CmdScoreboard)
	fmt.Fprintf(&b, "%s: Changes the channel that the bot hosts trivia games in. Server admins only.\n", CmdSetChannel)
	fmt.Fprintf(&b, "%s: Changes the prefix used to summon Cho. Server admins only.", CmdSetPrefix)

	return h.reply(ctx, m, b.String())
}

func (h *Handler) start(ctx context.Context, m Message, _ []string, _ domain.GuildConfig) error {
	_, err := h.c.Driver.Start(ctx, m.ServerID, m.ChannelID)
	if stderrors.Is(err, session.ErrAlreadyActive) {
		return h.reply(ctx, m, "A game is already active in the trivia channel. If you want to participate please go in there.")
	}
	if err != nil {
		return fmt.Errorf("start game: %w", err)
	}

	slog.InfoContext(ctx, "command: game started",
		"server_id", m.ServerID,
		"author_id", m.AuthorID,
	)

	return h.reply(ctx, m, "Okay I'm starting a game. Don't expect me to go easy.")
}

func (h *Handler) stop(ctx context.Context, m Message, _ []string, _ domain.GuildConfig) error {
	err := h.c.Driver.Stop(ctx, m.ServerID)
	if stderrors.Is(err, session.ErrNotFound) {
		return h.reply(ctx, m, "There's no game to stop right now. If you're interested in stopping games before they end, "+
			"I recommend that you start one first.")
	}
	if err != nil {
		return fmt.Errorf("stop game: %w", err)
	}

	slog.InfoContext(ctx, "command: game stopped",
		"server_id", m.ServerID,
		"author_id", m.AuthorID,
	)

	return h.reply(ctx, m, "I'm stopping the game for now. Maybe we can play another time?")
}

func (h *Handler) scoreboard(ctx context.Context, m Message, _ []string, _ domain.GuildConfig) error {
	st, err := h.c.Scoreboard.ListScores(ctx, score.ListScoresRequest{ServerID: m.ServerID})
	if err != nil {
		return fmt.Errorf("list scores: %w", err)
	}

	if st.Empty() {
		return h.reply(ctx, m, "Currently no scores are available. Try playing a game to get some scores in the scoreboard.")
	}

	var b strings.Builder
	b.WriteString("Here is the scoreboard for this server:\n")
	for _, e := range st.Entries {
		fmt.Fprintf(&b, "\n- %s: %s", e.PlayerID, driver.Points(e.Score))
	}

	return h.reply(ctx, m, b.String())
}

func (h *Handler) setChannel(ctx context.Context, m Message, args []string, cfg domain.GuildConfig) error {
	if len(args) < 3 {
		return h.reply(ctx, m, fmt.Sprintf("Please specify a channel when using %q.", CmdSetChannel))
	}

	match := channelMention.FindStringSubmatch(args[2])
	if match == nil {
		return h.reply(ctx, m, "That doesn't look like a channel to me. Please try again.")
	}

	cfg.TriviaChannel = match[1]
	if err := h.c.Guilds.SaveConfig(ctx, m.ServerID, cfg); err != nil {
		return fmt.Errorf("save guild config: %w", err)
	}

	return h.reply(ctx, m, fmt.Sprintf("The trivia channel is now in %s.", args[2]))
}

func (h *Handler) setPrefix(ctx context.Context, m Message, args []string, cfg domain.GuildConfig) error {
	if len(args) < 3 {
		return h.reply(ctx, m, fmt.Sprintf("Please specify a prefix when using %q.", CmdSetPrefix))
	}

	prefix := args[2]
	if !guild.ValidPrefix(prefix) {
		return h.reply(ctx, m, "Sorry, that's not a supported prefix for me. Please try another one.")
	}

	cfg.Prefix = prefix
	if err := h.c.Guilds.SaveConfig(ctx, m.ServerID, cfg); err != nil {
		return fmt.Errorf("save guild config: %w", err)
	}

	return h.reply(ctx, m, fmt.Sprintf("My prefix is now %q.", prefix))
}

func (h *Handler) setStatus(ctx context.Context, m Message, args []string, _ domain.GuildConfig) error {
	switch {
	case len(args) < 3:
		return h.reply(ctx, m, fmt.Sprintf("Please specify a status when using %q.", CmdSetStatus))
	case len(args) > 3:
		return h.reply(ctx, m, fmt.Sprintf("Too many arguments for %q. Surround your status with double quotes to include spaces.", CmdSetStatus))
	}

	if err := h.c.Guilds.SetStatus(ctx, args[2]); err != nil {
		slog.WarnContext(ctx, "command: set status failed", "error", err)
		return h.reply(ctx, m, "Unable to set status due to a redis connection error.")
	}

	return h.reply(ctx, m, fmt.Sprintf("My status is now %q.", args[2]))
}

func (h *Handler) ownerOnly(m Message) string {
	if slices.Contains(h.c.Owners, m.AuthorID) {
		return ""
	}

	return "Sorry, only the bot owner can run that command."
}

func adminOnly(m Message) string {
	if m.Admin {
		return ""
	}

	return "Sorry, only administrators run that command."
}

func (h *Handler) reply(ctx context.Context, m Message, text string) error {
	if err := h.c.Broadcaster.SendText(ctx, m.ChannelID, text); err != nil {
		return fmt.Errorf("reply: %w", err)
	}

	return nil
}

// IsCommand reports whether content invokes the bot with the given prefix.
func IsCommand(content, prefix string) bool {
	return strings.HasPrefix(content, prefix+"cho") || strings.HasPrefix(content, prefix+"trivia")
}

func inTriviaChannel(m Message, cfg domain.GuildConfig) bool {
	if cfg.TriviaChannel != "" {
		return m.ChannelID == cfg.TriviaChannel
	}

	return m.ChannelName == defaultTriviaChannel
}

func find(cmds []command, name string) (command, bool) {
	for _, c := range cmds {
		if c.name == name {
			return c, true
		}
	}

	return command{}, false
}
