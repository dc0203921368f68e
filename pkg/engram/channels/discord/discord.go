// Package discord implements a Discord front end for the memory engine
// using discordgo. The bot listens for prefixed commands and maps each one
// onto a single engine operation:
//
//	!remember <text>   store a memory
//	!recall <query>    hybrid search
//	!forget <id>       delete a memory
//	!memstats          corpus statistics
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/engramd/engram/pkg/engram/channels"
	"github.com/engramd/engram/pkg/engram/memory"
)

// Config holds Discord channel configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string `yaml:"token"`

	// CommandPrefix triggers bot commands. Defaults to "!".
	CommandPrefix string `yaml:"command_prefix"`

	// AllowedChannels restricts which channel IDs the bot responds in.
	// Empty means respond in all channels.
	AllowedChannels []string `yaml:"allowed_channels"`
}

// Discord implements channels.Channel.
type Discord struct {
	cfg     Config
	store   *memory.Store
	logger  *slog.Logger
	session *discordgo.Session

	connected  atomic.Bool
	lastMsg    atomic.Value // time.Time
	errorCount atomic.Int64
}

// New creates a Discord channel over the given store.
func New(cfg Config, store *memory.Store, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!"
	}
	return &Discord{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "discord"),
	}
}

// Name returns "discord".
func (d *Discord) Name() string { return "discord" }

// Connect opens the Discord gateway WebSocket connection.
func (d *Discord) Connect(ctx context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("%w: discord bot token is required", channels.ErrConnectionFailed)
	}

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("%w: creating session: %v", channels.ErrConnectionFailed, err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	session.AddHandler(d.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("%w: opening gateway: %v", channels.ErrConnectionFailed, err)
	}

	d.session = session
	d.connected.Store(true)

	user := session.State.User
	d.logger.Info("discord connected", "bot", user.Username, "id", user.ID)
	return nil
}

// Disconnect closes the Discord gateway connection.
func (d *Discord) Disconnect() error {
	if d.session != nil {
		d.session.Close()
	}
	d.connected.Store(false)
	d.logger.Info("discord disconnected")
	return nil
}

// IsConnected returns true if the bot is connected.
func (d *Discord) IsConnected() bool { return d.connected.Load() }

// Health returns the channel health status.
func (d *Discord) Health() channels.HealthStatus {
	var lastAt time.Time
	if v := d.lastMsg.Load(); v != nil {
		lastAt = v.(time.Time)
	}
	return channels.HealthStatus{
		Connected:     d.connected.Load(),
		LastMessageAt: lastAt,
		ErrorCount:    int(d.errorCount.Load()),
	}
}

// onMessageCreate dispatches prefixed commands.
func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	if len(d.cfg.AllowedChannels) > 0 {
		allowed := false
		for _, id := range d.cfg.AllowedChannels {
			if id == m.ChannelID {
				allowed = true
				break
			}
		}
		if !allowed {
			return
		}
	}

	cmd, arg, ok := parseCommand(m.Content, d.cfg.CommandPrefix)
	if !ok {
		return
	}

	d.lastMsg.Store(time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reply := d.dispatch(ctx, cmd, arg, m.Author.Username)
	if reply == "" {
		return
	}
	if err := d.reply(m.ChannelID, m.ID, reply); err != nil {
		d.errorCount.Add(1)
		d.logger.Warn("discord reply failed", "channel", m.ChannelID, "error", err.Error())
	}
}

func (d *Discord) dispatch(ctx context.Context, cmd, arg, username string) string {
	switch cmd {
	case "remember":
		return d.cmdRemember(ctx, arg, username)
	case "recall":
		return d.cmdRecall(ctx, arg)
	case "forget":
		return d.cmdForget(ctx, arg)
	case "memstats":
		return d.cmdStats(ctx)
	case "memhelp":
		return d.cmdHelp()
	default:
		return ""
	}
}

func (d *Discord) cmdRemember(ctx context.Context, arg, username string) string {
	if strings.TrimSpace(arg) == "" {
		return "Usage: " + d.cfg.CommandPrefix + "remember <text>"
	}
	res, err := d.store.Add(ctx, arg, memory.AddOptions{
		Source:  "discord",
		Context: "from " + username,
	})
	if err != nil {
		d.errorCount.Add(1)
		return "Could not store that: " + err.Error()
	}
	if res.Duplicate {
		return fmt.Sprintf("Already remembered (memory #%d).", res.ID)
	}
	return fmt.Sprintf("Remembered as memory #%d.", res.ID)
}

func (d *Discord) cmdRecall(ctx context.Context, arg string) string {
	if strings.TrimSpace(arg) == "" {
		return d.recentEntries(ctx)
	}
	results, err := d.store.Search(ctx, arg, memory.SearchOptions{Limit: 5})
	if err != nil {
		d.errorCount.Add(1)
		return "Search failed: " + err.Error()
	}
	if len(results) == 0 {
		return "Nothing matched."
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "#%d [%.2f] %s\n", r.ID, r.Score, r.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// recentEntries is the no-query form of recall.
func (d *Discord) recentEntries(ctx context.Context) string {
	entries, err := d.store.ListRecent(ctx, 5)
	if err != nil {
		d.errorCount.Add(1)
		return "Listing failed: " + err.Error()
	}
	if len(entries) == 0 {
		return "Nothing remembered yet."
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "#%d %s\n", e.ID, e.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Discord) cmdForget(ctx context.Context, arg string) string {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return "Usage: " + d.cfg.CommandPrefix + "forget <id>"
	}
	existed, err := d.store.Delete(ctx, id)
	if err != nil {
		d.errorCount.Add(1)
		return "Delete failed: " + err.Error()
	}
	if !existed {
		return fmt.Sprintf("No memory #%d.", id)
	}
	return fmt.Sprintf("Forgot memory #%d.", id)
}

func (d *Discord) cmdStats(ctx context.Context) string {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.errorCount.Add(1)
		return "Stats failed: " + err.Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Memories: %d\n", stats.TotalEntries)
	if len(stats.ByType) > 0 {
		parts := make([]string, 0, len(stats.ByType))
		for typ, n := range stats.ByType {
			parts = append(parts, fmt.Sprintf("%s=%d", typ, n))
		}
		fmt.Fprintf(&b, "By type: %s\n", strings.Join(parts, " "))
	}
	fmt.Fprintf(&b, "Avg importance: %.1f", stats.AvgImportance)
	return b.String()
}

func (d *Discord) cmdHelp() string {
	p := d.cfg.CommandPrefix
	return strings.Join([]string{
		p + "remember <text> - store a memory",
		p + "recall <query> - search memories",
		p + "forget <id> - delete a memory",
		p + "memstats - corpus statistics",
	}, "\n")
}

// reply sends a message as a reply, splitting at Discord's 2000 char limit.
func (d *Discord) reply(channelID, replyTo, content string) error {
	if d.session == nil {
		return channels.ErrChannelDisconnected
	}
	for i, chunk := range splitMessage(content, 2000) {
		msg := &discordgo.MessageSend{Content: chunk}
		if i == 0 {
			msg.Reference = &discordgo.MessageReference{MessageID: replyTo, ChannelID: channelID}
		}
		if _, err := d.session.ChannelMessageSendComplex(channelID, msg); err != nil {
			return err
		}
	}
	return nil
}

// parseCommand splits "!cmd rest of line" into (cmd, arg). Returns ok=false
// when the content does not start with the prefix.
func parseCommand(content, prefix string) (cmd, arg string, ok bool) {
	if !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(content, prefix)
	if rest == "" || rest[0] == ' ' {
		return "", "", false
	}
	cmd, arg, _ = strings.Cut(rest, " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg), true
}

// splitMessage splits text into chunks no longer than maxLen, preferring
// newline boundaries.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/2 {
			cutAt = idx + 1
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}

var _ channels.Channel = (*Discord)(nil)
