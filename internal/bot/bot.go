// Package bot is the Discord command surface: the "Convert to GIF" message
// context-menu action and the prefixed text commands (stats, dbstats,
// cleanup, info, ping).
//
// Handlers are registered on a *discordgo.Session but talk to Discord through
// the Session interface. Each event gets its own context and a logger tagged
// with a correlation id; no state is shared between events besides the usage
// store and the per-user rate limiter.
package bot

import (
	"context"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-gif-bot/internal/domain"
	"github.com/tbourn/go-gif-bot/internal/ratelimit"
	"github.com/tbourn/go-gif-bot/internal/services"
	"github.com/tbourn/go-gif-bot/internal/sysutil"
	"github.com/tbourn/go-gif-bot/internal/utils"
)

// ConvertCommandName is the message context-menu entry.
const ConvertCommandName = "Convert to GIF"

// HandlerTimeout bounds the work done for a single event.
const HandlerTimeout = 2 * time.Minute

// UsageStore is the part of services.UsageService the bot uses.
type UsageStore interface {
	RecordConversion(ctx context.Context, actor services.Actor, guild *services.GuildInfo, fileSize *int64, convType string) (uint, error)
	GetUserStats(ctx context.Context, userID int64) (*domain.UserStats, error)
	GetGuildStats(ctx context.Context, guildID int64) (*domain.GuildStats, error)
	GetTopUsers(ctx context.Context, limit int) ([]domain.TopUser, error)
	GetRecentUsage(ctx context.Context, limit int) ([]domain.RecentUsage, error)
	PurgeEventsOlderThan(ctx context.Context, days int) (int64, error)
	GetAggregateCounts(ctx context.Context) (*domain.AggregateCounts, error)
}

// Converter turns a Source into a deliverable.
type Converter interface {
	Convert(ctx context.Context, src services.Source) (*services.Result, error)
}

// Prober validates that a link points to an image.
type Prober interface {
	ProbeIsImage(ctx context.Context, url string) bool
}

// Config carries the command-surface settings.
type Config struct {
	DevIDs             []int64
	Prefix             string
	AttachmentMaxBytes int64
	Version            string
}

// Deps are the collaborators of the bot.
type Deps struct {
	Store     UsageStore
	Converter Converter
	Prober    Prober
	Limiter   *ratelimit.Limiter
}

// Bot handles Discord events.
type Bot struct {
	api   Session
	state *discordgo.State
	cfg   Config

	store     UsageStore
	converter Converter
	prober    Prober
	limiter   *ratelimit.Limiter

	base   context.Context
	cancel context.CancelFunc

	readyOnce sync.Once
	ready     chan struct{}

	now func() time.Time
}

// New builds a Bot. state may be nil; guild lookups then go to the API.
func New(api Session, state *discordgo.State, cfg Config, deps Deps) *Bot {
	base, cancel := context.WithCancel(context.Background())
	return &Bot{
		api:       api,
		state:     state,
		cfg:       cfg,
		store:     deps.Store,
		converter: deps.Converter,
		prober:    deps.Prober,
		limiter:   deps.Limiter,
		base:      base,
		cancel:    cancel,
		ready:     make(chan struct{}),
		now:       time.Now,
	}
}

// Register attaches the event handlers to s.
func (b *Bot) Register(s *discordgo.Session) {
	s.AddHandler(b.OnReady)
	s.AddHandler(b.OnInteractionCreate)
	s.AddHandler(b.OnMessageCreate)
}

// Ready is closed after the first Ready event has been handled.
func (b *Bot) Ready() <-chan struct{} { return b.ready }

// Close cancels in-flight event handling.
func (b *Bot) Close() { b.cancel() }

func (b *Bot) isDev(id int64) bool {
	for _, d := range b.cfg.DevIDs {
		if d == id {
			return true
		}
	}
	return false
}

// eventContext returns a bounded context carrying a correlation logger.
func (b *Bot) eventContext(command, userID, guildID string) (context.Context, context.CancelFunc) {
	lg := log.With().
		Str("correlation_id", uuid.NewString()).
		Str("command", command).
		Str("user_id", userID).
		Str("guild_id", sysutil.FirstNonEmpty(guildID, domain.DirectMessageGuild)).
		Logger()
	ctx, cancel := context.WithTimeout(b.base, HandlerTimeout)
	return lg.WithContext(ctx), cancel
}

// recoverEvent logs a panicking handler instead of crashing the gateway
// goroutine.
func recoverEvent(ctx context.Context, event string) {
	if rec := recover(); rec != nil {
		zerolog.Ctx(ctx).Error().
			Interface("panic", rec).
			Bytes("stack", debug.Stack()).
			Str("event", event).
			Msg("panic recovered")
	}
}

// OnReady registers the context-menu command globally.
func (b *Bot) OnReady(_ *discordgo.Session, r *discordgo.Ready) {
	ctx := context.Background()
	defer recoverEvent(ctx, "ready")

	if r == nil || r.User == nil {
		return
	}
	if _, err := b.api.ApplicationCommandBulkOverwrite(r.User.ID, "", []*discordgo.ApplicationCommand{convertCommand()}); err != nil {
		log.Error().Err(err).Msg("register application commands")
	} else {
		log.Info().Str("bot", r.User.Username).Int("guilds", len(r.Guilds)).Msg("ready; commands registered")
	}
	b.readyOnce.Do(func() { close(b.ready) })
}

func convertCommand() *discordgo.ApplicationCommand {
	dm := true
	return &discordgo.ApplicationCommand{
		Type:         discordgo.MessageApplicationCommand,
		Name:         ConvertCommandName,
		DMPermission: &dm,
	}
}

// OnInteractionCreate dispatches the context-menu action.
func (b *Bot) OnInteractionCreate(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic == nil || ic.Interaction == nil || ic.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := ic.ApplicationCommandData()
	if data.Name != ConvertCommandName {
		return
	}
	user := interactionUser(ic.Interaction)
	if user == nil {
		return
	}
	ctx, cancel := b.eventContext("convert_to_gif", user.ID, ic.GuildID)
	defer cancel()
	defer recoverEvent(ctx, "interaction_create")

	var target *discordgo.Message
	if data.Resolved != nil {
		target = data.Resolved.Messages[data.TargetID]
	}
	b.handleConvert(ctx, ic.Interaction, target)
}

// OnMessageCreate dispatches prefixed text commands.
func (b *Bot) OnMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return
	}
	name, args, ok := parseCommand(m.Content, b.cfg.Prefix)
	if !ok {
		return
	}
	ctx, cancel := b.eventContext(name, m.Author.ID, m.GuildID)
	defer cancel()
	defer recoverEvent(ctx, "message_create")

	b.handleCommand(ctx, m.Message, name, args)
}

// interactionUser returns the invoking user in guild and DM contexts.
func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// actorOf builds the stats identity of the invoking user. The display name
// prefers the guild nickname over the global name.
func actorOf(i *discordgo.Interaction) (services.Actor, bool) {
	u := interactionUser(i)
	if u == nil {
		return services.Actor{}, false
	}
	id, ok := utils.ParseSnowflake(u.ID)
	if !ok {
		return services.Actor{}, false
	}
	nick := ""
	if i.Member != nil {
		nick = i.Member.Nick
	}
	a := services.Actor{ID: id, Username: u.Username}
	if dn := sysutil.FirstNonEmpty(nick, u.GlobalName); dn != "" {
		a.DisplayName = &dn
	}
	return a, true
}

// guildInfo resolves the guild of an event from the state cache, then the
// API, falling back to the bare id when the bot cannot see the guild (user
// installs).
func (b *Bot) guildInfo(ctx context.Context, guildID string) *services.GuildInfo {
	id, ok := utils.ParseSnowflake(guildID)
	if !ok {
		return nil
	}
	var g *discordgo.Guild
	if b.state != nil {
		g, _ = b.state.Guild(guildID)
	}
	if g == nil {
		var err error
		if g, err = b.api.Guild(guildID); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("guild lookup failed; using id only")
			g = nil
		}
	}
	info := &services.GuildInfo{ID: id, Name: "guild " + strconv.FormatInt(id, 10)}
	if g != nil {
		info.Name = sysutil.FirstNonEmpty(g.Name, info.Name)
		info.MemberCount = g.MemberCount
		if info.MemberCount == 0 {
			info.MemberCount = g.ApproximateMemberCount
		}
	}
	return info
}

func (b *Bot) self() *discordgo.User {
	if b.state == nil {
		return nil
	}
	b.state.RLock()
	defer b.state.RUnlock()
	return b.state.User
}

func (b *Bot) guildCount() int {
	if b.state == nil {
		return 0
	}
	b.state.RLock()
	defer b.state.RUnlock()
	return len(b.state.Guilds)
}
