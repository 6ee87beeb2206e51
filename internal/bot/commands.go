package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-gif-bot/internal/metrics"
	"github.com/tbourn/go-gif-bot/internal/services"
	"github.com/tbourn/go-gif-bot/internal/utils"
)

// DefaultCleanupDays is the retention used by "cleanup" without argument.
const DefaultCleanupDays = 90

// Rows shown by the global stats card.
const (
	globalTopLimit    = 5
	globalRecentLimit = 5
)

// parseCommand splits a prefixed message into a lower-cased command name and
// its arguments.
func parseCommand(content, prefix string) (string, []string, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

type targetKind int

const (
	targetInvalid targetKind = iota
	targetUser
	targetGuild
)

// parseTarget interprets the stats argument: a mention is a user, a bare id
// equal to the current guild is that guild, any other bare id is a user.
func parseTarget(arg, currentGuildID string) (targetKind, int64) {
	if strings.HasPrefix(arg, "<@") && strings.HasSuffix(arg, ">") {
		inner := strings.TrimPrefix(strings.TrimSuffix(arg[2:], ">"), "!")
		if id, ok := utils.ParseSnowflake(inner); ok {
			return targetUser, id
		}
		return targetInvalid, 0
	}
	id, ok := utils.ParseSnowflake(arg)
	if !ok {
		return targetInvalid, 0
	}
	if currentGuildID != "" && arg == currentGuildID {
		return targetGuild, id
	}
	return targetUser, id
}

func (b *Bot) handleCommand(ctx context.Context, m *discordgo.Message, name string, args []string) {
	switch name {
	case "stats":
		b.cmdStats(ctx, m, args)
	case "dbstats":
		b.cmdDBStats(ctx, m)
	case "cleanup":
		b.cmdCleanup(ctx, m, args)
	case "info":
		b.cmdInfo(ctx, m)
	case "ping":
		b.cmdPing(ctx, m)
	default:
		return
	}
	metrics.Commands.WithLabelValues(name).Inc()
}

func (b *Bot) send(ctx context.Context, channelID string, e *discordgo.MessageEmbed) {
	if _, err := b.api.ChannelMessageSendEmbed(channelID, e); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("send embed")
	}
}

func (b *Bot) authorIsDev(m *discordgo.Message) bool {
	id, ok := utils.ParseSnowflake(m.Author.ID)
	return ok && b.isDev(id)
}

// cmdStats is dev-only and silent for everyone else.
func (b *Bot) cmdStats(ctx context.Context, m *discordgo.Message, args []string) {
	if !b.authorIsDev(m) {
		return
	}
	lg := zerolog.Ctx(ctx)

	if len(args) == 0 {
		e, err := b.globalStats(ctx)
		if err != nil {
			lg.Error().Err(err).Msg("global stats")
			b.send(ctx, m.ChannelID, errorEmbed("Could not load statistics!"))
			return
		}
		b.send(ctx, m.ChannelID, e)
		return
	}

	kind, id := parseTarget(args[0], m.GuildID)
	switch kind {
	case targetUser:
		st, err := b.store.GetUserStats(ctx, id)
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			b.send(ctx, m.ChannelID, errorEmbed("No usage recorded for that user!"))
		case err != nil:
			lg.Error().Err(err).Int64("target", id).Msg("user stats")
			b.send(ctx, m.ChannelID, errorEmbed("Could not load user statistics!"))
		default:
			b.send(ctx, m.ChannelID, userStatsEmbed(st))
		}
	case targetGuild:
		st, err := b.store.GetGuildStats(ctx, id)
		switch {
		case errors.Is(err, services.ErrGuildNotFound):
			b.send(ctx, m.ChannelID, errorEmbed("No usage recorded for this guild!"))
		case err != nil:
			lg.Error().Err(err).Int64("target", id).Msg("guild stats")
			b.send(ctx, m.ChannelID, errorEmbed("Could not load guild statistics!"))
		default:
			b.send(ctx, m.ChannelID, guildStatsEmbed(st))
		}
	default:
		b.send(ctx, m.ChannelID, errorEmbed("Invalid target! Use a user mention or an id."))
	}
}

func (b *Bot) globalStats(ctx context.Context) (*discordgo.MessageEmbed, error) {
	top, err := b.store.GetTopUsers(ctx, globalTopLimit)
	if err != nil {
		return nil, err
	}
	recent, err := b.store.GetRecentUsage(ctx, globalRecentLimit)
	if err != nil {
		return nil, err
	}
	return GlobalStatsEmbed(top, recent, b.now()), nil
}

func (b *Bot) cmdDBStats(ctx context.Context, m *discordgo.Message) {
	if !b.authorIsDev(m) {
		b.send(ctx, m.ChannelID, errorEmbed("Only developers can run this command!"))
		return
	}
	counts, err := b.store.GetAggregateCounts(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("aggregate counts")
		b.send(ctx, m.ChannelID, errorEmbed("Could not load database statistics!"))
		return
	}
	b.send(ctx, m.ChannelID, DBStatsEmbed(counts, b.now()))
}

// cmdCleanup is restricted to the application owner.
func (b *Bot) cmdCleanup(ctx context.Context, m *discordgo.Message, args []string) {
	lg := zerolog.Ctx(ctx)

	app, err := b.api.Application("@me")
	if err != nil {
		lg.Error().Err(err).Msg("fetch application info")
		b.send(ctx, m.ChannelID, errorEmbed("Could not verify the bot owner!"))
		return
	}
	if app == nil || app.Owner == nil || app.Owner.ID != m.Author.ID {
		b.send(ctx, m.ChannelID, errorEmbed("Only the bot owner can run this command!"))
		return
	}

	days := DefaultCleanupDays
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			b.send(ctx, m.ChannelID, errorEmbed(fmt.Sprintf("Usage: `%scleanup [days]` with a non-negative number of days.", b.cfg.Prefix)))
			return
		}
		days = n
	}

	n, err := b.store.PurgeEventsOlderThan(ctx, days)
	if err != nil {
		lg.Error().Err(err).Int("days", days).Msg("purge usage logs")
		b.send(ctx, m.ChannelID, errorEmbed("Cleanup failed!"))
		return
	}
	lg.Info().Int("days", days).Int64("deleted", n).Msg("usage logs purged")
	b.send(ctx, m.ChannelID, &discordgo.MessageEmbed{
		Title:       "🧹 Cleanup complete",
		Description: fmt.Sprintf("Removed %s usage logs older than %d days.", FormatCount(n), days),
		Color:       ColorGreen,
	})
}

func (b *Bot) cmdInfo(ctx context.Context, m *discordgo.Message) {
	b.send(ctx, m.ChannelID, infoEmbed(b.self(), b.guildCount(), b.api.HeartbeatLatency(), b.cfg.Prefix, b.cfg.Version))
}

func (b *Bot) cmdPing(ctx context.Context, m *discordgo.Message) {
	b.send(ctx, m.ChannelID, pingEmbed(b.api.HeartbeatLatency(), m.Author.Username))
}
