package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tbourn/go-gif-bot/internal/domain"
	"github.com/tbourn/go-gif-bot/internal/sysutil"
)

// Embed colours.
const (
	ColorBlue   = 0x3498DB
	ColorGreen  = 0x2ECC71
	ColorGold   = 0xF1C40F
	ColorYellow = 0xFEE75C
	ColorRed    = 0xE74C3C
)

var printer = message.NewPrinter(language.English)

// FormatCount renders n with thousands separators ("12,345").
func FormatCount(n int64) string { return printer.Sprintf("%d", n) }

func relTime(t time.Time) string  { return fmt.Sprintf("<t:%d:R>", t.Unix()) }
func dateTime(t time.Time) string { return fmt.Sprintf("<t:%d:D>", t.Unix()) }

func stamp(now time.Time) string { return now.UTC().Format(time.RFC3339) }

func errorEmbed(msg string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Error",
		Description: "❌ " + msg,
		Color:       ColorRed,
	}
}

func field(name, value string, inline bool) *discordgo.MessageEmbedField {
	return &discordgo.MessageEmbedField{Name: name, Value: value, Inline: inline}
}

func footer(self *discordgo.User, text string) *discordgo.MessageEmbedFooter {
	f := &discordgo.MessageEmbedFooter{Text: text}
	if self != nil {
		f.IconURL = self.AvatarURL("")
	}
	return f
}

// conversionEmbed is the success card for a delivered GIF.
func conversionEmbed(self *discordgo.User, author *discordgo.User, fileName, imageURL string) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       "✅ Converted to GIF",
		Description: "The image was converted to GIF. Use the star in the top-left corner to save it.",
		Color:       ColorGreen,
		Image:       &discordgo.MessageEmbedImage{URL: imageURL},
	}
	if author != nil {
		e.Fields = append(e.Fields, field("👤 Source author", author.Mention(), true))
	}
	e.Fields = append(e.Fields, field("📂 Source file", "```"+fileName+"```", true))
	name := "gifbot"
	if self != nil && self.Username != "" {
		name = self.Username
	}
	e.Footer = footer(self, "Served by "+name)
	return e
}

// DBStatsEmbed renders aggregate row counts.
func DBStatsEmbed(c *domain.AggregateCounts, now time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "📊 Database statistics",
		Color: ColorBlue,
		Fields: []*discordgo.MessageEmbedField{
			field("🏰 Guilds", "`"+FormatCount(c.Guilds)+"`", true),
			field("👥 Users", "`"+FormatCount(c.Users)+"`", true),
			field("📝 Usage logs", "`"+FormatCount(c.Events)+"`", true),
			field("💾 Database path", "`"+sysutil.FirstNonEmpty(c.Location, "N/A")+"`", false),
		},
		Timestamp: stamp(now),
	}
}

// GlobalStatsEmbed renders the leaderboard and the latest events. Empty
// sections are omitted.
func GlobalStatsEmbed(top []domain.TopUser, recent []domain.RecentUsage, now time.Time) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       "📊 Global bot statistics",
		Description: "Usage statistics across all guilds",
		Color:       ColorBlue,
		Timestamp:   stamp(now),
	}
	if len(top) > 0 {
		var sb strings.Builder
		for i, u := range top {
			name := u.Username
			if u.DisplayName != nil {
				name = sysutil.FirstNonEmpty(*u.DisplayName, u.Username)
			}
			fmt.Fprintf(&sb, "%d. `%s` - `%s` conversions\n", i+1, name, FormatCount(u.TotalConversions))
		}
		e.Fields = append(e.Fields, field(fmt.Sprintf("🏆 Top users (top %d)", len(top)), sb.String(), false))
	}
	if len(recent) > 0 {
		var sb strings.Builder
		for _, r := range recent {
			where := r.GuildName
			switch {
			case where == domain.DirectMessageGuild:
				where = "direct message"
			case where == "" && r.GuildID != nil:
				where = fmt.Sprintf("guild %d", *r.GuildID)
			}
			fmt.Fprintf(&sb, "• **%s** in `%s` %s\n", r.Username, where, relTime(r.Timestamp))
		}
		e.Fields = append(e.Fields, field(fmt.Sprintf("🕐 Recent activity (latest %d)", len(recent)), sb.String(), false))
	}
	return e
}

func userStatsEmbed(s *domain.UserStats) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title: "📊 User statistics - " + s.Username,
		Color: ColorGreen,
		Fields: []*discordgo.MessageEmbedField{
			field("📈 Total conversions", "`"+FormatCount(s.TotalConversions)+"`", true),
			field("🕐 Last 30 days", "`"+FormatCount(s.RecentCount)+"`", true),
			field("📅 First use", relTime(s.CreatedAt), true),
			field("🔄 Last use", relTime(s.LastSeen), true),
		},
		Footer: &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("User ID: %d", s.UserID)},
	}
	if s.DisplayName != nil && *s.DisplayName != "" {
		e.Fields = append(e.Fields, field("👤 Display name", *s.DisplayName, true))
	}
	return e
}

func guildStatsEmbed(s *domain.GuildStats) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "📊 Guild statistics - " + s.GuildName,
		Color: ColorGold,
		Fields: []*discordgo.MessageEmbedField{
			field("📈 Total conversions", "`"+FormatCount(s.TotalConversions)+"`", true),
			field("👥 Active users", "`"+FormatCount(s.UniqueUsers)+"`", true),
			field("👤 Members", "`"+FormatCount(int64(s.MemberCount))+"`", true),
			field("📅 Installed", dateTime(s.InstalledAt), true),
			field("🔄 Last activity", relTime(s.LastSeen), true),
		},
		Footer: &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Guild ID: %d", s.GuildID)},
	}
}

// latencyGrade maps gateway latency to a colour and label.
func latencyGrade(d time.Duration) (color int, emoji, status string) {
	switch ms := d.Milliseconds(); {
	case ms < 100:
		return ColorGreen, "🟢", "excellent"
	case ms < 200:
		return ColorYellow, "🟡", "good"
	default:
		return ColorRed, "🔴", "slow"
	}
}

func pingEmbed(latency time.Duration, requester string) *discordgo.MessageEmbed {
	color, emoji, status := latencyGrade(latency)
	return &discordgo.MessageEmbed{
		Title:       "🏓 Pong! " + emoji,
		Description: fmt.Sprintf("Latency: **%dms** (%s)", latency.Milliseconds(), status),
		Color:       color,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Requested by " + requester},
	}
}

func infoEmbed(self *discordgo.User, guilds int, latency time.Duration, prefix, version string) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       "🤖 GIF Bot",
		Description: "Converts images to GIF from any message.",
		Color:       ColorBlue,
		Fields: []*discordgo.MessageEmbedField{
			field("📊 Bot",
				fmt.Sprintf("• Guilds: %s\n• Latency: %dms\n• Prefix: `%s`", FormatCount(int64(guilds)), latency.Milliseconds(), prefix),
				true),
			field("⚙️ Stack", "• Language: Go\n• Gateway: discordgo\n• Images: x/image + go-quantize\n• Storage: GORM + SQLite", true),
			field("🏷️ Version", "• "+sysutil.FirstNonEmpty(version, "dev"), true),
		},
	}
	if self != nil {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: self.AvatarURL("")}
		e.Footer = footer(self, "Served by "+self.Username)
	}
	return e
}
