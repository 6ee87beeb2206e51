package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-gif-bot/internal/domain"
)

// CreateUsageLog inserts a usage event row and fills in its id. Foreign keys
// must already exist; associations are never written from here.
func CreateUsageLog(ctx context.Context, db *gorm.DB, l *domain.UsageLog) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(l).Error
}

// CountUserEventsSince counts a user's events at or after since.
func CountUserEventsSince(ctx context.Context, db *gorm.DB, userID int64, since time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.UsageLog{}).
		Where("user_id = ? AND timestamp >= ?", userID, since).
		Count(&n).Error
	return n, err
}

// GuildEventStats returns the number of events recorded in a guild and the
// number of distinct users behind them.
func GuildEventStats(ctx context.Context, db *gorm.DB, guildID int64) (events, users int64, err error) {
	var row struct {
		Events int64
		Users  int64
	}
	err = db.WithContext(ctx).
		Model(&domain.UsageLog{}).
		Select("COUNT(*) AS events, COUNT(DISTINCT user_id) AS users").
		Where("guild_id = ?", guildID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Events, row.Users, nil
}

type recentRow struct {
	ID             uint
	UserID         int64
	Username       string
	GuildID        *int64
	GuildName      *string
	FileSize       *int64
	ConversionType string
	Timestamp      time.Time
}

// RecentUsage returns up to limit events, newest first, joined with the
// acting user's name and the guild name. Events without a guild report
// domain.DirectMessageGuild.
func RecentUsage(ctx context.Context, db *gorm.DB, limit int) ([]domain.RecentUsage, error) {
	var rows []recentRow
	err := db.WithContext(ctx).
		Table("usage_logs AS l").
		Select("l.id, l.user_id, u.username, l.guild_id, g.guild_name, l.file_size, l.conversion_type, l.timestamp").
		Joins("JOIN users AS u ON u.user_id = l.user_id").
		Joins("LEFT JOIN guilds AS g ON g.guild_id = l.guild_id").
		Order("l.timestamp DESC, l.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.RecentUsage, 0, len(rows))
	for _, r := range rows {
		name := domain.DirectMessageGuild
		if r.GuildID != nil {
			name = ""
			if r.GuildName != nil {
				name = *r.GuildName
			}
		}
		out = append(out, domain.RecentUsage{
			ID:             r.ID,
			UserID:         r.UserID,
			Username:       r.Username,
			GuildID:        r.GuildID,
			GuildName:      name,
			FileSize:       r.FileSize,
			ConversionType: r.ConversionType,
			Timestamp:      r.Timestamp,
		})
	}
	return out, nil
}

// DeleteUsageOlderThan removes every event with a timestamp strictly before
// cutoff and returns how many rows went away.
func DeleteUsageOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&domain.UsageLog{})
	return res.RowsAffected, res.Error
}
