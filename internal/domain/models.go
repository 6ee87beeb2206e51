// Package domain defines the persistence models for guilds, users and usage
// events, plus the read models returned by the usage statistics queries.
// The persisted types are mapped with GORM and form the data layer of the bot.
package domain

import "time"

// Conversion type tags stored on UsageLog.ConversionType.
const (
	ConversionImageToGIF  = "image_to_gif"
	ConversionPassthrough = "gif_passthrough"
)

// DirectMessageGuild is the guild name reported for events recorded outside
// of a guild.
const DirectMessageGuild = "DM"

// Guild is a Discord server the bot has seen a conversion in. Rows are
// upserted on every recorded conversion and never deleted.
//
// Fields:
//   - GuildID: platform snowflake, primary key (not auto-incremented).
//   - GuildName: last observed display name.
//   - MemberCount: last observed member count.
//   - InstalledAt: first time the guild was observed.
//   - LastSeen: refreshed on every touch.
type Guild struct {
	GuildID     int64     `json:"guild_id"     gorm:"primaryKey;autoIncrement:false"`
	GuildName   string    `json:"guild_name"   gorm:"type:varchar(255);not null"`
	MemberCount int       `json:"member_count" gorm:"not null;default:0"`
	InstalledAt time.Time `json:"installed_at" gorm:"not null"`
	LastSeen    time.Time `json:"last_seen"    gorm:"not null"`

	// Declared on the parent so the foreign key lands on usage_logs.
	Logs []UsageLog `json:"-" gorm:"foreignKey:GuildID;references:GuildID;constraint:OnDelete:SET NULL"`
}

// TableName returns the database table name for Guild.
func (Guild) TableName() string { return "guilds" }

// User is a Discord account that triggered at least one conversion.
// TotalConversions is maintained in the same transaction as each UsageLog
// insert and is never recomputed.
type User struct {
	UserID           int64     `json:"user_id"           gorm:"primaryKey;autoIncrement:false"`
	Username         string    `json:"username"          gorm:"type:varchar(255);not null"`
	DisplayName      *string   `json:"display_name,omitempty" gorm:"type:varchar(255)"`
	CreatedAt        time.Time `json:"created_at"        gorm:"not null"`
	LastSeen         time.Time `json:"last_seen"         gorm:"not null"`
	TotalConversions int64     `json:"total_conversions" gorm:"not null;default:0"`

	Logs []UsageLog `json:"-" gorm:"foreignKey:UserID;references:UserID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// UsageLog is one recorded conversion. GuildID is nil for direct-message
// contexts. Rows are the only entity removed by the age-based purge.
type UsageLog struct {
	ID             uint      `json:"id"              gorm:"primaryKey;autoIncrement"`
	UserID         int64     `json:"user_id"         gorm:"not null;index:idx_usage_logs_user_id"`
	GuildID        *int64    `json:"guild_id,omitempty" gorm:"index:idx_usage_logs_guild_id"`
	FileSize       *int64    `json:"file_size,omitempty"`
	ConversionType string    `json:"conversion_type" gorm:"type:varchar(32);not null"`
	Timestamp      time.Time `json:"timestamp"       gorm:"not null;index:idx_usage_logs_timestamp"`
}

// TableName returns the database table name for UsageLog.
func (UsageLog) TableName() string { return "usage_logs" }

// UserStats is the per-user summary shown by the stats command.
type UserStats struct {
	UserID           int64     `json:"user_id"`
	Username         string    `json:"username"`
	DisplayName      *string   `json:"display_name,omitempty"`
	TotalConversions int64     `json:"total_conversions"`
	RecentCount      int64     `json:"conversions_30d"`
	CreatedAt        time.Time `json:"created_at"`
	LastSeen         time.Time `json:"last_seen"`
}

// GuildStats is the per-guild summary shown by the stats command.
type GuildStats struct {
	GuildID          int64     `json:"guild_id"`
	GuildName        string    `json:"guild_name"`
	MemberCount      int       `json:"member_count"`
	TotalConversions int64     `json:"total_conversions"`
	UniqueUsers      int64     `json:"unique_users"`
	InstalledAt      time.Time `json:"installed_at"`
	LastSeen         time.Time `json:"last_seen"`
}

// TopUser is one leaderboard row.
type TopUser struct {
	UserID           int64   `json:"user_id"`
	Username         string  `json:"username"`
	DisplayName      *string `json:"display_name,omitempty"`
	TotalConversions int64   `json:"total_conversions"`
}

// RecentUsage is one usage event joined with the acting user's name and the
// guild name (DirectMessageGuild when GuildID is nil).
type RecentUsage struct {
	ID             uint      `json:"id"`
	UserID         int64     `json:"user_id"`
	Username       string    `json:"username"`
	GuildID        *int64    `json:"guild_id,omitempty"`
	GuildName      string    `json:"guild_name"`
	FileSize       *int64    `json:"file_size,omitempty"`
	ConversionType string    `json:"conversion_type"`
	Timestamp      time.Time `json:"timestamp"`
}

// AggregateCounts summarizes row counts for the admin and display surfaces.
type AggregateCounts struct {
	Guilds   int64  `json:"guilds"`
	Users    int64  `json:"users"`
	Events   int64  `json:"events"`
	Location string `json:"location"`
}
