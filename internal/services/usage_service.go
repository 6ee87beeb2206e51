// Package services – UsageService
//
// This file implements the UsageService, the explicitly constructed handle
// over the usage statistics store. It upserts guilds and users, records
// usage events while keeping each user's running counter in the same
// transaction, and answers the aggregate queries behind the admin commands,
// the periodic display job and the ops API.
//
// The schema is created lazily on the first call rather than at
// construction, so a UsageService can be built before the database is
// reachable. Every method returns (value, error); callers decide whether a
// failure is surfaced or only logged.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-gif-bot/internal/domain"
	"github.com/tbourn/go-gif-bot/internal/metrics"
	"github.com/tbourn/go-gif-bot/internal/repo"
)

const (
	// DefaultTopUsersLimit applies when GetTopUsers receives limit <= 0.
	DefaultTopUsersLimit = 10
	// DefaultRecentLimit applies when GetRecentUsage receives limit <= 0.
	DefaultRecentLimit = 50
	// RecentWindow is the rolling window reported as the 30-day count.
	RecentWindow = 30 * 24 * time.Hour
)

// Actor identifies the Discord user behind a conversion.
type Actor struct {
	ID          int64
	Username    string
	DisplayName *string
}

// GuildInfo describes the guild a conversion happened in.
type GuildInfo struct {
	ID          int64
	Name        string
	MemberCount int
}

// UsageService is the usage statistics store.
type UsageService struct {
	// DB is the GORM handle; each method opens its own transaction or
	// statement on it.
	DB *gorm.DB

	// Location identifies the backing storage (the SQLite path) in
	// aggregate reports.
	Location string

	// Now returns the current time. Defaults to time.Now in UTC.
	Now func() time.Time

	schemaMu    sync.Mutex
	schemaReady bool
}

// NewUsageService constructs a UsageService over db. No query is issued
// until the first method call.
func NewUsageService(db *gorm.DB, location string) *UsageService {
	return &UsageService{
		DB:       db,
		Location: location,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *UsageService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// ensureSchema runs the migrations once. A failed attempt is retried on the
// next call.
func (s *UsageService) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	if err := repo.AutoMigrate(s.DB.WithContext(ctx)); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	s.schemaReady = true
	return nil
}

func (s *UsageService) fail(op string, err error) error {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	return err
}

// UpsertGuild persists or refreshes a guild row and returns its id.
func (s *UsageService) UpsertGuild(ctx context.Context, id int64, name string, memberCount int) (int64, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, s.fail("upsert_guild", err)
	}
	if err := repo.UpsertGuild(ctx, s.DB, s.guildRow(id, name, memberCount)); err != nil {
		return 0, s.fail("upsert_guild", err)
	}
	return id, nil
}

// UpsertUser persists or refreshes a user row and returns its id.
func (s *UsageService) UpsertUser(ctx context.Context, id int64, username string, displayName *string) (int64, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, s.fail("upsert_user", err)
	}
	if err := repo.UpsertUser(ctx, s.DB, s.userRow(id, username, displayName)); err != nil {
		return 0, s.fail("upsert_user", err)
	}
	return id, nil
}

// RecordEvent inserts a usage event and increments the owner's
// total_conversions and last_seen in one transaction. It fails with
// ErrUserNotFound and writes nothing when the user row does not exist.
func (s *UsageService) RecordEvent(ctx context.Context, userID int64, guildID, fileSize *int64, convType string) (uint, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, s.fail("record_event", err)
	}
	var id uint
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = s.recordEvent(ctx, tx, userID, guildID, fileSize, convType)
		return err
	})
	if err != nil {
		return 0, s.fail("record_event", err)
	}
	return id, nil
}

func (s *UsageService) recordEvent(ctx context.Context, tx *gorm.DB, userID int64, guildID, fileSize *int64, convType string) (uint, error) {
	now := s.now()
	n, err := repo.IncrementConversions(ctx, tx, userID, now)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrUserNotFound
	}
	if guildID != nil {
		if _, err := repo.GetGuild(ctx, tx, *guildID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return 0, ErrGuildNotFound
			}
			return 0, err
		}
	}
	l := &domain.UsageLog{
		UserID:         userID,
		GuildID:        guildID,
		FileSize:       fileSize,
		ConversionType: convType,
		Timestamp:      now,
	}
	if err := repo.CreateUsageLog(ctx, tx, l); err != nil {
		return 0, err
	}
	return l.ID, nil
}

// RecordConversion upserts the acting user, the guild when present, and
// records the event, all in a single transaction. This is the entry point
// used by the bot after a conversion was delivered.
func (s *UsageService) RecordConversion(ctx context.Context, actor Actor, guild *GuildInfo, fileSize *int64, convType string) (uint, error) {
	tr := otel.Tracer("services/UsageService")
	ctx, span := tr.Start(ctx, "RecordConversion",
		trace.WithAttributes(
			attribute.Int64("user.id", actor.ID),
			attribute.String("conversion.type", convType),
		),
	)
	defer span.End()

	if err := s.ensureSchema(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "schema")
		return 0, s.fail("record_conversion", err)
	}

	var id uint
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpsertUser(ctx, tx, s.userRow(actor.ID, actor.Username, actor.DisplayName)); err != nil {
			return err
		}
		var gid *int64
		if guild != nil {
			if err := repo.UpsertGuild(ctx, tx, s.guildRow(guild.ID, guild.Name, guild.MemberCount)); err != nil {
				return err
			}
			g := guild.ID
			gid = &g
		}
		var err error
		id, err = s.recordEvent(ctx, tx, actor.ID, gid, fileSize, convType)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record")
		return 0, s.fail("record_conversion", err)
	}
	return id, nil
}

// GetUserStats returns the running total, the rolling 30-day count and the
// first/last seen timestamps for a user, or ErrUserNotFound.
func (s *UsageService) GetUserStats(ctx context.Context, userID int64) (*domain.UserStats, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, s.fail("user_stats", err)
	}
	var out *domain.UserStats
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := repo.GetUser(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		recent, err := repo.CountUserEventsSince(ctx, tx, userID, s.now().Add(-RecentWindow))
		if err != nil {
			return err
		}
		out = &domain.UserStats{
			UserID:           u.UserID,
			Username:         u.Username,
			DisplayName:      u.DisplayName,
			TotalConversions: u.TotalConversions,
			RecentCount:      recent,
			CreatedAt:        u.CreatedAt,
			LastSeen:         u.LastSeen,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, s.fail("user_stats", err)
	}
	return out, nil
}

// GetGuildStats returns the event count, distinct user count and guild
// metadata, or ErrGuildNotFound.
func (s *UsageService) GetGuildStats(ctx context.Context, guildID int64) (*domain.GuildStats, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, s.fail("guild_stats", err)
	}
	var out *domain.GuildStats
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := repo.GetGuild(ctx, tx, guildID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrGuildNotFound
			}
			return err
		}
		events, users, err := repo.GuildEventStats(ctx, tx, guildID)
		if err != nil {
			return err
		}
		out = &domain.GuildStats{
			GuildID:          g.GuildID,
			GuildName:        g.GuildName,
			MemberCount:      g.MemberCount,
			TotalConversions: events,
			UniqueUsers:      users,
			InstalledAt:      g.InstalledAt,
			LastSeen:         g.LastSeen,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrGuildNotFound) {
			return nil, err
		}
		return nil, s.fail("guild_stats", err)
	}
	return out, nil
}

// GetTopUsers returns up to limit users by total conversions, highest first.
func (s *UsageService) GetTopUsers(ctx context.Context, limit int) ([]domain.TopUser, error) {
	if limit <= 0 {
		limit = DefaultTopUsersLimit
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, s.fail("top_users", err)
	}
	out, err := repo.TopUsers(ctx, s.DB, limit)
	if err != nil {
		return nil, s.fail("top_users", err)
	}
	return out, nil
}

// GetRecentUsage returns up to limit events, newest first.
func (s *UsageService) GetRecentUsage(ctx context.Context, limit int) ([]domain.RecentUsage, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, s.fail("recent_usage", err)
	}
	out, err := repo.RecentUsage(ctx, s.DB, limit)
	if err != nil {
		return nil, s.fail("recent_usage", err)
	}
	return out, nil
}

// PurgeEventsOlderThan deletes usage events older than now minus days and
// returns how many were removed. Guild and user rows, including the running
// counters, are left as they are.
func (s *UsageService) PurgeEventsOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, ErrInvalidDays
	}
	tr := otel.Tracer("services/UsageService")
	ctx, span := tr.Start(ctx, "PurgeEventsOlderThan",
		trace.WithAttributes(attribute.Int("purge.days", days)),
	)
	defer span.End()

	if err := s.ensureSchema(ctx); err != nil {
		return 0, s.fail("purge", err)
	}
	cutoff := s.now().AddDate(0, 0, -days)
	var n int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		n, err = repo.DeleteUsageOlderThan(ctx, tx, cutoff)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return 0, s.fail("purge", err)
	}
	span.SetAttributes(attribute.Int64("purge.deleted", n))
	return n, nil
}

// GetAggregateCounts returns the guild, user and event row counts together
// with the storage location.
func (s *UsageService) GetAggregateCounts(ctx context.Context) (*domain.AggregateCounts, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, s.fail("aggregate_counts", err)
	}
	g, u, e, err := repo.TableCounts(ctx, s.DB)
	if err != nil {
		return nil, s.fail("aggregate_counts", err)
	}
	return &domain.AggregateCounts{Guilds: g, Users: u, Events: e, Location: s.Location}, nil
}

// Close releases the underlying connection pool.
func (s *UsageService) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *UsageService) userRow(id int64, username string, displayName *string) *domain.User {
	now := s.now()
	return &domain.User{
		UserID:      id,
		Username:    username,
		DisplayName: displayName,
		CreatedAt:   now,
		LastSeen:    now,
	}
}

func (s *UsageService) guildRow(id int64, name string, memberCount int) *domain.Guild {
	now := s.now()
	return &domain.Guild{
		GuildID:     id,
		GuildName:   name,
		MemberCount: memberCount,
		InstalledAt: now,
		LastSeen:    now,
	}
}
