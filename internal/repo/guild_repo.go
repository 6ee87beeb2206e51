// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Guild model.
//
// Writes are single statements; callers that need several of them to be
// atomic pass a transaction-bound handle.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-gif-bot/internal/domain"
)

// UpsertGuild inserts g or, when a row with the same guild_id exists,
// refreshes its name, member count and last-seen timestamp in one statement.
// InstalledAt is only written on insert.
func UpsertGuild(ctx context.Context, db *gorm.DB, g *domain.Guild) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guild_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"guild_name", "member_count", "last_seen"}),
		}).
		Omit(clause.Associations).
		Create(g).Error
}

// GetGuild loads a guild by id or returns ErrNotFound.
func GetGuild(ctx context.Context, db *gorm.DB, guildID int64) (*domain.Guild, error) {
	var g domain.Guild
	err := db.WithContext(ctx).Where("guild_id = ?", guildID).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}
