// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the aggregate row counts used by the
// dbstats command, the periodic display job and the ops stats endpoint.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-gif-bot/internal/domain"
)

// TableCounts returns the number of rows in the guilds, users and
// usage_logs tables.
//
// Return values:
//   - guilds: total guild rows
//   - users:  total user rows
//   - events: total usage_log rows
//   - err:    database error, if any
func TableCounts(ctx context.Context, db *gorm.DB) (guilds, users, events int64, err error) {
	q := db.WithContext(ctx)

	if err = q.Model(&domain.Guild{}).Count(&guilds).Error; err != nil {
		return 0, 0, 0, err
	}
	if err = q.Model(&domain.User{}).Count(&users).Error; err != nil {
		return 0, 0, 0, err
	}
	if err = q.Model(&domain.UsageLog{}).Count(&events).Error; err != nil {
		return 0, 0, 0, err
	}
	return guilds, users, events, nil
}
