package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-gif-bot/internal/domain"
)

// UpsertUser inserts u or refreshes username, display name and last-seen on
// an existing row. CreatedAt and TotalConversions are left untouched on
// conflict.
func UpsertUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "display_name", "last_seen"}),
		}).
		Omit(clause.Associations).
		Create(u).Error
}

// GetUser loads a user by id or returns ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, userID int64) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// IncrementConversions bumps total_conversions by one and sets last_seen
// for userID. It returns the number of rows touched (0 when the user does
// not exist).
func IncrementConversions(ctx context.Context, db *gorm.DB, userID int64, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]any{
			"total_conversions": gorm.Expr("total_conversions + ?", 1),
			"last_seen":         now,
		})
	return res.RowsAffected, res.Error
}

// TopUsers returns up to limit users ordered by total conversions, highest
// first. Ties fall back to user id for a stable order.
func TopUsers(ctx context.Context, db *gorm.DB, limit int) ([]domain.TopUser, error) {
	var out []domain.TopUser
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Select("user_id, username, display_name, total_conversions").
		Order("total_conversions DESC, user_id ASC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
