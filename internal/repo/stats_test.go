package repo

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-gif-bot/internal/domain"
)

func newTestDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if migrate {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, id int64, name string, total int64, at time.Time) {
	t.Helper()
	u := &domain.User{UserID: id, Username: name, CreatedAt: at, LastSeen: at, TotalConversions: total}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user %d: %v", id, err)
	}
}

func seedGuild(t *testing.T, db *gorm.DB, id int64, name string, at time.Time) {
	t.Helper()
	g := &domain.Guild{GuildID: id, GuildName: name, MemberCount: 10, InstalledAt: at, LastSeen: at}
	if err := db.Create(g).Error; err != nil {
		t.Fatalf("seed guild %d: %v", id, err)
	}
}

func seedEvent(t *testing.T, db *gorm.DB, userID int64, guildID *int64, at time.Time) uint {
	t.Helper()
	l := &domain.UsageLog{UserID: userID, GuildID: guildID, ConversionType: domain.ConversionImageToGIF, Timestamp: at}
	if err := CreateUsageLog(context.Background(), db, l); err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return l.ID
}

func TestTableCounts_ErrorNoTable(t *testing.T) {
	db := newTestDB(t, false)
	if _, _, _, err := TableCounts(context.Background(), db); err == nil {
		t.Fatalf("expected error due to missing tables")
	}
}

func TestTableCounts_Empty(t *testing.T) {
	db := newTestDB(t, true)
	g, u, e, err := TableCounts(context.Background(), db)
	if err != nil {
		t.Fatalf("TableCounts error: %v", err)
	}
	if g != 0 || u != 0 || e != 0 {
		t.Fatalf("expected zeros, got g=%d u=%d e=%d", g, u, e)
	}
}

func TestTableCounts_Success(t *testing.T) {
	db := newTestDB(t, true)
	now := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)

	seedGuild(t, db, 100, "g", now)
	seedUser(t, db, 1, "a", 0, now)
	seedUser(t, db, 2, "b", 0, now)
	gid := int64(100)
	seedEvent(t, db, 1, &gid, now)
	seedEvent(t, db, 2, nil, now)
	seedEvent(t, db, 2, nil, now)

	g, u, e, err := TableCounts(context.Background(), db)
	if err != nil {
		t.Fatalf("TableCounts error: %v", err)
	}
	if g != 1 || u != 2 || e != 3 {
		t.Fatalf("expected (1,2,3), got (%d,%d,%d)", g, u, e)
	}
}
