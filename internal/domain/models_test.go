package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	// One connection so the PRAGMA below applies to every statement.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	if (Guild{}).TableName() != "guilds" {
		t.Fatalf("Guild.TableName() = %q; want %q", (Guild{}).TableName(), "guilds")
	}
	if (User{}).TableName() != "users" {
		t.Fatalf("User.TableName() = %q; want %q", (User{}).TableName(), "users")
	}
	if (UsageLog{}).TableName() != "usage_logs" {
		t.Fatalf("UsageLog.TableName() = %q; want %q", (UsageLog{}).TableName(), "usage_logs")
	}
}

func TestMigrations_Indexes_AndForeignKeys(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Guild{}, &User{}, &UsageLog{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&Guild{}, &User{}, &UsageLog{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	for _, idx := range []string{"idx_usage_logs_user_id", "idx_usage_logs_guild_id", "idx_usage_logs_timestamp"} {
		if !m.HasIndex(&UsageLog{}, idx) {
			t.Fatalf("expected index %s on usage_logs", idx)
		}
	}

	now := time.Now().UTC()
	u := &User{UserID: 42, Username: "alice", CreatedAt: now, LastSeen: now}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("insert user: %v", err)
	}

	// DM event: nil guild is allowed.
	ok := &UsageLog{UserID: 42, ConversionType: ConversionImageToGIF, Timestamp: now}
	if err := db.Create(ok).Error; err != nil {
		t.Fatalf("insert dm usage log: %v", err)
	}
	if ok.ID == 0 {
		t.Fatalf("expected autoincrement id to be assigned")
	}

	// Orphan user reference must be rejected.
	orphan := &UsageLog{UserID: 7, ConversionType: ConversionImageToGIF, Timestamp: now}
	if err := db.Create(orphan).Error; err == nil {
		t.Fatalf("expected foreign key violation for unknown user")
	}

	// Unknown guild reference must be rejected too.
	gid := int64(99)
	badGuild := &UsageLog{UserID: 42, GuildID: &gid, ConversionType: ConversionImageToGIF, Timestamp: now}
	if err := db.Create(badGuild).Error; err == nil {
		t.Fatalf("expected foreign key violation for unknown guild")
	}
}
