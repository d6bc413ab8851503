package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jwkoh-dev/go-companion-backend/internal/domain"
	"github.com/jwkoh-dev/go-companion-backend/internal/emotion"
)

func newStatsDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("stats_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.ChatRoom{}, &domain.Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestRoomsStats_EmptyAndPopulated(t *testing.T) {
	db := newStatsDB(t)
	ctx := context.Background()

	count, max, err := RoomsStats(ctx, db, "u1")
	if err != nil || count != 0 || max != nil {
		t.Fatalf("empty stats: count=%d max=%v err=%v", count, max, err)
	}

	for i := 0; i < 3; i++ {
		if _, err := CreateRoom(ctx, db, "u1", "pure", "female", fmt.Sprintf("R%d", i), emotion.DefaultState()); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	count, max, err = RoomsStats(ctx, db, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if count != 3 || max == nil {
		t.Fatalf("count=%d max=%v", count, max)
	}
}

func TestCharacterUsageStats_GroupsAndAverages(t *testing.T) {
	db := newStatsDB(t)
	ctx := context.Background()

	mk := func(typ string, aff float64) {
		if _, err := CreateRoom(ctx, db, "u1", typ, "female", "n", emotion.State{Affection: aff, Trust: 50}); err != nil {
			t.Fatalf("seed %s: %v", typ, err)
		}
	}
	mk("pure", 10)
	mk("pure", 30)
	mk("tsundere", 80)

	// Soft-deleted rooms drop out of the aggregate.
	doomed, _ := CreateRoom(ctx, db, "u1", "tsundere", "female", "gone", emotion.DefaultState())
	if err := SoftDeleteRoom(ctx, db, doomed.ID, "u1"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	got, err := CharacterUsageStats(ctx, db)
	if err != nil {
		t.Fatalf("CharacterUsageStats: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 groups, got %d: %+v", len(got), got)
	}
	// pure has more rooms so it sorts first.
	if got[0].CharacterType != "pure" || got[0].Rooms != 2 || got[0].AvgAffection != 20 {
		t.Fatalf("pure row: %+v", got[0])
	}
	if got[1].CharacterType != "tsundere" || got[1].Rooms != 1 || got[1].AvgAffection != 80 {
		t.Fatalf("tsundere row: %+v", got[1])
	}
}

func TestUsageTotals(t *testing.T) {
	db := newStatsDB(t)
	ctx := context.Background()

	room, _ := CreateRoom(ctx, db, "u1", "pure", "female", "A", emotion.DefaultState())
	_, _ = CreateMessage(db, room.ID, domain.RoleUser, "enc", nil)
	_, _ = CreateMessage(db, room.ID, domain.RoleAssistant, "enc", nil)

	rooms, messages, err := UsageTotals(ctx, db)
	if err != nil {
		t.Fatalf("UsageTotals: %v", err)
	}
	if rooms != 1 || messages != 2 {
		t.Fatalf("rooms=%d messages=%d", rooms, messages)
	}
}
