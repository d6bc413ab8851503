package repo

import (
	"errors"
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

func newMsgRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("msg_repo_test_%d.db", time.Now().UnixNano()))
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
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func fptr(v float64) *float64 { return &v }

func TestCreateMessage_WithAndWithoutDelta(t *testing.T) {
	db := newMsgRepoDB(t, &domain.ChatRoom{}, &domain.Message{})

	um, err := CreateMessage(db, "r1", domain.RoleUser, "enc-user", nil)
	if err != nil {
		t.Fatalf("CreateMessage user: %v", err)
	}
	if um.ID == "" || um.Role != domain.RoleUser || um.StateDelta != nil {
		t.Fatalf("unexpected user message: %+v", um)
	}

	delta := &emotion.Delta{Affection: fptr(5), Anger: fptr(-2)}
	am, err := CreateMessage(db, "r1", domain.RoleAssistant, "enc-assistant", delta)
	if err != nil {
		t.Fatalf("CreateMessage assistant: %v", err)
	}

	// Delta survives the JSON serializer round trip.
	got, err := GetMessage(db, am.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.StateDelta == nil || got.StateDelta.Affection == nil || *got.StateDelta.Affection != 5 {
		t.Fatalf("delta round-trip mismatch: %+v", got.StateDelta)
	}
	if got.StateDelta.Jealousy != nil {
		t.Fatal("absent delta dimension must stay nil")
	}
}

func TestListRecentMessages_NewestFirstWithLimit(t *testing.T) {
	db := newMsgRepoDB(t, &domain.ChatRoom{}, &domain.Message{})

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		m := &domain.Message{
			ID: fmt.Sprintf("m%d", i), RoomID: "r1", Role: domain.RoleUser,
			Content: fmt.Sprintf("c%d", i), CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	// Another room's message must not leak in.
	db.Create(&domain.Message{ID: "other", RoomID: "r2", Role: domain.RoleUser, Content: "x", CreatedAt: base})

	got, err := ListRecentMessages(db, "r1", 3)
	if err != nil {
		t.Fatalf("ListRecentMessages: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	if got[0].ID != "m4" || got[1].ID != "m3" || got[2].ID != "m2" {
		t.Fatalf("wrong order/window: %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}

	// limit<=0 means all.
	all, err := ListRecentMessages(db, "r1", 0)
	if err != nil || len(all) != 5 {
		t.Fatalf("unlimited list: len=%d err=%v", len(all), err)
	}
}

func TestUpdateMessageDelta_BackAnnotation(t *testing.T) {
	db := newMsgRepoDB(t, &domain.ChatRoom{}, &domain.Message{})
	m, _ := CreateMessage(db, "r1", domain.RoleUser, "enc", nil)

	delta := &emotion.Delta{Trust: fptr(3)}
	if err := UpdateMessageDelta(db, m.ID, delta); err != nil {
		t.Fatalf("UpdateMessageDelta: %v", err)
	}
	got, _ := GetMessage(db, m.ID)
	if got.StateDelta == nil || got.StateDelta.Trust == nil || *got.StateDelta.Trust != 3 {
		t.Fatalf("delta not annotated: %+v", got.StateDelta)
	}

	if err := UpdateMessageDelta(db, "missing", delta); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing message should be ErrNotFound, got %v", err)
	}
}

func TestCountMessages_ErrorWithoutTable(t *testing.T) {
	db := newMsgRepoDB(t) // no migration
	if _, err := CountMessages(db, "r1"); err == nil {
		t.Fatal("expected error when table is missing")
	}
}
