package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/guidely/guidely/internal/clock"
	itemdomain "github.com/guidely/guidely/internal/item/domain"
	"github.com/guidely/guidely/pkg/db"
	"github.com/guidely/guidely/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestScheduler(t *testing.T) (*Scheduler, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	gdb, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := gdb.AutoMigrate(&itemdomain.Item{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	fake := clock.NewFakeClock(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	s := &Scheduler{
		log:   zap.NewNop(),
		cfg:   Config{}.withDefaults(),
		clock: fake,
		items: repository.ProvideStore[itemdomain.Item](gdb),
	}
	return s, gdb, fake
}

func seedItem(t *testing.T, gdb *gorm.DB, id int64, status itemdomain.Status, age time.Duration, now time.Time) {
	t.Helper()
	item := &itemdomain.Item{
		ID:           snowflake.ID(id),
		CompanyID:    7,
		Code:         "item-" + snowflake.ID(id).String(),
		Name:         "Item",
		OwnerUserID:  9,
		ArtifactRef:  "artifacts/7/original.pdf",
		ArtifactType: itemdomain.ArtifactPDF,
		Status:       status,
	}
	if err := gdb.Create(item).Error; err != nil {
		t.Fatalf("failed to seed item: %v", err)
	}
	createdAt := now.Add(-age)
	if err := gdb.Model(item).Update("created_at", createdAt).Error; err != nil {
		t.Fatalf("failed to backdate item: %v", err)
	}
}

func TestFindStuckReportsOldProcessingItems(t *testing.T) {
	s, gdb, fake := newTestScheduler(t)
	now := fake.Now()

	seedItem(t, gdb, 1, itemdomain.StatusProcessing, time.Hour, now)
	seedItem(t, gdb, 2, itemdomain.StatusProcessing, 2*time.Hour, now)

	stuck, err := s.findStuck(context.Background())
	if err != nil {
		t.Fatalf("findStuck failed: %v", err)
	}
	if len(stuck) != 2 {
		t.Fatalf("expected 2 stuck items, got %d", len(stuck))
	}
	// Oldest first.
	if stuck[0].ID != 2 || stuck[1].ID != 1 {
		t.Fatalf("expected order [2 1], got [%d %d]", stuck[0].ID, stuck[1].ID)
	}
}

func TestFindStuckIgnoresRecentAndTerminalItems(t *testing.T) {
	s, gdb, fake := newTestScheduler(t)
	now := fake.Now()

	seedItem(t, gdb, 1, itemdomain.StatusProcessing, 5*time.Minute, now)
	seedItem(t, gdb, 2, itemdomain.StatusLive, 2*time.Hour, now)
	seedItem(t, gdb, 3, itemdomain.StatusError, 2*time.Hour, now)

	stuck, err := s.findStuck(context.Background())
	if err != nil {
		t.Fatalf("findStuck failed: %v", err)
	}
	if len(stuck) != 0 {
		t.Fatalf("expected no stuck items, got %d", len(stuck))
	}
}

func TestFindStuckThresholdIsExclusive(t *testing.T) {
	s, gdb, fake := newTestScheduler(t)
	now := fake.Now()

	seedItem(t, gdb, 1, itemdomain.StatusProcessing, s.cfg.StuckThreshold+time.Second, now)
	seedItem(t, gdb, 2, itemdomain.StatusProcessing, s.cfg.StuckThreshold-time.Second, now)

	stuck, err := s.findStuck(context.Background())
	if err != nil {
		t.Fatalf("findStuck failed: %v", err)
	}
	if len(stuck) != 1 || stuck[0].ID != 1 {
		t.Fatalf("expected only the item past the threshold, got %d items", len(stuck))
	}
}

func TestCheckStuckItemsRunsClean(t *testing.T) {
	s, gdb, fake := newTestScheduler(t)
	seedItem(t, gdb, 1, itemdomain.StatusProcessing, time.Hour, fake.Now())

	if err := s.CheckStuckItems(context.Background()); err != nil {
		t.Fatalf("CheckStuckItems failed: %v", err)
	}
}
