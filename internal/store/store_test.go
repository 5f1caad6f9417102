package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stockwatch/internal/model"
)

func newTestStore(t *testing.T) *WatchStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := NewWatchStore(db)
	if err := s.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func seedUser(t *testing.T, s *WatchStore, email string) *model.User {
	t.Helper()
	user := &model.User{Email: email, Password: "x"}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "a@example.com")
	err := s.CreateUser(ctx, &model.User{Email: "a@example.com", Password: "y"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestAddAndListWatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "a@example.com")

	item := &model.WatchItem{
		OwnerID:          user.ID,
		URL:              "https://shop.example/item/1",
		DisplayName:      "Blue Widget",
		Status:           model.StatusInStock,
		Price:            model.PriceUnknown,
		CheckIntervalSec: model.DefaultCheckIntervalSec,
	}
	if err := s.Add(ctx, item); err != nil {
		t.Fatalf("add: %v", err)
	}

	items, err := s.ListByOwner(ctx, user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].URL != item.URL || items[0].DisplayName != "Blue Widget" {
		t.Errorf("unexpected item: %+v", items[0])
	}
}

func TestAddDuplicateWatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "a@example.com")
	other := seedUser(t, s, "b@example.com")

	first := &model.WatchItem{OwnerID: user.ID, URL: "https://shop.example/item/1"}
	if err := s.Add(ctx, first); err != nil {
		t.Fatalf("add: %v", err)
	}

	dup := &model.WatchItem{OwnerID: user.ID, URL: "https://shop.example/item/1"}
	if err := s.Add(ctx, dup); !errors.Is(err, ErrDuplicateWatch) {
		t.Errorf("expected ErrDuplicateWatch, got %v", err)
	}

	// 不同用户收藏同一 URL 互不影响
	theirs := &model.WatchItem{OwnerID: other.ID, URL: "https://shop.example/item/1"}
	if err := s.Add(ctx, theirs); err != nil {
		t.Errorf("other user add: %v", err)
	}
}

func TestRemoveWatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "a@example.com")

	item := &model.WatchItem{OwnerID: user.ID, URL: "https://shop.example/item/1"}
	if err := s.Add(ctx, item); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.Remove(ctx, user.ID, item.URL); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, user.ID, item.URL); !errors.Is(err, ErrWatchNotFound) {
		t.Errorf("expected ErrWatchNotFound on second remove, got %v", err)
	}
}

func TestApplyCheck(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "a@example.com")

	item := &model.WatchItem{OwnerID: user.ID, URL: "https://shop.example/item/1"}
	if err := s.Add(ctx, item); err != nil {
		t.Fatalf("add: %v", err)
	}

	checkedAt := time.Now().UTC().Truncate(time.Second)
	err := s.ApplyCheck(ctx, item.ID, CheckResult{
		Status:    model.StatusOutOfStock,
		Price:     "$11.22",
		CheckedAt: checkedAt,
	})
	if err != nil {
		t.Fatalf("apply check: %v", err)
	}

	got, err := s.GetByOwnerAndURL(ctx, user.ID, item.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusOutOfStock {
		t.Errorf("status = %q", got.Status)
	}
	if got.Price != "$11.22" {
		t.Errorf("price = %q", got.Price)
	}
	if !got.LastChecked.Equal(checkedAt) {
		t.Errorf("last checked = %v, want %v", got.LastChecked, checkedAt)
	}

	err = s.ApplyCheck(ctx, 9999, CheckResult{Status: model.StatusInStock, Price: "x", CheckedAt: checkedAt})
	if !errors.Is(err, ErrWatchNotFound) {
		t.Errorf("expected ErrWatchNotFound, got %v", err)
	}
}

func TestTouchLastChecked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "a@example.com")

	item := &model.WatchItem{OwnerID: user.ID, URL: "https://shop.example/item/1", Status: model.StatusInStock, Price: "$5"}
	if err := s.Add(ctx, item); err != nil {
		t.Fatalf("add: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := s.TouchLastChecked(ctx, item.ID, at); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := s.GetByOwnerAndURL(ctx, user.ID, item.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// 状态和价格保持不变，只推进时间
	if got.Status != model.StatusInStock || got.Price != "$5" {
		t.Errorf("unexpected mutation: %+v", got)
	}
	if !got.LastChecked.Equal(at) {
		t.Errorf("last checked = %v, want %v", got.LastChecked, at)
	}
}
