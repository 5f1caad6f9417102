package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"stockwatch/internal/model"
)

var (
	// ErrDuplicateWatch 同一用户重复收藏同一 URL。
	ErrDuplicateWatch = errors.New("watch already exists for this url")
	// ErrWatchNotFound 目标监控项不存在。
	ErrWatchNotFound = errors.New("watch not found")
	// ErrUserNotFound 目标用户不存在。
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken 邮箱已被注册。
	ErrEmailTaken = errors.New("email already registered")
)

// WatchStore 封装监控项和用户的持久化操作。
type WatchStore struct {
	db *gorm.DB
}

func NewWatchStore(db *gorm.DB) *WatchStore {
	return &WatchStore{db: db}
}

// AutoMigrate 建表。
func (s *WatchStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&model.User{}, &model.WatchItem{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// CreateUser 注册新用户。邮箱冲突返回 ErrEmailTaken。
func (s *WatchStore) CreateUser(ctx context.Context, user *model.User) error {
	err := s.db.WithContext(ctx).Create(user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByEmail 按邮箱查用户。
func (s *WatchStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &user, nil
}

// GetUserByID 按主键查用户。
func (s *WatchStore) GetUserByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &user, nil
}

// Add 新增监控项。同一用户下 URL 唯一，冲突返回 ErrDuplicateWatch。
func (s *WatchStore) Add(ctx context.Context, item *model.WatchItem) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.WatchItem{}).
			Where("owner_id = ? AND url = ?", item.OwnerID, item.URL).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateWatch
		}
		return tx.Create(item).Error
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateWatch) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateWatch
		}
		return fmt.Errorf("add watch: %w", err)
	}
	return nil
}

// GetByOwnerAndURL 按用户和 URL 查监控项。
func (s *WatchStore) GetByOwnerAndURL(ctx context.Context, ownerID uint, url string) (*model.WatchItem, error) {
	var item model.WatchItem
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND url = ?", ownerID, url).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWatchNotFound
		}
		return nil, fmt.Errorf("get watch: %w", err)
	}
	return &item, nil
}

// ListByOwner 列出某用户的全部监控项，按创建时间排序。
func (s *WatchStore) ListByOwner(ctx context.Context, ownerID uint) ([]model.WatchItem, error) {
	var items []model.WatchItem
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list watches: %w", err)
	}
	return items, nil
}

// ListAll 列出全部监控项，供轮询器扫描。
func (s *WatchStore) ListAll(ctx context.Context) ([]model.WatchItem, error) {
	var items []model.WatchItem
	err := s.db.WithContext(ctx).Order("id ASC").Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list all watches: %w", err)
	}
	return items, nil
}

// Remove 删除某用户的某个监控项。
func (s *WatchStore) Remove(ctx context.Context, ownerID uint, url string) error {
	res := s.db.WithContext(ctx).
		Where("owner_id = ? AND url = ?", ownerID, url).
		Delete(&model.WatchItem{})
	if res.Error != nil {
		return fmt.Errorf("remove watch: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrWatchNotFound
	}
	return nil
}

// CheckResult 是一次检查得到的新观测值。
type CheckResult struct {
	Status    string
	Price     string
	CheckedAt time.Time
}

// ApplyCheck 在一个事务里写入本次检查结果：状态、价格、检查时间一起更新。
func (s *WatchStore) ApplyCheck(ctx context.Context, itemID uint, result CheckResult) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.WatchItem{}).
			Where("id = ?", itemID).
			Updates(map[string]any{
				"status":       result.Status,
				"price":        result.Price,
				"last_checked": result.CheckedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrWatchNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrWatchNotFound) {
			return ErrWatchNotFound
		}
		return fmt.Errorf("apply check: %w", err)
	}
	return nil
}

// TouchLastChecked 只推进检查时间。抓取失败时也要推进，避免坏链接被反复重试。
func (s *WatchStore) TouchLastChecked(ctx context.Context, itemID uint, checkedAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.WatchItem{}).
		Where("id = ?", itemID).
		Update("last_checked", checkedAt)
	if res.Error != nil {
		return fmt.Errorf("touch last checked: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrWatchNotFound
	}
	return nil
}
