package model

import (
	"time"
)

// 商品库存状态。
//
// 分类器总是返回一个确定的值，不存在"未知状态"；
// 价格未知则用 PriceUnknown 哨兵值表示。
const (
	StatusInStock    = "in_stock"
	StatusOutOfStock = "out_of_stock"
)

// PriceUnknown 是价格尚未成功提取时的哨兵值。
const PriceUnknown = "unknown"

// DefaultCheckIntervalSec 每个监控条目的默认检查间隔（秒）。
const DefaultCheckIntervalSec = 300

// WatchItem 表示一个用户对一个商品页面的监控订阅。
//
// (OwnerID, URL) 是唯一键：同一个用户对同一个 URL 至多存在一条记录。
// URL 按不透明字符串处理，两个不同的 URL 字符串总是两个不同的条目，
// 即使它们解析到同一个资源。
type WatchItem struct {
	ID        uint      `gorm:"primaryKey"` // 内部 ID
	CreatedAt time.Time // 创建时间（即 dateAdded）
	UpdatedAt time.Time // 更新时间

	OwnerID uint   `gorm:"not null;uniqueIndex:idx_owner_url"`                   // 所属用户 ID
	URL     string `gorm:"type:varchar(512);not null;uniqueIndex:idx_owner_url"` // 被监控的页面 URL
	Owner   User   `gorm:"foreignKey:OwnerID"`                                   // 所属用户

	DisplayName string `gorm:"not null"`                       // 展示名称（用户指定或取自页面 <title>）
	Status      string `gorm:"type:varchar(16);default:in_stock"` // 库存状态: in_stock / out_of_stock
	Price       string `gorm:"type:varchar(64);default:unknown"`  // 规范化价格字符串，或 "unknown"

	LastChecked      time.Time // 上次检查时间
	CheckIntervalSec int       `gorm:"default:300"` // 检查间隔（秒）
}

// Interval 返回检查间隔；未设置时使用默认值。
func (w *WatchItem) Interval() time.Duration {
	sec := w.CheckIntervalSec
	if sec <= 0 {
		sec = DefaultCheckIntervalSec
	}
	return time.Duration(sec) * time.Second
}

// Due 判断条目是否到期需要重新检查。
func (w *WatchItem) Due(now time.Time) bool {
	return now.Sub(w.LastChecked) >= w.Interval()
}

// StatusLabel 返回面向用户的状态文案。
func StatusLabel(status string) string {
	if status == StatusOutOfStock {
		return "Out of stock"
	}
	return "In stock"
}
