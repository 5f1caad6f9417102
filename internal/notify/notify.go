package notify

import (
	"context"

	"stockwatch/internal/model"
)

// Event 是一次需要通知用户的监控变化。
type Event struct {
	Kind     string // "status_change" 或 "price_change"
	Item     *model.WatchItem
	Old      string // 变化前的状态文案或价格
	New      string // 变化后的状态文案或价格
	ToEmail  string
	ItemName string
}

// Notifier 定义通知接口。
type Notifier interface {
	// Send 发送一条变化通知。
	Send(ctx context.Context, ev Event) error
}
