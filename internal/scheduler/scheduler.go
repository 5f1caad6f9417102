package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stockwatch/internal/extract"
	"stockwatch/internal/model"
	"stockwatch/internal/notify"
	"stockwatch/internal/pkg/metrics"
	"stockwatch/internal/pkg/queue"
	"stockwatch/internal/store"
)

// Fetcher 抓取单个商品页。
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*extract.Page, error)
}

// Scheduler 周期性扫描监控列表，把到期的条目派发给 worker 检查。
//
// 扫描节奏是 sweep-and-sleep：一轮扫描结束后固定休眠 pollInterval。
// 每个条目按自己的 CheckIntervalSec 判定到期，同一条目不会被并发检查。
type Scheduler struct {
	store        *store.WatchStore
	fetcher      Fetcher
	notifier     notify.Notifier
	queue        *queue.Queue
	logger       *slog.Logger
	pollInterval time.Duration
	fetchTimeout time.Duration

	mu       sync.Mutex
	inFlight map[uint]struct{}

	now func() time.Time
}

// Options 调度器参数。
type Options struct {
	PollInterval time.Duration
	FetchTimeout time.Duration
}

// New 创建调度器。queue 由调用方 Start，Scheduler 只负责投递。
func New(st *store.WatchStore, fetcher Fetcher, notifier notify.Notifier, q *queue.Queue, logger *slog.Logger, opts Options) *Scheduler {
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 60 * time.Second
	}
	return &Scheduler{
		store:        st,
		fetcher:      fetcher,
		notifier:     notifier,
		queue:        q,
		logger:       logger,
		pollInterval: pollInterval,
		fetchTimeout: fetchTimeout,
		inFlight:     make(map[uint]struct{}),
		now:          time.Now,
	}
}

// Run 运行扫描循环直到 ctx 取消。
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		slog.Duration("poll_interval", s.pollInterval),
		slog.Duration("fetch_timeout", s.fetchTimeout))

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-timer.C:
		}
		s.sweep(ctx)
		timer.Reset(s.pollInterval)
	}
}

// sweep 扫描一遍监控列表，投递所有到期且不在检查中的条目。
func (s *Scheduler) sweep(ctx context.Context) {
	start := s.now()
	items, err := s.store.ListAll(ctx)
	if err != nil {
		s.logger.Error("list watches failed", slog.String("error", err.Error()))
		return
	}
	metrics.WatchListSize.Set(float64(len(items)))

	enqueued := 0
	for i := range items {
		item := items[i]
		if !item.Due(s.now()) {
			continue
		}
		if !s.claim(item.ID) {
			continue
		}
		err := s.queue.EnqueueBlocking(ctx, queue.Job{
			Name: fmt.Sprintf("check:%d", item.ID),
			Run: func(context.Context) {
				defer s.release(item.ID)
				s.checkItem(&item)
			},
		})
		if err != nil {
			s.release(item.ID)
			s.logger.Warn("enqueue check failed",
				slog.Uint64("item_id", uint64(item.ID)),
				slog.String("error", err.Error()))
			continue
		}
		enqueued++
	}

	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	s.logger.Debug("sweep completed",
		slog.Int("items", len(items)),
		slog.Int("enqueued", enqueued),
		slog.Duration("elapsed", time.Since(start)))
}

// claim 标记条目进入检查，已在检查中返回 false。
func (s *Scheduler) claim(itemID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[itemID]; busy {
		return false
	}
	s.inFlight[itemID] = struct{}{}
	return true
}

func (s *Scheduler) release(itemID uint) {
	s.mu.Lock()
	delete(s.inFlight, itemID)
	s.mu.Unlock()
}

// checkItem 执行单个条目的检查：抓取、分类、比对、落库、通知。
// 抓取失败只推进检查时间，不改状态和价格，也不影响其他条目。
//
// 检查一旦开始就要完整跑完并落库，停机排空时不随调度 ctx 一起取消，
// 所以这里用独立的超时上下文兜底。
func (s *Scheduler) checkItem(item *model.WatchItem) {
	start := s.now()
	ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout+10*time.Second)
	defer cancel()
	fetchCtx, fetchCancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer fetchCancel()

	page, err := s.fetcher.Fetch(fetchCtx, item.URL)
	if err != nil {
		// 检查时间照常推进，坏链接不会被每轮重试
		s.logger.Warn("check fetch failed",
			slog.Uint64("item_id", uint64(item.ID)),
			slog.String("url", item.URL),
			slog.String("error", err.Error()))
		if touchErr := s.store.TouchLastChecked(ctx, item.ID, s.now()); touchErr != nil {
			s.logger.Error("touch last checked failed",
				slog.Uint64("item_id", uint64(item.ID)),
				slog.String("error", touchErr.Error()))
		}
		metrics.ChecksTotal.WithLabelValues("fetch_error").Inc()
		metrics.CheckDuration.Observe(time.Since(start).Seconds())
		return
	}

	status := extract.ClassifyStatus(page)
	price := extract.Price(page)

	statusChanged := item.Status != status.Key()
	priceChanged := item.Price != price

	err = s.store.ApplyCheck(ctx, item.ID, store.CheckResult{
		Status:    status.Key(),
		Price:     price,
		CheckedAt: s.now(),
	})
	if err != nil {
		s.logger.Error("apply check failed",
			slog.Uint64("item_id", uint64(item.ID)),
			slog.String("error", err.Error()))
		metrics.ChecksTotal.WithLabelValues("store_error").Inc()
		return
	}

	if statusChanged {
		s.notifyChange(ctx, item, notify.Event{
			Kind: "status_change",
			Old:  model.StatusLabel(item.Status),
			New:  status.String(),
		})
	}
	if priceChanged {
		s.notifyChange(ctx, item, notify.Event{
			Kind: "price_change",
			Old:  item.Price,
			New:  price,
		})
	}

	metrics.ChecksTotal.WithLabelValues("success").Inc()
	metrics.CheckDuration.Observe(time.Since(start).Seconds())
	s.logger.Debug("check completed",
		slog.Uint64("item_id", uint64(item.ID)),
		slog.String("status", status.Key()),
		slog.String("price", price),
		slog.Bool("status_changed", statusChanged),
		slog.Bool("price_changed", priceChanged))
}

// notifyChange 发送变化通知。通知失败只记日志，本次检查结果已经落库。
func (s *Scheduler) notifyChange(ctx context.Context, item *model.WatchItem, ev notify.Event) {
	ev.Item = item
	ev.ItemName = item.DisplayName
	if ev.ItemName == "" {
		ev.ItemName = item.URL
	}

	owner, err := s.store.GetUserByID(ctx, item.OwnerID)
	if err != nil {
		s.logger.Warn("lookup owner for notification failed",
			slog.Uint64("item_id", uint64(item.ID)),
			slog.String("error", err.Error()))
	} else {
		ev.ToEmail = owner.Email
	}

	if err := s.notifier.Send(ctx, ev); err != nil {
		s.logger.Error("send notification failed",
			slog.Uint64("item_id", uint64(item.ID)),
			slog.String("kind", ev.Kind),
			slog.String("error", err.Error()))
		return
	}
	metrics.NotificationsTotal.WithLabelValues(ev.Kind).Inc()
}
