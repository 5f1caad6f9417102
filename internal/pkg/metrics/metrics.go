package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 调度与变更检测指标。
var (
	// ChecksTotal 按结果统计的商品检查次数 (result: success / fetch_error / store_error)
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockwatch_checks_total",
		Help: "Total number of watch item checks by result.",
	}, []string{"result"})

	// CheckDuration 单次检查耗时（含页面渲染）
	CheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockwatch_check_duration_seconds",
		Help:    "Duration of a single watch item check.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// NotificationsTotal 按类型统计的通知数 (kind: status_change / price_change)
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockwatch_notifications_total",
		Help: "Total number of change notifications emitted.",
	}, []string{"kind"})

	// WatchListSize 当前监控条目总数（每轮扫描时更新）
	WatchListSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockwatch_watch_list_size",
		Help: "Number of watch items seen in the last sweep.",
	})

	// SweepDuration 一轮完整扫描的耗时
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockwatch_sweep_duration_seconds",
		Help:    "Duration of a full watch list sweep.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

// 价格提取指标。
var (
	// ExtractorStrategyHits 按策略统计的价格命中次数 (strategy: schema_org / open_graph / ...)
	ExtractorStrategyHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockwatch_extractor_strategy_hits_total",
		Help: "Price extraction hits by strategy.",
	}, []string{"strategy"})

	// ExtractorMisses 六种策略全部失败的次数
	ExtractorMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockwatch_extractor_misses_total",
		Help: "Pages where no extraction strategy produced a price.",
	})
)

// 浏览器与限流指标。
var (
	// FetchErrorsTotal 按类型统计的抓取失败次数 (kind: timeout / navigation / blocked / unknown)
	FetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockwatch_fetch_errors_total",
		Help: "Page fetch failures by classified kind.",
	}, []string{"kind"})

	// BrowserPagesActive 当前打开的浏览器页面数
	BrowserPagesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockwatch_browser_pages_active",
		Help: "Number of currently open browser pages.",
	})

	// BrowserRestartsTotal 浏览器实例重启次数
	BrowserRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockwatch_browser_restarts_total",
		Help: "Times the headless browser instance was restarted.",
	})

	// RateLimitWaitDuration 抓取限流等待时间
	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockwatch_ratelimit_wait_seconds",
		Help:    "Time spent waiting for the fetch rate limiter.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// RateLimitTimeoutTotal 限流等待超时次数
	RateLimitTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockwatch_ratelimit_timeouts_total",
		Help: "Rate limiter waits aborted by context cancellation.",
	})
)
