package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"stockwatch/internal/api"
	"stockwatch/internal/config"
	"stockwatch/internal/fetch"
	"stockwatch/internal/notify"
	"stockwatch/internal/pkg/logger"
	"stockwatch/internal/pkg/queue"
	"stockwatch/internal/pkg/ratelimit"
	"stockwatch/internal/scheduler"
	"stockwatch/internal/store"
)

// main 是 watcher 服务的入口函数。
//
// 它负责：
// 1. 加载配置、初始化日志
// 2. 连接 MySQL 和 Redis
// 3. 启动浏览器抓取服务、调度器和 API 服务器
// 4. 信号触发后按序优雅关闭
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg)
	if err != nil {
		appLogger.Error("open database failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	st := store.NewWatchStore(db)
	if err := st.AutoMigrate(); err != nil {
		appLogger.Error("migrate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	var limiter *ratelimit.Limiter
	if err := rdb.Ping(ctx).Err(); err != nil {
		// redis 只承担限流，连不上时降级为不限流继续跑
		appLogger.Warn("redis unavailable, rate limiting disabled", slog.String("error", err.Error()))
	} else if cfg.App.RateLimit > 0 && cfg.App.RateBurst > 0 {
		limiter = ratelimit.New(rdb, appLogger, "", cfg.App.RateLimit, cfg.App.RateBurst)
		appLogger.Info("rate limiter enabled",
			slog.Float64("rate", cfg.App.RateLimit),
			slog.Float64("burst", cfg.App.RateBurst))
	}

	fetcher, err := fetch.NewService(ctx, cfg, appLogger, limiter)
	if err != nil {
		appLogger.Error("init fetcher failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var notifier notify.Notifier
	if cfg.Email.SMTPHost != "" {
		notifier = notify.NewEmailNotifier(&cfg.Email, appLogger)
	} else {
		appLogger.Warn("email not configured, notifications go to log only")
		notifier = notify.NewLogNotifier(appLogger)
	}

	// worker 不挂在信号 ctx 上，收到信号后先把在途任务排空，
	// 再由 ShutdownWithTimeout 收尾
	qCtx, qCancel := context.WithCancel(context.Background())
	defer qCancel()
	q := queue.New(cfg.App.WorkerPoolSize, cfg.App.QueueCapacity, appLogger)
	q.Start(qCtx)

	sched := scheduler.New(st, fetcher, notifier, q, appLogger, scheduler.Options{
		PollInterval: cfg.App.PollInterval,
		FetchTimeout: cfg.App.FetchTimeout,
	})
	go sched.Run(ctx)

	srv := api.NewServer(cfg, st, fetcher, appLogger)
	go func() {
		if err := srv.Run(); err != nil {
			appLogger.Error("server run failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down watcher...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http shutdown failed", slog.String("error", err.Error()))
	}
	if !q.ShutdownWithTimeout(10 * time.Second) {
		appLogger.Warn("queue did not drain before timeout")
	}
	if err := fetcher.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("fetcher shutdown failed", slog.String("error", err.Error()))
	}
	if err := rdb.Close(); err != nil {
		appLogger.Warn("close redis failed", slog.String("error", err.Error()))
	}

	processed, panicked, _ := q.Stats()
	appLogger.Info("watcher stopped",
		slog.Int64("checks_processed", processed),
		slog.Int64("check_panics", panicked))
}

// openDatabase 按配置连接数据库。DSN 以 "sqlite:" 开头时用本地 sqlite 文件，
// 方便单机试用，其余按 MySQL 处理。
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{TranslateError: true}
	if path, ok := strings.CutPrefix(cfg.MySQL.DSN, "sqlite:"); ok {
		return gorm.Open(sqlite.Open(path), gormCfg)
	}
	return gorm.Open(mysql.Open(cfg.MySQL.DSN), gormCfg)
}
