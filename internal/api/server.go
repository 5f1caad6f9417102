package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/publicsuffix"

	"stockwatch/internal/api/auth"
	"stockwatch/internal/api/middleware"
	"stockwatch/internal/config"
	"stockwatch/internal/extract"
	"stockwatch/internal/model"
	"stockwatch/internal/store"
)

// Fetcher 抓取单个商品页，新增监控时用来做首次检查。
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*extract.Page, error)
}

// Server 对外提供监控列表管理的 HTTP 接口。
type Server struct {
	cfg     *config.Config
	store   *store.WatchStore
	fetcher Fetcher
	logger  *slog.Logger
	engine  *gin.Engine
	httpSrv *http.Server
}

// NewServer 创建 API Server 并注册路由。
func NewServer(cfg *config.Config, st *store.WatchStore, fetcher Fetcher, logger *slog.Logger) *Server {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:     cfg,
		store:   st,
		fetcher: fetcher,
		logger:  logger,
		engine:  engine,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := auth.NewHandler(s.store, s.cfg.Security.JWTSecret, s.logger)
	s.engine.POST("/api/auth/register", authHandler.Register)
	s.engine.POST("/api/auth/login", authHandler.Login)
	s.engine.POST("/api/auth/logout", authHandler.Logout)

	protected := s.engine.Group("/api", middleware.AuthMiddleware(s.cfg.Security.JWTSecret))
	protected.POST("/watches", s.addWatch)
	protected.GET("/watches", s.listWatches)
	protected.DELETE("/watches", s.removeWatch)
}

type addWatchRequest struct {
	URL              string `json:"url" binding:"required"`
	DisplayName      string `json:"display_name"`
	CheckIntervalSec int    `json:"check_interval_sec"`
}

type watchResponse struct {
	URL              string    `json:"url"`
	DisplayName      string    `json:"display_name"`
	Status           string    `json:"status"`
	StatusLabel      string    `json:"status_label"`
	Price            string    `json:"price"`
	LastChecked      time.Time `json:"last_checked"`
	CheckIntervalSec int       `json:"check_interval_sec"`
}

func toWatchResponse(item *model.WatchItem) watchResponse {
	return watchResponse{
		URL:              item.URL,
		DisplayName:      item.DisplayName,
		Status:           item.Status,
		StatusLabel:      model.StatusLabel(item.Status),
		Price:            item.Price,
		LastChecked:      item.LastChecked,
		CheckIntervalSec: item.CheckIntervalSec,
	}
}

// addWatch 新增监控：校验 URL、做一次首检拿到初始状态和价格，然后入库。
func (s *Server) addWatch(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req addWatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	watchURL, err := validateWatchURL(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 先查重，避免为重复条目白跑一次浏览器
	if _, err := s.store.GetByOwnerAndURL(c.Request.Context(), userID, watchURL); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "watch already exists"})
		return
	} else if !errors.Is(err, store.ErrWatchNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query watch failed"})
		return
	}

	fetchCtx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.App.FetchTimeout)
	defer cancel()
	page, err := s.fetcher.Fetch(fetchCtx, watchURL)
	if err != nil {
		s.logger.Warn("initial fetch failed",
			slog.String("url", watchURL),
			slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not fetch page"})
		return
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = page.Title()
	}
	if displayName == "" {
		displayName = watchURL
	}

	interval := req.CheckIntervalSec
	if interval <= 0 {
		interval = model.DefaultCheckIntervalSec
	}

	item := &model.WatchItem{
		OwnerID:          userID,
		URL:              watchURL,
		DisplayName:      displayName,
		Status:           extract.ClassifyStatus(page).Key(),
		Price:            extract.Price(page),
		LastChecked:      time.Now(),
		CheckIntervalSec: interval,
	}
	if err := s.store.Add(c.Request.Context(), item); err != nil {
		if errors.Is(err, store.ErrDuplicateWatch) {
			c.JSON(http.StatusConflict, gin.H{"error": "watch already exists"})
			return
		}
		s.logger.Error("add watch failed", slog.String("url", watchURL), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "add watch failed"})
		return
	}

	s.logger.Info("watch added",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("url", watchURL),
		slog.String("status", item.Status),
		slog.String("price", item.Price))
	c.JSON(http.StatusCreated, toWatchResponse(item))
}

func (s *Server) listWatches(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	items, err := s.store.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error("list watches failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list watches failed"})
		return
	}

	out := make([]watchResponse, 0, len(items))
	for i := range items {
		out = append(out, toWatchResponse(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"watches": out})
}

func (s *Server) removeWatch(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	watchURL := strings.TrimSpace(c.Query("url"))
	if watchURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url query parameter required"})
		return
	}

	if err := s.store.Remove(c.Request.Context(), userID, watchURL); err != nil {
		if errors.Is(err, store.ErrWatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "watch not found"})
			return
		}
		s.logger.Error("remove watch failed", slog.String("url", watchURL), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "remove watch failed"})
		return
	}

	s.logger.Info("watch removed",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("url", watchURL))
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

// validateWatchURL 校验监控 URL：必须是 http/https，host 的后缀要在
// 公共后缀表（ICANN 部分）里，挡掉裸 IP 拼错域名之类的输入。
func validateWatchURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("url scheme must be http or https")
	}
	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("url host required")
	}
	suffix, icann := publicsuffix.PublicSuffix(strings.ToLower(host))
	if !icann || suffix == host {
		return "", fmt.Errorf("url host %q is not a registrable domain", host)
	}
	return parsed.String(), nil
}

// Run 启动 HTTP 服务，阻塞直到出错或被 Shutdown。
func (s *Server) Run() error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.App.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("api server listening", slog.String("addr", s.cfg.App.HTTPAddr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

// Shutdown 优雅关闭 HTTP 服务。
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Engine 暴露底层 gin 引擎，测试用。
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
