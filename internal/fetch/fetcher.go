package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"stockwatch/internal/config"
	"stockwatch/internal/extract"
	"stockwatch/internal/pkg/metrics"
	"stockwatch/internal/pkg/ratelimit"
)

const (
	browserInitTimeout    = 30 * time.Second
	browserHealthInterval = 30 * time.Second
	browserHealthTimeout  = 5 * time.Second
	pageCreateTimeout     = 10 * time.Second
	stealthScriptTimeout  = 5 * time.Second
	pageTextCheckTimeout  = 2 * time.Second

	defaultUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"
)

// 拦截页面检测关键词
var blockedHints = []string{
	"cloudflare",
	"attention required",
	"verify you are human",
	"access denied",
	"temporarily unavailable",
}

// Service 维护一个 rod.Browser 实例并按 URL 抓取商品页。
//
// 浏览器无响应时由后台健康检查重启，抓取频率受限流器约束。
type Service struct {
	cfg         *config.Config
	logger      *slog.Logger
	rateLimiter *ratelimit.Limiter
	pageTimeout time.Duration

	mu      sync.RWMutex
	browser *rod.Browser

	bgCancel context.CancelFunc
}

// NewService 启动浏览器并创建抓取服务。
func NewService(ctx context.Context, cfg *config.Config, logger *slog.Logger, limiter *ratelimit.Limiter) (*Service, error) {
	initCtx, cancel := context.WithTimeout(ctx, browserInitTimeout)
	defer cancel()

	browser, err := startBrowser(initCtx, cfg, logger)
	if err != nil {
		return nil, err
	}

	pageTimeout := cfg.Browser.PageTimeout
	if pageTimeout <= 0 {
		pageTimeout = 45 * time.Second
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:         cfg,
		logger:      logger,
		rateLimiter: limiter,
		pageTimeout: pageTimeout,
		browser:     browser,
		bgCancel:    bgCancel,
	}
	go s.healthCheckLoop(bgCtx)

	logger.Info("fetcher initialized", slog.Duration("page_timeout", pageTimeout))
	return s, nil
}

// startBrowser 根据配置启动浏览器。
// 针对容器环境做了适配（NoSandbox、禁用 /dev/shm）。
func startBrowser(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*rod.Browser, error) {
	bin := cfg.Browser.BinPath
	if bin == "" {
		logger.Info("no browser binary specified, downloading default...")
		path, err := launcher.NewBrowser().Get()
		if err != nil {
			return nil, fmt.Errorf("download browser: %w", err)
		}
		bin = path
	}

	l := launcher.New().
		Headless(cfg.Browser.Headless).
		Bin(bin).
		NoSandbox(true).
		Set("disable-dev-shm-usage", "true").
		Set("disable-gpu", "true").
		Set("disable-software-rasterizer", "true").
		Set("remote-allow-origins", "*").
		Set("disk-cache-size", "1").
		Set("media-cache-size", "1").
		Set("js-flags", "--max_old_space_size=512")

	if cfg.Browser.ProxyURL != "" {
		parsed, err := url.Parse(cfg.Browser.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("invalid proxy url: %s", cfg.Browser.ProxyURL)
		}
		l = l.Proxy(fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host))
		logger.Info("using http proxy", slog.String("server", parsed.Host))
	}

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().Context(ctx).ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	logger.Info("browser started", slog.String("bin", bin))
	return browser, nil
}

// healthCheckLoop 定期检查浏览器健康状态，无响应则重启实例。
func (s *Service) healthCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(browserHealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.browserHealthy(ctx) {
				continue
			}
			s.logger.Warn("browser health check failed, restarting instance")
			if err := s.restartBrowser(); err != nil {
				s.logger.Error("browser restart failed", slog.String("error", err.Error()))
				continue
			}
			metrics.BrowserRestartsTotal.Inc()
			s.logger.Info("browser restarted")
		}
	}
}

func (s *Service) browserHealthy(ctx context.Context) bool {
	s.mu.RLock()
	browser := s.browser
	s.mu.RUnlock()
	if browser == nil {
		return false
	}

	healthCtx, cancel := context.WithTimeout(ctx, browserHealthTimeout)
	defer cancel()

	page, err := browser.Context(healthCtx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return false
	}
	defer func() { _ = page.Close() }()

	_, err = page.Eval("() => document.title")
	return err == nil
}

func (s *Service) restartBrowser() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			s.logger.Warn("close old browser failed", slog.String("error", err.Error()))
		}
		s.browser = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), browserInitTimeout)
	defer cancel()
	browser, err := startBrowser(ctx, s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("start new browser: %w", err)
	}
	s.browser = browser
	return nil
}

// Fetch 打开目标 URL，等待加载完成，返回解析后的页面。
// 调用方的 ctx 控制整体超时；限流发生在打开页面之前。
func (s *Service) Fetch(ctx context.Context, pageURL string) (*extract.Page, error) {
	start := time.Now()

	if s.rateLimiter != nil {
		if err := s.rateLimiter.Acquire(ctx); err != nil {
			return nil, newError(KindTimeout, pageURL, err)
		}
	}

	s.mu.RLock()
	browser := s.browser
	s.mu.RUnlock()
	if browser == nil {
		return nil, newError(KindBrowser, pageURL, errors.New("browser not initialized"))
	}

	// 页面创建用任务 ctx，Page 对象会继承它；短超时只做外层 select 保护，
	// 避免把短超时绑进页面后续的所有操作
	type pageResult struct {
		page *rod.Page
		err  error
	}
	pageCh := make(chan pageResult, 1)
	go func() {
		page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
		select {
		case pageCh <- pageResult{page: page, err: err}:
		default:
			if page != nil {
				_ = page.Close()
			}
		}
	}()

	var basePage *rod.Page
	createTimer := time.NewTimer(pageCreateTimeout)
	defer createTimer.Stop()
	select {
	case result := <-pageCh:
		if result.err != nil {
			return nil, s.classify(pageURL, fmt.Errorf("create page: %w", result.err))
		}
		basePage = result.page
	case <-createTimer.C:
		return nil, newError(KindBrowser, pageURL, fmt.Errorf("create page timeout after %v", pageCreateTimeout))
	case <-ctx.Done():
		return nil, newError(KindTimeout, pageURL, ctx.Err())
	}

	metrics.BrowserPagesActive.Inc()
	defer func() {
		metrics.BrowserPagesActive.Dec()
		_ = basePage.Close()
	}()

	// Stealth 脚本同样只用 select 做超时保护
	stealthDone := make(chan error, 1)
	go func() {
		_, evalErr := basePage.EvalOnNewDocument(stealth.JS)
		stealthDone <- evalErr
	}()
	stealthTimer := time.NewTimer(stealthScriptTimeout)
	defer stealthTimer.Stop()
	select {
	case err := <-stealthDone:
		if err != nil {
			return nil, newError(KindBrowser, pageURL, fmt.Errorf("apply stealth script: %w", err))
		}
	case <-stealthTimer.C:
		return nil, newError(KindBrowser, pageURL, fmt.Errorf("apply stealth script timeout after %v", stealthScriptTimeout))
	case <-ctx.Done():
		return nil, newError(KindTimeout, pageURL, ctx.Err())
	}

	page := basePage.Timeout(s.pageTimeout)
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: defaultUA}); err != nil {
		s.logger.Warn("set user agent failed", slog.String("url", pageURL), slog.String("error", err.Error()))
	}

	s.logger.Debug("loading page", slog.String("url", pageURL))

	navCtx, navCancel := context.WithTimeout(ctx, s.pageTimeout)
	defer navCancel()
	navErrCh := make(chan error, 1)
	go func() {
		if err := page.Navigate(pageURL); err != nil {
			navErrCh <- err
			return
		}
		navErrCh <- page.WaitLoad()
	}()
	select {
	case err := <-navErrCh:
		if err != nil {
			return nil, s.classify(pageURL, fmt.Errorf("navigate: %w", err))
		}
	case <-navCtx.Done():
		return nil, newError(KindTimeout, pageURL, fmt.Errorf("navigate timeout: %w", navCtx.Err()))
	}

	if s.isBlockedPage(page) {
		metrics.FetchErrorsTotal.WithLabelValues(string(KindBlocked)).Inc()
		return nil, newError(KindBlocked, pageURL, errors.New("blocked page detected"))
	}

	html, err := page.HTML()
	if err != nil {
		return nil, s.classify(pageURL, fmt.Errorf("read page html: %w", err))
	}

	parsed, err := extract.NewPageFromHTML(pageURL, html)
	if err != nil {
		return nil, newError(KindUnknown, pageURL, err)
	}

	s.logger.Debug("page fetched",
		slog.String("url", pageURL),
		slog.Duration("elapsed", time.Since(start)))
	return parsed, nil
}

func (s *Service) classify(url string, err error) *Error {
	kind := Classify(err)
	metrics.FetchErrorsTotal.WithLabelValues(string(kind)).Inc()
	return newError(kind, url, err)
}

// isBlockedPage 通过页面文本识别风控拦截页。
func (s *Service) isBlockedPage(page *rod.Page) bool {
	p := page.Timeout(pageTextCheckTimeout)
	body, err := p.Element("body")
	if err != nil {
		return false
	}
	text, err := body.Text()
	if err != nil || text == "" {
		return false
	}
	text = strings.ToLower(text)
	for _, hint := range blockedHints {
		if strings.Contains(text, hint) {
			return true
		}
	}
	return false
}

// Shutdown 停止健康检查并关闭浏览器。
func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down fetcher...")
	if s.bgCancel != nil {
		s.bgCancel()
	}

	s.mu.Lock()
	browser := s.browser
	s.browser = nil
	s.mu.Unlock()
	if browser != nil {
		if err := browser.Close(); err != nil {
			return fmt.Errorf("close browser: %w", err)
		}
	}
	return nil
}
