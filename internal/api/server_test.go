package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"stockwatch/internal/config"
	"stockwatch/internal/extract"
	"stockwatch/internal/store"
)

type stubFetcher struct {
	pages map[string]string
	err   error
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (*extract.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	html, ok := f.pages[url]
	if !ok {
		return nil, errors.New("no page")
	}
	return extract.NewPageFromHTML(url, html)
}

func newTestServer(t *testing.T, fetcher *stubFetcher) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	st := store.NewWatchStore(db)
	if err := st.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{}
	cfg.App.HTTPAddr = ":0"
	cfg.App.FetchTimeout = 5 * time.Second
	cfg.Security.JWTSecret = "test-secret"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, st, fetcher, logger)
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func registerAndLogin(t *testing.T, engine *gin.Engine, email string) string {
	t.Helper()
	creds := map[string]string{"email": email, "password": "secret123"}
	if w := doJSON(t, engine, http.MethodPost, "/api/auth/register", "", creds); w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", w.Code, w.Body.String())
	}
	w := doJSON(t, engine, http.MethodPost, "/api/auth/login", "", creds)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("empty token")
	}
	return resp.Token
}

const productHTML = `<html><head><title>Blue Widget - Example Shop</title></head>
<body><span class="price">$11.22</span></body></html>`

func TestWatchLifecycle(t *testing.T) {
	itemURL := "https://shop.example.com/item/1"
	fetcher := &stubFetcher{pages: map[string]string{itemURL: productHTML}}
	srv := newTestServer(t, fetcher)
	token := registerAndLogin(t, srv.Engine(), "a@example.com")

	// add
	w := doJSON(t, srv.Engine(), http.MethodPost, "/api/watches", token, map[string]any{"url": itemURL})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body = %s", w.Code, w.Body.String())
	}
	var added watchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &added); err != nil {
		t.Fatalf("decode add response: %v", err)
	}
	if added.DisplayName != "Blue Widget - Example Shop" {
		t.Errorf("display name = %q", added.DisplayName)
	}
	if added.Price != "$11.22" || added.Status != "in_stock" {
		t.Errorf("unexpected initial check: %+v", added)
	}

	// list
	w = doJSON(t, srv.Engine(), http.MethodGet, "/api/watches", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var listResp struct {
		Watches []watchResponse `json:"watches"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listResp.Watches) != 1 || listResp.Watches[0].URL != itemURL {
		t.Errorf("unexpected list: %+v", listResp.Watches)
	}

	// remove
	w = doJSON(t, srv.Engine(), http.MethodDelete, "/api/watches?url="+itemURL, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d, body = %s", w.Code, w.Body.String())
	}
	w = doJSON(t, srv.Engine(), http.MethodDelete, "/api/watches?url="+itemURL, token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d", w.Code)
	}
}

func TestAddWatchDuplicate(t *testing.T) {
	itemURL := "https://shop.example.com/item/1"
	fetcher := &stubFetcher{pages: map[string]string{itemURL: productHTML}}
	srv := newTestServer(t, fetcher)
	token := registerAndLogin(t, srv.Engine(), "a@example.com")

	if w := doJSON(t, srv.Engine(), http.MethodPost, "/api/watches", token, map[string]any{"url": itemURL}); w.Code != http.StatusCreated {
		t.Fatalf("first add status = %d", w.Code)
	}
	w := doJSON(t, srv.Engine(), http.MethodPost, "/api/watches", token, map[string]any{"url": itemURL})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate add status = %d, want 409", w.Code)
	}
}

func TestAddWatchFetchFailure(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("net::ERR_CONNECTION_REFUSED")}
	srv := newTestServer(t, fetcher)
	token := registerAndLogin(t, srv.Engine(), "a@example.com")

	w := doJSON(t, srv.Engine(), http.MethodPost, "/api/watches", token,
		map[string]any{"url": "https://shop.example.com/item/1"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestAddWatchRejectsBadURLs(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{}}
	srv := newTestServer(t, fetcher)
	token := registerAndLogin(t, srv.Engine(), "a@example.com")

	for _, bad := range []string{
		"ftp://shop.example.com/item",
		"not a url at all",
		"https://",
		"https://localhost/item",
	} {
		w := doJSON(t, srv.Engine(), http.MethodPost, "/api/watches", token, map[string]any{"url": bad})
		if w.Code != http.StatusBadRequest {
			t.Errorf("url %q status = %d, want 400", bad, w.Code)
		}
	}
}

func TestWatchesRequireAuth(t *testing.T) {
	srv := newTestServer(t, &stubFetcher{})
	w := doJSON(t, srv.Engine(), http.MethodGet, "/api/watches", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	w = doJSON(t, srv.Engine(), http.MethodGet, "/api/watches", "bogus-token", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bogus token status = %d, want 401", w.Code)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	srv := newTestServer(t, &stubFetcher{})
	creds := map[string]string{"email": "a@example.com", "password": "secret123"}
	if w := doJSON(t, srv.Engine(), http.MethodPost, "/api/auth/register", "", creds); w.Code != http.StatusCreated {
		t.Fatalf("register status = %d", w.Code)
	}
	w := doJSON(t, srv.Engine(), http.MethodPost, "/api/auth/register", "", creds)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", w.Code)
	}
}

func TestValidateWatchURL(t *testing.T) {
	tests := []struct {
		raw string
		ok  bool
	}{
		{"https://shop.example.com/item/1", true},
		{"http://store.co.uk/p/2", true},
		{"ftp://shop.example.com", false},
		{"https://localhost/item", false},
		{"https://com", false},
		{"", false},
	}
	for _, tt := range tests {
		_, err := validateWatchURL(tt.raw)
		if (err == nil) != tt.ok {
			t.Errorf("validateWatchURL(%q) err = %v, want ok=%v", tt.raw, err, tt.ok)
		}
	}
}
