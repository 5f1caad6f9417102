package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func serveLogged(t *testing.T, target string) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := gin.New()
	r.Use(RequestLogger(logger))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/missing", func(c *gin.Context) { c.String(http.StatusNotFound, "nope") })
	r.GET("/boom", func(c *gin.Context) { c.String(http.StatusInternalServerError, "boom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	r.ServeHTTP(w, req)
	return buf.String()
}

func TestRequestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantLevel string
		wantPath  string
	}{
		{"success is info", "/ok", "level=INFO", "path=/ok"},
		{"client error is warn", "/missing", "level=WARN", "path=/missing"},
		{"server error is error", "/boom", "level=ERROR", "path=/boom"},
		{"query string kept", "/ok?q=1", "level=INFO", "/ok?q=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := serveLogged(t, tt.target)
			if !strings.Contains(out, tt.wantLevel) {
				t.Errorf("log output %q missing %q", out, tt.wantLevel)
			}
			if !strings.Contains(out, tt.wantPath) {
				t.Errorf("log output %q missing %q", out, tt.wantPath)
			}
		})
	}
}
