package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind 是抓取错误的分类，用于日志和指标标签。
type Kind string

const (
	KindTimeout    Kind = "timeout"
	KindNavigation Kind = "navigation"
	KindBlocked    Kind = "blocked"
	KindBrowser    Kind = "browser"
	KindUnknown    Kind = "unknown"
)

// Error 携带分类信息的抓取错误。
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, url string, err error) *Error {
	return &Error{Kind: kind, URL: url, Err: err}
}

// Classify 把任意错误归到一个 Kind。已是 *Error 的直接取其分类。
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"blocked", "cloudflare", "attention required", "access denied", "403", "429", "forbidden", "too many requests"} {
		if strings.Contains(msg, kw) {
			return KindBlocked
		}
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return KindTimeout
	}
	for _, kw := range []string{"net::", "connection", "navigate", "dns"} {
		if strings.Contains(msg, kw) {
			return KindNavigation
		}
	}
	return KindUnknown
}
