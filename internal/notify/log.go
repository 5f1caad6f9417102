package notify

import (
	"context"
	"log/slog"
)

// LogNotifier 把通知写进日志，邮件未配置时作为兜底。
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, ev Event) error {
	n.logger.Info("watch notification",
		slog.String("kind", ev.Kind),
		slog.String("item", ev.ItemName),
		slog.String("old", ev.Old),
		slog.String("new", ev.New))
	return nil
}
