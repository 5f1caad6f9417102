package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"

	"stockwatch/internal/config"
)

// EmailNotifier 实现邮件通知。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, logger: logger}
}

// Send 发送邮件通知。配置不完整或收件人为空时跳过并告警，不算错误。
func (n *EmailNotifier) Send(ctx context.Context, ev Event) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip notification")
		return nil
	}
	if strings.TrimSpace(ev.ToEmail) == "" {
		n.logger.Warn("email recipient empty, skip notification")
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", ev.ToEmail)
	m.SetHeader("Subject", subjectFor(ev))
	m.SetBody("text/html", buildHTMLBody(ev))

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("email notification sent",
		slog.String("to", ev.ToEmail),
		slog.String("kind", ev.Kind))
	return nil
}

func subjectFor(ev Event) string {
	if ev.Kind == "price_change" {
		return fmt.Sprintf("[StockWatch] Price change: %s", ev.ItemName)
	}
	return fmt.Sprintf("[StockWatch] Stock update: %s", ev.ItemName)
}

func buildHTMLBody(ev Event) string {
	headline := fmt.Sprintf("%s is now %s", ev.ItemName, ev.New)
	detail := fmt.Sprintf("Previous: %s", ev.Old)
	if ev.Kind == "price_change" {
		headline = fmt.Sprintf("%s price changed", ev.ItemName)
		detail = fmt.Sprintf("%s → %s", ev.Old, ev.New)
	}

	template := `
<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8" />
<style>
  body { font-family: Arial, sans-serif; background: #f6f7fb; color: #1f2937; }
  .card { max-width: 600px; margin: 24px auto; background: #ffffff; border-radius: 12px; overflow: hidden; border: 1px solid #e5e7eb; }
  .header { background: #0f172a; color: #ffffff; padding: 16px 20px; font-size: 16px; font-weight: bold; }
  .content { padding: 20px; }
  .headline { font-size: 20px; font-weight: bold; margin: 8px 0 12px; }
  .detail { font-size: 16px; color: #374151; margin-bottom: 16px; }
  .cta { display: inline-block; padding: 12px 20px; background: #22c55e; color: #fff; text-decoration: none; border-radius: 8px; font-weight: bold; }
  .footer { margin-top: 20px; font-size: 12px; color: #6b7280; }
</style>
</head>
<body>
  <div class="card">
    <div class="header">[StockWatch] Watch alert</div>
    <div class="content">
      <div class="headline">%s</div>
      <div class="detail">%s</div>
      <div style="text-align:center; margin-bottom: 12px;">
        <a class="cta" href="%s" target="_blank">View item</a>
      </div>
      <div class="footer">Watched URL: %s</div>
    </div>
  </div>
</body>
</html>`

	url := ""
	if ev.Item != nil {
		url = ev.Item.URL
	}
	return fmt.Sprintf(template, headline, detail, url, url)
}
