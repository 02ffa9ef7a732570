package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"influencehub/internal/config"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 实现邮件发送。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// SendSponsorMail 发送合作邀约邮件。
//
// mail.Body 为空时使用内置模板；SMTP 配置缺失时跳过并记录日志。
func (n *EmailNotifier) SendSponsorMail(ctx context.Context, mail *SponsorMail) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip sponsor mail")
		return nil
	}
	if strings.TrimSpace(mail.To) == "" {
		return fmt.Errorf("empty recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", mail.To)
	m.SetHeader("Subject", fmt.Sprintf("Partnership opportunity with %s", mail.CompanyName))

	body := mail.Body
	if strings.TrimSpace(body) == "" {
		body = n.buildHTMLBody(mail)
	}
	m.SetBody("text/html", body)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("sponsor mail sent",
		slog.String("to", mail.To),
		slog.String("channel", mail.ChannelName))
	return nil
}

// SendNotification 发送通知邮件（搜索完成等）。
//
// SMTP 配置缺失时跳过并记录日志。
func (n *EmailNotifier) SendNotification(ctx context.Context, mail *NotificationMail) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip notification mail")
		return nil
	}
	if strings.TrimSpace(mail.To) == "" {
		return fmt.Errorf("empty recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", mail.To)
	m.SetHeader("Subject", mail.Subject)
	m.SetBody("text/html", n.buildNotificationBody(mail))

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("notification mail sent", slog.String("to", mail.To))
	return nil
}

func (n *EmailNotifier) buildNotificationBody(mail *NotificationMail) string {
	template := `
<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8" />
<style>
  body { font-family: Arial, sans-serif; background: #f6f7fb; color: #1f2937; }
  .card { max-width: 600px; margin: 24px auto; background: #ffffff; border-radius: 12px; overflow: hidden; border: 1px solid #e5e7eb; }
  .header { background: #0f172a; color: #ffffff; padding: 16px 20px; font-size: 16px; font-weight: bold; }
  .content { padding: 20px; font-size: 14px; line-height: 1.6; }
  .stats { background: #ecfdf5; padding: 12px 16px; border-radius: 8px; margin: 12px 0; }
  .footer { margin-top: 20px; font-size: 12px; color: #6b7280; }
</style>
</head>
<body>
  <div class="card">
    <div class="header">%s</div>
    <div class="content">
      <div class="stats"><strong>Search summary:</strong> found %d potential influencers</div>
      <p>%s</p>
      <p>You can view the detailed results from your InfluenceHub dashboard.</p>
      <div class="footer">Sent by InfluenceHub</div>
    </div>
  </div>
</body>
</html>`

	return fmt.Sprintf(template,
		html.EscapeString(mail.Subject),
		mail.InfluencerCount,
		html.EscapeString(mail.Message))
}

func (n *EmailNotifier) buildHTMLBody(mail *SponsorMail) string {
	template := `
<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8" />
<style>
  body { font-family: Arial, sans-serif; background: #f6f7fb; color: #1f2937; }
  .card { max-width: 600px; margin: 24px auto; background: #ffffff; border-radius: 12px; overflow: hidden; border: 1px solid #e5e7eb; }
  .header { background: #0f172a; color: #ffffff; padding: 16px 20px; font-size: 16px; font-weight: bold; }
  .content { padding: 20px; font-size: 14px; line-height: 1.6; }
  .cta { display: inline-block; padding: 12px 20px; background: #22c55e; color: #fff; text-decoration: none; border-radius: 8px; font-weight: bold; }
  .footer { margin-top: 20px; font-size: 12px; color: #6b7280; }
</style>
</head>
<body>
  <div class="card">
    <div class="header">Partnership opportunity with %s</div>
    <div class="content">
      <p>Hi %s team,</p>
      <p>We love what you are doing on your channel and believe %s would be a
      great fit for your audience. We would like to discuss a sponsored
      collaboration around <strong>%s</strong>.</p>
      <div style="text-align:center; margin: 16px 0;">
        <a class="cta" href="%s" target="_blank">Your channel</a>
      </div>
      <p>Looking forward to hearing from you!</p>
      <div class="footer">Sent by %s via InfluenceHub</div>
    </div>
  </div>
</body>
</html>`

	company := html.EscapeString(mail.CompanyName)
	channel := html.EscapeString(mail.ChannelName)
	product := html.EscapeString(mail.ProductName)
	return fmt.Sprintf(template, company, channel, company, product, mail.ChannelURL, company)
}
