package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"uptask/internal/config"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 通过 SMTP 发送邮件。
type EmailNotifier struct {
	cfg         *config.EmailConfig
	frontendURL string
	logger      *slog.Logger
	send        func(m *gomail.Message) error
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, frontendURL string, logger *slog.Logger) *EmailNotifier {
	n := &EmailNotifier{
		cfg:         cfg,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
	n.send = func(m *gomail.Message) error {
		d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
		return d.DialAndSend(m)
	}
	return n
}

// SendConfirmation 发送账号确认邮件。
func (n *EmailNotifier) SendConfirmation(ctx context.Context, r Recipient) error {
	body := confirmationBody(r, n.frontendURL+"/auth/confirm-account")
	return n.deliver(ctx, r.Email, "UpTask - Confirm your account", body)
}

// SendPasswordReset 发送密码找回邮件。
func (n *EmailNotifier) SendPasswordReset(ctx context.Context, r Recipient) error {
	body := passwordResetBody(r, n.frontendURL+"/auth/new-password")
	return n.deliver(ctx, r.Email, "UpTask - Reset your password", body)
}

func (n *EmailNotifier) deliver(ctx context.Context, to, subject, body string) error {
	if n.cfg.SMTPHost == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip sending", slog.String("subject", subject))
		return nil
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", subject)
	m.AddAlternative("text/html", body)

	if err := n.send(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	n.logger.Info("email sent", slog.String("to", to), slog.String("subject", subject))
	return nil
}

func confirmationBody(r Recipient, link string) string {
	return fmt.Sprintf(`<p>Hi %s, welcome to UpTask</p>
<p>Your account is almost ready, you only need to confirm it.</p>
<p>Visit the following link:</p>
<a href="%s">Confirm account</a>
<p>And enter the code: <b>%s</b></p>
<p>This code expires in 10 minutes</p>
`, html.EscapeString(r.Name), html.EscapeString(link), html.EscapeString(r.Code))
}

func passwordResetBody(r Recipient, link string) string {
	return fmt.Sprintf(`<p>Hi %s</p>
<p>You requested to reset your password. Visit the following link:</p>
<a href="%s">Reset password</a>
<p>And enter the code: <b>%s</b></p>
<p>This code expires in 10 minutes</p>
`, html.EscapeString(r.Name), html.EscapeString(link), html.EscapeString(r.Code))
}
