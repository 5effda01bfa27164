package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"uptask/internal/config"

	"gopkg.in/gomail.v2"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmailNotifier_SendConfirmation(t *testing.T) {
	cfg := &config.EmailConfig{SMTPHost: "smtp.example.com", SMTPPort: 587, FromEmail: "UpTask <admin@uptask.com>"}
	n := NewEmailNotifier(cfg, "http://localhost:5173/", discardLogger())

	var captured bytes.Buffer
	n.send = func(m *gomail.Message) error {
		_, err := m.WriteTo(&captured)
		return err
	}

	err := n.SendConfirmation(context.Background(), Recipient{Email: "alice@example.com", Name: "Alice <3", Code: "123456"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	raw := captured.String()
	for _, want := range []string{
		"To: alice@example.com",
		"Confirm your account",
		"123456",
		"http://localhost:5173/auth/confirm-account",
		"Alice &lt;3",
	} {
		if !strings.Contains(raw, want) {
			t.Fatalf("expected message to contain %q", want)
		}
	}
}

func TestEmailNotifier_PasswordResetLink(t *testing.T) {
	body := passwordResetBody(Recipient{Name: "Bob", Code: "654321"}, "https://app.example.com/auth/new-password")
	if !strings.Contains(body, "https://app.example.com/auth/new-password") || !strings.Contains(body, "654321") {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestEmailNotifier_SkipsWithoutConfig(t *testing.T) {
	n := NewEmailNotifier(&config.EmailConfig{}, "http://localhost", discardLogger())
	n.send = func(m *gomail.Message) error {
		t.Fatalf("send should not be called without SMTP config")
		return nil
	}
	if err := n.SendPasswordReset(context.Background(), Recipient{Email: "a@b.c"}); err != nil {
		t.Fatalf("expected skip without error, got %v", err)
	}
}

func TestEmailNotifier_PropagatesTransportError(t *testing.T) {
	cfg := &config.EmailConfig{SMTPHost: "smtp.example.com", SMTPPort: 587, FromEmail: "admin@uptask.com"}
	n := NewEmailNotifier(cfg, "http://localhost", discardLogger())
	boom := errors.New("dial failed")
	n.send = func(m *gomail.Message) error { return boom }

	err := n.SendConfirmation(context.Background(), Recipient{Email: "a@b.c", Code: "1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
