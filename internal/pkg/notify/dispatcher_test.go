package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"uptask/internal/pkg/queue"
)

type recordingMailer struct {
	mu            sync.Mutex
	confirmations []Recipient
	resets        []Recipient
	err           error
}

func (m *recordingMailer) SendConfirmation(ctx context.Context, r Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmations = append(m.confirmations, r)
	return m.err
}

func (m *recordingMailer) SendPasswordReset(ctx context.Context, r Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, r)
	return m.err
}

func TestDispatcher_SendsAsynchronously(t *testing.T) {
	mailer := &recordingMailer{}
	q := queue.New(discardLogger(), 2, 10)
	q.Start(context.Background())
	d := NewDispatcher(mailer, q, discardLogger())

	d.NotifyConfirmation(Recipient{Email: "alice@example.com", Code: "111111"})
	d.NotifyPasswordReset(Recipient{Email: "alice@example.com", Code: "222222"})

	if err := q.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if len(mailer.confirmations) != 1 || mailer.confirmations[0].Code != "111111" {
		t.Fatalf("unexpected confirmations %+v", mailer.confirmations)
	}
	if len(mailer.resets) != 1 || mailer.resets[0].Code != "222222" {
		t.Fatalf("unexpected resets %+v", mailer.resets)
	}
}

func TestDispatcher_FailureIsSwallowed(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("smtp down")}
	q := queue.New(discardLogger(), 1, 10)
	q.Start(context.Background())
	d := NewDispatcher(mailer, q, discardLogger())

	d.NotifyConfirmation(Recipient{Email: "alice@example.com"})
	if err := q.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if q.Stats().Failed != 1 {
		t.Fatalf("expected failed job to be recorded")
	}
}
