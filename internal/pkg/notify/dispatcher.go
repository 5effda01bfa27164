package notify

import (
	"context"
	"log/slog"
	"time"

	"uptask/internal/pkg/metrics"
	"uptask/internal/pkg/queue"
)

const (
	kindConfirmation  = "confirmation"
	kindPasswordReset = "password_reset"

	sendTimeout = 30 * time.Second
)

// Dispatcher 将邮件放入 worker 池异步发送。
//
// 发送失败只记录日志与指标，从不影响调用方。
type Dispatcher struct {
	mailer Mailer
	queue  *queue.Queue
	logger *slog.Logger
}

// NewDispatcher 创建派发器。
func NewDispatcher(mailer Mailer, q *queue.Queue, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		mailer: mailer,
		queue:  q,
		logger: logger,
	}
}

// NotifyConfirmation 异步发送账号确认邮件。
func (d *Dispatcher) NotifyConfirmation(r Recipient) {
	d.dispatch(kindConfirmation, r, d.mailer.SendConfirmation)
}

// NotifyPasswordReset 异步发送密码找回邮件。
func (d *Dispatcher) NotifyPasswordReset(r Recipient) {
	d.dispatch(kindPasswordReset, r, d.mailer.SendPasswordReset)
}

func (d *Dispatcher) dispatch(kind string, r Recipient, send func(context.Context, Recipient) error) {
	job := func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		if err := send(sendCtx, r); err != nil {
			metrics.EmailsTotal.WithLabelValues(kind, "failed").Inc()
			d.logger.Error("send email failed", slog.String("kind", kind), slog.String("to", r.Email), slog.String("error", err.Error()))
			return err
		}
		metrics.EmailsTotal.WithLabelValues(kind, "sent").Inc()
		return nil
	}

	if !d.queue.Enqueue(job) {
		metrics.EmailsTotal.WithLabelValues(kind, "dropped").Inc()
		d.logger.Warn("email dropped", slog.String("kind", kind), slog.String("to", r.Email))
	}
}
