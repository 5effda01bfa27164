// Package notify 负责事务性邮件：模板渲染、SMTP 发送与异步派发。
package notify

import "context"

// Recipient 验证码邮件的收件人信息。
type Recipient struct {
	Email string
	Name  string
	Code  string
}

// Mailer 定义邮件发送接口。
type Mailer interface {
	// SendConfirmation 发送账号确认邮件。
	SendConfirmation(ctx context.Context, r Recipient) error
	// SendPasswordReset 发送密码找回邮件。
	SendPasswordReset(ctx context.Context, r Recipient) error
}
