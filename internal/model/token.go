package model

import "time"

// TokenPurpose 区分账号确认与密码找回两类验证码。
type TokenPurpose string

const (
	TokenPurposeConfirm TokenPurpose = "confirm"
	TokenPurposeReset   TokenPurpose = "reset"
)

// Token 是发送到用户邮箱的一次性 6 位数字验证码。
type Token struct {
	ID        string       `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"_id"`
	Code      string       `gorm:"type:varchar(16);index;not null" bson:"token" json:"token"`
	UserID    string       `gorm:"type:varchar(36);index;not null" bson:"user" json:"user"`
	Purpose   TokenPurpose `gorm:"type:varchar(16);not null" bson:"purpose" json:"purpose"`
	CreatedAt time.Time    `bson:"createdAt" json:"createdAt"`
	ExpiresAt time.Time    `bson:"expiresAt" json:"expiresAt"`
}

// Expired 判断验证码在 now 时刻是否已过期。
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
