package model

import "time"

// User 表示系统用户。
//
// 账号创建时处于未确认状态，只有消费一个有效的确认 Token 后才会变为已确认，且不可逆。
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"_id"`
	Name      string    `gorm:"type:varchar(191);not null" bson:"name" json:"name"`
	Email     string    `gorm:"type:varchar(191);uniqueIndex;not null" bson:"email" json:"email"` // 邮箱（唯一，小写）
	Password  string    `gorm:"not null" bson:"password" json:"-"`                                 // bcrypt 哈希
	Confirmed bool      `gorm:"default:false" bson:"confirmed" json:"confirmed"`                  // 邮箱是否已确认
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// UserSummary 是对外暴露的精简用户信息（团队成员、备注作者等）。
type UserSummary struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Summary 返回用户的精简视图。
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}
