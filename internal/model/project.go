package model

import (
	"slices"
	"time"
)

// Project 表示一个项目。
//
// Manager 是创建者，拥有修改、删除项目及管理团队的唯一权限。
// Team 只记录被授予读权限的成员，从不包含 Manager 本人。
// Tasks 按创建顺序保存任务 ID。
type Project struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"_id"`
	ProjectName string    `gorm:"type:varchar(191);not null" bson:"projectName" json:"projectName"`
	ClientName  string    `gorm:"type:varchar(191);not null" bson:"clientName" json:"clientName"`
	Description string    `gorm:"type:text;not null" bson:"description" json:"description"`
	ManagerID   string    `gorm:"type:varchar(36);index;not null" bson:"manager" json:"manager"`
	Team        []string  `gorm:"-" bson:"team" json:"team"`
	Tasks       []string  `gorm:"-" bson:"tasks" json:"tasks"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

// IsManager 判断 userID 是否为项目经理。
func (p *Project) IsManager(userID string) bool {
	return p.ManagerID == userID
}

// HasMember 判断 userID 是否在团队中。
func (p *Project) HasMember(userID string) bool {
	return slices.Contains(p.Team, userID)
}

// CanRead 经理或团队成员可以查看项目。
func (p *Project) CanRead(userID string) bool {
	return p.IsManager(userID) || p.HasMember(userID)
}
