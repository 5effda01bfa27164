package model

import "time"

// TaskStatus 任务状态。
type TaskStatus string

const (
	TaskStatusPending     TaskStatus = "pending"
	TaskStatusOnHold      TaskStatus = "onHold"
	TaskStatusInProgress  TaskStatus = "inProgress"
	TaskStatusUnderReview TaskStatus = "underReview"
	TaskStatusCompleted   TaskStatus = "completed"
)

// Valid 判断状态值是否合法。
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusOnHold, TaskStatusInProgress, TaskStatusUnderReview, TaskStatusCompleted:
		return true
	}
	return false
}

// Task 表示项目下的一个任务。
//
// CompletedBy 是只追加的状态变更历史，Notes 保存备注 ID。
type Task struct {
	ID          string         `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"_id"`
	Name        string         `gorm:"type:varchar(191);not null" bson:"name" json:"name"`
	Description string         `gorm:"type:text;not null" bson:"description" json:"description"`
	Status      TaskStatus     `gorm:"type:varchar(32);default:pending" bson:"status" json:"status"`
	ProjectID   string         `gorm:"type:varchar(36);index;not null" bson:"project" json:"project"`
	CompletedBy []StatusChange `gorm:"-" bson:"completedBy" json:"completedBy"`
	Notes       []string       `gorm:"-" bson:"notes" json:"notes"`
	CreatedAt   time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// StatusChange 记录一次状态变更：谁把任务改成了什么状态。
type StatusChange struct {
	UserID    string     `bson:"user" json:"user"`
	Status    TaskStatus `bson:"status" json:"status"`
	ChangedAt time.Time  `bson:"changedAt" json:"changedAt"`
}
