package model

import "time"

// Note 是挂在任务下的备注，只有作者可以删除。
type Note struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"_id"`
	Content   string    `gorm:"type:text;not null" bson:"content" json:"content"`
	CreatedBy string    `gorm:"type:varchar(36);index;not null" bson:"createdBy" json:"createdBy"`
	TaskID    string    `gorm:"type:varchar(36);index;not null" bson:"task" json:"task"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
