// Package store 定义持久化层契约。
//
// 关系型实现见 gormstore，文档型实现见 mongostore。两个实现对同一组操作给出相同语义：
// 查不到记录时返回 ErrNotFound，唯一约束冲突时返回 ErrDuplicate。
package store

import (
	"context"
	"errors"

	"uptask/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// UserStore 用户读写。
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	SaveUser(ctx context.Context, user *model.User) error
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	FindUsersByIDs(ctx context.Context, ids []string) ([]model.User, error)
}

// TokenStore 一次性验证码读写。
type TokenStore interface {
	CreateToken(ctx context.Context, token *model.Token) error
	// FindToken 按验证码查找，多条命中时返回最新的一条。
	FindToken(ctx context.Context, code string) (*model.Token, error)
	DeleteToken(ctx context.Context, id string) error
}

// ProjectStore 项目读写。
//
// 团队与任务列表只做单元素增删，不整体覆盖，避免基于过期副本的写入丢失并发修改。
type ProjectStore interface {
	CreateProject(ctx context.Context, project *model.Project) error
	// UpdateProjectFields 只更新名称、客户与描述。
	UpdateProjectFields(ctx context.Context, project *model.Project) error
	// AddProjectMember 追加团队成员；项目不存在返回 ErrNotFound，已是成员返回 ErrDuplicate。
	AddProjectMember(ctx context.Context, projectID, userID string) error
	// RemoveProjectMember 移除团队成员；不是成员时返回 ErrNotFound。
	RemoveProjectMember(ctx context.Context, projectID, userID string) error
	// AttachTask / DetachTask 在项目任务列表中登记或移除任务。
	AttachTask(ctx context.Context, projectID, taskID string) error
	DetachTask(ctx context.Context, projectID, taskID string) error
	FindProjectByID(ctx context.Context, id string) (*model.Project, error)
	// ListProjectsForUser 返回 userID 担任经理或团队成员的项目。
	ListProjectsForUser(ctx context.Context, userID string) ([]model.Project, error)
	// DeleteProject 删除项目及其任务和备注。
	DeleteProject(ctx context.Context, id string) error
}

// TaskStore 任务读写。
type TaskStore interface {
	CreateTask(ctx context.Context, task *model.Task) error
	// UpdateTaskFields 只更新名称与描述。
	UpdateTaskFields(ctx context.Context, task *model.Task) error
	// AttachNote / DetachNote 在任务备注列表中登记或移除备注。
	AttachNote(ctx context.Context, taskID, noteID string) error
	DetachNote(ctx context.Context, taskID, noteID string) error
	// AppendStatusChange 追加一条状态历史并覆盖当前状态。
	AppendStatusChange(ctx context.Context, taskID string, change model.StatusChange) error
	FindTaskByID(ctx context.Context, id string) (*model.Task, error)
	ListTasksByProject(ctx context.Context, projectID string) ([]model.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// NoteStore 备注读写。
type NoteStore interface {
	CreateNote(ctx context.Context, note *model.Note) error
	FindNoteByID(ctx context.Context, id string) (*model.Note, error)
	ListNotesByTask(ctx context.Context, taskID string) ([]model.Note, error)
	DeleteNote(ctx context.Context, id string) error
}

// Store 汇总全部读写能力以及连接管理。
type Store interface {
	UserStore
	TokenStore
	ProjectStore
	TaskStore
	NoteStore

	Ping(ctx context.Context) error
	Close() error
}
