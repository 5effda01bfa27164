package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"uptask/internal/model"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TaskInput 创建与更新任务的字段。
type TaskInput struct {
	Name        string
	Description string
}

// StatusChangeView 状态历史中带用户信息的一条记录。
type StatusChangeView struct {
	User      model.UserSummary `json:"user"`
	Status    model.TaskStatus  `json:"status"`
	ChangedAt time.Time         `json:"changedAt"`
}

// NoteView 带作者信息的备注。
type NoteView struct {
	model.Note
	CreatedBy model.UserSummary `json:"createdBy"`
}

// TaskDetail 是任务详情视图：状态历史与备注都带上用户信息。
type TaskDetail struct {
	model.Task
	CompletedBy []StatusChangeView `json:"completedBy"`
	Notes       []NoteView         `json:"notes"`
}

// LoadTask 解析属于 project 的任务。
//
// 任务不存在返回 NotFound；任务属于其他项目返回 Validation（"invalid action"）。
func (s *ProjectService) LoadTask(ctx context.Context, project *model.Project, taskID string) (*model.Task, error) {
	task, err := s.store.FindTaskByID(ctx, taskID)
	if err != nil {
		return nil, fromStore(err, "task not found")
	}
	if task.ProjectID != project.ID {
		return nil, newError(KindValidation, "invalid action")
	}
	return task, nil
}

// CreateTask 在项目下创建任务，仅经理可用。
//
// 任务写入与项目任务列表更新是两次独立写入。
func (s *ProjectService) CreateTask(ctx context.Context, caller string, project *model.Project, in TaskInput) (*model.Task, error) {
	if !project.IsManager(caller) {
		return nil, newError(KindForbidden, "invalid action")
	}
	task := &model.Task{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Status:      model.TaskStatusPending,
		ProjectID:   project.ID,
		CompletedBy: []model.StatusChange{},
		Notes:       []string{},
	}

	var g errgroup.Group
	g.Go(func() error { return s.store.CreateTask(ctx, task) })
	g.Go(func() error { return s.store.AttachTask(ctx, project.ID, task.ID) })
	if err := g.Wait(); err != nil {
		return nil, internal("create task failed", err)
	}
	project.Tasks = append(project.Tasks, task.ID)
	s.logger.Info("task created", slog.String("project_id", project.ID), slog.String("task_id", task.ID))
	return task, nil
}

// ListTasks 返回项目下的任务，经理或成员可用。
func (s *ProjectService) ListTasks(ctx context.Context, caller string, project *model.Project) ([]model.Task, error) {
	if !project.CanRead(caller) {
		return nil, newError(KindForbidden, "invalid action")
	}
	tasks, err := s.store.ListTasksByProject(ctx, project.ID)
	if err != nil {
		return nil, internal("list tasks failed", err)
	}
	return tasks, nil
}

// GetTask 返回任务详情，经理或成员可用。
func (s *ProjectService) GetTask(ctx context.Context, caller string, project *model.Project, task *model.Task) (*TaskDetail, error) {
	if !project.CanRead(caller) {
		return nil, newError(KindForbidden, "invalid action")
	}
	notes, err := s.store.ListNotesByTask(ctx, task.ID)
	if err != nil {
		return nil, internal("list notes failed", err)
	}

	var ids []string
	for _, c := range task.CompletedBy {
		ids = append(ids, c.UserID)
	}
	for _, n := range notes {
		ids = append(ids, n.CreatedBy)
	}
	slices.Sort(ids)
	users, err := s.userSummaries(ctx, slices.Compact(ids))
	if err != nil {
		return nil, err
	}

	detail := &TaskDetail{
		Task:        *task,
		CompletedBy: make([]StatusChangeView, 0, len(task.CompletedBy)),
		Notes:       make([]NoteView, 0, len(notes)),
	}
	for _, c := range task.CompletedBy {
		detail.CompletedBy = append(detail.CompletedBy, StatusChangeView{
			User:      users[c.UserID],
			Status:    c.Status,
			ChangedAt: c.ChangedAt,
		})
	}
	for _, n := range notes {
		detail.Notes = append(detail.Notes, NoteView{Note: n, CreatedBy: users[n.CreatedBy]})
	}
	return detail, nil
}

// UpdateTask 修改任务名称与描述，仅经理可用。
func (s *ProjectService) UpdateTask(ctx context.Context, caller string, project *model.Project, task *model.Task, in TaskInput) error {
	if !project.IsManager(caller) {
		return newError(KindForbidden, "invalid action")
	}
	task.Name = strings.TrimSpace(in.Name)
	task.Description = strings.TrimSpace(in.Description)
	if err := s.store.UpdateTaskFields(ctx, task); err != nil {
		return internal("update task failed", err)
	}
	return nil
}

// DeleteTask 删除任务并从项目任务列表中移除，仅经理可用。
func (s *ProjectService) DeleteTask(ctx context.Context, caller string, project *model.Project, task *model.Task) error {
	if !project.IsManager(caller) {
		return newError(KindForbidden, "invalid action")
	}
	var g errgroup.Group
	g.Go(func() error { return s.store.DeleteTask(ctx, task.ID) })
	g.Go(func() error { return s.store.DetachTask(ctx, project.ID, task.ID) })
	if err := g.Wait(); err != nil {
		return fromStore(err, "task not found")
	}
	project.Tasks = without(project.Tasks, task.ID)
	s.logger.Info("task deleted", slog.String("project_id", project.ID), slog.String("task_id", task.ID))
	return nil
}

// UpdateTaskStatus 修改任务状态并追加一条历史，经理或成员可用。
func (s *ProjectService) UpdateTaskStatus(ctx context.Context, caller string, project *model.Project, task *model.Task, status model.TaskStatus) error {
	if !status.Valid() {
		return newError(KindValidation, "invalid status")
	}
	if !project.CanRead(caller) {
		return newError(KindForbidden, "invalid action")
	}
	change := model.StatusChange{UserID: caller, Status: status, ChangedAt: s.now()}
	if err := s.store.AppendStatusChange(ctx, task.ID, change); err != nil {
		return fromStore(err, "task not found")
	}
	task.Status = status
	task.CompletedBy = append(task.CompletedBy, change)
	return nil
}
