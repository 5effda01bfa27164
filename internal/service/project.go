package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"uptask/internal/model"
	"uptask/internal/store"

	"github.com/google/uuid"
)

// WorkflowStore 项目、任务、团队与备注流程需要的存储能力。
type WorkflowStore interface {
	store.UserStore
	store.ProjectStore
	store.TaskStore
	store.NoteStore
}

// ProjectService 负责项目及其下属任务、团队、备注。
//
// 权限规则：经理或团队成员可以读；只有经理可以修改项目、任务与团队；只有作者可以删除备注。
type ProjectService struct {
	store  WorkflowStore
	logger *slog.Logger
	now    func() time.Time
}

// NewProjectService 创建项目服务。
func NewProjectService(st WorkflowStore, logger *slog.Logger) *ProjectService {
	return &ProjectService{
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// ProjectInput 创建与更新项目的字段。
type ProjectInput struct {
	ProjectName string
	ClientName  string
	Description string
}

// ProjectDetail 是带任务详情的项目视图。
type ProjectDetail struct {
	model.Project
	Tasks []model.Task `json:"tasks"`
}

// CreateProject 创建项目，调用者成为经理。
func (s *ProjectService) CreateProject(ctx context.Context, caller string, in ProjectInput) (*model.Project, error) {
	project := &model.Project{
		ID:          uuid.NewString(),
		ProjectName: strings.TrimSpace(in.ProjectName),
		ClientName:  strings.TrimSpace(in.ClientName),
		Description: strings.TrimSpace(in.Description),
		ManagerID:   caller,
		Team:        []string{},
		Tasks:       []string{},
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, internal("create project failed", err)
	}
	s.logger.Info("project created", slog.String("project_id", project.ID), slog.String("manager", caller))
	return project, nil
}

// ListProjects 返回调用者担任经理或成员的项目。
func (s *ProjectService) ListProjects(ctx context.Context, caller string) ([]model.Project, error) {
	projects, err := s.store.ListProjectsForUser(ctx, caller)
	if err != nil {
		return nil, internal("list projects failed", err)
	}
	return projects, nil
}

// LoadProject 按 ID 解析项目，不做权限判断。
func (s *ProjectService) LoadProject(ctx context.Context, projectID string) (*model.Project, error) {
	project, err := s.store.FindProjectByID(ctx, projectID)
	if err != nil {
		return nil, fromStore(err, "project not found")
	}
	return project, nil
}

// GetProject 返回项目详情。无权查看的用户得到 NotFound，不暴露项目是否存在。
func (s *ProjectService) GetProject(ctx context.Context, caller string, project *model.Project) (*ProjectDetail, error) {
	if !project.CanRead(caller) {
		return nil, newError(KindNotFound, "invalid action")
	}
	tasks, err := s.store.ListTasksByProject(ctx, project.ID)
	if err != nil {
		return nil, internal("list tasks failed", err)
	}
	return &ProjectDetail{Project: *project, Tasks: tasks}, nil
}

// UpdateProject 修改项目字段，仅经理可用。
func (s *ProjectService) UpdateProject(ctx context.Context, caller string, project *model.Project, in ProjectInput) error {
	if !project.IsManager(caller) {
		return newError(KindForbidden, "only the manager can update the project")
	}
	project.ProjectName = strings.TrimSpace(in.ProjectName)
	project.ClientName = strings.TrimSpace(in.ClientName)
	project.Description = strings.TrimSpace(in.Description)
	if err := s.store.UpdateProjectFields(ctx, project); err != nil {
		return internal("update project failed", err)
	}
	return nil
}

// DeleteProject 删除项目及其任务和备注，仅经理可用。
func (s *ProjectService) DeleteProject(ctx context.Context, caller string, project *model.Project) error {
	if !project.IsManager(caller) {
		return newError(KindForbidden, "only the manager can delete the project")
	}
	if err := s.store.DeleteProject(ctx, project.ID); err != nil {
		return fromStore(err, "project not found")
	}
	s.logger.Info("project deleted", slog.String("project_id", project.ID))
	return nil
}

// userSummaries 按 ID 批量查询用户，返回 ID → 精简视图；查不到的用户只保留 ID。
func (s *ProjectService) userSummaries(ctx context.Context, ids []string) (map[string]model.UserSummary, error) {
	out := make(map[string]model.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	users, err := s.store.FindUsersByIDs(ctx, ids)
	if err != nil {
		return nil, internal("load users failed", err)
	}
	for _, u := range users {
		out[u.ID] = u.Summary()
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			out[id] = model.UserSummary{ID: id}
		}
	}
	return out, nil
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
