package service

import (
	"context"
	"errors"
	"log/slog"

	"uptask/internal/model"
	"uptask/internal/store"
)

func requireManager(caller string, project *model.Project) error {
	if !project.IsManager(caller) {
		return newError(KindForbidden, "invalid action")
	}
	return nil
}

// FindMemberByEmail 按邮箱精确查找用户，用于添加成员前的搜索。
func (s *ProjectService) FindMemberByEmail(ctx context.Context, caller string, project *model.Project, email string) (*model.UserSummary, error) {
	if err := requireManager(caller, project); err != nil {
		return nil, err
	}
	user, err := s.store.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fromStore(err, "user not found")
	}
	summary := user.Summary()
	return &summary, nil
}

// ListTeam 返回团队成员，按加入顺序。
func (s *ProjectService) ListTeam(ctx context.Context, caller string, project *model.Project) ([]model.UserSummary, error) {
	if err := requireManager(caller, project); err != nil {
		return nil, err
	}
	users, err := s.userSummaries(ctx, project.Team)
	if err != nil {
		return nil, err
	}
	out := make([]model.UserSummary, 0, len(project.Team))
	for _, id := range project.Team {
		out = append(out, users[id])
	}
	return out, nil
}

// AddMember 将用户加入团队。经理本人不能加入自己的团队。
func (s *ProjectService) AddMember(ctx context.Context, caller string, project *model.Project, userID string) error {
	if err := requireManager(caller, project); err != nil {
		return err
	}
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return fromStore(err, "user not found")
	}
	if project.IsManager(user.ID) {
		return newError(KindConflict, "the manager cannot be added to the team")
	}
	if project.HasMember(user.ID) {
		return newError(KindConflict, "user already in the project")
	}
	if err := s.store.AddProjectMember(ctx, project.ID, user.ID); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return newError(KindConflict, "user already in the project")
		}
		return fromStore(err, "project not found")
	}
	project.Team = append(project.Team, user.ID)
	s.logger.Info("team member added", slog.String("project_id", project.ID), slog.String("user_id", user.ID))
	return nil
}

// RemoveMember 将用户移出团队。
func (s *ProjectService) RemoveMember(ctx context.Context, caller string, project *model.Project, userID string) error {
	if err := requireManager(caller, project); err != nil {
		return err
	}
	if err := s.store.RemoveProjectMember(ctx, project.ID, userID); err != nil {
		return fromStore(err, "user not in the project")
	}
	project.Team = without(project.Team, userID)
	s.logger.Info("team member removed", slog.String("project_id", project.ID), slog.String("user_id", userID))
	return nil
}
