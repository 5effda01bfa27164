package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"uptask/internal/model"
	"uptask/internal/pkg/credential"
	"uptask/internal/service"
	"uptask/internal/store"

	"github.com/google/uuid"
)

const demoEmail = "demo@uptask.local"

var demoTasks = []service.TaskInput{
	{Name: "Kickoff meeting", Description: "Agree on scope and milestones with the client"},
	{Name: "Wireframes", Description: "Sketch the main screens"},
	{Name: "Deploy preview", Description: "Publish a preview build for review"},
}

// SeedDemoData 初始化演示账号与示例项目（仅在 app.seed_demo 打开时执行）。
//
// 重复执行是安全的：账号已存在时只保证其已确认，已有项目时不再创建。
func (s *Server) SeedDemoData(ctx context.Context) error {
	if !s.cfg.App.SeedDemo {
		return nil
	}

	user, err := s.store.FindUserByEmail(ctx, demoEmail)
	switch {
	case errors.Is(err, store.ErrNotFound):
		hash, hashErr := credential.HashPassword(s.cfg.App.DemoPassword)
		if hashErr != nil {
			return hashErr
		}
		user = &model.User{
			ID:        uuid.NewString(),
			Name:      "Demo",
			Email:     demoEmail,
			Password:  hash,
			Confirmed: true,
		}
		if err := s.store.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("create demo user: %w", err)
		}
	case err != nil:
		return err
	case !user.Confirmed:
		user.Confirmed = true
		if err := s.store.SaveUser(ctx, user); err != nil {
			return err
		}
	}

	projects, err := s.store.ListProjectsForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(projects) > 0 {
		return nil
	}

	project, err := s.projects.CreateProject(ctx, user.ID, service.ProjectInput{
		ProjectName: "Demo website",
		ClientName:  "UpTask",
		Description: "Sample project created for the demo account",
	})
	if err != nil {
		return err
	}
	for _, in := range demoTasks {
		if _, err := s.projects.CreateTask(ctx, user.ID, project, in); err != nil {
			return err
		}
	}
	s.logger.Info("demo data seeded", slog.String("email", demoEmail), slog.String("project_id", project.ID))
	return nil
}
