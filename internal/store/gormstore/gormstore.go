// Package gormstore 基于 GORM 的关系型存储实现（生产使用 MySQL，测试使用 SQLite）。
//
// 项目团队保存在 project_members 表，任务状态历史保存在 status_changes 表；
// Project.Tasks 与 Task.Notes 由外键关系推导，不单独存储。
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"uptask/internal/model"
	"uptask/internal/store"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Options 连接池参数。
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store 实现 store.Store。
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

type projectMember struct {
	ProjectID string `gorm:"primaryKey;type:varchar(36)"`
	UserID    string `gorm:"primaryKey;type:varchar(36);index"`
	Position  int    `gorm:"not null;default:0"`
}

func (projectMember) TableName() string { return "project_members" }

type statusChange struct {
	ID        uint      `gorm:"primaryKey"`
	TaskID    string    `gorm:"type:varchar(36);index;not null"`
	UserID    string    `gorm:"type:varchar(36);not null"`
	Status    string    `gorm:"type:varchar(32);not null"`
	ChangedAt time.Time `gorm:"not null"`
}

func (statusChange) TableName() string { return "status_changes" }

type childRef struct {
	ID       string
	ParentID string
}

// OpenMySQL 通过 DSN 连接 MySQL。
func OpenMySQL(dsn string, opts Options) (*Store, error) {
	return Open(mysql.Open(dsn), opts)
}

// Open 使用给定方言打开数据库并执行自动迁移。
func Open(dialector gorm.Dialector, opts Options) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err := db.AutoMigrate(
		&model.User{},
		&model.Token{},
		&model.Project{},
		&projectMember{},
		&model.Task{},
		&statusChange{},
		&model.Note{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping 检查数据库连通性。
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭连接池。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	default:
		return err
	}
}

// ---- users ----

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return translate(s.db.WithContext(ctx).Create(user).Error)
}

func (s *Store) SaveUser(ctx context.Context, user *model.User) error {
	return translate(s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"name":       user.Name,
			"email":      user.Email,
			"password":   user.Password,
			"confirmed":  user.Confirmed,
			"updated_at": time.Now(),
		}).Error)
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) FindUsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []model.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, translate(err)
	}
	return users, nil
}

// ---- tokens ----

func (s *Store) CreateToken(ctx context.Context, token *model.Token) error {
	return translate(s.db.WithContext(ctx).Create(token).Error)
}

func (s *Store) FindToken(ctx context.Context, code string) (*model.Token, error) {
	var token model.Token
	if err := s.db.WithContext(ctx).Where("code = ?", code).Order("created_at DESC").First(&token).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

func (s *Store) DeleteToken(ctx context.Context, id string) error {
	return translate(s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Token{}).Error)
}

// ---- projects ----

func (s *Store) CreateProject(ctx context.Context, project *model.Project) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return err
		}
		if len(project.Team) == 0 {
			return nil
		}
		rows := make([]projectMember, 0, len(project.Team))
		for i, uid := range project.Team {
			rows = append(rows, projectMember{ProjectID: project.ID, UserID: uid, Position: i})
		}
		return tx.Create(&rows).Error
	}))
}

func (s *Store) UpdateProjectFields(ctx context.Context, project *model.Project) error {
	// MySQL 的 RowsAffected 不计未变化的行，这里不据此判断是否存在
	res := s.db.WithContext(ctx).Model(&model.Project{}).
		Where("id = ?", project.ID).
		Updates(map[string]interface{}{
			"project_name": project.ProjectName,
			"client_name":  project.ClientName,
			"description":  project.Description,
			"updated_at":   time.Now(),
		})
	return translate(res.Error)
}

func (s *Store) AddProjectMember(ctx context.Context, projectID, userID string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := projectExists(tx, projectID); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&projectMember{}).
			Where("project_id = ? AND user_id = ?", projectID, userID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return gorm.ErrDuplicatedKey
		}
		var next int
		if err := tx.Model(&projectMember{}).
			Where("project_id = ?", projectID).
			Select("COALESCE(MAX(position), -1) + 1").
			Scan(&next).Error; err != nil {
			return err
		}
		return tx.Create(&projectMember{ProjectID: projectID, UserID: userID, Position: next}).Error
	}))
}

func (s *Store) RemoveProjectMember(ctx context.Context, projectID, userID string) error {
	res := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&projectMember{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AttachTask 任务列表由 tasks.project_id 推导，这里只校验项目存在。
func (s *Store) AttachTask(ctx context.Context, projectID, _ string) error {
	return translate(projectExists(s.db.WithContext(ctx), projectID))
}

// DetachTask 同 AttachTask，删除任务行即从列表中消失。
func (s *Store) DetachTask(ctx context.Context, projectID, _ string) error {
	return translate(projectExists(s.db.WithContext(ctx), projectID))
}

func projectExists(db *gorm.DB, projectID string) error {
	var count int64
	if err := db.Model(&model.Project{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store) FindProjectByID(ctx context.Context, id string) (*model.Project, error) {
	db := s.db.WithContext(ctx)
	var project model.Project
	if err := db.Where("id = ?", id).First(&project).Error; err != nil {
		return nil, translate(err)
	}
	projects := []model.Project{project}
	if err := hydrateProjects(db, projects); err != nil {
		return nil, translate(err)
	}
	return &projects[0], nil
}

func (s *Store) ListProjectsForUser(ctx context.Context, userID string) ([]model.Project, error) {
	db := s.db.WithContext(ctx)
	memberOf := db.Table("project_members").Select("project_id").Where("user_id = ?", userID)
	projects := []model.Project{}
	if err := db.Where("manager_id = ? OR id IN (?)", userID, memberOf).
		Order("created_at ASC").
		Find(&projects).Error; err != nil {
		return nil, translate(err)
	}
	if err := hydrateProjects(db, projects); err != nil {
		return nil, translate(err)
	}
	return projects, nil
}

func hydrateProjects(db *gorm.DB, projects []model.Project) error {
	if len(projects) == 0 {
		return nil
	}
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}

	var members []projectMember
	if err := db.Where("project_id IN ?", ids).Order("position ASC").Find(&members).Error; err != nil {
		return err
	}
	var tasks []childRef
	if err := db.Table("tasks").
		Select("id, project_id AS parent_id").
		Where("project_id IN ?", ids).
		Order("created_at ASC, id ASC").
		Scan(&tasks).Error; err != nil {
		return err
	}

	team := make(map[string][]string)
	for _, m := range members {
		team[m.ProjectID] = append(team[m.ProjectID], m.UserID)
	}
	taskIDs := make(map[string][]string)
	for _, t := range tasks {
		taskIDs[t.ParentID] = append(taskIDs[t.ParentID], t.ID)
	}
	for i := range projects {
		projects[i].Team = nonNil(team[projects[i].ID])
		projects[i].Tasks = nonNil(taskIDs[projects[i].ID])
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taskIDs := tx.Table("tasks").Select("id").Where("project_id = ?", id)
		if err := tx.Where("task_id IN (?)", taskIDs).Delete(&model.Note{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id IN (?)", taskIDs).Delete(&statusChange{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&model.Task{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&projectMember{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Project{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	}))
}

// ---- tasks ----

func (s *Store) CreateTask(ctx context.Context, task *model.Task) error {
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	return translate(s.db.WithContext(ctx).Create(task).Error)
}

func (s *Store) UpdateTaskFields(ctx context.Context, task *model.Task) error {
	res := s.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"name":        task.Name,
			"description": task.Description,
			"updated_at":  time.Now(),
		})
	return translate(res.Error)
}

// AttachNote 备注列表由 notes.task_id 推导，这里只校验任务存在。
func (s *Store) AttachNote(ctx context.Context, taskID, _ string) error {
	return translate(taskExists(s.db.WithContext(ctx), taskID))
}

func (s *Store) DetachNote(ctx context.Context, taskID, _ string) error {
	return translate(taskExists(s.db.WithContext(ctx), taskID))
}

func taskExists(db *gorm.DB, taskID string) error {
	var count int64
	if err := db.Model(&model.Task{}).Where("id = ?", taskID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store) AppendStatusChange(ctx context.Context, taskID string, change model.StatusChange) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Task{}).
			Where("id = ?", taskID).
			Updates(map[string]interface{}{
				"status":     string(change.Status),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		row := statusChange{
			TaskID:    taskID,
			UserID:    change.UserID,
			Status:    string(change.Status),
			ChangedAt: change.ChangedAt,
		}
		if row.ChangedAt.IsZero() {
			row.ChangedAt = time.Now()
		}
		return tx.Create(&row).Error
	}))
}

func (s *Store) FindTaskByID(ctx context.Context, id string) (*model.Task, error) {
	db := s.db.WithContext(ctx)
	var task model.Task
	if err := db.Where("id = ?", id).First(&task).Error; err != nil {
		return nil, translate(err)
	}
	tasks := []model.Task{task}
	if err := hydrateTasks(db, tasks); err != nil {
		return nil, translate(err)
	}
	return &tasks[0], nil
}

func (s *Store) ListTasksByProject(ctx context.Context, projectID string) ([]model.Task, error) {
	db := s.db.WithContext(ctx)
	tasks := []model.Task{}
	if err := db.Where("project_id = ?", projectID).Order("created_at ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, translate(err)
	}
	if err := hydrateTasks(db, tasks); err != nil {
		return nil, translate(err)
	}
	return tasks, nil
}

func hydrateTasks(db *gorm.DB, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}

	var changes []statusChange
	if err := db.Where("task_id IN ?", ids).Order("id ASC").Find(&changes).Error; err != nil {
		return err
	}
	var notes []childRef
	if err := db.Table("notes").
		Select("id, task_id AS parent_id").
		Where("task_id IN ?", ids).
		Order("created_at ASC, id ASC").
		Scan(&notes).Error; err != nil {
		return err
	}

	history := make(map[string][]model.StatusChange)
	for _, c := range changes {
		history[c.TaskID] = append(history[c.TaskID], model.StatusChange{
			UserID:    c.UserID,
			Status:    model.TaskStatus(c.Status),
			ChangedAt: c.ChangedAt,
		})
	}
	noteIDs := make(map[string][]string)
	for _, n := range notes {
		noteIDs[n.ParentID] = append(noteIDs[n.ParentID], n.ID)
	}
	for i := range tasks {
		if h := history[tasks[i].ID]; h != nil {
			tasks[i].CompletedBy = h
		} else {
			tasks[i].CompletedBy = []model.StatusChange{}
		}
		tasks[i].Notes = nonNil(noteIDs[tasks[i].ID])
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&model.Note{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id = ?", id).Delete(&statusChange{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Task{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	}))
}

// ---- notes ----

func (s *Store) CreateNote(ctx context.Context, note *model.Note) error {
	return translate(s.db.WithContext(ctx).Create(note).Error)
}

func (s *Store) FindNoteByID(ctx context.Context, id string) (*model.Note, error) {
	var note model.Note
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&note).Error; err != nil {
		return nil, translate(err)
	}
	return &note, nil
}

func (s *Store) ListNotesByTask(ctx context.Context, taskID string) ([]model.Note, error) {
	notes := []model.Note{}
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("created_at ASC, id ASC").Find(&notes).Error; err != nil {
		return nil, translate(err)
	}
	return notes, nil
}

func (s *Store) DeleteNote(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Note{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
