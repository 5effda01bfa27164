// Package mongostore 基于 MongoDB 官方驱动的文档型存储实现。
//
// 项目文档内嵌 team 与 tasks 引用数组，任务文档内嵌 completedBy 历史与 notes 引用数组。
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"uptask/internal/model"
	"uptask/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colUsers    = "users"
	colTokens   = "tokens"
	colProjects = "projects"
	colTasks    = "tasks"
	colNotes    = "notes"
)

// Store 实现 store.Store。
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*Store)(nil)

// Open 连接 MongoDB，校验连通性并建立索引。
func Open(ctx context.Context, uri string, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colTokens: {
			{Keys: bson.D{{Key: "token", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		colProjects: {
			{Keys: bson.D{{Key: "manager", Value: 1}}},
			{Keys: bson.D{{Key: "team", Value: 1}}},
		},
		colTasks: {
			{Keys: bson.D{{Key: "project", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
		colNotes: {
			{Keys: bson.D{{Key: "task", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

// Ping 检查连通性。
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close 断开连接。
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	default:
		return err
	}
}

func byID(id string) bson.M {
	return bson.M{"_id": id}
}

func stamp(created, updated *time.Time) {
	now := time.Now()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = now
	}
}

func findOne[T any](ctx context.Context, col *mongo.Collection, filter interface{}, opts ...*options.FindOneOptions) (*T, error) {
	var out T
	if err := col.FindOne(ctx, filter, opts...).Decode(&out); err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func findAll[T any](ctx context.Context, col *mongo.Collection, filter interface{}, opts ...*options.FindOptions) ([]T, error) {
	cur, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, translate(err)
	}
	out := []T{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func sortByCreated() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
}

// ---- users ----

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	stamp(&user.CreatedAt, &user.UpdatedAt)
	_, err := s.db.Collection(colUsers).InsertOne(ctx, user)
	return translate(err)
}

func (s *Store) SaveUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()
	_, err := s.db.Collection(colUsers).UpdateOne(ctx, byID(user.ID), bson.M{"$set": bson.M{
		"name":      user.Name,
		"email":     user.Email,
		"password":  user.Password,
		"confirmed": user.Confirmed,
		"updatedAt": user.UpdatedAt,
	}})
	return translate(err)
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	return findOne[model.User](ctx, s.db.Collection(colUsers), byID(id))
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return findOne[model.User](ctx, s.db.Collection(colUsers), bson.M{"email": email})
}

func (s *Store) FindUsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return findAll[model.User](ctx, s.db.Collection(colUsers), bson.M{"_id": bson.M{"$in": ids}})
}

// ---- tokens ----

func (s *Store) CreateToken(ctx context.Context, token *model.Token) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	_, err := s.db.Collection(colTokens).InsertOne(ctx, token)
	return translate(err)
}

func (s *Store) FindToken(ctx context.Context, code string) (*model.Token, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return findOne[model.Token](ctx, s.db.Collection(colTokens), bson.M{"token": code}, opts)
}

func (s *Store) DeleteToken(ctx context.Context, id string) error {
	_, err := s.db.Collection(colTokens).DeleteOne(ctx, byID(id))
	return translate(err)
}

// ---- projects ----

func normalizeProject(p *model.Project) {
	if p.Team == nil {
		p.Team = []string{}
	}
	if p.Tasks == nil {
		p.Tasks = []string{}
	}
}

func (s *Store) CreateProject(ctx context.Context, project *model.Project) error {
	normalizeProject(project)
	stamp(&project.CreatedAt, &project.UpdatedAt)
	_, err := s.db.Collection(colProjects).InsertOne(ctx, project)
	return translate(err)
}

func (s *Store) UpdateProjectFields(ctx context.Context, project *model.Project) error {
	project.UpdatedAt = time.Now()
	res, err := s.db.Collection(colProjects).UpdateOne(ctx, byID(project.ID), bson.M{"$set": bson.M{
		"projectName": project.ProjectName,
		"clientName":  project.ClientName,
		"description": project.Description,
		"updatedAt":   project.UpdatedAt,
	}})
	return matched(res, err)
}

func (s *Store) AddProjectMember(ctx context.Context, projectID, userID string) error {
	col := s.db.Collection(colProjects)
	res, err := col.UpdateOne(ctx, bson.M{"_id": projectID, "team": bson.M{"$ne": userID}}, bson.M{
		"$push": bson.M{"team": userID},
		"$set":  bson.M{"updatedAt": time.Now()},
	})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := col.CountDocuments(ctx, byID(projectID))
	if err != nil {
		return translate(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrDuplicate
}

func (s *Store) RemoveProjectMember(ctx context.Context, projectID, userID string) error {
	res, err := s.db.Collection(colProjects).UpdateOne(ctx, bson.M{"_id": projectID, "team": userID}, bson.M{
		"$pull": bson.M{"team": userID},
		"$set":  bson.M{"updatedAt": time.Now()},
	})
	return matched(res, err)
}

func (s *Store) AttachTask(ctx context.Context, projectID, taskID string) error {
	res, err := s.db.Collection(colProjects).UpdateOne(ctx, byID(projectID), bson.M{
		"$addToSet": bson.M{"tasks": taskID},
	})
	return matched(res, err)
}

func (s *Store) DetachTask(ctx context.Context, projectID, taskID string) error {
	res, err := s.db.Collection(colProjects).UpdateOne(ctx, byID(projectID), bson.M{
		"$pull": bson.M{"tasks": taskID},
	})
	return matched(res, err)
}

// matched 把未命中任何文档的更新视为 ErrNotFound。
func matched(res *mongo.UpdateResult, err error) error {
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FindProjectByID(ctx context.Context, id string) (*model.Project, error) {
	p, err := findOne[model.Project](ctx, s.db.Collection(colProjects), byID(id))
	if err != nil {
		return nil, err
	}
	normalizeProject(p)
	return p, nil
}

func (s *Store) ListProjectsForUser(ctx context.Context, userID string) ([]model.Project, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"manager": userID},
		bson.M{"team": userID},
	}}
	projects, err := findAll[model.Project](ctx, s.db.Collection(colProjects), filter, sortByCreated())
	if err != nil {
		return nil, err
	}
	for i := range projects {
		normalizeProject(&projects[i])
	}
	return projects, nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	tasks, err := findAll[model.Task](ctx, s.db.Collection(colTasks), bson.M{"project": id},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return err
	}
	if len(tasks) > 0 {
		taskIDs := make([]string, 0, len(tasks))
		for _, t := range tasks {
			taskIDs = append(taskIDs, t.ID)
		}
		if _, err := s.db.Collection(colNotes).DeleteMany(ctx, bson.M{"task": bson.M{"$in": taskIDs}}); err != nil {
			return translate(err)
		}
		if _, err := s.db.Collection(colTasks).DeleteMany(ctx, bson.M{"project": id}); err != nil {
			return translate(err)
		}
	}
	res, err := s.db.Collection(colProjects).DeleteOne(ctx, byID(id))
	if err != nil {
		return translate(err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- tasks ----

func normalizeTask(t *model.Task) {
	if t.CompletedBy == nil {
		t.CompletedBy = []model.StatusChange{}
	}
	if t.Notes == nil {
		t.Notes = []string{}
	}
	if t.Status == "" {
		t.Status = model.TaskStatusPending
	}
}

func (s *Store) CreateTask(ctx context.Context, task *model.Task) error {
	normalizeTask(task)
	stamp(&task.CreatedAt, &task.UpdatedAt)
	_, err := s.db.Collection(colTasks).InsertOne(ctx, task)
	return translate(err)
}

func (s *Store) UpdateTaskFields(ctx context.Context, task *model.Task) error {
	task.UpdatedAt = time.Now()
	res, err := s.db.Collection(colTasks).UpdateOne(ctx, byID(task.ID), bson.M{"$set": bson.M{
		"name":        task.Name,
		"description": task.Description,
		"updatedAt":   task.UpdatedAt,
	}})
	return matched(res, err)
}

func (s *Store) AttachNote(ctx context.Context, taskID, noteID string) error {
	res, err := s.db.Collection(colTasks).UpdateOne(ctx, byID(taskID), bson.M{
		"$addToSet": bson.M{"notes": noteID},
	})
	return matched(res, err)
}

func (s *Store) DetachNote(ctx context.Context, taskID, noteID string) error {
	res, err := s.db.Collection(colTasks).UpdateOne(ctx, byID(taskID), bson.M{
		"$pull": bson.M{"notes": noteID},
	})
	return matched(res, err)
}

func (s *Store) AppendStatusChange(ctx context.Context, taskID string, change model.StatusChange) error {
	if change.ChangedAt.IsZero() {
		change.ChangedAt = time.Now()
	}
	res, err := s.db.Collection(colTasks).UpdateOne(ctx, byID(taskID), bson.M{
		"$set":  bson.M{"status": change.Status, "updatedAt": time.Now()},
		"$push": bson.M{"completedBy": change},
	})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FindTaskByID(ctx context.Context, id string) (*model.Task, error) {
	t, err := findOne[model.Task](ctx, s.db.Collection(colTasks), byID(id))
	if err != nil {
		return nil, err
	}
	normalizeTask(t)
	return t, nil
}

func (s *Store) ListTasksByProject(ctx context.Context, projectID string) ([]model.Task, error) {
	tasks, err := findAll[model.Task](ctx, s.db.Collection(colTasks), bson.M{"project": projectID}, sortByCreated())
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		normalizeTask(&tasks[i])
	}
	return tasks, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.db.Collection(colNotes).DeleteMany(ctx, bson.M{"task": id}); err != nil {
		return translate(err)
	}
	res, err := s.db.Collection(colTasks).DeleteOne(ctx, byID(id))
	if err != nil {
		return translate(err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- notes ----

func (s *Store) CreateNote(ctx context.Context, note *model.Note) error {
	stamp(&note.CreatedAt, &note.UpdatedAt)
	_, err := s.db.Collection(colNotes).InsertOne(ctx, note)
	return translate(err)
}

func (s *Store) FindNoteByID(ctx context.Context, id string) (*model.Note, error) {
	return findOne[model.Note](ctx, s.db.Collection(colNotes), byID(id))
}

func (s *Store) ListNotesByTask(ctx context.Context, taskID string) ([]model.Note, error) {
	return findAll[model.Note](ctx, s.db.Collection(colNotes), bson.M{"task": taskID}, sortByCreated())
}

func (s *Store) DeleteNote(ctx context.Context, id string) error {
	res, err := s.db.Collection(colNotes).DeleteOne(ctx, byID(id))
	if err != nil {
		return translate(err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
