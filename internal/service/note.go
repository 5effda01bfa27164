package service

import (
	"context"
	"strings"

	"uptask/internal/model"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// CreateNote 在任务下添加备注，作者为调用者。
func (s *ProjectService) CreateNote(ctx context.Context, caller string, project *model.Project, task *model.Task, content string) (*model.Note, error) {
	if !project.CanRead(caller) {
		return nil, newError(KindForbidden, "invalid action")
	}
	note := &model.Note{
		ID:        uuid.NewString(),
		Content:   strings.TrimSpace(content),
		CreatedBy: caller,
		TaskID:    task.ID,
	}
	var g errgroup.Group
	g.Go(func() error { return s.store.CreateNote(ctx, note) })
	g.Go(func() error { return s.store.AttachNote(ctx, task.ID, note.ID) })
	if err := g.Wait(); err != nil {
		return nil, internal("create note failed", err)
	}
	task.Notes = append(task.Notes, note.ID)
	return note, nil
}

// ListNotes 返回任务下的备注。
func (s *ProjectService) ListNotes(ctx context.Context, caller string, project *model.Project, task *model.Task) ([]model.Note, error) {
	if !project.CanRead(caller) {
		return nil, newError(KindForbidden, "invalid action")
	}
	notes, err := s.store.ListNotesByTask(ctx, task.ID)
	if err != nil {
		return nil, internal("list notes failed", err)
	}
	return notes, nil
}

// DeleteNote 删除备注，仅作者可用。
func (s *ProjectService) DeleteNote(ctx context.Context, caller string, task *model.Task, noteID string) error {
	note, err := s.store.FindNoteByID(ctx, noteID)
	if err != nil {
		return fromStore(err, "note not found")
	}
	if note.TaskID != task.ID {
		return newError(KindNotFound, "note not found")
	}
	if note.CreatedBy != caller {
		return newError(KindForbidden, "invalid action")
	}
	var g errgroup.Group
	g.Go(func() error { return s.store.DeleteNote(ctx, note.ID) })
	g.Go(func() error { return s.store.DetachNote(ctx, task.ID, note.ID) })
	if err := g.Wait(); err != nil {
		return fromStore(err, "note not found")
	}
	task.Notes = without(task.Notes, note.ID)
	return nil
}
