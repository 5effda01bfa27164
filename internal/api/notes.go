package api

import (
	"net/http"

	"uptask/internal/api/httpx"
	"uptask/internal/api/middleware"
	"uptask/internal/model"

	"github.com/gin-gonic/gin"
)

type noteRequest struct {
	Content string `json:"content" binding:"required"`
}

func (s *Server) handleCreateNote(c *gin.Context, project *model.Project, task *model.Task) {
	var req noteRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	if _, err := s.projects.CreateNote(c.Request.Context(), middleware.UserID(c), project, task, req.Content); err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.String(http.StatusOK, "Note created")
}

func (s *Server) handleListNotes(c *gin.Context, project *model.Project, task *model.Task) {
	notes, err := s.projects.ListNotes(c.Request.Context(), middleware.UserID(c), project, task)
	if err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, notes)
}

// handleDeleteNote 删除备注，只有作者可以删除。
func (s *Server) handleDeleteNote(c *gin.Context, _ *model.Project, task *model.Task) {
	noteID, ok := httpx.ParamID(c, "noteId")
	if !ok {
		return
	}
	if err := s.projects.DeleteNote(c.Request.Context(), middleware.UserID(c), task, noteID); err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.String(http.StatusOK, "Note deleted")
}
