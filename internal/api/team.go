package api

import (
	"net/http"

	"uptask/internal/api/httpx"
	"uptask/internal/api/middleware"
	"uptask/internal/model"

	"github.com/gin-gonic/gin"
)

type findMemberRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type addMemberRequest struct {
	ID string `json:"id" binding:"required,uuid"`
}

func (s *Server) handleFindMember(c *gin.Context, project *model.Project) {
	var req findMemberRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	user, err := s.projects.FindMemberByEmail(c.Request.Context(), middleware.UserID(c), project, req.Email)
	if err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) handleListTeam(c *gin.Context, project *model.Project) {
	team, err := s.projects.ListTeam(c.Request.Context(), middleware.UserID(c), project)
	if err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, team)
}

func (s *Server) handleAddMember(c *gin.Context, project *model.Project) {
	var req addMemberRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	if err := s.projects.AddMember(c.Request.Context(), middleware.UserID(c), project, req.ID); err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.String(http.StatusOK, "Member added")
}

func (s *Server) handleRemoveMember(c *gin.Context, project *model.Project) {
	userID, ok := httpx.ParamID(c, "userId")
	if !ok {
		return
	}
	if err := s.projects.RemoveMember(c.Request.Context(), middleware.UserID(c), project, userID); err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.String(http.StatusOK, "Member removed")
}
