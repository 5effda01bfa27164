package api

import (
	"net/http"

	"uptask/internal/api/httpx"
	"uptask/internal/api/middleware"
	"uptask/internal/model"
	"uptask/internal/service"

	"github.com/gin-gonic/gin"
)

// projectRequest 创建与更新项目的请求参数。
type projectRequest struct {
	ProjectName string `json:"projectName" binding:"required"`
	ClientName  string `json:"clientName" binding:"required"`
	Description string `json:"description" binding:"required"`
}

func (r projectRequest) input() service.ProjectInput {
	return service.ProjectInput{
		ProjectName: r.ProjectName,
		ClientName:  r.ClientName,
		Description: r.Description,
	}
}

// handleCreateProject 创建项目。
//
// POST /api/projects
func (s *Server) handleCreateProject(c *gin.Context) {
	var req projectRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	if _, err := s.projects.CreateProject(c.Request.Context(), middleware.UserID(c), req.input()); err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.String(http.StatusOK, "Project created")
}

// handleListProjects 返回当前用户参与的项目。
func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.projects.ListProjects(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (s *Server) handleGetProject(c *gin.Context, project *model.Project) {
	detail, err := s.projects.GetProject(c.Request.Context(), middleware.UserID(c), project)
	if err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) handleUpdateProject(c *gin.Context, project *model.Project) {
	var req projectRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	if err := s.projects.UpdateProject(c.Request.Context(), middleware.UserID(c), project, req.input()); err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.String(http.StatusOK, "Project updated")
}

func (s *Server) handleDeleteProject(c *gin.Context, project *model.Project) {
	if err := s.projects.DeleteProject(c.Request.Context(), middleware.UserID(c), project); err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.String(http.StatusOK, "Project deleted")
}
