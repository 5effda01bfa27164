package api

import (
	"net/http"

	"uptask/internal/api/httpx"
	"uptask/internal/api/middleware"
	"uptask/internal/model"
	"uptask/internal/service"

	"github.com/gin-gonic/gin"
)

type taskRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description" binding:"required"`
}

func (r taskRequest) input() service.TaskInput {
	return service.TaskInput{Name: r.Name, Description: r.Description}
}

type taskStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// handleCreateTask 在项目下创建任务。
//
// POST /api/projects/:projectId/tasks
func (s *Server) handleCreateTask(c *gin.Context, project *model.Project) {
	var req taskRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	if _, err := s.projects.CreateTask(c.Request.Context(), middleware.UserID(c), project, req.input()); err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.String(http.StatusOK, "Task created")
}

func (s *Server) handleListTasks(c *gin.Context, project *model.Project) {
	tasks, err := s.projects.ListTasks(c.Request.Context(), middleware.UserID(c), project)
	if err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleGetTask(c *gin.Context, project *model.Project, task *model.Task) {
	detail, err := s.projects.GetTask(c.Request.Context(), middleware.UserID(c), project, task)
	if err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) handleUpdateTask(c *gin.Context, project *model.Project, task *model.Task) {
	var req taskRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	if err := s.projects.UpdateTask(c.Request.Context(), middleware.UserID(c), project, task, req.input()); err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.String(http.StatusOK, "Task updated")
}

func (s *Server) handleDeleteTask(c *gin.Context, project *model.Project, task *model.Task) {
	if err := s.projects.DeleteTask(c.Request.Context(), middleware.UserID(c), project, task); err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.String(http.StatusOK, "Task deleted")
}

// handleUpdateTaskStatus 修改任务状态，经理与成员都可以操作。
//
// POST /api/projects/:projectId/tasks/:taskId/status
func (s *Server) handleUpdateTaskStatus(c *gin.Context, project *model.Project, task *model.Task) {
	var req taskStatusRequest
	if !httpx.BindJSON(c, &req) {
		return
	}
	status := model.TaskStatus(req.Status)
	if err := s.projects.UpdateTaskStatus(c.Request.Context(), middleware.UserID(c), project, task, status); err != nil {
		httpx.WriteError(c, s.logger, err)
		return
	}
	c.String(http.StatusOK, "Task status updated")
}
