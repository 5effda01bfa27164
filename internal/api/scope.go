package api

import (
	"uptask/internal/api/httpx"
	"uptask/internal/model"

	"github.com/gin-gonic/gin"
)

type projectHandler func(c *gin.Context, project *model.Project)

type taskHandler func(c *gin.Context, project *model.Project, task *model.Task)

// withProject 解析 :projectId 并把项目显式传给处理函数。
func (s *Server) withProject(fn projectHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, ok := httpx.ParamID(c, "projectId")
		if !ok {
			return
		}
		project, err := s.projects.LoadProject(c.Request.Context(), projectID)
		if err != nil {
			httpx.WriteError(c, s.logger, err)
			return
		}
		fn(c, project)
	}
}

// withTask 在 withProject 基础上解析 :taskId，任务必须属于该项目。
func (s *Server) withTask(fn taskHandler) gin.HandlerFunc {
	return s.withProject(func(c *gin.Context, project *model.Project) {
		taskID, ok := httpx.ParamID(c, "taskId")
		if !ok {
			return
		}
		task, err := s.projects.LoadTask(c.Request.Context(), project, taskID)
		if err != nil {
			httpx.WriteError(c, s.logger, err)
			return
		}
		fn(c, project, task)
	})
}
