package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) DashboardHandler(c *gin.Context) {
	d, err := s.Progress.DashboardStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) GetTaskHandler(c *gin.Context) {
	sub, err := s.Tasks.Get(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// LogsHandler serves the live buffer by default; source=history reads the
// persisted log table.
func (s *Server) LogsHandler(c *gin.Context) {
	courseID := uint(queryInt(c, "course_id", 0))
	limit := queryInt(c, "limit", 100)
	if c.Query("source") == "history" {
		logs, err := s.Logs.History(c.Request.Context(), courseID, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, logs)
		return
	}
	c.JSON(http.StatusOK, s.Logs.Recent(courseID, limit))
}
