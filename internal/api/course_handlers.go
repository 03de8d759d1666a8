package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pokerjest/acms/internal/pipeline"
	"github.com/pokerjest/acms/internal/service"
)

func (s *Server) ListCoursesHandler(c *gin.Context) {
	courses, err := s.Courses.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, courses)
}

func (s *Server) CreateCourseHandler(c *gin.Context) {
	var in service.CreateCourseInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Data: " + err.Error()})
		return
	}
	course, err := s.Courses.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

func (s *Server) GetCourseHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	course, err := s.Courses.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course": course, "running": s.Orchestrator.IsRunning(id)})
}

func (s *Server) DeleteCourseHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if s.Orchestrator.IsRunning(id) {
		writeError(c, pipeline.ErrRunInProgress)
		return
	}
	if err := s.Courses.Delete(c.Request.Context(), id, c.Query("wipe") == "true"); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ScrapeCourseHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	sub, err := s.Orchestrator.Scrape(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// StartPipelineHandler dispatches download+process in the background; the
// outcome is followed through the event stream.
func (s *Server) StartPipelineHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, err := s.Courses.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	s.Runs.Go(func(ctx context.Context) {
		res, err := s.Orchestrator.StartPipeline(ctx, id)
		if err != nil {
			s.log.Error("pipeline failed", "course_id", id, "error", err)
			return
		}
		s.log.Info("pipeline finished", "course_id", id, "dispatched", res.Dispatched, "failed", res.Failed)
	})
	c.JSON(http.StatusAccepted, gin.H{"course_id": id, "started": true})
}

func (s *Server) AutoRunHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, err := s.Courses.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	if s.Orchestrator.IsRunning(id) {
		writeError(c, pipeline.ErrRunInProgress)
		return
	}
	s.Runs.Go(func(ctx context.Context) {
		sum, err := s.Orchestrator.RunAutomatic(ctx, id)
		if err != nil {
			s.log.Warn("automatic run not started", "course_id", id, "error", err)
			return
		}
		s.log.Info("automatic run finished", "course_id", id, "state", sum.State, "cancelled", sum.Cancelled)
	})
	c.JSON(http.StatusAccepted, gin.H{"course_id": id, "started": true})
}

func (s *Server) CancelRunHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"course_id": id, "cancelled": s.Orchestrator.CancelRun(id)})
}

func (s *Server) ToggleDebugHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	debug, err := s.Orchestrator.ToggleDebug(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course_id": id, "debug_mode": debug})
}

func (s *Server) RetryFailedHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	results, err := s.Orchestrator.RetryAllFailed(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course_id": id, "retried": len(results), "results": results})
}

func (s *Server) TranslateCourseHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	sub, err := s.Orchestrator.TranslateCourse(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) GenerateContentHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	sub, err := s.Orchestrator.GenerateContent(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) CourseProgressHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	view, err := s.Progress.CourseProgress(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
