package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pokerjest/acms/internal/pipeline"
)

func (s *Server) ListEpisodesHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	eps, err := s.Courses.Episodes(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, eps)
}

func (s *Server) EpisodeActionHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	action := pipeline.Action(strings.ToLower(c.Param("action")))
	res, err := s.Orchestrator.PerformAction(c.Request.Context(), id, action)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type ApplyLinksRequest struct {
	Links string `json:"links" binding:"required"`
	// nil 表示写入
	Apply *bool `json:"apply"`
}

func (s *Server) ApplyLinksHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req ApplyLinksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	apply := req.Apply == nil || *req.Apply
	res, err := s.Links.ApplyLinkBatch(c.Request.Context(), id, req.Links, apply)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) ListLinkBatchesHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	batches, err := s.Links.ListBatches(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, batches)
}
