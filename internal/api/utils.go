package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pokerjest/acms/internal/dispatch"
	"github.com/pokerjest/acms/internal/pipeline"
	"github.com/pokerjest/acms/internal/repo"
	"github.com/pokerjest/acms/internal/service"
)

var errBadID = errors.New("invalid id")

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errBadID.Error()})
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.Query(name)); err == nil {
		return v
	}
	return def
}

// writeError maps domain errors to HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repo.ErrCourseNotFound), errors.Is(err, repo.ErrEpisodeNotFound), errors.Is(err, dispatch.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrCourseExists), errors.Is(err, pipeline.ErrRunInProgress):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidSource), errors.Is(err, pipeline.ErrUnknownAction), errors.Is(err, service.ErrWeakPassword):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
