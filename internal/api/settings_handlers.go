package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pokerjest/acms/internal/model"
)

func (s *Server) GetSettingsHandler(c *gin.Context) {
	stored, err := s.Store.Settings(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make(map[string]string, len(model.SettingKeys))
	for _, k := range model.SettingKeys {
		out[k] = stored[k]
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) UpdateSettingsHandler(c *gin.Context) {
	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	for k := range req {
		if !isSettingKey(k) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown setting: " + k})
			return
		}
	}
	for k, v := range req {
		if err := s.Store.SaveSetting(c.Request.Context(), k, v); err != nil {
			writeError(c, err)
			return
		}
	}
	s.log.Info("settings updated", "keys", len(req))
	s.GetSettingsHandler(c)
}

func isSettingKey(k string) bool {
	for _, known := range model.SettingKeys {
		if k == known {
			return true
		}
	}
	return false
}
