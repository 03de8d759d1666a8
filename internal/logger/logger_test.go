package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVs(t *testing.T) {
	out := sanitizeKVs([]interface{}{"course_id", 3, "api_key", "sk-123", "upload_token", "abc", "dangling"})
	assert.Equal(t, []interface{}{"course_id", 3, "api_key", "[REDACTED]", "upload_token", "[REDACTED]", "dangling"}, out)
}

func TestNewFallsBackToInfo(t *testing.T) {
	log, err := New("development", "not-a-level")
	assert.NoError(t, err)
	assert.False(t, log.SugaredLogger.Desugar().Core().Enabled(-1)) // debug disabled
	log.Sync()
}
