package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pokerjest/acms/internal/config"
	"github.com/pokerjest/acms/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": answer}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranslateTitle(t *testing.T) {
	srv := chatServer(t, "  آموزش گو  ")
	c := NewClient(config.AIConfig{Endpoint: srv.URL, APIKey: "sk-test", Model: "m"})

	out, err := c.TranslateTitle(context.Background(), "Learn Go", "")
	require.NoError(t, err)
	assert.Equal(t, "آموزش گو", out)
}

func TestNotConfigured(t *testing.T) {
	c := NewClient(config.AIConfig{Endpoint: "http://127.0.0.1:1"})
	_, err := c.TranslateTitle(context.Background(), "x", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGenerateCourseContent(t *testing.T) {
	full := "```json\n{\"course_overview\":\"o\",\"prerequisites\":[\"a\"],\"prerequisites_description\":\"p\",\"what_you_will_learn\":[\"w\"],\"course_goals\":[\"g\"]}\n```"
	c := NewClient(config.AIConfig{Endpoint: chatServer(t, full).URL, APIKey: "sk-test"})
	content, err := c.GenerateCourseContent(context.Background(), &model.Course{TitleEN: "Go"})
	require.NoError(t, err)
	require.NotNil(t, content)
	assert.Equal(t, []string{"g"}, content.CourseGoals)

	partial := `{"course_overview":"o","prerequisites":[],"prerequisites_description":"p","what_you_will_learn":["w"],"course_goals":["g"]}`
	c = NewClient(config.AIConfig{Endpoint: chatServer(t, partial).URL, APIKey: "sk-test"})
	content, err = c.GenerateCourseContent(context.Background(), &model.Course{TitleEN: "Go"})
	require.NoError(t, err)
	assert.Nil(t, content)
}
