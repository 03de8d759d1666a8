package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const sessionName = "acms_session"

// NewRouter builds the gin engine with every route registered.
func NewRouter(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(s.log))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	store := cookie.NewStore([]byte(s.SessionSecret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))

	s.InitRoutes(r)
	return r
}

func (s *Server) InitRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	public := r.Group("/api/auth")
	{
		public.POST("/login", s.LoginHandler)
		public.POST("/logout", s.LogoutHandler)
	}

	protected := []gin.HandlerFunc{}
	if s.AuthEnabled {
		protected = append(protected, AuthMiddleware())
	}

	apiGroup := r.Group("/api", protected...)
	{
		apiGroup.GET("/auth/me", s.MeHandler)
		apiGroup.POST("/auth/password", s.ChangePasswordHandler)

		// Courses
		apiGroup.GET("/courses", s.ListCoursesHandler)
		apiGroup.POST("/courses", s.CreateCourseHandler)
		apiGroup.GET("/courses/:id", s.GetCourseHandler)
		apiGroup.DELETE("/courses/:id", s.DeleteCourseHandler)
		apiGroup.POST("/courses/:id/scrape", s.ScrapeCourseHandler)
		apiGroup.POST("/courses/:id/process", s.StartPipelineHandler)
		apiGroup.POST("/courses/:id/auto-run", s.AutoRunHandler)
		apiGroup.POST("/courses/:id/cancel", s.CancelRunHandler)
		apiGroup.POST("/courses/:id/toggle-debug", s.ToggleDebugHandler)
		apiGroup.POST("/courses/:id/retry-failed", s.RetryFailedHandler)
		apiGroup.POST("/courses/:id/translate", s.TranslateCourseHandler)
		apiGroup.POST("/courses/:id/content", s.GenerateContentHandler)
		apiGroup.GET("/courses/:id/progress", s.CourseProgressHandler)
		apiGroup.GET("/courses/:id/events", s.SSEHandler)

		// Episodes
		apiGroup.GET("/courses/:id/episodes", s.ListEpisodesHandler)
		apiGroup.POST("/episodes/:id/actions/:action", s.EpisodeActionHandler)

		// Links
		apiGroup.POST("/courses/:id/links", s.ApplyLinksHandler)
		apiGroup.GET("/courses/:id/links", s.ListLinkBatchesHandler)

		// Tasks & logs
		apiGroup.GET("/tasks/:task_id", s.GetTaskHandler)
		apiGroup.GET("/logs", s.LogsHandler)
		apiGroup.GET("/dashboard", s.DashboardHandler)

		// Settings
		apiGroup.GET("/settings", s.GetSettingsHandler)
		apiGroup.PUT("/settings", s.UpdateSettingsHandler)
	}

	r.GET("/ws/courses/:id/logs", append(protected, s.LogSocketHandler)...)
}
