// Package api exposes the course pipeline over HTTP: REST under /api, a
// server-sent event stream per course and a websocket for live task logs.
package api

import (
	"context"

	"github.com/pokerjest/acms/internal/dispatch"
	"github.com/pokerjest/acms/internal/event"
	"github.com/pokerjest/acms/internal/logger"
	"github.com/pokerjest/acms/internal/pipeline"
	"github.com/pokerjest/acms/internal/progress"
	"github.com/pokerjest/acms/internal/repo"
	"github.com/pokerjest/acms/internal/service"
	"github.com/pokerjest/acms/internal/tasklog"
)

// TaskReader looks up a submitted task; *dispatch.Dispatcher fits.
type TaskReader interface {
	Get(ctx context.Context, taskID string) (dispatch.Submission, error)
}

// Runner starts background work tied to the process lifetime;
// *launcher.Manager fits.
type Runner interface {
	Go(fn func(ctx context.Context))
}

type Deps struct {
	Store        *repo.Store
	Courses      *service.CourseService
	Links        *service.LinkService
	Auth         *service.AuthService
	Orchestrator *pipeline.Orchestrator
	Progress     *progress.Service
	Logs         *tasklog.Recorder
	Tasks        TaskReader
	Bus          event.Bus
	Log          *logger.Logger
	// Runs owns course runs started from a request; nil runs them detached
	Runs Runner

	AuthEnabled   bool
	SessionSecret string
}

type Server struct {
	Deps
	log *logger.Logger
}

func NewServer(d Deps) *Server {
	if d.Runs == nil {
		d.Runs = detachedRunner{}
	}
	return &Server{Deps: d, log: d.Log.With("component", "API")}
}

// detachedRunner 没有 launcher 时 (测试) 使用
type detachedRunner struct{}

func (detachedRunner) Go(fn func(ctx context.Context)) {
	go fn(context.Background())
}
