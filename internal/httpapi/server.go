package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sunshow/jobhuntr/orchestrator/internal/activity"
	"github.com/sunshow/jobhuntr/orchestrator/internal/event"
	"github.com/sunshow/jobhuntr/orchestrator/internal/hunt"
	"github.com/sunshow/jobhuntr/orchestrator/internal/run"
	"github.com/sunshow/jobhuntr/orchestrator/internal/store"
	"github.com/sunshow/jobhuntr/orchestrator/internal/template"
)

// Server is the HTTP control surface: one-off runs, the activity feed and
// the infinite hunt.
type Server struct {
	controller *run.Controller
	scheduler  *hunt.Scheduler
	monitor    *hunt.Monitor
	templates  map[string]*template.Template
	activity   *activity.Log
	bus        *event.Bus
	store      store.Store
	baseCfg    run.Config
	logger     *zap.SugaredLogger
}

// NewServer wires the control surface over the orchestration core.
func NewServer(controller *run.Controller, scheduler *hunt.Scheduler, monitor *hunt.Monitor, templates []*template.Template, log *activity.Log, bus *event.Bus, st store.Store, baseCfg run.Config, logger *zap.SugaredLogger) *Server {
	byID := make(map[string]*template.Template, len(templates))
	for _, t := range templates {
		byID[t.ID] = t
	}
	return &Server{
		controller: controller,
		scheduler:  scheduler,
		monitor:    monitor,
		templates:  byID,
		activity:   log,
		bus:        bus,
		store:      st,
		baseCfg:    baseCfg,
		logger:     logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	{
		api.GET("/health", s.health)

		api.POST("/runs", s.startRun)
		api.GET("/runs/:id", s.getRun)
		api.POST("/runs/:id/pause", s.pauseRun)
		api.POST("/runs/:id/resume", s.resumeRun)
		api.POST("/runs/:id/stop", s.stopRun)
		api.GET("/runs/:id/activity", s.runActivity)
		api.GET("/runs/:id/activity/stream", s.streamActivity)
		api.GET("/runs/:id/applications", s.runApplications)

		api.POST("/hunt/start", s.startHunt)
		api.POST("/hunt/pause", s.pauseHunt)
		api.POST("/hunt/resume", s.resumeHunt)
		api.POST("/hunt/stop", s.stopHunt)
		api.GET("/hunt", s.huntStatus)
		api.POST("/hunt/auto", s.setAutoHunt)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
