package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sunshow/jobhuntr/orchestrator/internal/event"
	"github.com/sunshow/jobhuntr/orchestrator/internal/hunt"
	"github.com/sunshow/jobhuntr/orchestrator/internal/run"
	"github.com/sunshow/jobhuntr/orchestrator/internal/store"
)

type startRunRequest struct {
	TemplateID string `json:"template_id" binding:"required"`
	Keywords   string `json:"keywords"`
	Location   string `json:"location"`
	DailyLimit int    `json:"daily_limit"`
	Headless   *bool  `json:"headless"`
}

type runResponse struct {
	RunID      string    `json:"run_id"`
	TemplateID string    `json:"template_id"`
	Platform   string    `json:"platform"`
	Status     string    `json:"status"`
	Stats      run.Stats `json:"stats"`
}

// ─── Runs ─────────────────────────────────────────────────────────────────────

func (s *Server) startRun(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tmpl, ok := s.templates[req.TemplateID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown template " + req.TemplateID})
		return
	}

	cfg := s.baseCfg
	if req.Keywords != "" {
		cfg.Keywords = req.Keywords
	}
	if req.Location != "" {
		cfg.Location = req.Location
	}
	if req.DailyLimit > 0 {
		cfg.DailyLimit = req.DailyLimit
	}
	if req.Headless != nil {
		cfg.Headless = *req.Headless
	}

	ticket, err := s.controller.Start(tmpl, cfg, "")
	if err != nil {
		if errors.Is(err, run.ErrRunActive) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, runResponse{
		RunID:      ticket.RunID(),
		TemplateID: tmpl.ID,
		Platform:   string(tmpl.Platform),
		Status:     string(ticket.Status()),
	})
}

func (s *Server) getRun(c *gin.Context) {
	id := c.Param("id")
	if t, ok := s.controller.Get(id); ok {
		c.JSON(http.StatusOK, runResponse{
			RunID:      t.RunID(),
			TemplateID: t.TemplateID(),
			Platform:   string(t.Platform()),
			Status:     string(t.Status()),
			Stats:      t.Stats(),
		})
		return
	}
	rec, err := s.store.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) pauseRun(c *gin.Context) {
	s.control(c, s.controller.Pause)
}

func (s *Server) resumeRun(c *gin.Context) {
	s.control(c, s.controller.Resume)
}

// stopRun is idempotent: stopping a finished run reports its terminal state
// without error.
func (s *Server) stopRun(c *gin.Context) {
	s.control(c, s.controller.Stop)
}

func (s *Server) control(c *gin.Context, op func(string) error) {
	id := c.Param("id")
	if err := op(id); err != nil {
		status := http.StatusConflict
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	statusStr := ""
	if t, ok := s.controller.Get(id); ok {
		statusStr = string(t.Status())
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "status": statusStr})
}

// runActivity serves the append-only feed. Clients pass the last cursor they
// saw and get exactly the entries after it.
func (s *Server) runActivity(c *gin.Context) {
	id := c.Param("id")
	since, err := strconv.ParseUint(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since cursor"})
		return
	}
	entries := s.activity.After(id, since)
	next := since
	if n := len(entries); n > 0 {
		next = entries[n-1].Cursor
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":      id,
		"entries":     entries,
		"next_cursor": next,
	})
}

// streamActivity pushes the feed live over server-sent events. The bus wakes
// the handler on every append; entries themselves always come from the log so
// nothing is lost between the replay and the subscription.
func (s *Server) streamActivity(c *gin.Context) {
	id := c.Param("id")
	cursor, err := strconv.ParseUint(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since cursor"})
		return
	}

	notify := make(chan struct{}, 1)
	cancel := s.bus.Subscribe(event.RunChannel(id), func(*event.Event) {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	emit := func() {
		for _, e := range s.activity.After(id, cursor) {
			cursor = e.Cursor
			c.SSEvent("activity", e)
		}
		c.Writer.Flush()
	}
	emit()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-notify:
			emit()
		}
	}
}

func (s *Server) runApplications(c *gin.Context) {
	id := c.Param("id")
	apps, err := s.store.ListApplications(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "applications": apps})
}

// ─── Infinite hunt ────────────────────────────────────────────────────────────

func (s *Server) startHunt(c *gin.Context) {
	sess, err := s.scheduler.Start()
	if err != nil {
		if errors.Is(err, hunt.ErrHuntActive) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, sess.Snapshot(s.scheduler.Status()))
}

func (s *Server) pauseHunt(c *gin.Context) {
	s.huntControl(c, s.scheduler.Pause)
}

func (s *Server) resumeHunt(c *gin.Context) {
	s.huntControl(c, s.scheduler.Resume)
}

func (s *Server) stopHunt(c *gin.Context) {
	s.huntControl(c, s.scheduler.Stop)
}

func (s *Server) huntControl(c *gin.Context, op func() error) {
	if err := op(); err != nil {
		status := http.StatusConflict
		if errors.Is(err, hunt.ErrNoHunt) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	snap, err := s.scheduler.Snapshot()
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": string(hunt.StatusIdle)})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) huntStatus(c *gin.Context) {
	snap, err := s.scheduler.Snapshot()
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": string(hunt.StatusIdle)})
		return
	}
	c.JSON(http.StatusOK, snap)
}

type autoHuntRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) setAutoHunt(c *gin.Context) {
	var req autoHuntRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Enabled {
		if err := s.monitor.Enable(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	} else {
		s.monitor.Disable()
	}
	c.JSON(http.StatusOK, gin.H{"auto_hunt": s.monitor.Enabled()})
}
