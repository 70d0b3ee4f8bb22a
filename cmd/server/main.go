package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sunshow/jobhuntr/orchestrator/internal/activity"
	"github.com/sunshow/jobhuntr/orchestrator/internal/config"
	"github.com/sunshow/jobhuntr/orchestrator/internal/decision"
	"github.com/sunshow/jobhuntr/orchestrator/internal/event"
	"github.com/sunshow/jobhuntr/orchestrator/internal/httpapi"
	"github.com/sunshow/jobhuntr/orchestrator/internal/hunt"
	"github.com/sunshow/jobhuntr/orchestrator/internal/recovery"
	"github.com/sunshow/jobhuntr/orchestrator/internal/run"
	"github.com/sunshow/jobhuntr/orchestrator/internal/session"
	"github.com/sunshow/jobhuntr/orchestrator/internal/store"
	"github.com/sunshow/jobhuntr/orchestrator/internal/template"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		sugar.Fatalf("Failed to load config: %v", err)
	}

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Storage
	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, sugar)
		if err != nil {
			sugar.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()
		st = pg
	} else {
		sugar.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewMemory()
	}

	// 2. Event bus and activity log
	eventBus := event.NewBus(sugar)
	activityLog := activity.NewLog(eventBus, sugar)

	// 3. Templates
	templates, err := template.LoadDir(cfg.TemplatesDir)
	if err != nil {
		sugar.Fatalf("Failed to load templates: %v", err)
	}
	if len(templates) == 0 {
		sugar.Fatalf("No templates found in %s", cfg.TemplatesDir)
	}
	sugar.Infow("Templates loaded", "count", len(templates), "dir", cfg.TemplatesDir)

	// 4. Decision engine
	engine, err := decision.NewGeminiEngine(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		sugar.Fatalf("Failed to create decision engine: %v", err)
	}
	retrying := decision.NewRetrying(engine, decision.DefaultRetryConfig(), sugar)

	// 5. Failure recovery pipeline
	artifacts, err := recovery.NewLocalArtifactStore(cfg.ArtifactsDir)
	if err != nil {
		sugar.Fatalf("Failed to create artifact store: %v", err)
	}
	var notifier recovery.Notifier
	if cfg.SlackWebhookURL != "" {
		notifier = recovery.NewSlackNotifier(cfg.SlackWebhookURL)
	}
	var analytics recovery.Analytics
	if cfg.MixpanelToken != "" {
		analytics = recovery.NewMixpanelClient(cfg.MixpanelToken)
	}
	failures := recovery.NewHandler(artifacts, analytics, notifier, sugar)

	// 6. Browser sessions and run controller
	sessions := session.NewManager(cfg.Session, sugar)
	controller := run.NewController(sessions, retrying, failures, st, activityLog, sugar)

	// 7. Infinite hunt
	scheduler := hunt.NewScheduler(controller, templates, cfg.Run, sugar)
	scheduler.SetRestDelay(cfg.Hunt.RestDelay)
	monitor := hunt.NewMonitor(scheduler, cfg.Hunt.CheckInterval, cfg.Hunt.MinRestartGap, sugar)

	// 8. HTTP control surface
	api := httpapi.NewServer(controller, scheduler, monitor, templates, activityLog, eventBus, st, cfg.Run, sugar)
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.Router(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sugar.Infof("JobHuntr orchestrator listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sugar.Info("Shutting down...")

		monitor.Disable()
		if err := scheduler.Stop(); err != nil {
			sugar.Warnw("Failed to stop hunt", "error", err)
		}
		controller.StopAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalf("Server error: %v", err)
	}
	sugar.Info("Server stopped")
}
