package recovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sunshow/jobhuntr/orchestrator/internal/run"
)

// Notifier delivers a human-readable failure alert. One call per failure
// event, never more.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Analytics records a failure event. One call per failure event.
type Analytics interface {
	Track(ctx context.Context, event string, props map[string]any) error
}

// ArtifactStore persists failure evidence and returns a reference to it.
type ArtifactStore interface {
	SaveScreenshot(ctx context.Context, runID string, png []byte) (string, error)
}

// Handler runs the failure sequence: capture evidence, classify, upload,
// track, notify. Each stage is best-effort; a stage failure is logged and
// the sequence continues, so analytics and notification each fire exactly
// once per failure event regardless of evidence trouble.
type Handler struct {
	artifacts ArtifactStore
	analytics Analytics
	notifier  Notifier
	logger    *zap.SugaredLogger

	captureTimeout time.Duration
}

// NewHandler wires the failure pipeline. Any collaborator may be nil; its
// stage is then skipped.
func NewHandler(artifacts ArtifactStore, analytics Analytics, notifier Notifier, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		artifacts:      artifacts,
		analytics:      analytics,
		notifier:       notifier,
		logger:         logger,
		captureTimeout: 10 * time.Second,
	}
}

// HandleFailure implements run.FailureHandler.
func (h *Handler) HandleFailure(ctx context.Context, f run.Failure) run.Verdict {
	kind := Classify(f.Err)

	h.logger.Errorw("Job failure",
		"run_id", f.RunID,
		"kind", kind,
		"step", f.Step,
		"url", f.JobURL,
		"error", f.Err,
	)

	ref := h.saveEvidence(ctx, f)

	if h.analytics != nil {
		props := map[string]any{
			"run_id":   f.RunID,
			"template": f.TemplateID,
			"platform": string(f.Platform),
			"kind":     string(kind),
			"step":     string(f.Step),
			"url":      f.JobURL,
		}
		if ref != "" {
			props["screenshot"] = ref
		}
		if err := h.analytics.Track(ctx, "application_failed", props); err != nil {
			h.logger.Warnw("Analytics track failed", "run_id", f.RunID, "error", err)
		}
	}

	if h.notifier != nil {
		text, err := renderAlert(kind, f, ref)
		if err != nil {
			h.logger.Warnw("Alert render failed", "run_id", f.RunID, "error", err)
			text = "Job application failure in run " + f.RunID + ": " + f.Err.Error()
		}
		if err := h.notifier.Notify(ctx, text); err != nil {
			h.logger.Warnw("Notification failed", "run_id", f.RunID, "error", err)
		}
	}

	return kind.Verdict()
}

// saveEvidence captures and stores a screenshot, returning its reference.
// Empty on any failure; evidence trouble never blocks the rest of the
// sequence.
func (h *Handler) saveEvidence(ctx context.Context, f run.Failure) string {
	if f.Capture == nil || h.artifacts == nil {
		return ""
	}
	capCtx, cancel := context.WithTimeout(ctx, h.captureTimeout)
	defer cancel()

	png, err := f.Capture(capCtx)
	if err != nil {
		h.logger.Warnw("Screenshot capture failed", "run_id", f.RunID, "error", err)
		return ""
	}
	ref, err := h.artifacts.SaveScreenshot(capCtx, f.RunID, png)
	if err != nil {
		h.logger.Warnw("Screenshot upload failed",
			"run_id", f.RunID,
			"kind", KindEvidenceUploadFailed,
			"error", err,
		)
		return ""
	}
	return ref
}
