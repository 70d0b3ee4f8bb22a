package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sunshow/jobhuntr/orchestrator/internal/decision"
	"github.com/sunshow/jobhuntr/orchestrator/internal/run"
	"github.com/sunshow/jobhuntr/orchestrator/internal/template"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
	}{
		{run.ErrProfileLockBusy, KindProfileLockBusy},
		{run.ErrBrowserLaunchFailed, KindBrowserLaunchFailed},
		{run.ErrNavigationTimeout, KindNavigationTimeout},
		{run.ErrElementNotFound, KindElementNotFound},
		{run.ErrCaptchaDetected, KindCaptchaOrBlockDetected},
		{run.ErrAlreadyApplied, KindAlreadyApplied},
		{decision.ErrDecisionUnavailable, KindDecisionUnavailable},
		{fmt.Errorf("search: %w", run.ErrNavigationTimeout), KindNavigationTimeout},
		{errors.New("something else"), KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, Classify(tt.err), "%v", tt.err)
	}
}

func TestKindVerdicts(t *testing.T) {
	assert.Equal(t, run.VerdictAbortRun, KindProfileLockBusy.Verdict())
	assert.Equal(t, run.VerdictAbortRun, KindBrowserLaunchFailed.Verdict())
	assert.Equal(t, run.VerdictRetryJob, KindNavigationTimeout.Verdict())
	assert.Equal(t, run.VerdictSkipJob, KindCaptchaOrBlockDetected.Verdict())
	assert.Equal(t, run.VerdictSkipJob, KindElementNotFound.Verdict())
	assert.Equal(t, run.VerdictSkipJob, KindDecisionUnavailable.Verdict())
	assert.Equal(t, run.VerdictSkipJob, KindUnknown.Verdict())
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return n.err
}

type recordingAnalytics struct {
	mu     sync.Mutex
	events []map[string]any
	err    error
}

func (a *recordingAnalytics) Track(_ context.Context, event string, props map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	merged := map[string]any{"event": event}
	for k, v := range props {
		merged[k] = v
	}
	a.events = append(a.events, merged)
	return a.err
}

type fakeArtifacts struct {
	saved int
	err   error
}

func (f *fakeArtifacts) SaveScreenshot(_ context.Context, runID string, _ []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved++
	return "/artifacts/" + runID + "/failure.png", nil
}

func sampleFailure(err error) run.Failure {
	return run.Failure{
		RunID:      "run-1",
		TemplateID: "linkedin-easy-apply",
		Platform:   template.PlatformLinkedIn,
		Step:       template.StepSubmitApplication,
		JobURL:     "https://jobs.test/1",
		JobTitle:   "Backend Engineer",
		Company:    "Acme",
		Err:        err,
		Capture: func(context.Context) ([]byte, error) {
			return []byte("png"), nil
		},
	}
}

func TestHandleFailureRunsFullSequenceOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	analytics := &recordingAnalytics{}
	artifacts := &fakeArtifacts{}
	h := NewHandler(artifacts, analytics, notifier, zap.NewNop().Sugar())

	verdict := h.HandleFailure(context.Background(), sampleFailure(run.ErrElementNotFound))

	assert.Equal(t, run.VerdictSkipJob, verdict)
	assert.Equal(t, 1, artifacts.saved)
	require.Len(t, analytics.events, 1)
	assert.Equal(t, "application_failed", analytics.events[0]["event"])
	assert.Equal(t, string(KindElementNotFound), analytics.events[0]["kind"])
	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "element_not_found")
	assert.Contains(t, notifier.texts[0], "Acme")
	assert.Contains(t, notifier.texts[0], "/artifacts/run-1/failure.png")
}

func TestHandleFailureEvidenceTroubleDoesNotBlockSequence(t *testing.T) {
	notifier := &recordingNotifier{}
	analytics := &recordingAnalytics{}
	artifacts := &fakeArtifacts{err: errors.New("bucket unreachable")}
	h := NewHandler(artifacts, analytics, notifier, zap.NewNop().Sugar())

	h.HandleFailure(context.Background(), sampleFailure(run.ErrNavigationTimeout))

	require.Len(t, analytics.events, 1, "analytics still fires exactly once")
	require.Len(t, notifier.texts, 1, "notification still fires exactly once")
	assert.NotContains(t, notifier.texts[0], "Screenshot:")
}

func TestHandleFailureCaptureFailureStillNotifies(t *testing.T) {
	notifier := &recordingNotifier{}
	h := NewHandler(&fakeArtifacts{}, nil, notifier, zap.NewNop().Sugar())

	f := sampleFailure(run.ErrCaptchaDetected)
	f.Capture = func(context.Context) ([]byte, error) {
		return nil, errors.New("page gone")
	}

	verdict := h.HandleFailure(context.Background(), f)
	assert.Equal(t, run.VerdictAbortRun, verdict)
	require.Len(t, notifier.texts, 1)
}

func TestHandleFailureWithoutPage(t *testing.T) {
	notifier := &recordingNotifier{}
	h := NewHandler(nil, nil, notifier, zap.NewNop().Sugar())

	f := run.Failure{
		RunID:    "run-2",
		Platform: template.PlatformIndeed,
		Err:      run.ErrBrowserLaunchFailed,
	}
	verdict := h.HandleFailure(context.Background(), f)
	assert.Equal(t, run.VerdictAbortRun, verdict)
	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "browser_launch_failed")
}

func TestRenderAlertTruncatesLongTitles(t *testing.T) {
	f := sampleFailure(run.ErrElementNotFound)
	f.JobTitle = "Very Senior Staff Principal Distinguished Backend Platform Infrastructure Reliability Engineer III (Remote, Hybrid, Onsite)"

	text, err := renderAlert(KindElementNotFound, f, "")
	require.NoError(t, err)
	assert.Contains(t, text, "Acme")
	assert.Less(t, len(text), 400)
}
