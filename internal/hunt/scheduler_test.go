package hunt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sunshow/jobhuntr/orchestrator/internal/activity"
	"github.com/sunshow/jobhuntr/orchestrator/internal/decision"
	"github.com/sunshow/jobhuntr/orchestrator/internal/run"
	"github.com/sunshow/jobhuntr/orchestrator/internal/store"
	"github.com/sunshow/jobhuntr/orchestrator/internal/template"
)

func testLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func huntTemplate(id string, platform template.Platform) *template.Template {
	return &template.Template{
		ID:          id,
		DisplayName: id,
		Platform:    platform,
		Steps: []template.Step{
			{Kind: template.StepSearch, Search: &template.SearchParams{URL: "https://x.test", KeywordsSelector: "#k", SubmitSelector: "#s"}},
			{Kind: template.StepOpenListing, OpenListing: &template.OpenListingParams{ListSelector: ".l", DetailSelector: ".d"}},
			{Kind: template.StepExtractJob, ExtractJob: &template.ExtractJobParams{TitleSelector: "h1", CompanySelector: ".c", DescriptionSelector: ".b"}},
			{Kind: template.StepDecision, Decision: &template.DecisionParams{}},
			{Kind: template.StepSubmitApplication, Submit: &template.SubmitParams{ApplySelector: ".a", SubmitSelector: ".s"}},
		},
	}
}

// emptyDriver completes runs instantly: search succeeds, zero listings.
// holdSearch, when set, parks Search until released.
type emptyDriver struct {
	mu         sync.Mutex
	holdSearch chan struct{}
	searches   int
}

func (d *emptyDriver) Search(ctx context.Context, _ *template.SearchParams, _, _ string) error {
	d.mu.Lock()
	d.searches++
	hold := d.holdSearch
	d.mu.Unlock()
	if hold != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-hold:
		}
	}
	return nil
}

func (d *emptyDriver) searchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.searches
}

func (d *emptyDriver) ListingCount(context.Context, *template.OpenListingParams) (int, error) {
	return 0, nil
}

func (d *emptyDriver) OpenListing(context.Context, *template.OpenListingParams, int) (string, error) {
	return "", run.ErrElementNotFound
}

func (d *emptyDriver) ExtractJob(context.Context, *template.ExtractJobParams) (*run.Job, error) {
	return nil, run.ErrElementNotFound
}

func (d *emptyDriver) SubmitApplication(context.Context, *template.SubmitParams, []decision.Answer) error {
	return run.ErrElementNotFound
}

func (d *emptyDriver) Screenshot(context.Context) ([]byte, error) { return nil, nil }

type staticFactory struct {
	driver run.Driver
}

func (f *staticFactory) Open(context.Context, *template.Template, run.Config) (run.Driver, run.Gate, string, run.CloseFunc, error) {
	return f.driver, nil, "s", func() {}, nil
}

type applyAllEngine struct{}

func (applyAllEngine) Decide(context.Context, decision.JobContext, decision.Profile, string) (*decision.Decision, error) {
	return &decision.Decision{Verdict: decision.VerdictSkip}, nil
}

func newHuntFixture(driver run.Driver) (*Scheduler, *run.Controller) {
	st := store.NewMemory()
	log := activity.NewLog(nil, testLogger())
	controller := run.NewController(&staticFactory{driver: driver}, applyAllEngine{}, nil, st, log, testLogger())
	templates := []*template.Template{
		huntTemplate("linkedin-easy-apply", template.PlatformLinkedIn),
		huntTemplate("indeed-quick-apply", template.PlatformIndeed),
	}
	s := NewScheduler(controller, templates, run.Config{}, testLogger())
	s.SetRestDelay(time.Millisecond)
	return s, controller
}

func TestHuntRotatesAcrossTemplates(t *testing.T) {
	driver := &emptyDriver{}
	s, _ := newHuntFixture(driver)

	sess, err := s.Start()
	require.NoError(t, err)

	_, err = s.Start()
	assert.ErrorIs(t, err, ErrHuntActive)

	require.Eventually(t, func() bool {
		snap := sess.Snapshot(s.Status())
		return snap.RunsByTemplate["linkedin-easy-apply"] >= 2 &&
			snap.RunsByTemplate["indeed-quick-apply"] >= 2
	}, 5*time.Second, 5*time.Millisecond, "rotation must cycle through every template repeatedly")

	require.NoError(t, s.Stop())
	assert.Equal(t, StatusIdle, s.Status())
	assert.False(t, s.Running())

	snap := sess.Snapshot(s.Status())
	require.NotNil(t, snap.EndedAt, "stop marks the session over")
	assert.False(t, snap.EndedAt.Before(snap.StartedAt))

	// Stop again is a no-op.
	require.NoError(t, s.Stop())
}

func TestHuntPauseReportsTransitionalStatus(t *testing.T) {
	driver := &emptyDriver{holdSearch: make(chan struct{})}
	s, controller := newHuntFixture(driver)

	_, err := s.Start()
	require.NoError(t, err)

	// Wait until a run is parked inside the browser step.
	require.Eventually(t, func() bool {
		t, ok := controller.Active()
		return ok && t.Status() == run.StatusRunning && driver.searchCount() > 0
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Pause())
	assert.Equal(t, StatusPausing, s.Status(), "run has not reached a suspension point yet")

	// Release the browser step; the run now suspends and the hunt settles
	// into paused.
	close(driver.holdSearch)
	require.Eventually(t, func() bool {
		return s.Status() == StatusPaused
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Resume())
	require.Eventually(t, func() bool {
		return s.Status() == StatusRunning
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
}

func TestHuntControlsWithoutSession(t *testing.T) {
	s, _ := newHuntFixture(&emptyDriver{})
	assert.ErrorIs(t, s.Pause(), ErrNoHunt)
	assert.ErrorIs(t, s.Resume(), ErrNoHunt)
	assert.NoError(t, s.Stop())
	_, err := s.Snapshot()
	assert.ErrorIs(t, err, ErrNoHunt)
}

func TestSessionFoldIsMonotonic(t *testing.T) {
	sess := NewSession()
	sess.Fold("a", run.Stats{Queued: 3, Submitted: 1, Skipped: 1, Failed: 1})
	sess.Fold("a", run.Stats{Queued: 2, Submitted: 2})
	sess.Fold("b", run.Stats{})

	snap := sess.Snapshot(StatusRunning)
	assert.Equal(t, run.Stats{Queued: 5, Submitted: 3, Skipped: 1, Failed: 1}, snap.Stats)
	assert.Equal(t, 2, snap.RunsByTemplate["a"])
	assert.Equal(t, 1, snap.RunsByTemplate["b"])
	require.NotNil(t, snap.LastRunDoneAt)

	// Snapshot maps are copies.
	snap.RunsByTemplate["a"] = 99
	assert.Equal(t, 2, sess.Snapshot(StatusRunning).RunsByTemplate["a"])
}

func TestMonitorRestartsIdleHunt(t *testing.T) {
	s, _ := newHuntFixture(&emptyDriver{})
	m := NewMonitor(s, time.Minute, time.Minute, testLogger())

	m.check()
	assert.True(t, s.Running(), "monitor restarts a hunt that is not running")
	require.NoError(t, s.Stop())
}

func TestMonitorHonorsMinRestartGap(t *testing.T) {
	s, _ := newHuntFixture(&emptyDriver{})
	m := NewMonitor(s, time.Minute, time.Minute, testLogger())

	sess, err := s.Start()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return !sess.LastRunDoneAt().IsZero()
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	m.check()
	assert.False(t, s.Running(), "a hunt that just finished a run is left alone")
}

func TestMonitorLeavesRunningHuntAlone(t *testing.T) {
	driver := &emptyDriver{holdSearch: make(chan struct{})}
	s, _ := newHuntFixture(driver)
	m := NewMonitor(s, time.Minute, time.Minute, testLogger())

	_, err := s.Start()
	require.NoError(t, err)
	m.check()
	assert.True(t, s.Running())

	close(driver.holdSearch)
	require.NoError(t, s.Stop())
}
