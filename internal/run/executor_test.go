package run

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunshow/jobhuntr/orchestrator/internal/activity"
	"github.com/sunshow/jobhuntr/orchestrator/internal/decision"
	"github.com/sunshow/jobhuntr/orchestrator/internal/store"
)

func newTestExecutor(driver *fakeDriver, engine decision.Engine, handler FailureHandler, st store.Store, log *activity.Log) *Executor {
	r := New(testTemplate(), Config{Keywords: "go developer", Location: "remote"})
	return NewExecutor(r, testTemplate(), ExecutorDeps{
		Driver:   driver,
		Engine:   engine,
		Failures: handler,
		Store:    st,
		Activity: log,
		Logger:   testLogger(),
	})
}

func job(url, company string) *Job {
	return &Job{URL: url, Title: "Backend Engineer", Company: company, Description: "Go services"}
}

func TestExecuteThreeListings(t *testing.T) {
	driver := &fakeDriver{listings: []fakeListing{
		{url: "https://jobs.test/1", job: job("https://jobs.test/1", "Acme")},
		{url: "https://jobs.test/2", job: job("https://jobs.test/2", "SkipCo")},
		{url: "https://jobs.test/3", extractErr: ErrElementNotFound},
	}}
	engine := &fakeEngine{skip: map[string]bool{"SkipCo": true}}
	handler := &fakeHandler{verdict: VerdictSkipJob}
	st := store.NewMemory()
	log := newTestActivity()

	exec := newTestExecutor(driver, engine, handler, st, log)
	stats, err := exec.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Run().Status())
	assert.Equal(t, Stats{Queued: 3, Skipped: 1, Submitted: 1, Failed: 1}, stats)
	assert.Equal(t, []string{"https://jobs.test/1"}, driver.submitted)

	require.Len(t, handler.seen(), 1)
	assert.ErrorIs(t, handler.seen()[0].Err, ErrElementNotFound)

	apps, err := st.ListApplications(context.Background(), exec.Run().ID)
	require.NoError(t, err)
	statuses := map[string]int{}
	for _, a := range apps {
		statuses[a.Status]++
	}
	assert.Equal(t, 1, statuses[store.AppStatusSubmitted])
	assert.Equal(t, 1, statuses[store.AppStatusSkipped])
	assert.Equal(t, 1, statuses[store.AppStatusFailed])

	entries := log.After(exec.Run().ID, 0)
	require.NotEmpty(t, entries)
	assert.Equal(t, "Run started", entries[0].Message)
	assert.Equal(t, "Run completed", entries[len(entries)-1].Message)
}

func TestExecuteJobFailureNeverAbortsRun(t *testing.T) {
	driver := &fakeDriver{listings: []fakeListing{
		{url: "https://jobs.test/1", extractErr: ErrNavigationTimeout},
		{url: "https://jobs.test/2", job: job("https://jobs.test/2", "Acme")},
	}}
	handler := &fakeHandler{verdict: VerdictSkipJob}
	st := store.NewMemory()

	exec := newTestExecutor(driver, &fakeEngine{}, handler, st, newTestActivity())
	exec.Run().Config.NavRetries = 0
	stats, err := exec.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Run().Status())
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Submitted)
}

func TestExecuteAbortVerdictFailsRun(t *testing.T) {
	driver := &fakeDriver{listings: []fakeListing{
		{url: "https://jobs.test/1", extractErr: ErrProfileLockBusy},
		{url: "https://jobs.test/2", job: job("https://jobs.test/2", "Acme")},
	}}
	handler := &fakeHandler{verdict: VerdictAbortRun}

	exec := newTestExecutor(driver, &fakeEngine{}, handler, store.NewMemory(), newTestActivity())
	stats, err := exec.Execute(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProfileLockBusy)
	assert.Equal(t, StatusFailed, exec.Run().Status())
	assert.Equal(t, 1, stats.Failed)
	assert.Empty(t, driver.submitted)
}

func TestExecuteElementNotFoundRetriedOnce(t *testing.T) {
	driver := &fakeDriver{listings: []fakeListing{
		{url: "https://jobs.test/1", extractErr: ErrElementNotFound},
	}}
	handler := &fakeHandler{verdict: VerdictSkipJob}

	exec := newTestExecutor(driver, &fakeEngine{}, handler, store.NewMemory(), newTestActivity())
	exec.Run().Config.NavRetries = 5
	stats, err := exec.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Run().Status())
	assert.Equal(t, 1, stats.Failed)
	// Original attempt plus a single retry, even with a larger navigation
	// budget.
	assert.Equal(t, 2, driver.extractCalls)
}

func TestExecuteRetryVerdictRetriesOnce(t *testing.T) {
	driver := &fakeDriver{listings: []fakeListing{
		{url: "https://jobs.test/1", extractErr: ErrNavigationTimeout},
	}}
	handler := &fakeHandler{verdict: VerdictRetryJob}

	exec := newTestExecutor(driver, &fakeEngine{}, handler, store.NewMemory(), newTestActivity())
	exec.Run().Config.NavRetries = 0
	stats, err := exec.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Run().Status())
	// One scripted failure handled twice: original attempt plus one retry.
	assert.Len(t, handler.seen(), 2)
	assert.Equal(t, 2, stats.Failed)
}

func TestExecuteSkipsDuplicateURL(t *testing.T) {
	st := store.NewMemory()
	seed := &store.ApplicationRecord{ID: "seed", RunID: "old", Platform: "linkedin", URL: "https://jobs.test/1", Status: store.AppStatusQueued}
	require.NoError(t, st.CreateApplication(context.Background(), seed))
	require.NoError(t, st.UpdateApplicationStatus(context.Background(), "seed", store.AppStatusSubmitted))

	driver := &fakeDriver{listings: []fakeListing{
		{url: "https://jobs.test/1", job: job("https://jobs.test/1", "Acme")},
	}}
	engine := &fakeEngine{}

	exec := newTestExecutor(driver, engine, &fakeHandler{}, st, newTestActivity())
	stats, err := exec.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Stats{Queued: 1, Skipped: 1}, stats)
	assert.Zero(t, engine.calls, "duplicate listings must not consult the engine")
	assert.Empty(t, driver.submitted)
}

func TestExecuteDailyLimit(t *testing.T) {
	st := store.NewMemory()
	seed := &store.ApplicationRecord{ID: "seed", RunID: "old", Platform: "linkedin", URL: "https://jobs.test/0", Status: store.AppStatusQueued}
	require.NoError(t, st.CreateApplication(context.Background(), seed))
	require.NoError(t, st.UpdateApplicationStatus(context.Background(), "seed", store.AppStatusSubmitted))

	driver := &fakeDriver{listings: []fakeListing{
		{url: "https://jobs.test/1", job: job("https://jobs.test/1", "Acme")},
		{url: "https://jobs.test/2", job: job("https://jobs.test/2", "Globex")},
	}}

	exec := newTestExecutor(driver, &fakeEngine{}, &fakeHandler{}, st, newTestActivity())
	exec.Run().Config.DailyLimit = 1
	stats, err := exec.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Run().Status())
	assert.Empty(t, driver.submitted, "limit already consumed today")
	assert.Equal(t, 1, stats.Queued, "rotation ends at the limit, not after it")
}

func TestExecuteInvalidDecisionIsPerJobFailure(t *testing.T) {
	driver := &fakeDriver{listings: []fakeListing{
		{url: "https://jobs.test/1", job: &Job{
			URL: "https://jobs.test/1", Title: "Backend Engineer", Company: "Acme",
			Questions: []decision.Question{{Prompt: "Years of Go?", Kind: decision.QuestionText}},
		}},
	}}
	// Engine answers apply with no answers, failing shape validation.
	handler := &fakeHandler{verdict: VerdictSkipJob}

	exec := newTestExecutor(driver, &fakeEngine{}, handler, store.NewMemory(), newTestActivity())
	stats, err := exec.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, handler.seen(), 1)
	assert.ErrorIs(t, handler.seen()[0].Err, decision.ErrDecisionUnavailable)
}

func TestStopDuringRunIsClean(t *testing.T) {
	gate := newFakeGate()
	driver := &fakeDriver{listings: []fakeListing{
		{url: "https://jobs.test/1", job: job("https://jobs.test/1", "Acme")},
	}}

	r := New(testTemplate(), Config{})
	exec := NewExecutor(r, testTemplate(), ExecutorDeps{
		Driver:   driver,
		Gate:     gate,
		Engine:   &fakeEngine{},
		Store:    store.NewMemory(),
		Activity: newTestActivity(),
		Logger:   testLogger(),
	})

	gate.Touch()
	done := make(chan Stats, 1)
	go func() {
		stats, _ := exec.Execute(context.Background())
		done <- stats
	}()

	// Wait for the executor to pause on the gate, then stop it.
	require.Eventually(t, func() bool {
		return r.Status() == StatusPaused
	}, time.Second, 5*time.Millisecond)

	exec.RequestStop()
	gate.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("executor did not stop")
	}
	assert.Equal(t, StatusStopped, r.Status())

	// Stopping again is a no-op.
	exec.RequestStop()
	assert.Equal(t, StatusStopped, r.Status())
}

func TestPauseResumeRoundTrip(t *testing.T) {
	driver := &fakeDriver{listings: []fakeListing{
		{url: "https://jobs.test/1", job: job("https://jobs.test/1", "Acme")},
		{url: "https://jobs.test/2", job: job("https://jobs.test/2", "Globex")},
	}}

	exec := newTestExecutor(driver, &fakeEngine{}, &fakeHandler{}, store.NewMemory(), newTestActivity())
	exec.RequestPause()

	done := make(chan struct{})
	go func() {
		_, _ = exec.Execute(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return exec.Run().Status() == StatusPaused
	}, time.Second, 5*time.Millisecond)

	exec.RequestResume()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not resume")
	}
	assert.Equal(t, StatusCompleted, exec.Run().Status())
	assert.Len(t, driver.submitted, 2)
}
