package run

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sunshow/jobhuntr/orchestrator/internal/activity"
	"github.com/sunshow/jobhuntr/orchestrator/internal/decision"
	"github.com/sunshow/jobhuntr/orchestrator/internal/template"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func testTemplate() *template.Template {
	return &template.Template{
		ID:          "linkedin-easy-apply",
		DisplayName: "LinkedIn Easy Apply",
		Platform:    template.PlatformLinkedIn,
		Steps: []template.Step{
			{Kind: template.StepSearch, Search: &template.SearchParams{
				URL:              "https://example.test/jobs",
				KeywordsSelector: "#keywords",
				SubmitSelector:   "#search",
			}},
			{Kind: template.StepOpenListing, OpenListing: &template.OpenListingParams{
				ListSelector:   ".card",
				DetailSelector: ".detail",
			}},
			{Kind: template.StepExtractJob, ExtractJob: &template.ExtractJobParams{
				TitleSelector:       ".title",
				CompanySelector:     ".company",
				DescriptionSelector: ".description",
			}},
			{Kind: template.StepDecision, Decision: &template.DecisionParams{}},
			{Kind: template.StepSubmitApplication, Submit: &template.SubmitParams{
				ApplySelector:  ".apply",
				SubmitSelector: ".submit",
			}},
		},
	}
}

// fakeListing scripts one result card for the fake driver.
type fakeListing struct {
	url        string
	job        *Job
	openErr    error
	extractErr error
	submitErr  error
}

type fakeDriver struct {
	mu       sync.Mutex
	listings []fakeListing
	current  int

	searchErr    error
	countErr     error
	submitted    []string
	extractCalls int
}

func (d *fakeDriver) Search(_ context.Context, _ *template.SearchParams, _, _ string) error {
	return d.searchErr
}

func (d *fakeDriver) ListingCount(_ context.Context, _ *template.OpenListingParams) (int, error) {
	if d.countErr != nil {
		return 0, d.countErr
	}
	return len(d.listings), nil
}

func (d *fakeDriver) OpenListing(_ context.Context, _ *template.OpenListingParams, index int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.listings[index]
	if l.openErr != nil {
		return "", l.openErr
	}
	d.current = index
	return l.url, nil
}

func (d *fakeDriver) ExtractJob(_ context.Context, _ *template.ExtractJobParams) (*Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.extractCalls++
	l := d.listings[d.current]
	if l.extractErr != nil {
		return nil, l.extractErr
	}
	job := *l.job
	return &job, nil
}

func (d *fakeDriver) SubmitApplication(_ context.Context, _ *template.SubmitParams, _ []decision.Answer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.listings[d.current]
	if l.submitErr != nil {
		return l.submitErr
	}
	d.submitted = append(d.submitted, l.url)
	return nil
}

func (d *fakeDriver) Screenshot(_ context.Context) ([]byte, error) {
	return []byte("png"), nil
}

// fakeEngine answers by company name: companies in skip get a skip verdict,
// everything else an apply with no answers.
type fakeEngine struct {
	mu    sync.Mutex
	skip  map[string]bool
	err   error
	calls int
}

func (e *fakeEngine) Decide(_ context.Context, job decision.JobContext, _ decision.Profile, _ string) (*decision.Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if e.skip[job.Company] {
		return &decision.Decision{Verdict: decision.VerdictSkip, Reasoning: "not a match"}, nil
	}
	return &decision.Decision{Verdict: decision.VerdictApply}, nil
}

// fakeHandler records failures and returns a scripted verdict.
type fakeHandler struct {
	mu       sync.Mutex
	verdict  Verdict
	failures []Failure
}

func (h *fakeHandler) HandleFailure(_ context.Context, f Failure) Verdict {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, f)
	return h.verdict
}

func (h *fakeHandler) seen() []Failure {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Failure, len(h.failures))
	copy(out, h.failures)
	return out
}

// fakeGate scripts the arbiter: touched selects blocking, release unblocks.
type fakeGate struct {
	mu      sync.Mutex
	touched bool
	release chan struct{}
}

func newFakeGate() *fakeGate {
	return &fakeGate{release: make(chan struct{})}
}

func (g *fakeGate) Touch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.touched = true
}

func (g *fakeGate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.touched {
		g.touched = false
		close(g.release)
		g.release = make(chan struct{})
	}
}

func (g *fakeGate) Touched() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.touched
}

func (g *fakeGate) Gate(ctx context.Context) error {
	for {
		g.mu.Lock()
		touched, release := g.touched, g.release
		g.mu.Unlock()
		if !touched {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
		}
	}
}

// fakeSessionFactory hands out a scripted driver, for controller tests.
type fakeSessionFactory struct {
	driver  *fakeDriver
	gate    Gate
	openErr error
}

func (f *fakeSessionFactory) Open(_ context.Context, _ *template.Template, _ Config) (Driver, Gate, string, CloseFunc, error) {
	if f.openErr != nil {
		return nil, nil, "", nil, f.openErr
	}
	return f.driver, f.gate, "session-1", func() {}, nil
}

func newTestActivity() *activity.Log {
	return activity.NewLog(nil, testLogger())
}
