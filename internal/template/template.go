package template

import (
	"fmt"
	"time"
)

// Platform identifies the job board a template drives.
type Platform string

const (
	PlatformLinkedIn     Platform = "linkedin"
	PlatformIndeed       Platform = "indeed"
	PlatformZipRecruiter Platform = "ziprecruiter"
	PlatformGlassdoor    Platform = "glassdoor"
	PlatformDice         Platform = "dice"
)

// KnownPlatforms lists every platform a template may target.
var KnownPlatforms = []Platform{
	PlatformLinkedIn,
	PlatformIndeed,
	PlatformZipRecruiter,
	PlatformGlassdoor,
	PlatformDice,
}

func (p Platform) Valid() bool {
	for _, known := range KnownPlatforms {
		if p == known {
			return true
		}
	}
	return false
}

// StepKind discriminates the tagged step variants in a template's sequence.
type StepKind string

const (
	StepSearch            StepKind = "search"
	StepOpenListing       StepKind = "open_listing"
	StepExtractJob        StepKind = "extract_job"
	StepDecision          StepKind = "decision"
	StepSubmitApplication StepKind = "submit_application"
	StepRecordOutcome     StepKind = "record_outcome"
)

// SearchParams configures the initial search step.
type SearchParams struct {
	URL              string `yaml:"url"`
	KeywordsSelector string `yaml:"keywords_selector"`
	LocationSelector string `yaml:"location_selector,omitempty"`
	SubmitSelector   string `yaml:"submit_selector"`
}

// OpenListingParams configures listing iteration.
type OpenListingParams struct {
	ListSelector   string `yaml:"list_selector"`
	DetailSelector string `yaml:"detail_selector"`
	MaxListings    int    `yaml:"max_listings,omitempty"`
}

// ExtractJobParams configures job text extraction from the detail pane.
type ExtractJobParams struct {
	TitleSelector       string `yaml:"title_selector"`
	CompanySelector     string `yaml:"company_selector"`
	DescriptionSelector string `yaml:"description_selector"`
}

// DecisionParams configures the decision-engine consultation.
type DecisionParams struct {
	Model string `yaml:"model,omitempty"`
}

// SubmitParams configures the application form walk.
type SubmitParams struct {
	ApplySelector        string `yaml:"apply_selector"`
	QuestionSelector     string `yaml:"question_selector,omitempty"`
	SubmitSelector       string `yaml:"submit_selector"`
	ConfirmationSelector string `yaml:"confirmation_selector,omitempty"`
}

// Step is one tagged variant in a template's step sequence. Exactly the
// params struct matching Kind must be set; Validate enforces this at load
// time so execution never sees a malformed step.
type Step struct {
	Kind        StepKind           `yaml:"kind"`
	Search      *SearchParams      `yaml:"search,omitempty"`
	OpenListing *OpenListingParams `yaml:"open_listing,omitempty"`
	ExtractJob  *ExtractJobParams  `yaml:"extract_job,omitempty"`
	Decision    *DecisionParams    `yaml:"decision,omitempty"`
	Submit      *SubmitParams      `yaml:"submit,omitempty"`
}

// Template is an immutable descriptor for one platform's application flow.
// Created at configuration load and never mutated at runtime.
type Template struct {
	ID            string        `yaml:"id"`
	DisplayName   string        `yaml:"display_name"`
	Platform      Platform      `yaml:"platform"`
	RequireSignIn bool          `yaml:"require_sign_in"`
	StepTimeout   time.Duration `yaml:"step_timeout,omitempty"`
	Steps         []Step        `yaml:"steps"`
}

// Validate checks structural integrity of the template. It is called once at
// load; a template that passes is safe to hand to the executor.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("template: missing id")
	}
	if t.DisplayName == "" {
		return fmt.Errorf("template %s: missing display_name", t.ID)
	}
	if !t.Platform.Valid() {
		return fmt.Errorf("template %s: unknown platform %q", t.ID, t.Platform)
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("template %s: empty step sequence", t.ID)
	}
	for i, step := range t.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("template %s: step %d: %w", t.ID, i, err)
		}
	}
	return nil
}

func (s *Step) validate() error {
	var want, got int
	set := func(present bool) {
		if present {
			got++
		}
	}
	set(s.Search != nil)
	set(s.OpenListing != nil)
	set(s.ExtractJob != nil)
	set(s.Decision != nil)
	set(s.Submit != nil)

	switch s.Kind {
	case StepSearch:
		want = 1
		if s.Search == nil {
			return fmt.Errorf("kind %q requires search params", s.Kind)
		}
		if s.Search.URL == "" || s.Search.KeywordsSelector == "" || s.Search.SubmitSelector == "" {
			return fmt.Errorf("kind %q: url, keywords_selector and submit_selector are required", s.Kind)
		}
	case StepOpenListing:
		want = 1
		if s.OpenListing == nil {
			return fmt.Errorf("kind %q requires open_listing params", s.Kind)
		}
		if s.OpenListing.ListSelector == "" || s.OpenListing.DetailSelector == "" {
			return fmt.Errorf("kind %q: list_selector and detail_selector are required", s.Kind)
		}
		if s.OpenListing.MaxListings < 0 {
			return fmt.Errorf("kind %q: max_listings must not be negative", s.Kind)
		}
	case StepExtractJob:
		want = 1
		if s.ExtractJob == nil {
			return fmt.Errorf("kind %q requires extract_job params", s.Kind)
		}
		if s.ExtractJob.DescriptionSelector == "" {
			return fmt.Errorf("kind %q: description_selector is required", s.Kind)
		}
	case StepDecision:
		want = 1
		if s.Decision == nil {
			return fmt.Errorf("kind %q requires decision params", s.Kind)
		}
	case StepSubmitApplication:
		want = 1
		if s.Submit == nil {
			return fmt.Errorf("kind %q requires submit params", s.Kind)
		}
		if s.Submit.ApplySelector == "" || s.Submit.SubmitSelector == "" {
			return fmt.Errorf("kind %q: apply_selector and submit_selector are required", s.Kind)
		}
	case StepRecordOutcome:
		want = 0
	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}

	if got != want {
		return fmt.Errorf("kind %q: expected %d params block(s), found %d", s.Kind, want, got)
	}
	return nil
}

// FindStep returns the first step of the given kind, or nil.
func (t *Template) FindStep(kind StepKind) *Step {
	for i := range t.Steps {
		if t.Steps[i].Kind == kind {
			return &t.Steps[i]
		}
	}
	return nil
}
