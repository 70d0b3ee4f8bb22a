package decision

import (
	"context"
	"errors"
	"fmt"
)

// ErrDecisionUnavailable is surfaced once the adapter has exhausted its
// retries. Callers treat it as a per-job failure, never a run failure.
var ErrDecisionUnavailable = errors.New("decision engine unavailable")

// QuestionKind mirrors the screening-question widgets found on application
// forms.
type QuestionKind string

const (
	QuestionText        QuestionKind = "text"
	QuestionMultiLine   QuestionKind = "multiline"
	QuestionRadio       QuestionKind = "radio"
	QuestionSelect      QuestionKind = "select"
	QuestionMultiSelect QuestionKind = "multi_select"
)

// Question is one screening question extracted from an application form.
type Question struct {
	Prompt  string       `json:"prompt"`
	Kind    QuestionKind `json:"kind"`
	Options []string     `json:"options,omitempty"`
}

// Answer is the engine's answer to one screening question.
type Answer struct {
	Prompt string   `json:"prompt"`
	Kind   QuestionKind `json:"kind"`
	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
}

// JobContext is everything the engine sees about one candidate job.
type JobContext struct {
	Platform    string     `json:"platform"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions,omitempty"`
}

// Profile is the applicant context sent alongside every decision request.
type Profile struct {
	ResumeText   string `json:"resume_text"`
	Preferences  string `json:"preferences,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// Verdict is the engine's call on a job.
type Verdict string

const (
	VerdictApply Verdict = "apply"
	VerdictSkip  Verdict = "skip"
)

// Decision is the engine's structured response. Identical inputs may produce
// different output; callers must not assume repeatability.
type Decision struct {
	Verdict   Verdict  `json:"verdict"`
	Reasoning string   `json:"reasoning,omitempty"`
	Answers   []Answer `json:"answers,omitempty"`
}

// Engine answers screening questions and decides whether to apply.
type Engine interface {
	Decide(ctx context.Context, job JobContext, profile Profile, model string) (*Decision, error)
}

// Validate checks the decision against the expected shape for the job's
// questions. An invalid or empty decision is a per-job failure.
func (d *Decision) Validate(questions []Question) error {
	if d == nil {
		return fmt.Errorf("empty decision")
	}
	switch d.Verdict {
	case VerdictApply, VerdictSkip:
	default:
		return fmt.Errorf("invalid verdict %q", d.Verdict)
	}
	if d.Verdict == VerdictSkip {
		return nil
	}

	answered := make(map[string]*Answer, len(d.Answers))
	for i := range d.Answers {
		answered[d.Answers[i].Prompt] = &d.Answers[i]
	}
	for _, q := range questions {
		ans, ok := answered[q.Prompt]
		if !ok {
			return fmt.Errorf("missing answer for question %q", q.Prompt)
		}
		if err := validateAnswer(q, ans); err != nil {
			return err
		}
	}
	return nil
}

func validateAnswer(q Question, ans *Answer) error {
	switch q.Kind {
	case QuestionText, QuestionMultiLine:
		if ans.Value == "" {
			return fmt.Errorf("question %q: empty answer", q.Prompt)
		}
	case QuestionRadio, QuestionSelect:
		if !containsOption(q.Options, ans.Value) {
			return fmt.Errorf("question %q: answer %q is not an option", q.Prompt, ans.Value)
		}
	case QuestionMultiSelect:
		if len(ans.Values) == 0 {
			return fmt.Errorf("question %q: no selections", q.Prompt)
		}
		for _, v := range ans.Values {
			if !containsOption(q.Options, v) {
				return fmt.Errorf("question %q: selection %q is not an option", q.Prompt, v)
			}
		}
	default:
		return fmt.Errorf("question %q: unknown kind %q", q.Prompt, q.Kind)
	}
	return nil
}

func containsOption(options []string, value string) bool {
	for _, opt := range options {
		if opt == value {
			return true
		}
	}
	return false
}
