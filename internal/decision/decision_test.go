package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func questions() []Question {
	return []Question{
		{Prompt: "Years of Go?", Kind: QuestionText},
		{Prompt: "Cover letter", Kind: QuestionMultiLine},
		{Prompt: "Authorized to work?", Kind: QuestionRadio, Options: []string{"Yes", "No"}},
		{Prompt: "Seniority", Kind: QuestionSelect, Options: []string{"Junior", "Senior"}},
		{Prompt: "Stacks", Kind: QuestionMultiSelect, Options: []string{"Go", "Rust", "Python"}},
	}
}

func fullAnswers() []Answer {
	return []Answer{
		{Prompt: "Years of Go?", Kind: QuestionText, Value: "6"},
		{Prompt: "Cover letter", Kind: QuestionMultiLine, Value: "Hello."},
		{Prompt: "Authorized to work?", Kind: QuestionRadio, Value: "Yes"},
		{Prompt: "Seniority", Kind: QuestionSelect, Value: "Senior"},
		{Prompt: "Stacks", Kind: QuestionMultiSelect, Values: []string{"Go", "Rust"}},
	}
}

func TestValidateAcceptsCompleteApply(t *testing.T) {
	d := &Decision{Verdict: VerdictApply, Answers: fullAnswers()}
	require.NoError(t, d.Validate(questions()))
}

func TestValidateSkipNeedsNoAnswers(t *testing.T) {
	d := &Decision{Verdict: VerdictSkip, Reasoning: "salary too low"}
	require.NoError(t, d.Validate(questions()))
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Decision)
	}{
		{"nil decision", nil},
		{"bad verdict", func(d *Decision) { d.Verdict = "maybe" }},
		{"missing answer", func(d *Decision) { d.Answers = d.Answers[1:] }},
		{"empty text", func(d *Decision) { d.Answers[0].Value = "" }},
		{"radio off options", func(d *Decision) { d.Answers[2].Value = "Sometimes" }},
		{"select off options", func(d *Decision) { d.Answers[3].Value = "Staff" }},
		{"empty multi select", func(d *Decision) { d.Answers[4].Values = nil }},
		{"multi select off options", func(d *Decision) { d.Answers[4].Values = []string{"COBOL"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.mutate == nil {
				var d *Decision
				assert.Error(t, d.Validate(questions()))
				return
			}
			d := &Decision{Verdict: VerdictApply, Answers: fullAnswers()}
			tt.mutate(d)
			assert.Error(t, d.Validate(questions()))
		})
	}
}

// flakyEngine fails a scripted number of times before succeeding.
type flakyEngine struct {
	failures int
	calls    int
}

func (e *flakyEngine) Decide(_ context.Context, _ JobContext, _ Profile, _ string) (*Decision, error) {
	e.calls++
	if e.calls <= e.failures {
		return nil, errors.New("upstream 503")
	}
	return &Decision{Verdict: VerdictSkip}, nil
}

func retryCfg(attempts int) RetryConfig {
	return RetryConfig{Attempts: attempts, InitialBackoff: time.Millisecond}
}

func TestRetryingRecoversFromTransientFailures(t *testing.T) {
	engine := &flakyEngine{failures: 2}
	r := NewRetrying(engine, retryCfg(3), zap.NewNop().Sugar())

	d, err := r.Decide(context.Background(), JobContext{}, Profile{}, "")
	require.NoError(t, err)
	assert.Equal(t, VerdictSkip, d.Verdict)
	assert.Equal(t, 3, engine.calls)
}

func TestRetryingExhaustionIsDecisionUnavailable(t *testing.T) {
	engine := &flakyEngine{failures: 10}
	r := NewRetrying(engine, retryCfg(3), zap.NewNop().Sugar())

	_, err := r.Decide(context.Background(), JobContext{}, Profile{}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecisionUnavailable)
	assert.Equal(t, 3, engine.calls)
}

func TestRetryingHonorsContext(t *testing.T) {
	engine := &flakyEngine{failures: 10}
	r := NewRetrying(engine, RetryConfig{Attempts: 5, InitialBackoff: time.Hour}, zap.NewNop().Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Decide(ctx, JobContext{}, Profile{}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecisionUnavailable)
	assert.Less(t, time.Since(start), time.Second, "cancellation must cut the backoff short")
	assert.Equal(t, 1, engine.calls)
}
