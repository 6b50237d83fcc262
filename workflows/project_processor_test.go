package workflows

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-visibility/services"
)

type stubOrchestrator struct {
	projectID uuid.UUID
	opts      services.AnalyzeOptions
	report    *services.AnalysisReport
	err       error
}

func (s *stubOrchestrator) AnalyzeProject(_ context.Context, projectID uuid.UUID, opts services.AnalyzeOptions) (*services.AnalysisReport, error) {
	s.projectID, s.opts = projectID, opts
	return s.report, s.err
}

func (s *stubOrchestrator) RunDailyForAllActive(context.Context) *services.DailyRunReport {
	return &services.DailyRunReport{}
}

func directStep(name string, fn func(context.Context) (*services.AnalysisReport, error)) (*services.AnalysisReport, error) {
	return fn(context.Background())
}

func TestProjectAnalyzeEventOptions(t *testing.T) {
	projectID, userID := uuid.New(), uuid.New()

	gotID, opts, err := ProjectAnalyzeEvent{
		ProjectID:      " " + projectID.String(),
		UserID:         userID.String(),
		Surfaces:       []string{"OpenAI", " ", "serp"},
		ForceOverwrite: true,
	}.options()
	require.NoError(t, err)
	assert.Equal(t, projectID, gotID)
	assert.Equal(t, []string{"openai", "serp"}, opts.SurfaceFilter)
	assert.Equal(t, userID, opts.UserID)
	assert.True(t, opts.ForceOverwrite)

	_, _, err = ProjectAnalyzeEvent{ProjectID: "nope"}.options()
	assert.Error(t, err)
	_, _, err = ProjectAnalyzeEvent{ProjectID: projectID.String(), UserID: "nope"}.options()
	assert.Error(t, err)
}

func TestProjectProcessorHandle(t *testing.T) {
	projectID := uuid.New()
	orch := &stubOrchestrator{report: &services.AnalysisReport{OK: true, ProjectID: projectID}}
	p := NewProjectProcessor(orch, nil)

	out, err := p.handle(context.Background(), ProjectAnalyzeEvent{ProjectID: projectID.String()}, directStep)
	require.NoError(t, err)

	result := out.(map[string]interface{})
	assert.Equal(t, "completed", result["status"])
	assert.Equal(t, orch.report, result["report"])
	assert.Equal(t, projectID, orch.projectID)
}

func TestProjectProcessorTerminalErrorsAreAcknowledged(t *testing.T) {
	rec := &webhookRecorder{}
	srv := rec.server(t)
	orch := &stubOrchestrator{err: &services.ValidationError{Field: "brand_name", Reason: "too short"}}
	p := NewProjectProcessor(orch, NewSlackNotifier(srv.URL))

	out, err := p.handle(context.Background(), ProjectAnalyzeEvent{ProjectID: uuid.NewString()}, directStep)
	require.NoError(t, err)
	assert.Equal(t, "rejected", out.(map[string]interface{})["status"])

	msgs := rec.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "reason=invalid_project")
}

func TestProjectProcessorRetriesTransientFailures(t *testing.T) {
	orch := &stubOrchestrator{err: errors.New("every surface failed")}
	p := NewProjectProcessor(orch, nil)

	_, err := p.handle(context.Background(), ProjectAnalyzeEvent{ProjectID: uuid.NewString()}, directStep)
	require.Error(t, err)
	assert.ErrorIs(t, err, orch.err)
}

func TestProjectProcessorRejectsMalformedEvent(t *testing.T) {
	orch := &stubOrchestrator{}
	p := NewProjectProcessor(orch, nil)

	out, err := p.handle(context.Background(), ProjectAnalyzeEvent{ProjectID: "not-a-uuid"}, directStep)
	require.NoError(t, err)
	assert.Equal(t, "rejected", out.(map[string]interface{})["status"])
	assert.Equal(t, uuid.Nil, orch.projectID)
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&services.ValidationError{Field: "x"}, "invalid_project"},
		{fmt.Errorf("%w: id", services.ErrProjectInactive), "project_unavailable"},
		{services.ErrNoHealthyProviders, "no_providers"},
		{errors.New("db"), "analysis_failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, failureReason(tt.err), tt.err.Error())
	}
	assert.False(t, isTerminal(services.ErrNoHealthyProviders))
	assert.True(t, isTerminal(services.ErrNoProviders))
}
