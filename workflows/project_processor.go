// workflows/project_processor.go
package workflows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/services"
)

// EventProjectAnalyze requests an on-demand analysis of one project.
const EventProjectAnalyze = "project.analyze"

type ProjectProcessor struct {
	orchestrator services.Orchestrator
	notifier     *SlackNotifier
	client       inngestgo.Client
}

func NewProjectProcessor(orchestrator services.Orchestrator, notifier *SlackNotifier) *ProjectProcessor {
	return &ProjectProcessor{
		orchestrator: orchestrator,
		notifier:     notifier,
	}
}

func (p *ProjectProcessor) SetClient(client inngestgo.Client) {
	p.client = client
}

func (p *ProjectProcessor) AnalyzeProject() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:      "analyze-project",
			Name:    "Analyze Project - Brand Visibility Across Surfaces",
			Retries: inngestgo.IntPtr(2),
		},
		inngestgo.EventTrigger(EventProjectAnalyze, nil),
		func(ctx context.Context, input inngestgo.Input[ProjectAnalyzeEvent]) (any, error) {
			return p.handle(ctx, input.Event.Data, func(name string, fn func(context.Context) (*services.AnalysisReport, error)) (*services.AnalysisReport, error) {
				return step.Run(ctx, name, fn)
			})
		},
	)
	if err != nil {
		panic(fmt.Errorf("failed to create AnalyzeProject function: %w", err))
	}
	return fn
}

type stepRunner func(name string, fn func(context.Context) (*services.AnalysisReport, error)) (*services.AnalysisReport, error)

// handle runs one analysis. Requests that can never succeed are reported and
// acknowledged; other failures are returned so the run is retried.
func (p *ProjectProcessor) handle(ctx context.Context, evt ProjectAnalyzeEvent, run stepRunner) (any, error) {
	projectID, opts, err := evt.options()
	if err != nil {
		log.Error().Err(err).Str("project_id", evt.ProjectID).Msg("[AnalyzeProject] rejected event")
		return map[string]interface{}{"project_id": evt.ProjectID, "status": "rejected", "error": err.Error()}, nil
	}
	log.Info().
		Str("project_id", projectID.String()).
		Str("triggered_by", evt.TriggeredBy).
		Strs("surfaces", opts.SurfaceFilter).
		Msg("[AnalyzeProject] starting analysis")

	report, err := run("analyze-project", func(ctx context.Context) (*services.AnalysisReport, error) {
		return p.orchestrator.AnalyzeProject(ctx, projectID, opts)
	})
	if err != nil {
		if alertErr := p.notifier.ReportAnalysisFailure(ctx, "on_demand", projectID.String(), failureReason(err), err); alertErr != nil {
			log.Warn().Err(alertErr).Msg("[AnalyzeProject] failed to post slack alert")
		}
		if isTerminal(err) {
			return map[string]interface{}{"project_id": projectID.String(), "status": "rejected", "error": err.Error()}, nil
		}
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	log.Info().
		Str("project_id", projectID.String()).
		Bool("ok", report.OK).
		Bool("stopped", report.Stopped).
		Strs("incomplete", report.IncompleteSurfaces).
		Msg("[AnalyzeProject] analysis finished")
	return map[string]interface{}{
		"project_id":   projectID.String(),
		"status":       "completed",
		"report":       report,
		"completed_at": time.Now().UTC(),
	}, nil
}

// isTerminal reports errors a retry cannot fix.
func isTerminal(err error) bool {
	var verr *services.ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, services.ErrProjectNotFound) ||
		errors.Is(err, services.ErrProjectInactive) ||
		errors.Is(err, services.ErrNoProviders)
}

func failureReason(err error) string {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid_project"
	case errors.Is(err, services.ErrProjectNotFound), errors.Is(err, services.ErrProjectInactive):
		return "project_unavailable"
	case errors.Is(err, services.ErrNoProviders), errors.Is(err, services.ErrNoHealthyProviders):
		return "no_providers"
	}
	return "analysis_failed"
}

// Event types
type ProjectAnalyzeEvent struct {
	ProjectID      string   `json:"project_id"`
	UserID         string   `json:"user_id,omitempty"`
	Surfaces       []string `json:"surfaces,omitempty"`
	ForceOverwrite bool     `json:"force_overwrite,omitempty"`
	TriggeredBy    string   `json:"triggered_by,omitempty"`
}

func (e ProjectAnalyzeEvent) options() (uuid.UUID, services.AnalyzeOptions, error) {
	projectID, err := uuid.Parse(strings.TrimSpace(e.ProjectID))
	if err != nil {
		return uuid.Nil, services.AnalyzeOptions{}, fmt.Errorf("invalid project_id: %w", err)
	}
	opts := services.AnalyzeOptions{ForceOverwrite: e.ForceOverwrite}
	for _, s := range e.Surfaces {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			opts.SurfaceFilter = append(opts.SurfaceFilter, s)
		}
	}
	if e.UserID != "" {
		userID, err := uuid.Parse(e.UserID)
		if err != nil {
			return uuid.Nil, services.AnalyzeOptions{}, fmt.Errorf("invalid user_id: %w", err)
		}
		opts.UserID = userID
	}
	return projectID, opts, nil
}
