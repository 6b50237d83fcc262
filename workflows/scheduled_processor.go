// workflows/scheduled_processor.go
package workflows

import (
	"context"
	"fmt"

	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/services"
)

type ScheduledProcessor struct {
	orchestrator services.Orchestrator
	notifier     *SlackNotifier
	schedule     string
	client       inngestgo.Client
}

func NewScheduledProcessor(orchestrator services.Orchestrator, notifier *SlackNotifier, schedule string) *ScheduledProcessor {
	return &ScheduledProcessor{
		orchestrator: orchestrator,
		notifier:     notifier,
		schedule:     schedule,
	}
}

func (p *ScheduledProcessor) SetClient(client inngestgo.Client) {
	p.client = client
}

// DailySweep analyses every active project not yet analysed today.
func (p *ScheduledProcessor) DailySweep() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:   "daily-visibility-sweep",
			Name: "Daily Visibility Sweep - All Active Projects",
		},
		inngestgo.CronTrigger(p.schedule),
		func(ctx context.Context, input inngestgo.Input[any]) (any, error) {
			// The sweep never fails; completed projects are skipped on replay.
			report, err := step.Run(ctx, "run-daily-sweep", func(ctx context.Context) (*services.DailyRunReport, error) {
				return p.orchestrator.RunDailyForAllActive(ctx), nil
			})
			if err != nil {
				return nil, fmt.Errorf("daily sweep step failed: %w", err)
			}

			_, err = step.Run(ctx, "alert-failures", func(ctx context.Context) (int, error) {
				if alertErr := p.notifier.ReportDailyRun(ctx, report); alertErr != nil {
					log.Warn().Err(alertErr).Msg("[DailySweep] some slack alerts were not delivered")
				}
				return len(report.Failures), nil
			})
			if err != nil {
				log.Warn().Err(err).Msg("[DailySweep] alert step failed")
			}

			return map[string]interface{}{
				"execution_date": report.Date.Format("2006-01-02"),
				"processed":      report.Processed,
				"succeeded":      report.Succeeded,
				"failed":         report.Failed,
				"message":        fmt.Sprintf("Analysed %d projects, %d failed", report.Processed, report.Failed),
			}, nil
		},
	)
	if err != nil {
		log.Error().Err(err).Msg("[DailySweep] failed to create daily sweep function")
	}
	return fn
}
